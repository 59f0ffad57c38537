package records

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSeeded(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "data", "cases.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.Seed(ctx)
	require.NoError(t, err)
	return s
}

func TestOpen_EmptyStore(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "empty.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	empty, err := s.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	patients, err := s.ListPatients(ctx)
	require.NoError(t, err)
	assert.Empty(t, patients)
}

func TestSeed_Idempotent(t *testing.T) {
	s := openSeeded(t)
	ctx := context.Background()

	n, err := s.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, SeedCounts{Patients: 10, Encounters: 10, Medications: 18, Vitals: 10, Allergies: 8, LabResults: 15}, n)

	patients, err := s.ListPatients(ctx)
	require.NoError(t, err)
	assert.Len(t, patients, 10)

	empty, err := s.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestListPatients_OrderedByName(t *testing.T) {
	s := openSeeded(t)

	patients, err := s.ListPatients(context.Background())
	require.NoError(t, err)
	require.Len(t, patients, 10)
	assert.Equal(t, "Anita Devi", patients[0].Name)
	assert.Equal(t, "Vikram Patel", patients[9].Name)
	for i := 1; i < len(patients); i++ {
		assert.LessOrEqual(t, patients[i-1].Name, patients[i].Name)
	}
}

func TestGetRecord(t *testing.T) {
	s := openSeeded(t)

	rec, err := s.GetRecord(context.Background(), "P004")
	require.NoError(t, err)
	assert.Equal(t, "Mohammed Irfan Khan", rec.Name)
	assert.Equal(t, "ESIC", rec.InsuranceTier)

	require.Len(t, rec.Encounters, 1)
	assert.Equal(t, "Dengue suspected", rec.Encounters[0].ChiefComplaint)
	require.Len(t, rec.Vitals, 1)
	assert.InDelta(t, 40.0, rec.Vitals[0].Temperature, 0.001)
	require.Len(t, rec.LabResults, 3)
	assert.Equal(t, []string{"L013", "L014", "L015"}, []string{rec.LabResults[0].ID, rec.LabResults[1].ID, rec.LabResults[2].ID})
	assert.Equal(t, "LOW", rec.LabResults[0].Flag)
	require.Len(t, rec.Allergies, 1)
	assert.Equal(t, "Chloroquine", rec.Allergies[0].Allergen)
}

func TestGetRecord_MedicationOrder(t *testing.T) {
	s := openSeeded(t)

	rec, err := s.GetRecord(context.Background(), "P007")
	require.NoError(t, err)
	require.Len(t, rec.Medications, 3)
	assert.Equal(t, "M011", rec.Medications[0].ID)
	assert.Equal(t, "Non-compliant", rec.Medications[2].Status)
}

func TestGetRecord_PatientWithoutHistory(t *testing.T) {
	s := openSeeded(t)

	rec, err := s.GetRecord(context.Background(), "P002")
	require.NoError(t, err)
	assert.Empty(t, rec.Allergies)
	assert.Empty(t, rec.LabResults)
	assert.NotNil(t, rec.LabResults, "empty slices render as [] in JSON")
}

func TestGetByABHA(t *testing.T) {
	s := openSeeded(t)

	p, err := s.GetByABHA(context.Background(), "91-9012-3456-7890")
	require.NoError(t, err)
	assert.Equal(t, "P009", p.ID)
	assert.Equal(t, "Lakshmi Iyer", p.Name)
}

func TestNotFound(t *testing.T) {
	s := openSeeded(t)
	ctx := context.Background()

	_, err := s.GetRecord(ctx, "P999")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "P999")

	_, err = s.GetByABHA(ctx, "00-0000-0000-0000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFormatCaseContext(t *testing.T) {
	s := openSeeded(t)

	rec, err := s.GetRecord(context.Background(), "P004")
	require.NoError(t, err)
	got := FormatCaseContext(rec)

	assert.Contains(t, got, "**Patient:** Mohammed Irfan Khan (ID: P004)")
	assert.Contains(t, got, "**ABHA Number:** 91-4567-8901-2345")
	assert.Contains(t, got, "**Age:** 25 | **Gender:** M | **Insurance:** ESIC")
	assert.Contains(t, got, "**City:** Hyderabad | **Pincode:** 500001")
	assert.Contains(t, got, "HR 108 | BP 100/65 | Temp 40.0°C | SpO2 97% | RR 22")
	assert.Contains(t, got, "- Dolo 650 (Paracetamol) 650mg (TDS SOS), Status: Active")
	assert.Contains(t, got, "- ⚠️ Chloroquine → Rash and itching (Severity: Moderate)")
	assert.Contains(t, got, "**Latest Encounter (2026-02-22):**")
	assert.Contains(t, got, "- Platelet Count: 85000 cells/mcL [LOW] (Ref: 150000-400000)")
	assert.NotContains(t, got, "\n\n\n")
	assert.False(t, strings.HasSuffix(got, "\n"))
}

func TestFormatCaseContext_NormalFlagHidden(t *testing.T) {
	s := openSeeded(t)

	rec, err := s.GetRecord(context.Background(), "P010")
	require.NoError(t, err)
	got := FormatCaseContext(rec)
	assert.Contains(t, got, "- CBC: Normal")
	assert.NotContains(t, got, "[NORMAL]")
	assert.NotContains(t, got, "**Allergies:**")
}

func TestFormatCaseContext_Nil(t *testing.T) {
	assert.Empty(t, FormatCaseContext(nil))
}
