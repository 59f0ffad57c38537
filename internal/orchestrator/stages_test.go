package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlan(t *testing.T) {
	plan := DefaultPlan()
	require.NoError(t, plan.Validate())

	assert.Equal(t, []string{KeyDiagnostician, KeyPharmacologist, KeyFinancialAuditor, KeyABHACompliance}, plan.Keys())
	assert.Equal(t, BackendDiagnostician, plan.Stages[0].Backend)
	assert.Equal(t, BackendLongContext, plan.Stages[1].Backend)
	assert.Equal(t, BackendWorkhorse, plan.Stages[2].Backend)
	assert.Equal(t, BackendWorkhorse, plan.Stages[3].Backend)
	assert.Equal(t, BackendLongContext, plan.Summary.Backend)
}

func TestDefaultPlan_Prompts(t *testing.T) {
	plan := DefaultPlan()
	in := PromptInput{
		CaseContext:  "Patient: Ramesh Kumar (ID: P001)",
		InitialInput: "seene mein dard",
		Cascade:      "\n\n--- Output from Chief Diagnostician ---\nAcute coronary syndrome 70%",
	}

	first := plan.Stages[0].Build(PromptInput{CaseContext: in.CaseContext, InitialInput: in.InitialInput})
	assert.Contains(t, first, "Patient: Ramesh Kumar")
	assert.Contains(t, first, "seene mein dard")
	assert.Contains(t, first, "ICD-10")

	for i, st := range plan.Stages[1:] {
		p := st.Build(in)
		assert.Contains(t, p, in.CaseContext, "stage %d", i+1)
		assert.Contains(t, p, "Acute coronary syndrome 70%", "stage %d", i+1)
	}
	assert.Contains(t, plan.Stages[1].Build(in), "SAFE / WARNING / DANGER")
	assert.Contains(t, plan.Stages[2].Build(in), "PMJAY")
	assert.Contains(t, plan.Stages[3].Build(in), "14-digit")

	summary := plan.Summary.Build(in)
	assert.Contains(t, summary, "Acute coronary syndrome 70%")
	for _, section := range []string{"FINAL DIAGNOSIS", "MEDICATION PLAN", "COST BREAKDOWN", "RED FLAGS", "NEXT STEPS"} {
		assert.Contains(t, summary, section)
	}
	assert.Contains(t, summary, "under 400 words")
}

func TestPlan_Validate(t *testing.T) {
	noop := func(PromptInput) string { return "" }
	good := StageSpec{Key: "a", Role: "A", Backend: "m", Build: noop}

	tests := []struct {
		name string
		plan Plan
	}{
		{"empty", Plan{Summary: good}},
		{"missing role", Plan{Stages: []StageSpec{{Key: "a", Backend: "m", Build: noop}}, Summary: good}},
		{"missing backend", Plan{Stages: []StageSpec{{Key: "a", Role: "A", Build: noop}}, Summary: good}},
		{"missing builder", Plan{Stages: []StageSpec{{Key: "a", Role: "A", Backend: "m"}}, Summary: good}},
		{"duplicate key", Plan{Stages: []StageSpec{good, good}, Summary: good}},
		{"missing key", Plan{Stages: []StageSpec{{Role: "A", Backend: "m", Build: noop}}, Summary: good}},
		{"blank key among keyed stages", Plan{Stages: []StageSpec{good, {Key: " ", Role: "B", Backend: "m", Build: noop}}, Summary: good}},
		{"bad summary", Plan{Stages: []StageSpec{good}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.plan.Validate(), ErrInvalidPlan)
		})
	}

	assert.NoError(t, Plan{Stages: []StageSpec{good}, Summary: good}.Validate())
}

func TestPlan_WithOverride(t *testing.T) {
	base := DefaultPlan()

	patched, err := base.WithOverride(KeyPharmacologist, StageOverride{Backend: "openai/gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", patched.Stages[1].Backend)
	assert.Equal(t, "Jan Aushadhi Pharmacologist", patched.Stages[1].Role, "empty fields keep their value")
	assert.Equal(t, BackendLongContext, base.Stages[1].Backend, "the original plan is unchanged")

	patched, err = base.WithOverride(KeySummary, StageOverride{Role: "CMO", Avatar: "🧾"})
	require.NoError(t, err)
	assert.Equal(t, "CMO", patched.Summary.Role)
	assert.Equal(t, "🧾", patched.Summary.Avatar)

	_, err = base.WithOverride("radiologist", StageOverride{Role: "x"})
	assert.ErrorIs(t, err, ErrInvalidPlan)
}
