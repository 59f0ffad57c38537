// Package records is the SQLite-backed case store. It holds demo patient
// records and renders them into the case context handed to the triage
// pipeline.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no patient matches a lookup.
var ErrNotFound = errors.New("records: patient not found")

// Patient is the demographic header of a record.
type Patient struct {
	ID            string `json:"patient_id"`
	ABHA          string `json:"abha_number"`
	Name          string `json:"name"`
	DOB           string `json:"dob,omitempty"`
	Age           int    `json:"age"`
	Gender        string `json:"gender"`
	InsuranceTier string `json:"insurance_tier"`
	City          string `json:"city"`
	Pincode       string `json:"pincode"`
	Phone         string `json:"phone,omitempty"`
}

// Encounter is one clinical visit.
type Encounter struct {
	ID             string `json:"encounter_id"`
	Date           string `json:"date"`
	ChiefComplaint string `json:"chief_complaint"`
	Symptoms       string `json:"symptoms"`
	Notes          string `json:"notes"`
}

// Medication is one prescribed drug.
type Medication struct {
	ID        string `json:"med_id"`
	DrugName  string `json:"drug_name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
	Status    string `json:"status"`
}

// Vitals is one set of bedside observations. Temperature is in °C.
type Vitals struct {
	ID               string  `json:"vital_id"`
	Timestamp        string  `json:"timestamp"`
	HeartRate        int     `json:"heart_rate"`
	Systolic         int     `json:"blood_pressure_systolic"`
	Diastolic        int     `json:"blood_pressure_diastolic"`
	Temperature      float64 `json:"temperature"`
	OxygenSaturation int     `json:"oxygen_saturation"`
	RespiratoryRate  int     `json:"respiratory_rate"`
}

// Allergy is one known allergen.
type Allergy struct {
	ID       string `json:"allergy_id"`
	Allergen string `json:"allergen"`
	Reaction string `json:"reaction"`
	Severity string `json:"severity"`
}

// LabResult is one laboratory finding. Flag is NORMAL, HIGH, or LOW.
type LabResult struct {
	ID             string `json:"lab_id"`
	TestName       string `json:"test_name"`
	Value          string `json:"result_value"`
	Unit           string `json:"unit"`
	ReferenceRange string `json:"reference_range"`
	Flag           string `json:"flag"`
	Date           string `json:"date"`
}

// Record aggregates everything known about one patient. Encounters, vitals,
// and labs are newest first.
type Record struct {
	Patient
	Encounters  []Encounter  `json:"encounters"`
	Medications []Medication `json:"medications"`
	Vitals      []Vitals     `json:"vitals"`
	Allergies   []Allergy    `json:"allergies"`
	LabResults  []LabResult  `json:"lab_results"`
}

// Store reads and writes patient records in a SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and installs the
// schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("records: create db dir: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("records: open %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("records: ping %s: %w", path, err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("case store open", "path", path)
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("records: apply schema: %w", err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

const patientColumns = `patient_id, abha_number, name, dob, age, gender, insurance_tier, city, pincode, phone`

func scanPatient(row interface{ Scan(...any) error }) (Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.ABHA, &p.Name, &p.DOB, &p.Age, &p.Gender, &p.InsuranceTier, &p.City, &p.Pincode, &p.Phone)
	return p, err
}

// ListPatients returns every patient ordered by name.
func (s *Store) ListPatients(ctx context.Context) ([]Patient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("records: list patients: %w", err)
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("records: scan patient: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPatient returns the demographic header for id.
func (s *Store) GetPatient(ctx context.Context, id string) (Patient, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM patients WHERE patient_id = ?`, id)
	return s.patientOrNotFound(row, id)
}

// GetByABHA returns the patient holding the given ABHA number.
func (s *Store) GetByABHA(ctx context.Context, abha string) (Patient, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM patients WHERE abha_number = ?`, abha)
	return s.patientOrNotFound(row, abha)
}

func (s *Store) patientOrNotFound(row *sql.Row, key string) (Patient, error) {
	p, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Patient{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return Patient{}, fmt.Errorf("records: get patient %s: %w", key, err)
	}
	return p, nil
}

// GetRecord returns the full record for patient id.
func (s *Store) GetRecord(ctx context.Context, id string) (*Record, error) {
	p, err := s.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	rec := &Record{Patient: p}

	if rec.Encounters, err = s.encounters(ctx, id); err != nil {
		return nil, err
	}
	if rec.Medications, err = s.medications(ctx, id); err != nil {
		return nil, err
	}
	if rec.Vitals, err = s.vitals(ctx, id); err != nil {
		return nil, err
	}
	if rec.Allergies, err = s.allergies(ctx, id); err != nil {
		return nil, err
	}
	if rec.LabResults, err = s.labs(ctx, id); err != nil {
		return nil, err
	}
	return rec, nil
}

func queryAll[T any](ctx context.Context, db *sql.DB, what, query string, scan func(*sql.Rows) (T, error), args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("records: query %s: %w", what, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("records: scan %s: %w", what, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: iterate %s: %w", what, err)
	}
	return out, nil
}

func (s *Store) encounters(ctx context.Context, id string) ([]Encounter, error) {
	return queryAll(ctx, s.db, "encounters",
		`SELECT encounter_id, date, chief_complaint, symptoms, notes
		 FROM encounters WHERE patient_id = ? ORDER BY date DESC, encounter_id DESC`,
		func(r *sql.Rows) (Encounter, error) {
			var e Encounter
			err := r.Scan(&e.ID, &e.Date, &e.ChiefComplaint, &e.Symptoms, &e.Notes)
			return e, err
		}, id)
}

func (s *Store) medications(ctx context.Context, id string) ([]Medication, error) {
	return queryAll(ctx, s.db, "medications",
		`SELECT med_id, drug_name, dosage, frequency, status
		 FROM medications WHERE patient_id = ? ORDER BY status, med_id`,
		func(r *sql.Rows) (Medication, error) {
			var m Medication
			err := r.Scan(&m.ID, &m.DrugName, &m.Dosage, &m.Frequency, &m.Status)
			return m, err
		}, id)
}

func (s *Store) vitals(ctx context.Context, id string) ([]Vitals, error) {
	return queryAll(ctx, s.db, "vitals",
		`SELECT vital_id, timestamp, heart_rate, bp_systolic, bp_diastolic, temperature, spo2, respiratory_rate
		 FROM vitals WHERE patient_id = ? ORDER BY timestamp DESC LIMIT 5`,
		func(r *sql.Rows) (Vitals, error) {
			var v Vitals
			err := r.Scan(&v.ID, &v.Timestamp, &v.HeartRate, &v.Systolic, &v.Diastolic, &v.Temperature, &v.OxygenSaturation, &v.RespiratoryRate)
			return v, err
		}, id)
}

func (s *Store) allergies(ctx context.Context, id string) ([]Allergy, error) {
	return queryAll(ctx, s.db, "allergies",
		`SELECT allergy_id, allergen, reaction, severity
		 FROM allergies WHERE patient_id = ? ORDER BY allergy_id`,
		func(r *sql.Rows) (Allergy, error) {
			var a Allergy
			err := r.Scan(&a.ID, &a.Allergen, &a.Reaction, &a.Severity)
			return a, err
		}, id)
}

func (s *Store) labs(ctx context.Context, id string) ([]LabResult, error) {
	return queryAll(ctx, s.db, "lab results",
		`SELECT lab_id, test_name, result_value, unit, reference_range, flag, date
		 FROM lab_results WHERE patient_id = ? ORDER BY date DESC, lab_id`,
		func(r *sql.Rows) (LabResult, error) {
			var l LabResult
			err := r.Scan(&l.ID, &l.TestName, &l.Value, &l.Unit, &l.ReferenceRange, &l.Flag, &l.Date)
			return l, err
		}, id)
}
