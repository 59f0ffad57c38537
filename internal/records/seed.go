package records

import (
	"context"
	"database/sql"
	"fmt"
)

// SeedCounts reports how many rows Seed wrote per table.
type SeedCounts struct {
	Patients    int
	Encounters  int
	Medications int
	Vitals      int
	Allergies   int
	LabResults  int
}

// Seed upserts the demo patient set. Running it repeatedly leaves the same
// rows in place.
func (s *Store) Seed(ctx context.Context) (SeedCounts, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SeedCounts{}, fmt.Errorf("records: begin seed: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	exec := func(query string, args ...any) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}

	var n SeedCounts
	for _, p := range seedPatients {
		if err := exec(`INSERT OR REPLACE INTO patients (`+patientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.ABHA, p.Name, p.DOB, p.Age, p.Gender, p.InsuranceTier, p.City, p.Pincode, p.Phone); err != nil {
			return n, seedErr("patient", p.ID, err)
		}
		n.Patients++
	}
	for _, e := range seedEncounters {
		if err := exec(`INSERT OR REPLACE INTO encounters (encounter_id, patient_id, date, chief_complaint, symptoms, notes) VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, e.patientID, e.Date, e.ChiefComplaint, e.Symptoms, e.Notes); err != nil {
			return n, seedErr("encounter", e.ID, err)
		}
		n.Encounters++
	}
	for _, m := range seedMedications {
		if err := exec(`INSERT OR REPLACE INTO medications (med_id, patient_id, drug_name, dosage, frequency, status) VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, m.patientID, m.DrugName, m.Dosage, m.Frequency, m.Status); err != nil {
			return n, seedErr("medication", m.ID, err)
		}
		n.Medications++
	}
	for _, v := range seedVitals {
		if err := exec(`INSERT OR REPLACE INTO vitals (vital_id, patient_id, timestamp, heart_rate, bp_systolic, bp_diastolic, temperature, spo2, respiratory_rate) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.patientID, v.Timestamp, v.HeartRate, v.Systolic, v.Diastolic, v.Temperature, v.OxygenSaturation, v.RespiratoryRate); err != nil {
			return n, seedErr("vitals", v.ID, err)
		}
		n.Vitals++
	}
	for _, a := range seedAllergies {
		if err := exec(`INSERT OR REPLACE INTO allergies (allergy_id, patient_id, allergen, reaction, severity) VALUES (?, ?, ?, ?, ?)`,
			a.ID, a.patientID, a.Allergen, a.Reaction, a.Severity); err != nil {
			return n, seedErr("allergy", a.ID, err)
		}
		n.Allergies++
	}
	for _, l := range seedLabs {
		if err := exec(`INSERT OR REPLACE INTO lab_results (lab_id, patient_id, test_name, result_value, unit, reference_range, flag, date) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.patientID, l.TestName, l.Value, l.Unit, l.ReferenceRange, l.Flag, l.Date); err != nil {
			return n, seedErr("lab result", l.ID, err)
		}
		n.LabResults++
	}

	if err := tx.Commit(); err != nil {
		return SeedCounts{}, fmt.Errorf("records: commit seed: %w", err)
	}
	s.logger.Info("case store seeded",
		"patients", n.Patients,
		"encounters", n.Encounters,
		"medications", n.Medications,
		"vitals", n.Vitals,
		"allergies", n.Allergies,
		"lab_results", n.LabResults)
	return n, nil
}

// IsEmpty reports whether the store holds no patients.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM patients LIMIT 1`).Scan(&one)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("records: probe patients: %w", err)
	}
	return false, nil
}

func seedErr(what, id string, err error) error {
	return fmt.Errorf("records: seed %s %s: %w", what, id, err)
}

// ---------------------------------------------------------------------------
// Demo data
// ---------------------------------------------------------------------------

type seedEncounter struct {
	Encounter
	patientID string
}

type seedMedication struct {
	Medication
	patientID string
}

type seedVital struct {
	Vitals
	patientID string
}

type seedAllergy struct {
	Allergy
	patientID string
}

type seedLab struct {
	LabResult
	patientID string
}

var seedPatients = []Patient{
	{"P001", "91-1234-5678-9012", "Rajesh Kumar Sharma", "1958-03-12", 67, "M", "PMJAY", "Delhi", "110001", "+919876543210"},
	{"P002", "91-2345-6789-0123", "Priya Nair", "1990-07-24", 35, "F", "Private", "Mumbai", "400001", "+919876543211"},
	{"P003", "91-3456-7890-1234", "Anita Devi", "1975-11-05", 50, "F", "CGHS", "Lucknow", "226001", "+919876543212"},
	{"P004", "91-4567-8901-2345", "Mohammed Irfan Khan", "2001-01-18", 25, "M", "ESIC", "Hyderabad", "500001", "+919876543213"},
	{"P005", "91-5678-9012-3456", "Kamala Devi Agarwal", "1945-06-30", 80, "F", "PMJAY", "Varanasi", "221001", "+919876543214"},
	{"P006", "91-6789-0123-4567", "Suresh Babu Reddy", "1983-09-14", 42, "M", "Private", "Bengaluru", "560001", "+919876543215"},
	{"P007", "91-7890-1234-5678", "Fatima Begum", "1969-02-22", 57, "F", "PMJAY", "Patna", "800001", "+919876543216"},
	{"P008", "91-8901-2345-6789", "Arjun Singh Thakur", "1995-12-01", 30, "M", "Self-Pay", "Jaipur", "302001", "+919876543217"},
	{"P009", "91-9012-3456-7890", "Lakshmi Iyer", "1952-08-19", 73, "F", "CGHS", "Chennai", "600001", "+919876543218"},
	{"P010", "91-0123-4567-8901", "Vikram Patel", "1988-04-07", 37, "M", "ESIC", "Ahmedabad", "380001", "+919876543219"},
}

var seedEncounters = []seedEncounter{
	{Encounter{"E001", "2026-02-20", "Seene mein dard (chest pain)", "Substernal chest pain radiating to left arm with pasina aana (diaphoresis), saans phoolna (shortness of breath). ECG ordered stat.", "Triage level 2, suspected ACS. Referred from PHC Sarojini Nagar."}, "P001"},
	{Encounter{"E002", "2026-02-21", "Severe migraine", "Severe throbbing sir dard (headache) for 3 days, photophobia, ulti (vomiting), visual aura. OPD visit, 3rd episode this month.", "History of menstrual migraine. Tried Dolo 650 at home with no relief."}, "P002"},
	{Encounter{"E003", "2026-02-19", "Sugar follow-up (Diabetic)", "Zyada peshab aana (polyuria), zyada pyaas lagna (polydipsia), dhundla dikhna (blurred vision), pairon mein jhunjhunahat (tingling in feet)", "HbA1c trending up from 7.2 to 9.1. Non-compliant with Glycomet. District hospital referral."}, "P003"},
	{Encounter{"E004", "2026-02-22", "Dengue suspected", "Tez bukhar (high fever) 104°F for 3 days, severe body ache, jodon mein dard (joint pain), skin rash, low platelet count suspected", "Came from local clinic after paracetamol not working. NS1 antigen ordered."}, "P004"},
	{Encounter{"E005", "2026-02-18", "Bhoolna / Cognitive decline", "Yaaddaasht kamzor (memory loss), confusion, shabd nahi milte (difficulty finding words), raat ko bhatakna (wandering at night)", "Family worried, brought in by beta (son). MMSE score 18/30."}, "P005"},
	{Encounter{"E006", "2026-02-22", "Ghabrahat (Anxiety attack)", "Dil ki dhadkan tez (palpitations), kaanpna (trembling), seene mein jakdan (chest tightness), sapne mein lag raha hai (derealization)", "Known GAD. IT professional with high work stress. Currently on Nexito 10mg."}, "P006"},
	{Encounter{"E007", "2026-02-21", "BP bahut zyada (Hypertension crisis)", "Tez sir dard (severe headache), dhundla dikhna (blurred vision), BP 195/120, naak se khoon (epistaxis)", "Non-compliant with Telmisartan. Brought from Anganwadi worker referral."}, "P007"},
	{Encounter{"E008", "2026-02-23", "Pet mein dard (Abdominal pain)", "Pet ke daayein neeche mein tez dard (sharp RLQ pain), ulti (nausea), halka bukhar (low-grade fever), rebound tenderness", "Appendicitis suspected. Surgical consult stat. Patient drove from village 40km away."}, "P008"},
	{Encounter{"E009", "2026-02-20", "Saans ki taklif (COPD exacerbation)", "Saans phoolna badh rahi hai (worsening dyspnea), balgam wali khansi, hara balgam (productive cough with green sputum), seeti ki awaaz (wheezing)", "SpO2 88% on room air. Known COPD Gold Stage III. Using Tiova Rotacaps."}, "P009"},
	{Encounter{"E010", "2026-02-22", "Chamdi pe dane (Skin rash)", "Pet aur baahon pe laal dane (erythematous papular rash on trunk and arms), khujli (pruritic), 5 din se", "No known allergen exposure. Rule out viral exanthem vs drug reaction."}, "P010"},
}

var seedMedications = []seedMedication{
	{Medication{"M001", "Ecosprin 75", "75mg", "OD", "Active"}, "P001"},
	{Medication{"M002", "Atorva 40 (Atorvastatin)", "40mg", "OD HS", "Active"}, "P001"},
	{Medication{"M003", "Metolar XR (Metoprolol)", "50mg", "BD", "Active"}, "P001"},
	{Medication{"M004", "Suminat 50 (Sumatriptan)", "50mg", "SOS", "Active"}, "P002"},
	{Medication{"M005", "Glycomet GP 2 (Metformin+Glimepiride)", "1000mg/2mg", "BD PC", "Active"}, "P003"},
	{Medication{"M006", "Glynase MF (Glipizide+Metformin)", "5mg/500mg", "OD BBF", "Active"}, "P003"},
	{Medication{"M007", "Covance 20 (Losartan)", "20mg", "OD", "Active"}, "P003"},
	{Medication{"M008", "Donep 10 (Donepezil)", "10mg", "OD HS", "Active"}, "P005"},
	{Medication{"M009", "Admenta 10 (Memantine)", "10mg", "BD", "Active"}, "P005"},
	{Medication{"M010", "Nexito 10 (Escitalopram)", "10mg", "OD", "Active"}, "P006"},
	{Medication{"M011", "Amlodac 10 (Amlodipine)", "10mg", "OD", "Active"}, "P007"},
	{Medication{"M012", "Telma 40 (Telmisartan)", "40mg", "OD", "Non-compliant"}, "P007"},
	{Medication{"M013", "Aquazide 12.5 (Hydrochlorothiazide)", "12.5mg", "OD", "Non-compliant"}, "P007"},
	{Medication{"M014", "Tiova Rotacap (Tiotropium)", "18mcg", "OD inhaler", "Active"}, "P009"},
	{Medication{"M015", "Asthalin Inhaler (Salbutamol)", "100mcg", "SOS", "Active"}, "P009"},
	{Medication{"M016", "Omnacortil 40 (Prednisolone)", "40mg", "Taper 5 days", "Active"}, "P009"},
	{Medication{"M017", "Dolo 650 (Paracetamol)", "650mg", "TDS SOS", "Active"}, "P004"},
	{Medication{"M018", "Pan-D (Pantoprazole+Domperidone)", "40mg/30mg", "OD BBF", "Active"}, "P008"},
}

var seedVitals = []seedVital{
	{Vitals{"V001", "2026-02-20 14:30:00", 102, 165, 95, 37.1, 96, 22}, "P001"},
	{Vitals{"V002", "2026-02-21 09:15:00", 78, 125, 82, 36.8, 99, 16}, "P002"},
	{Vitals{"V003", "2026-02-19 11:00:00", 88, 142, 90, 37.0, 98, 18}, "P003"},
	{Vitals{"V004", "2026-02-22 16:45:00", 108, 100, 65, 40.0, 97, 22}, "P004"},
	{Vitals{"V005", "2026-02-18 10:30:00", 68, 138, 84, 36.5, 97, 16}, "P005"},
	{Vitals{"V006", "2026-02-22 13:00:00", 112, 148, 92, 37.0, 99, 24}, "P006"},
	{Vitals{"V007", "2026-02-21 08:00:00", 96, 195, 120, 37.2, 97, 20}, "P007"},
	{Vitals{"V008", "2026-02-23 07:30:00", 94, 130, 85, 38.4, 98, 20}, "P008"},
	{Vitals{"V009", "2026-02-20 12:00:00", 92, 145, 88, 37.4, 88, 28}, "P009"},
	{Vitals{"V010", "2026-02-22 15:00:00", 74, 122, 78, 37.0, 99, 16}, "P010"},
}

var seedAllergies = []seedAllergy{
	{Allergy{"A001", "Penicillin", "Anaphylaxis", "Severe"}, "P001"},
	{Allergy{"A002", "Shellfish (Jhinga)", "Hives", "Moderate"}, "P001"},
	{Allergy{"A003", "Sulfonamides", "Rash", "Mild"}, "P003"},
	{Allergy{"A004", "Latex", "Contact dermatitis", "Moderate"}, "P005"},
	{Allergy{"A005", "ACE Inhibitors", "Angioedema", "Severe"}, "P007"},
	{Allergy{"A006", "Codeine", "Nausea/vomiting", "Moderate"}, "P008"},
	{Allergy{"A007", "Aspirin", "Bronchospasm", "Severe"}, "P009"},
	{Allergy{"A008", "Chloroquine", "Rash and itching", "Moderate"}, "P004"},
}

var seedLabs = []seedLab{
	{LabResult{"L001", "Troponin I", "0.08", "ng/mL", "0.00-0.04", "HIGH", "2026-02-20"}, "P001"},
	{LabResult{"L002", "BNP", "450", "pg/mL", "0-100", "HIGH", "2026-02-20"}, "P001"},
	{LabResult{"L003", "HbA1c", "9.1", "%", "4.0-5.6", "HIGH", "2026-02-19"}, "P003"},
	{LabResult{"L004", "Fasting Glucose", "210", "mg/dL", "70-100", "HIGH", "2026-02-19"}, "P003"},
	{LabResult{"L005", "Creatinine", "1.8", "mg/dL", "0.7-1.3", "HIGH", "2026-02-19"}, "P003"},
	{LabResult{"L006", "TSH", "5.8", "mIU/L", "0.4-4.0", "HIGH", "2026-02-18"}, "P005"},
	{LabResult{"L007", "Vitamin B12", "180", "pg/mL", "200-900", "LOW", "2026-02-18"}, "P005"},
	{LabResult{"L008", "WBC", "14200", "cells/mcL", "4500-11000", "HIGH", "2026-02-23"}, "P008"},
	{LabResult{"L009", "CRP", "8.5", "mg/dL", "0-1.0", "HIGH", "2026-02-23"}, "P008"},
	{LabResult{"L010", "ABG pH", "7.32", "", "7.35-7.45", "LOW", "2026-02-20"}, "P009"},
	{LabResult{"L011", "ABG pCO2", "52", "mmHg", "35-45", "HIGH", "2026-02-20"}, "P009"},
	{LabResult{"L012", "CBC", "Normal", "", "", "NORMAL", "2026-02-22"}, "P010"},
	{LabResult{"L013", "Platelet Count", "85000", "cells/mcL", "150000-400000", "LOW", "2026-02-22"}, "P004"},
	{LabResult{"L014", "NS1 Antigen", "Positive", "", "Negative", "HIGH", "2026-02-22"}, "P004"},
	{LabResult{"L015", "Dengue IgM", "Positive", "", "Negative", "HIGH", "2026-02-22"}, "P004"},
}
