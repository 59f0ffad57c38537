package records

var schema = []string{
	`CREATE TABLE IF NOT EXISTS patients (
		patient_id     TEXT PRIMARY KEY,
		abha_number    TEXT NOT NULL DEFAULT '',
		name           TEXT NOT NULL,
		dob            TEXT NOT NULL DEFAULT '',
		age            INTEGER NOT NULL DEFAULT 0,
		gender         TEXT NOT NULL DEFAULT '',
		insurance_tier TEXT NOT NULL DEFAULT 'Self-Pay',
		city           TEXT NOT NULL DEFAULT '',
		pincode        TEXT NOT NULL DEFAULT '',
		phone          TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_patients_abha ON patients(abha_number)`,
	`CREATE TABLE IF NOT EXISTS encounters (
		encounter_id    TEXT PRIMARY KEY,
		patient_id      TEXT NOT NULL REFERENCES patients(patient_id) ON DELETE CASCADE,
		date            TEXT NOT NULL,
		chief_complaint TEXT NOT NULL DEFAULT '',
		symptoms        TEXT NOT NULL DEFAULT '',
		notes           TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS medications (
		med_id     TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL REFERENCES patients(patient_id) ON DELETE CASCADE,
		drug_name  TEXT NOT NULL,
		dosage     TEXT NOT NULL DEFAULT '',
		frequency  TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT 'Active'
	)`,
	`CREATE TABLE IF NOT EXISTS vitals (
		vital_id         TEXT PRIMARY KEY,
		patient_id       TEXT NOT NULL REFERENCES patients(patient_id) ON DELETE CASCADE,
		timestamp        TEXT NOT NULL,
		heart_rate       INTEGER NOT NULL,
		bp_systolic      INTEGER NOT NULL,
		bp_diastolic     INTEGER NOT NULL,
		temperature      REAL NOT NULL,
		spo2             INTEGER NOT NULL,
		respiratory_rate INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS allergies (
		allergy_id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL REFERENCES patients(patient_id) ON DELETE CASCADE,
		allergen   TEXT NOT NULL,
		reaction   TEXT NOT NULL DEFAULT 'Unknown',
		severity   TEXT NOT NULL DEFAULT 'Unknown'
	)`,
	`CREATE TABLE IF NOT EXISTS lab_results (
		lab_id          TEXT PRIMARY KEY,
		patient_id      TEXT NOT NULL REFERENCES patients(patient_id) ON DELETE CASCADE,
		test_name       TEXT NOT NULL,
		result_value    TEXT NOT NULL,
		unit            TEXT NOT NULL DEFAULT '',
		reference_range TEXT NOT NULL DEFAULT '',
		flag            TEXT NOT NULL DEFAULT 'NORMAL',
		date            TEXT NOT NULL
	)`,
}
