package records

import (
	"fmt"
	"strings"
)

// FormatCaseContext renders rec as the markdown-ish block the triage stages
// read as their case context. Only the newest vitals set and encounter are
// shown.
func FormatCaseContext(rec *Record) string {
	if rec == nil {
		return ""
	}
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("**Patient:** %s (ID: %s)", rec.Name, rec.ID)
	line("**ABHA Number:** %s", orNA(rec.ABHA))
	line("**Age:** %d | **Gender:** %s | **Insurance:** %s", rec.Age, orNA(rec.Gender), orNA(rec.InsuranceTier))
	line("**City:** %s | **Pincode:** %s", orNA(rec.City), orNA(rec.Pincode))

	if len(rec.Vitals) > 0 {
		v := rec.Vitals[0]
		line("\n**Latest Vitals:** HR %d | BP %d/%d | Temp %.1f°C | SpO2 %d%% | RR %d",
			v.HeartRate, v.Systolic, v.Diastolic, v.Temperature, v.OxygenSaturation, v.RespiratoryRate)
	}

	if len(rec.Medications) > 0 {
		line("\n**Active Medications:**")
		for _, m := range rec.Medications {
			line("- %s %s (%s), Status: %s", m.DrugName, m.Dosage, m.Frequency, m.Status)
		}
	}

	if len(rec.Allergies) > 0 {
		line("\n**Allergies:**")
		for _, a := range rec.Allergies {
			line("- ⚠️ %s → %s (Severity: %s)", a.Allergen, orUnknown(a.Reaction), orUnknown(a.Severity))
		}
	}

	if len(rec.Encounters) > 0 {
		e := rec.Encounters[0]
		line("\n**Latest Encounter (%s):**", orNA(e.Date))
		line("- Chief Complaint: %s", orNA(e.ChiefComplaint))
		line("- Symptoms: %s", orNA(e.Symptoms))
		line("- Notes: %s", orNA(e.Notes))
	}

	if len(rec.LabResults) > 0 {
		line("\n**Lab Results:**")
		for _, l := range rec.LabResults {
			flag := ""
			if l.Flag != "" && l.Flag != "NORMAL" {
				flag = " [" + l.Flag + "]"
			}
			line("- %s: %s %s%s (Ref: %s)", l.TestName, l.Value, l.Unit, flag, orNA(l.ReferenceRange))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
