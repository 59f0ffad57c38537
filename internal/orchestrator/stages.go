package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// Backend refs used by the default plan. Each is an OpenRouter model slug.
const (
	BackendDiagnostician = "deepseek/deepseek-r1"
	BackendLongContext   = "google/gemini-2.0-flash-001"
	BackendWorkhorse     = "meta-llama/llama-3.3-70b-instruct"
)

// Stage keys of the default plan. They double as the field names of the
// synchronous triage response.
const (
	KeyDiagnostician    = "diagnostician"
	KeyPharmacologist   = "pharmacologist"
	KeyFinancialAuditor = "financial_auditor"
	KeyABHACompliance   = "abha_compliance"
	KeySummary          = "summary"
)

// PromptInput is everything a PromptBuilder may draw on. Cascade holds the
// rendered output of every stage that has already completed in this run.
type PromptInput struct {
	CaseContext  string
	InitialInput string
	Cascade      string
}

// PromptBuilder turns the run inputs and the cascade so far into a prompt.
type PromptBuilder func(in PromptInput) string

// StageSpec describes one reasoning stage.
type StageSpec struct {
	// Key names the stage in results and overrides; ordinary stages need a
	// unique one.
	Key     string
	Role    string
	Avatar  string
	Backend string
	Build   PromptBuilder
}

// Plan is the ordered list of ordinary stages plus the summary stage that
// condenses their combined output. The summary runs at index len(Stages).
type Plan struct {
	Stages  []StageSpec
	Summary StageSpec
}

// ErrInvalidPlan is returned by Plan.Validate.
var ErrInvalidPlan = errors.New("orchestrator: invalid plan")

// Validate checks that the plan is runnable.
func (p Plan) Validate() error {
	if len(p.Stages) == 0 {
		return fmt.Errorf("%w: no stages", ErrInvalidPlan)
	}
	seen := make(map[string]bool, len(p.Stages))
	for i, s := range p.Stages {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%w: stage %d: %v", ErrInvalidPlan, i, err)
		}
		if strings.TrimSpace(s.Key) == "" {
			return fmt.Errorf("%w: stage %d: key is empty", ErrInvalidPlan, i)
		}
		if seen[s.Key] {
			return fmt.Errorf("%w: duplicate stage key %q", ErrInvalidPlan, s.Key)
		}
		seen[s.Key] = true
	}
	if err := p.Summary.validate(); err != nil {
		return fmt.Errorf("%w: summary: %v", ErrInvalidPlan, err)
	}
	return nil
}

func (s StageSpec) validate() error {
	switch {
	case strings.TrimSpace(s.Role) == "":
		return errors.New("role is empty")
	case strings.TrimSpace(s.Backend) == "":
		return errors.New("backend ref is empty")
	case s.Build == nil:
		return errors.New("prompt builder is nil")
	}
	return nil
}

// Keys returns the stage keys in order.
func (p Plan) Keys() []string {
	keys := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		keys[i] = s.Key
	}
	return keys
}

// StageOverride replaces the display fields or backend of one stage. Empty
// fields keep the current value.
type StageOverride struct {
	Role    string
	Avatar  string
	Backend string
}

// WithOverride returns a copy of p with the stage named key patched. The key
// KeySummary addresses the summary stage.
func (p Plan) WithOverride(key string, o StageOverride) (Plan, error) {
	out := p.clone()
	if key == KeySummary {
		out.Summary = o.apply(out.Summary)
		return out, nil
	}
	for i := range out.Stages {
		if out.Stages[i].Key == key {
			out.Stages[i] = o.apply(out.Stages[i])
			return out, nil
		}
	}
	return p, fmt.Errorf("%w: unknown stage key %q", ErrInvalidPlan, key)
}

func (o StageOverride) apply(s StageSpec) StageSpec {
	if o.Role != "" {
		s.Role = o.Role
	}
	if o.Avatar != "" {
		s.Avatar = o.Avatar
	}
	if o.Backend != "" {
		s.Backend = o.Backend
	}
	return s
}

func (p Plan) clone() Plan {
	stages := make([]StageSpec, len(p.Stages))
	copy(stages, p.Stages)
	return Plan{Stages: stages, Summary: p.Summary}
}

// DefaultPlan returns the four-specialist triage roster with its summary
// stage.
func DefaultPlan() Plan {
	return Plan{
		Stages: []StageSpec{
			{
				Key:     KeyDiagnostician,
				Role:    "Chief Diagnostician",
				Avatar:  "🩺",
				Backend: BackendDiagnostician,
				Build:   diagnosisPrompt,
			},
			{
				Key:     KeyPharmacologist,
				Role:    "Jan Aushadhi Pharmacologist",
				Avatar:  "💊",
				Backend: BackendLongContext,
				Build:   pharmacologyPrompt,
			},
			{
				Key:     KeyFinancialAuditor,
				Role:    "Financial Auditor & Lab Router",
				Avatar:  "₹",
				Backend: BackendWorkhorse,
				Build:   financialPrompt,
			},
			{
				Key:     KeyABHACompliance,
				Role:    "ABHA Compliance Officer",
				Avatar:  "🛡️",
				Backend: BackendWorkhorse,
				Build:   compliancePrompt,
			},
		},
		Summary: StageSpec{
			Key:     KeySummary,
			Role:    "Chief Medical Officer (Summarizer)",
			Avatar:  "📋",
			Backend: BackendLongContext,
			Build:   summaryPrompt,
		},
	}
}

// ---------------------------------------------------------------------------
// Prompt builders
// ---------------------------------------------------------------------------

func writeRecord(b *strings.Builder, in PromptInput) {
	fmt.Fprintf(b, "**Patient Record:**\n%s\n\n", in.CaseContext)
}

func writePrior(b *strings.Builder, heading string, in PromptInput) {
	if in.Cascade == "" {
		return
	}
	fmt.Fprintf(b, "**%s:**\n%s\n\n", heading, in.Cascade)
}

func diagnosisPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("You are a senior physician (MBBS, MD Internal Medicine) practising in India. ")
	b.WriteString("You correlate symptoms (including Hinglish descriptions), labs, vitals, and history, ")
	b.WriteString("and you always cite evidence and assign confidence percentages.\n\n")
	b.WriteString("## CLINICAL TRIAGE: DETAILED ASSESSMENT\n\n")
	writeRecord(&b, in)
	fmt.Fprintf(&b, "**Chief Complaint / Symptoms (Hinglish):**\n%s\n\n", in.InitialInput)
	writePrior(&b, "PRIOR SPECIALIST OUTPUT", in)
	b.WriteString("Provide top 3 differential diagnoses with ICD-10 + SNOMED-CT codes, ")
	b.WriteString("confidence %, evidence, clinical reasoning, recommended Indian-available ")
	b.WriteString("tests, red flags, and referral advice. Reference ICMR/NMC protocols. ")
	b.WriteString("Consider tropical diseases (dengue, typhoid, malaria, TB). ")
	b.WriteString("Output must be LONG, DETAILED, and CLINICAL-GRADE (minimum 500 words).")
	return b.String()
}

func pharmacologyPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("You are a clinical pharmacologist familiar with the Pradhan Mantri Bhartiya ")
	b.WriteString("Janaushadhi Pariyojana (PMBJP) and Indian brand names (Dolo, Glycomet, Ecosprin, Telma).\n\n")
	b.WriteString("## PHARMACOLOGICAL REVIEW + JAN AUSHADHI COMPARISON\n\n")
	writeRecord(&b, in)
	writePrior(&b, "DIAGNOSTICIAN'S PLAN TO REVIEW", in)
	b.WriteString("1. Rate each current and proposed treatment: SAFE / WARNING / DANGER\n")
	b.WriteString("2. Flag drug-drug and drug-disease interactions\n")
	b.WriteString("3. For EVERY branded drug, create a Jan Aushadhi comparison table:\n")
	b.WriteString("   Brand Name → Generic → Brand ₹ → Jan Aushadhi ₹ → Monthly Savings ₹\n")
	b.WriteString("4. Calculate TOTAL monthly savings with PMBJP switch\n")
	b.WriteString("5. Flag medications where branded costs 3x+ the generic")
	return b.String()
}

func financialPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("You are a hospital administrator who cuts costs without compromising care, ")
	b.WriteString("fluent in PMJAY, CGHS, ESIC, private insurance, and self-pay pathways.\n\n")
	b.WriteString("## FINANCIAL ANALYSIS + DIAGNOSTIC LAB ROUTING\n\n")
	writeRecord(&b, in)
	writePrior(&b, "PROPOSED TREATMENT PLAN TO AUDIT", in)
	b.WriteString("1. Total treatment cost estimate in ₹\n")
	b.WriteString("2. Insurance coverage: PMJAY (₹5L) / CGHS / ESIC / Private / Self-Pay\n")
	b.WriteString("3. For every recommended test, find top 3 cheapest labs:\n")
	b.WriteString("   Test → Lab Name → Price ₹ → Turnaround → Distance from patient\n")
	b.WriteString("4. Government scheme eligibility check\n")
	b.WriteString("5. Recommended hospital tier and total cost pathway in ₹")
	return b.String()
}

func compliancePrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("You are an ABDM compliance officer applying the National Health Authority's ")
	b.WriteString("information security and privacy guidelines.\n\n")
	b.WriteString("## ABDM COMPLIANCE CHECK\n\n")
	writeRecord(&b, in)
	writePrior(&b, "TRIAGE SESSION RECORD", in)
	b.WriteString("Verify:\n")
	b.WriteString("1. ABHA number format is valid 14-digit Health ID\n")
	b.WriteString("2. Digital consent was obtained via HIE-CM\n")
	b.WriteString("3. Data sharing purpose is documented\n")
	b.WriteString("4. Session access is time-bound\n")
	b.WriteString("5. Generate compliance summary for this triage session")
	return b.String()
}

func summaryPrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("You are the Chief Medical Officer presenting the final clinical report to the attending doctor.\n")
	fmt.Fprintf(&b, "Here is the COMPLETE deliberation from the Triage Swarm:\n%s\n\n", in.Cascade)
	b.WriteString("Generate a COMPREHENSIVE executive summary covering ALL of the following sections.\n")
	b.WriteString("Use bold markdown headers for each section. Be specific: use exact drug names, ICD-10 codes, ₹ amounts, and lab names.\n\n")
	b.WriteString("## 🏥 FINAL DIAGNOSIS\n")
	b.WriteString("- Primary diagnosis with ICD-10 code and confidence %\n")
	b.WriteString("- Secondary differentials to rule out\n\n")
	b.WriteString("## 💊 MEDICATION PLAN\n")
	b.WriteString("- Prescribed medications with dosage and frequency (OD/BD/TDS)\n")
	b.WriteString("- Jan Aushadhi generic alternatives with ₹ savings per month\n")
	b.WriteString("- Drug interaction warnings (if any)\n\n")
	b.WriteString("## ₹ COST BREAKDOWN\n")
	b.WriteString("- Total estimated treatment cost in ₹\n")
	b.WriteString("- Insurance coverage (PMJAY/CGHS/ESIC eligibility)\n")
	b.WriteString("- Cheapest diagnostic labs recommended\n\n")
	b.WriteString("## ⚠️ RED FLAGS\n")
	b.WriteString("- Critical symptoms to watch in the next 24-48 hours\n")
	b.WriteString("- When to escalate to emergency\n\n")
	b.WriteString("## ➡️ NEXT STEPS\n")
	b.WriteString("- Immediate actions (labs, referrals, follow-up timeline)\n")
	b.WriteString("- Recommended hospital tier (PHC → CHC → District → Tertiary)\n\n")
	b.WriteString("Keep it under 400 words. This is the ONLY thing the doctor will read, so make every word count.")
	return b.String()
}
