package mcptools

// --- MCP tool types for --serve-mcp and the /mcp endpoint ---

// TriageCaseInput is the input for the triage_case MCP tool.
type TriageCaseInput struct {
	PatientID      string `json:"patientId,omitempty" jsonschema:"ID of a patient in the case store (e.g. P004)"`
	CaseContext    string `json:"caseContext,omitempty" jsonschema:"free-text case record, used when no patientId is given or appended to the stored record"`
	Symptoms       string `json:"symptoms" jsonschema:"presenting complaint, English or Hinglish"`
	IncludeSummary bool   `json:"includeSummary,omitempty" jsonschema:"also run the summary stage"`
}

// TriageCaseOutput is the result of the triage_case MCP tool.
type TriageCaseOutput struct {
	RunID   string        `json:"runId"`
	Status  string        `json:"status"` // COMPLETED or FAILED
	Stages  []StageOutput `json:"stages"`
	Summary string        `json:"summary,omitempty"`
	Message string        `json:"message,omitempty"`
}

// StageOutput is one specialist's contribution.
type StageOutput struct {
	Key        string `json:"key"`
	Role       string `json:"role"`
	Output     string `json:"output"`
	Confidence int    `json:"confidence,omitempty"`
}

// GetRunInput is the input for the get_run MCP tool.
type GetRunInput struct {
	RunID string `json:"runId" jsonschema:"run ID returned by triage_case or the HTTP API"`
}

// GetRunOutput is the result of the get_run MCP tool.
type GetRunOutput struct {
	RunID        string        `json:"runId"`
	PatientID    string        `json:"patientId,omitempty"`
	Status       string        `json:"status"`
	CurrentStage string        `json:"currentStage,omitempty"`
	Stages       []StageOutput `json:"stages"`
	Summary      string        `json:"summary,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// ListPatientsInput is the input for the list_patients MCP tool.
type ListPatientsInput struct {
	Insurance string `json:"insurance,omitempty" jsonschema:"only patients on this insurance tier (PMJAY, CGHS, ESIC, Private, Self-Pay)"`
}

// ListPatientsOutput is the result of the list_patients MCP tool.
type ListPatientsOutput struct {
	Patients []PatientSummary `json:"patients"`
}

// PatientSummary is the demographic line of one patient.
type PatientSummary struct {
	ID        string `json:"patientId"`
	ABHA      string `json:"abhaNumber"`
	Name      string `json:"name"`
	Age       int    `json:"age"`
	Gender    string `json:"gender"`
	Insurance string `json:"insurance"`
	City      string `json:"city"`
}
