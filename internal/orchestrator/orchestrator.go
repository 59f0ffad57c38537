package orchestrator

import (
	"context"
	"time"
)

// CaseInput is the per-run input. CaseContext is a pre-rendered record of the
// patient; InitialInput is the free-text complaint. Both are opaque to the
// orchestrator. RunID, when set, names the run instead of a generated ID.
type CaseInput struct {
	RunID        string
	PatientID    string
	CaseContext  string
	InitialInput string
}

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	StatusRunning   RunStatus = "RUNNING"
	StatusCompleted RunStatus = "COMPLETED"
	StatusFailed    RunStatus = "FAILED"
)

// StageResult is the immutable record of one completed stage.
type StageResult struct {
	Index      int       `json:"index"`
	Key        string    `json:"key,omitempty"`
	Role       string    `json:"role"`
	Output     string    `json:"output"`
	Confidence int       `json:"confidence"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// Run is the outcome of one pipeline execution. Runs are never reused.
type Run struct {
	ID         string
	Input      CaseInput
	Status     RunStatus
	Results    []StageResult
	Summary    string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Outputs returns the raw output of every completed ordinary stage in order.
func (r *Run) Outputs() []string {
	out := make([]string, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Output
	}
	return out
}

// Orchestrator drives a case through the staged pipeline.
type Orchestrator interface {
	// Run executes every stage and the summary, delivering events to sink.
	Run(ctx context.Context, in CaseInput, sink Sink) (*Run, error)

	// RunAndCollect executes the ordinary stages without event delivery and
	// returns their raw outputs. A failed run still returns the outputs of
	// the stages that completed.
	RunAndCollect(ctx context.Context, in CaseInput) ([]string, error)

	// Plan returns the stage plan the orchestrator executes.
	Plan() Plan
}
