// Package export writes a finished triage run to disk as a JSON document or
// a Markdown report.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dusk-indust/auratriage/internal/orchestrator"
)

// RunExport is the top-level export structure.
type RunExport struct {
	RunID      string        `json:"runId"`
	PatientID  string        `json:"patientId,omitempty"`
	Status     string        `json:"status"`
	ExportedAt string        `json:"exportedAt"`
	Symptoms   string        `json:"symptoms,omitempty"`
	Stages     []StageExport `json:"stages"`
	Summary    string        `json:"summary,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// StageExport describes one completed stage.
type StageExport struct {
	Index      int    `json:"index"`
	Key        string `json:"key,omitempty"`
	Role       string `json:"role"`
	Confidence int    `json:"confidence"`
	Output     string `json:"output"`
}

// FromRun builds a RunExport from a finished run.
func FromRun(run *orchestrator.Run, now time.Time) *RunExport {
	e := &RunExport{
		RunID:      run.ID,
		PatientID:  run.Input.PatientID,
		Status:     string(run.Status),
		ExportedAt: now.UTC().Format(time.RFC3339),
		Symptoms:   run.Input.InitialInput,
		Stages:     make([]StageExport, 0, len(run.Results)),
		Summary:    run.Summary,
	}
	if run.Err != nil {
		e.Error = run.Err.Error()
	}
	for _, r := range run.Results {
		e.Stages = append(e.Stages, StageExport{
			Index:      r.Index,
			Key:        r.Key,
			Role:       r.Role,
			Confidence: r.Confidence,
			Output:     r.Output,
		})
	}
	return e
}

// WriteFile writes e to path. A .json extension selects JSON; anything else
// gets Markdown.
func WriteFile(path string, e *RunExport) error {
	var data []byte
	if strings.EqualFold(filepath.Ext(path), ".json") {
		b, err := json.MarshalIndent(e, "", "  ")
		if err != nil {
			return fmt.Errorf("export: marshal: %w", err)
		}
		data = append(b, '\n')
	} else {
		data = []byte(Markdown(e))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
