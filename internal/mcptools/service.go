package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/dusk-indust/auratriage/internal/orchestrator"
	"github.com/dusk-indust/auratriage/internal/server"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// TriageService handles MCP tool calls. It shares the run registry with the
// HTTP server when both are running.
type TriageService struct {
	pipeline orchestrator.Orchestrator
	records  server.Records
	runs     *server.RunStore
	newID    func() string
}

// NewTriageService creates a TriageService. runs may be nil, in which case a
// private registry is used.
func NewTriageService(pipeline orchestrator.Orchestrator, recs server.Records, runs *server.RunStore) *TriageService {
	if runs == nil {
		runs = server.NewRunStore(0)
	}
	return &TriageService{
		pipeline: pipeline,
		records:  recs,
		runs:     runs,
		newID:    uuid.NewString,
	}
}

// TriageCase runs one case through the pipeline and returns every stage
// output. A failed run is reported in the output, not as a tool error.
func (s *TriageService) TriageCase(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input TriageCaseInput,
) (*mcp.CallToolResult, TriageCaseOutput, error) {
	in, err := server.ResolveCase(ctx, s.records, server.TriageRequest{
		PatientID:   input.PatientID,
		CaseContext: input.CaseContext,
		Symptoms:    input.Symptoms,
	})
	if err != nil {
		return nil, TriageCaseOutput{}, err
	}
	in.RunID = s.newID()
	if err := s.runs.Create(in.RunID, in.PatientID); err != nil {
		return nil, TriageCaseOutput{}, err
	}

	out := TriageCaseOutput{RunID: in.RunID, Stages: []StageOutput{}}
	plan := s.pipeline.Plan()

	if input.IncludeSummary {
		run, runErr := s.pipeline.Run(ctx, in, s.runs.Track(in.RunID))
		s.runs.Finish(run)
		if run != nil {
			for _, r := range run.Results {
				out.Stages = append(out.Stages, StageOutput{Key: r.Key, Role: r.Role, Output: r.Output, Confidence: r.Confidence})
			}
			out.Summary = run.Summary
		}
		return nil, finish(out, runErr), nil
	}

	outputs, runErr := s.pipeline.RunAndCollect(ctx, in)
	s.runs.FinishCollected(in.RunID, plan, outputs, runErr)
	for i, text := range outputs {
		st := plan.Stages[i]
		out.Stages = append(out.Stages, StageOutput{Key: st.Key, Role: st.Role, Output: text})
	}
	return nil, finish(out, runErr), nil
}

func finish(out TriageCaseOutput, err error) TriageCaseOutput {
	if err != nil {
		out.Status = string(orchestrator.StatusFailed)
		out.Message = err.Error()
		return out
	}
	out.Status = string(orchestrator.StatusCompleted)
	return out
}

// GetRun reports the recorded state of a run.
func (s *TriageService) GetRun(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input GetRunInput,
) (*mcp.CallToolResult, GetRunOutput, error) {
	if input.RunID == "" {
		return nil, GetRunOutput{}, fmt.Errorf("runId is required")
	}
	rec, err := s.runs.Get(input.RunID)
	if err != nil {
		return nil, GetRunOutput{}, err
	}

	out := GetRunOutput{
		RunID:        rec.ID,
		PatientID:    rec.PatientID,
		Status:       string(rec.Status),
		CurrentStage: rec.Current,
		Stages:       make([]StageOutput, 0, len(rec.Stages)),
		Summary:      rec.Summary,
		Error:        rec.Error,
	}
	for _, r := range rec.Stages {
		out.Stages = append(out.Stages, StageOutput{Key: r.Key, Role: r.Role, Output: r.Output, Confidence: r.Confidence})
	}
	return nil, out, nil
}

// ListPatients lists the case store, optionally filtered by insurance tier.
func (s *TriageService) ListPatients(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListPatientsInput,
) (*mcp.CallToolResult, ListPatientsOutput, error) {
	out := ListPatientsOutput{Patients: []PatientSummary{}}
	if s.records == nil {
		return nil, out, nil
	}
	patients, err := s.records.ListPatients(ctx)
	if err != nil {
		return nil, ListPatientsOutput{}, fmt.Errorf("list patients: %w", err)
	}
	for _, p := range patients {
		if input.Insurance != "" && !strings.EqualFold(p.InsuranceTier, input.Insurance) {
			continue
		}
		out.Patients = append(out.Patients, PatientSummary{
			ID:        p.ID,
			ABHA:      p.ABHA,
			Name:      p.Name,
			Age:       p.Age,
			Gender:    p.Gender,
			Insurance: p.InsuranceTier,
			City:      p.City,
		})
	}
	return nil, out, nil
}
