package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dusk-indust/auratriage/internal/orchestrator"
)

// ErrRunNotFound is returned by RunStore lookups for unknown or evicted runs.
var ErrRunNotFound = errors.New("server: run not found")

// RunRecord is the observable state of one run.
type RunRecord struct {
	ID         string                     `json:"run_id"`
	PatientID  string                     `json:"patient_id,omitempty"`
	Status     orchestrator.RunStatus     `json:"status"`
	Current    string                     `json:"current_stage,omitempty"`
	Stages     []orchestrator.StageResult `json:"stages"`
	Summary    string                     `json:"summary,omitempty"`
	Error      string                     `json:"error,omitempty"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt *time.Time                 `json:"finished_at,omitempty"`
}

// RunStore is a concurrency-safe, bounded, in-memory registry of recent runs.
// Once full, the oldest run is evicted to make room. Nothing is persisted.
type RunStore struct {
	mu       sync.RWMutex
	runs     map[string]*RunRecord
	orderIDs []string // insertion order, oldest first
	limit    int
	now      func() time.Time
}

// NewRunStore returns a RunStore holding at most limit runs. A non-positive
// limit defaults to 256.
func NewRunStore(limit int) *RunStore {
	if limit <= 0 {
		limit = 256
	}
	return &RunStore{
		runs:  make(map[string]*RunRecord),
		limit: limit,
		now:   time.Now,
	}
}

// Create registers a new RUNNING run. It returns an error if the ID is taken.
func (s *RunStore) Create(id, patientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[id]; exists {
		return fmt.Errorf("server: run %q already exists", id)
	}
	for len(s.orderIDs) >= s.limit {
		delete(s.runs, s.orderIDs[0])
		s.orderIDs = s.orderIDs[1:]
	}
	s.runs[id] = &RunRecord{
		ID:        id,
		PatientID: patientID,
		Status:    orchestrator.StatusRunning,
		Stages:    []orchestrator.StageResult{},
		StartedAt: s.now(),
	}
	s.orderIDs = append(s.orderIDs, id)
	return nil
}

// Get returns a copy of the run with the given ID.
func (s *RunStore) Get(id string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return copyRun(r), nil
}

// List returns copies of the stored runs, newest first.
func (s *RunStore) List() []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunRecord, 0, len(s.orderIDs))
	for i := len(s.orderIDs) - 1; i >= 0; i-- {
		out = append(out, copyRun(s.runs[s.orderIDs[i]]))
	}
	return out
}

// Len reports how many runs are held.
func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orderIDs)
}

// update applies fn to the stored run under the write lock. Evicted runs are
// silently skipped.
func (s *RunStore) update(id string, fn func(*RunRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.runs[id]; ok {
		fn(r)
	}
}

// Track returns a sink that mirrors the events of run id into the store.
func (s *RunStore) Track(id string) orchestrator.Sink {
	return orchestrator.SinkFunc(func(_ context.Context, ev orchestrator.Event) error {
		s.update(id, func(r *RunRecord) {
			switch ev.Type {
			case orchestrator.EventAgentThinking:
				r.Current = ev.Agent
			case orchestrator.EventAgentResult:
				r.Current = ""
				r.Stages = append(r.Stages, orchestrator.StageResult{
					Index:      ev.Index,
					Role:       ev.Agent,
					Output:     ev.Content,
					Confidence: ev.Confidence,
					EmittedAt:  s.now(),
				})
			case orchestrator.EventError:
				r.Current = ""
				r.Status = orchestrator.StatusFailed
				r.Error = ev.Message
			case orchestrator.EventTriageComplete:
				r.Current = ""
				r.Status = orchestrator.StatusCompleted
				r.Summary = ev.Summary
			}
		})
		return nil
	})
}

// Finish records the final state of run. It overrides whatever Track saw.
func (s *RunStore) Finish(run *orchestrator.Run) {
	if run == nil {
		return
	}
	s.update(run.ID, func(r *RunRecord) {
		r.Status = run.Status
		r.Current = ""
		r.Stages = append([]orchestrator.StageResult{}, run.Results...)
		r.Summary = run.Summary
		r.Error = ""
		if run.Err != nil {
			r.Error = run.Err.Error()
		}
		if !run.StartedAt.IsZero() {
			r.StartedAt = run.StartedAt
		}
		finished := run.FinishedAt
		if finished.IsZero() {
			finished = s.now()
		}
		r.FinishedAt = &finished
	})
}

// FinishCollected records the outcome of a run executed without events, where
// only the raw stage outputs are known.
func (s *RunStore) FinishCollected(id string, plan orchestrator.Plan, outputs []string, err error) {
	s.update(id, func(r *RunRecord) {
		r.Current = ""
		r.Stages = make([]orchestrator.StageResult, 0, len(outputs))
		for i, text := range outputs {
			res := orchestrator.StageResult{Index: i, Output: text}
			if i < len(plan.Stages) {
				res.Key = plan.Stages[i].Key
				res.Role = plan.Stages[i].Role
			}
			r.Stages = append(r.Stages, res)
		}
		r.Status = orchestrator.StatusCompleted
		r.Error = ""
		if err != nil {
			r.Status = orchestrator.StatusFailed
			r.Error = err.Error()
		}
		finished := s.now()
		r.FinishedAt = &finished
	})
}

func copyRun(src *RunRecord) RunRecord {
	dst := *src
	dst.Stages = append([]orchestrator.StageResult{}, src.Stages...)
	if src.FinishedAt != nil {
		t := *src.FinishedAt
		dst.FinishedAt = &t
	}
	return dst
}
