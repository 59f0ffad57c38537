package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dusk-indust/auratriage/internal/orchestrator"
	"github.com/dusk-indust/auratriage/internal/records"
	"github.com/gorilla/websocket"
)

// TriageRequest is the body of POST /api/triage and /api/triage/stream.
type TriageRequest struct {
	PatientID      string `json:"patient_id,omitempty"`
	CaseContext    string `json:"case_context,omitempty"`
	Symptoms       string `json:"symptoms"`
	IncludeSummary bool   `json:"include_summary,omitempty"`
}

// TriageResponse is the body returned by POST /api/triage. AgentResults is
// keyed by stage key.
type TriageResponse struct {
	RunID        string            `json:"run_id"`
	PatientID    string            `json:"patient_id,omitempty"`
	AgentResults map[string]string `json:"agent_results"`
	Summary      string            `json:"summary,omitempty"`
}

// PatientResponse is the body of GET /api/patients/{id}.
type PatientResponse struct {
	Patient     *records.Record `json:"patient"`
	CaseContext string          `json:"case_context"`
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Detail string `json:"detail"`
	RunID  string `json:"run_id,omitempty"`
}

// wsRequest is the first frame a WebSocket client sends.
type wsRequest struct {
	Symptoms    string `json:"symptoms"`
	CaseContext string `json:"case_context,omitempty"`
}

const maxRequestBody = 1 << 20

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("encode response", "status", status, "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error, runID string) {
	s.writeJSON(w, statusFor(err), errorBody{Detail: err.Error(), RunID: runID})
}

func decodeTriageRequest(r *http.Request) (TriageRequest, error) {
	var req TriageRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return req, nil
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stages": s.orch.Plan().Keys(),
	})
}

func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"patients": []records.Patient{}})
		return
	}
	patients, err := s.records.ListPatients(r.Context())
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	if patients == nil {
		patients = []records.Patient{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"patients": patients})
}

func (s *Server) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	s.writePatient(w, r, r.PathValue("id"))
}

func (s *Server) handleGetPatientByABHA(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		s.writeError(w, records.ErrNotFound, "")
		return
	}
	p, err := s.records.GetByABHA(r.Context(), r.PathValue("abha"))
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	s.writePatient(w, r, p.ID)
}

func (s *Server) writePatient(w http.ResponseWriter, r *http.Request, id string) {
	if s.records == nil {
		s.writeError(w, records.ErrNotFound, "")
		return
	}
	rec, err := s.records.GetRecord(r.Context(), id)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	s.writeJSON(w, http.StatusOK, PatientResponse{Patient: rec, CaseContext: records.FormatCaseContext(rec)})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": s.runs.List()})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.runs.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// ---------------------------------------------------------------------------
// Triage
// ---------------------------------------------------------------------------

// handleTriage runs the case to completion and answers with every stage
// output. The summary stage only runs when include_summary is set.
func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decodeTriageRequest(r)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	in, err := s.caseInput(ctx, req)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	if err := s.startRun(&in); err != nil {
		s.writeError(w, err, "")
		return
	}

	plan := s.orch.Plan()
	resp := TriageResponse{
		RunID:        in.RunID,
		PatientID:    in.PatientID,
		AgentResults: make(map[string]string, len(plan.Stages)),
	}

	var outputs []string
	if req.IncludeSummary {
		run, runErr := s.orch.Run(ctx, in, s.runs.Track(in.RunID))
		s.runs.Finish(run)
		if runErr != nil {
			s.writeError(w, runErr, in.RunID)
			return
		}
		outputs = run.Outputs()
		resp.Summary = run.Summary
	} else {
		outputs, err = s.orch.RunAndCollect(ctx, in)
		s.runs.FinishCollected(in.RunID, plan, outputs, err)
		if err != nil {
			s.writeError(w, err, in.RunID)
			return
		}
	}

	for i, st := range plan.Stages {
		if i < len(outputs) {
			resp.AgentResults[st.Key] = outputs[i]
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleTriageStream runs the case and streams its events as SSE. Request
// errors found before the run starts are answered with a plain JSON error.
func (s *Server) handleTriageStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decodeTriageRequest(r)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	in, err := s.caseInput(ctx, req)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	if err := s.startRun(&in); err != nil {
		s.writeError(w, err, "")
		return
	}

	w.Header().Set("X-Run-ID", in.RunID)
	sw := NewSSEWriter(w)
	sw.Init()

	runCtx, cancel := s.runContext(r)
	defer cancel()
	sink := sseSink{w: sw, done: ctx.Done()}
	run, err := s.orch.Run(runCtx, in, orchestrator.MultiSink(s.runs.Track(in.RunID), sink))
	s.runs.Finish(run)
	if err != nil {
		s.logger.Debug("streamed run ended with error", "run_id", in.RunID, "error", err)
	}
}

// handleTriageWS upgrades to a WebSocket, waits for the symptoms frame, and
// streams the run's events as JSON text frames.
func (s *Server) handleTriageWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	patientID := r.PathValue("patientID")
	ws := &wsSink{conn: conn, timeout: s.writeTimeout, gone: make(chan struct{})}

	_ = conn.SetReadDeadline(time.Now().Add(s.readFirstFrame))
	var first wsRequest
	if err := conn.ReadJSON(&first); err != nil {
		s.logger.Debug("websocket closed before request", "patient_id", patientID, "error", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	in, err := s.caseInput(ctx, TriageRequest{PatientID: patientID, CaseContext: first.CaseContext, Symptoms: first.Symptoms})
	if err != nil {
		msg := err.Error()
		if errors.Is(err, records.ErrNotFound) {
			msg = "Patient not found"
		}
		_ = ws.Deliver(ctx, orchestrator.ErrorEvent(msg))
		ws.close(websocket.CloseNormalClosure, "")
		return
	}
	if err := s.startRun(&in); err != nil {
		_ = ws.Deliver(ctx, orchestrator.ErrorEvent(err.Error()))
		ws.close(websocket.CloseInternalServerErr, "")
		return
	}

	// Drain client frames so close frames are seen; any read error means the
	// client is gone.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				ws.markGone()
				return
			}
		}
	}()

	runCtx, cancel := s.runContext(r)
	defer cancel()
	run, err := s.orch.Run(runCtx, in, orchestrator.MultiSink(s.runs.Track(in.RunID), ws))
	s.runs.Finish(run)
	if err != nil {
		s.logger.Debug("websocket run ended with error", "run_id", in.RunID, "error", err)
	}
	ws.close(websocket.CloseNormalClosure, "")
}
