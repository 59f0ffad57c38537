// Package server exposes the triage pipeline over HTTP: a synchronous JSON
// endpoint, an SSE stream, a WebSocket stream, and read-only case and run
// lookups.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dusk-indust/auratriage/internal/orchestrator"
	"github.com/dusk-indust/auratriage/internal/records"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Records is the case store the server reads patients from.
// *records.Store satisfies it.
type Records interface {
	ListPatients(ctx context.Context) ([]records.Patient, error)
	GetRecord(ctx context.Context, id string) (*records.Record, error)
	GetByABHA(ctx context.Context, abha string) (records.Patient, error)
}

// Server is the HTTP front of the triage pipeline.
type Server struct {
	orch     orchestrator.Orchestrator
	records  Records
	runs     *RunStore
	logger   *slog.Logger
	newID    func() string
	upgrader websocket.Upgrader

	readFirstFrame time.Duration
	writeTimeout   time.Duration
	mounts         map[string]http.Handler

	// base outlives requests; streamed runs derive from it.
	base     context.Context
	stopRuns context.CancelCauseFunc

	mu   sync.Mutex
	http *http.Server
	ln   net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRunStore replaces the default run registry.
func WithRunStore(rs *RunStore) Option {
	return func(s *Server) {
		if rs != nil {
			s.runs = rs
		}
	}
}

// WithIDGenerator overrides how run IDs are minted.
func WithIDGenerator(gen func() string) Option {
	return func(s *Server) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithCheckOrigin sets the WebSocket origin policy. The default accepts any
// origin.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// WithMount serves h under pattern alongside the built-in routes.
func WithMount(pattern string, h http.Handler) Option {
	return func(s *Server) {
		if s.mounts == nil {
			s.mounts = make(map[string]http.Handler)
		}
		s.mounts[pattern] = h
	}
}

// NewServer creates a server for orch reading cases from recs.
func NewServer(orch orchestrator.Orchestrator, recs Records, opts ...Option) *Server {
	s := &Server{
		orch:    orch,
		records: recs,
		runs:    NewRunStore(0),
		logger:  slog.Default(),
		newID:   uuid.NewString,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		readFirstFrame: 60 * time.Second,
		writeTimeout:   10 * time.Second,
	}
	s.base, s.stopRuns = context.WithCancelCause(context.Background())
	for _, o := range opts {
		o(s)
	}
	return s
}

// Runs returns the server's run registry.
func (s *Server) Runs() *RunStore { return s.runs }

// Handler returns the routed handler. It is what Start serves.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/patients", s.handleListPatients)
	mux.HandleFunc("GET /api/patients/{id}", s.handleGetPatient)
	mux.HandleFunc("GET /api/patients/abha/{abha}", s.handleGetPatientByABHA)
	mux.HandleFunc("POST /api/triage", s.handleTriage)
	mux.HandleFunc("POST /api/triage/stream", s.handleTriageStream)
	mux.HandleFunc("GET /ws/triage/{patientID}", s.handleTriageWS)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	for pattern, h := range s.mounts {
		mux.Handle(pattern, h)
	}

	return s.logRequests(mux)
}

// Start binds addr and serves in a background goroutine. It returns once the
// listener is open.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.http, s.ln = srv, ln
	s.mu.Unlock()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// ErrServerStopping is the cancellation cause of streamed runs still in
// flight when the server stops.
var ErrServerStopping = errors.New("server: stopping")

// Stop cancels streamed runs still in flight and gracefully shuts down the
// HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.stopRuns(ErrServerStopping)
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// runContext detaches a streamed run from its request. A client disconnect
// reaches the run only through its sink; the run is cancelled when the server
// stops.
func (s *Server) runContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(r.Context()))
	stop := context.AfterFunc(s.base, func() { cancel(context.Cause(s.base)) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

// ---------------------------------------------------------------------------
// Case resolution
// ---------------------------------------------------------------------------

// errBadRequest marks failures the caller can fix.
var errBadRequest = errors.New("bad request")

// ResolveCase turns a request into pipeline input, loading and rendering the
// patient record when one is named. Extra case_context is appended to the
// rendered record.
func ResolveCase(ctx context.Context, recs Records, req TriageRequest) (orchestrator.CaseInput, error) {
	in := orchestrator.CaseInput{
		PatientID:    req.PatientID,
		InitialInput: req.Symptoms,
	}
	switch {
	case req.PatientID != "":
		if recs == nil {
			return in, fmt.Errorf("%w: no case store configured", records.ErrNotFound)
		}
		rec, err := recs.GetRecord(ctx, req.PatientID)
		if err != nil {
			return in, err
		}
		in.CaseContext = records.FormatCaseContext(rec)
		if req.CaseContext != "" {
			in.CaseContext += "\n\n**Additional Context:**\n" + req.CaseContext
		}
	case req.CaseContext != "":
		in.CaseContext = req.CaseContext
	default:
		return in, fmt.Errorf("%w: patient_id or case_context is required", errBadRequest)
	}
	return in, nil
}

func (s *Server) caseInput(ctx context.Context, req TriageRequest) (orchestrator.CaseInput, error) {
	return ResolveCase(ctx, s.records, req)
}

// startRun mints a run ID and registers it.
func (s *Server) startRun(in *orchestrator.CaseInput) error {
	in.RunID = s.newID()
	return s.runs.Create(in.RunID, in.PatientID)
}

func statusFor(err error) int {
	var pe *orchestrator.ProviderError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, records.ErrNotFound), errors.Is(err, ErrRunNotFound):
		return http.StatusNotFound
	case errors.As(err, &pe):
		return http.StatusBadGateway
	case errors.Is(err, orchestrator.ErrContextBudget):
		return http.StatusUnprocessableEntity
	case errors.Is(err, orchestrator.ErrCancelled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
