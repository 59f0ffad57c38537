package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dusk-indust/auratriage/internal/backend"
	"github.com/dusk-indust/auratriage/internal/orchestrator"
	"github.com/dusk-indust/auratriage/internal/records"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRecords struct {
	recs map[string]*records.Record
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{recs: map[string]*records.Record{
		"P004": {
			Patient: records.Patient{ID: "P004", ABHA: "91-4567-8901-2345", Name: "Mohammed Irfan Khan", Age: 25, Gender: "M", InsuranceTier: "ESIC", City: "Hyderabad", Pincode: "500001"},
			Allergies: []records.Allergy{{ID: "A008", Allergen: "Chloroquine", Reaction: "Rash and itching", Severity: "Moderate"}},
		},
		"P002": {
			Patient: records.Patient{ID: "P002", ABHA: "91-2345-6789-0123", Name: "Priya Nair", Age: 35, Gender: "F", InsuranceTier: "Private", City: "Mumbai", Pincode: "400001"},
		},
	}}
}

func (f *fakeRecords) ListPatients(context.Context) ([]records.Patient, error) {
	return []records.Patient{f.recs["P004"].Patient, f.recs["P002"].Patient}, nil
}

func (f *fakeRecords) GetRecord(_ context.Context, id string) (*records.Record, error) {
	rec, ok := f.recs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", records.ErrNotFound, id)
	}
	return rec, nil
}

func (f *fakeRecords) GetByABHA(_ context.Context, abha string) (records.Patient, error) {
	for _, r := range f.recs {
		if r.ABHA == abha {
			return r.Patient, nil
		}
	}
	return records.Patient{}, fmt.Errorf("%w: %s", records.ErrNotFound, abha)
}

type fixture struct {
	stub   *backend.Stub
	server *Server
	http   *httptest.Server
	client *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stub := backend.NewStub(nil)
	pipe, err := orchestrator.New(orchestrator.DefaultPlan(), stub, orchestrator.WithLogger(quietLogger()))
	require.NoError(t, err)

	n := 0
	srv := NewServer(pipe, newFakeRecords(),
		WithLogger(quietLogger()),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("run-%d", n) }))
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	return &fixture{stub: stub, server: srv, http: hs, client: NewClient(hs.URL)}
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.http.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Len(t, body["stages"], 4)
}

func TestPatients(t *testing.T) {
	f := newFixture(t)

	patients, err := f.client.Patients(context.Background())
	require.NoError(t, err)
	require.Len(t, patients, 2)
	assert.Equal(t, "P004", patients[0].ID)

	resp := f.get(t, "/api/patients/P004")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pr := decode[PatientResponse](t, resp)
	assert.Equal(t, "Mohammed Irfan Khan", pr.Patient.Name)
	assert.Contains(t, pr.CaseContext, "⚠️ Chloroquine")

	resp = f.get(t, "/api/patients/abha/91-2345-6789-0123")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pr = decode[PatientResponse](t, resp)
	assert.Equal(t, "P002", pr.Patient.ID)
}

func TestPatients_NotFound(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/api/patients/P999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[errorBody](t, resp)
	assert.Contains(t, body.Detail, "P999")

	resp = f.get(t, "/api/patients/abha/00-0000")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ---------------------------------------------------------------------------
// Synchronous triage
// ---------------------------------------------------------------------------

func TestTriage_Sync(t *testing.T) {
	f := newFixture(t)

	resp, err := f.client.Triage(context.Background(), TriageRequest{PatientID: "P004", Symptoms: "tez bukhar"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, "P004", resp.PatientID)
	assert.Empty(t, resp.Summary)
	assert.ElementsMatch(t,
		[]string{"diagnostician", "pharmacologist", "financial_auditor", "abha_compliance"},
		keys(resp.AgentResults))
	assert.Contains(t, resp.AgentResults["diagnostician"], orchestrator.BackendDiagnostician)

	// No summary call was made.
	calls := f.stub.Calls()
	require.Len(t, calls, 4)
	assert.Contains(t, calls[0].Prompt, "Mohammed Irfan Khan")
	assert.Contains(t, calls[0].Prompt, "tez bukhar")

	rec, err := f.client.Run(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, rec.Status)
	assert.Len(t, rec.Stages, 4)
	assert.Equal(t, "diagnostician", rec.Stages[0].Key)
	assert.NotNil(t, rec.FinishedAt)
}

func TestTriage_SyncWithSummary(t *testing.T) {
	f := newFixture(t)
	f.stub.Respond(orchestrator.BackendLongContext, "Summary text")

	resp, err := f.client.Triage(context.Background(), TriageRequest{
		CaseContext:    "Walk-in, no record",
		Symptoms:       "pet mein dard",
		IncludeSummary: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Summary text", resp.Summary)
	assert.Len(t, resp.AgentResults, 4)
	assert.Empty(t, resp.PatientID)

	rec, err := f.server.Runs().Get(resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, rec.Status)
	assert.Equal(t, "Summary text", rec.Summary)
}

func TestTriage_AdditionalContextAppended(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.Triage(context.Background(), TriageRequest{PatientID: "P002", CaseContext: "Risk: GREEN", Symptoms: "sir dard"})
	require.NoError(t, err)

	prompt := f.stub.Calls()[0].Prompt
	assert.Contains(t, prompt, "Priya Nair")
	assert.Contains(t, prompt, "Risk: GREEN")
}

func TestTriage_RequestErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"patient_id":`, http.StatusBadRequest},
		{"unknown field", `{"patient":"P004"}`, http.StatusBadRequest},
		{"no case", `{"symptoms":"bukhar"}`, http.StatusBadRequest},
		{"unknown patient", `{"patient_id":"P999","symptoms":"bukhar"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, "/api/triage", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Empty(t, f.stub.Calls())
	assert.Zero(t, f.server.Runs().Len())
}

func TestTriage_ProviderFailure(t *testing.T) {
	f := newFixture(t)
	f.stub.Fail(orchestrator.BackendWorkhorse, &backend.PermanentError{Ref: orchestrator.BackendWorkhorse, StatusCode: 400, Err: errors.New("model not found")})

	_, err := f.client.Triage(context.Background(), TriageRequest{PatientID: "P004", Symptoms: "bukhar"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "run-1", apiErr.RunID)
	assert.Contains(t, apiErr.Detail, "Financial Auditor & Lab Router")

	rec, err := f.server.Runs().Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusFailed, rec.Status)
	assert.NotEmpty(t, rec.Error)
}

func TestTriage_ProviderFailureKeepsCompletedStages(t *testing.T) {
	f := newFixture(t)
	f.stub.Fail(orchestrator.BackendWorkhorse, &backend.PermanentError{Ref: orchestrator.BackendWorkhorse, StatusCode: 400, Err: errors.New("model not found")})

	resp := f.post(t, "/api/triage", `{"patient_id":"P004","symptoms":"bukhar"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	rec, err := f.client.Run(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusFailed, rec.Status)
	require.Len(t, rec.Stages, 2)
	assert.Equal(t, orchestrator.KeyDiagnostician, rec.Stages[0].Key)
	assert.Equal(t, orchestrator.KeyPharmacologist, rec.Stages[1].Key)
	assert.NotEmpty(t, rec.Stages[1].Output)
}

type failingWriter struct {
	header http.Header
	status int
}

func (w *failingWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *failingWriter) WriteHeader(status int) { w.status = status }

func (w *failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func TestWriteJSON_LogsEncodeFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	srv := NewServer(nil, nil, WithLogger(logger))

	w := &failingWriter{}
	srv.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusOK, w.status)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, logs.String(), "encode response")
	assert.Contains(t, logs.String(), "connection reset by peer")
}

func TestRuns_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.Run(context.Background(), "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

// ---------------------------------------------------------------------------
// Streaming
// ---------------------------------------------------------------------------

func collect(t *testing.T, ch <-chan StreamEvent) []orchestrator.Event {
	t.Helper()
	var out []orchestrator.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case se, ok := <-ch:
			if !ok {
				return out
			}
			require.NoError(t, se.Err)
			out = append(out, se.Event)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func types(evs []orchestrator.Event) []orchestrator.EventType {
	out := make([]orchestrator.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func TestTriageStream_SSE(t *testing.T) {
	f := newFixture(t)
	f.stub.Respond(orchestrator.BackendLongContext, "Final summary")

	ch, runID, err := f.client.Stream(context.Background(), TriageRequest{PatientID: "P004", Symptoms: "bukhar"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)

	evs := collect(t, ch)
	require.Len(t, evs, 10)
	assert.Equal(t, []orchestrator.EventType{
		orchestrator.EventAgentThinking, orchestrator.EventAgentResult,
		orchestrator.EventAgentThinking, orchestrator.EventAgentResult,
		orchestrator.EventAgentThinking, orchestrator.EventAgentResult,
		orchestrator.EventAgentThinking, orchestrator.EventAgentResult,
		orchestrator.EventAgentThinking, orchestrator.EventTriageComplete,
	}, types(evs))
	assert.Equal(t, "Chief Diagnostician", evs[0].Agent)
	assert.Equal(t, 80, evs[1].Confidence)
	assert.Equal(t, 4, evs[8].Index)
	assert.Equal(t, "Final summary", evs[9].Summary)
	assert.Equal(t, 4, evs[9].AgentCount)

	rec, err := f.client.Run(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.StatusCompleted, rec.Status)
	assert.Equal(t, "Final summary", rec.Summary)
	require.Len(t, rec.Stages, 4)
	assert.Equal(t, 80, rec.Stages[3].Confidence)
}

func TestTriageStream_FailureEndsWithErrorEvent(t *testing.T) {
	f := newFixture(t)
	f.stub.Fail(orchestrator.BackendDiagnostician, &backend.TransientError{Ref: orchestrator.BackendDiagnostician, StatusCode: 503, Err: errors.New("upstream down")})

	ch, _, err := f.client.Stream(context.Background(), TriageRequest{CaseContext: "ctx", Symptoms: "bukhar"})
	require.NoError(t, err)

	evs := collect(t, ch)
	assert.Equal(t, []orchestrator.EventType{orchestrator.EventAgentThinking, orchestrator.EventError}, types(evs))
	assert.Contains(t, evs[1].Message, "Chief Diagnostician")
}

func TestTriageStream_UnknownPatientIsPlainError(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.client.Stream(context.Background(), TriageRequest{PatientID: "P999"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

// ---------------------------------------------------------------------------
// WebSocket
// ---------------------------------------------------------------------------

func dialWS(t *testing.T, f *fixture, patientID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws/triage/" + patientID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) []orchestrator.Event {
	t.Helper()
	var out []orchestrator.Event
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev orchestrator.Event
		if err := conn.ReadJSON(&ev); err != nil {
			var ce *websocket.CloseError
			require.ErrorAs(t, err, &ce, "stream must end with a close frame")
			return out
		}
		out = append(out, ev)
	}
}

func TestTriageWS(t *testing.T) {
	f := newFixture(t)
	conn := dialWS(t, f, "P004")

	require.NoError(t, conn.WriteJSON(map[string]string{"symptoms": "tez bukhar, jodon mein dard"}))
	evs := readWS(t, conn)
	require.Len(t, evs, 10)
	assert.Equal(t, orchestrator.EventTriageComplete, evs[9].Type)

	calls := f.stub.Calls()
	require.NotEmpty(t, calls)
	assert.Contains(t, calls[0].Prompt, "jodon mein dard")
}

func TestTriageWS_UnknownPatient(t *testing.T) {
	f := newFixture(t)
	conn := dialWS(t, f, "P999")

	require.NoError(t, conn.WriteJSON(map[string]string{"symptoms": "bukhar"}))
	evs := readWS(t, conn)
	require.Len(t, evs, 1)
	assert.Equal(t, orchestrator.EventError, evs[0].Type)
	assert.Equal(t, "Patient not found", evs[0].Message)
	assert.Empty(t, f.stub.Calls())
}

// ---------------------------------------------------------------------------
// SSE wire format
// ---------------------------------------------------------------------------

func TestSSEWriter_Frames(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewSSEWriter(rec)
	sw.Init()
	require.NoError(t, sw.WriteEvent(orchestrator.ThinkingEvent("Chief Diagnostician", "🩺", 0)))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "data: {\"type\":\"agent_thinking\",\"agent\":\"Chief Diagnostician\",\"avatar\":\"🩺\",\"index\":0}\n\n", rec.Body.String())
}

func TestReadEvents_Parsing(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		`data: {"type":"agent_thinking",`,
		`data:"agent":"A","avatar":"x","index":0}`,
		"",
		"event: ignored",
		`data: {not json}`,
		"",
		`data: {"type":"error","message":"boom"}`,
	}, "\n")

	ch := ReadEvents(context.Background(), io.NopCloser(bytes.NewBufferString(stream)))
	var got []StreamEvent
	for se := range ch {
		got = append(got, se)
	}
	require.Len(t, got, 3)
	assert.NoError(t, got[0].Err)
	assert.Equal(t, "A", got[0].Event.Agent)
	assert.Error(t, got[1].Err)
	assert.Equal(t, orchestrator.EventError, got[2].Event.Type)
	assert.Equal(t, "boom", got[2].Event.Message)
}

func TestReadEvents_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())

	ch := ReadEvents(ctx, pr)
	cancel()
	pw.Write([]byte("data: {\"type\":\"error\",\"message\":\"x\"}\n\n"))

	select {
	case _, ok := <-ch:
		if ok {
			// One event may race the cancellation; the channel must still close.
			_, ok = <-ch
		}
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop")
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// ---------------------------------------------------------------------------
// Client disconnects
// ---------------------------------------------------------------------------

// gatedInvoker answers from a stub but holds the first call to ref until
// open is called.
type gatedInvoker struct {
	stub      *backend.Stub
	ref       string
	hold      sync.Once
	entered   chan struct{}
	release   chan struct{}
	closeOnce sync.Once
}

func newGatedInvoker(ref string) *gatedInvoker {
	return &gatedInvoker{
		stub:    backend.NewStub(nil),
		ref:     ref,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedInvoker) Invoke(ctx context.Context, prompt, ref string) (string, error) {
	if ref == g.ref {
		held := false
		g.hold.Do(func() { held = true })
		if held {
			close(g.entered)
			<-g.release
		}
	}
	return g.stub.Invoke(ctx, prompt, ref)
}

func (g *gatedInvoker) open() { g.closeOnce.Do(func() { close(g.release) }) }

// disconnectMidStream starts a streamed run, drops the client while the
// pharmacologist stage is in flight, lets the stage finish, and returns the
// final run record.
func disconnectMidStream(t *testing.T, stopOnDisconnect bool) RunRecord {
	t.Helper()
	gate := newGatedInvoker(orchestrator.BackendLongContext)
	pipe, err := orchestrator.New(orchestrator.DefaultPlan(), gate,
		orchestrator.WithLogger(quietLogger()),
		orchestrator.WithStopOnDisconnect(stopOnDisconnect))
	require.NoError(t, err)

	srv := NewServer(pipe, newFakeRecords(),
		WithLogger(quietLogger()),
		WithIDGenerator(func() string { return "run-1" }))
	h := srv.Handler()

	requestDone := make(chan struct{})
	var doneOnce sync.Once
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		go func() {
			<-r.Context().Done()
			doneOnce.Do(func() { close(requestDone) })
		}()
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(hs.Close)
	t.Cleanup(gate.open)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, runID, err := NewClient(hs.URL).Stream(ctx, TriageRequest{PatientID: "P004", Symptoms: "bukhar"})
	require.NoError(t, err)

	// thinking 0, result 0, thinking 1
	for i := 0; i < 3; i++ {
		select {
		case se := <-ch:
			require.NoError(t, se.Err)
		case <-time.After(5 * time.Second):
			t.Fatalf("event %d never arrived", i)
		}
	}
	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("pharmacologist stage never started")
	}

	cancel()
	select {
	case <-requestDone:
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw the client leave")
	}
	gate.open()

	var rec RunRecord
	require.Eventually(t, func() bool {
		got, err := srv.Runs().Get(runID)
		if err != nil || got.FinishedAt == nil {
			return false
		}
		rec = got
		return true
	}, 5*time.Second, 10*time.Millisecond)
	return rec
}

func TestTriageStream_DisconnectDoesNotCancelRun(t *testing.T) {
	rec := disconnectMidStream(t, false)

	assert.Equal(t, orchestrator.StatusCompleted, rec.Status)
	assert.Empty(t, rec.Error)
	assert.Len(t, rec.Stages, 4)
	assert.NotEmpty(t, rec.Summary)
}

func TestTriageStream_DisconnectStopsRunWhenConfigured(t *testing.T) {
	rec := disconnectMidStream(t, true)

	assert.Equal(t, orchestrator.StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, orchestrator.ErrConsumerGone.Error())
	assert.Len(t, rec.Stages, 2)
}

func TestServerStop_CancelsDetachedRuns(t *testing.T) {
	srv := NewServer(nil, nil, WithLogger(quietLogger()))
	req := httptest.NewRequest(http.MethodPost, "/api/triage/stream", nil)

	ctx, cancel := srv.runContext(req)
	defer cancel()
	require.NoError(t, ctx.Err())

	require.NoError(t, srv.Stop(context.Background()))
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("run context outlived Stop")
	}
	assert.ErrorIs(t, context.Cause(ctx), ErrServerStopping)
}
