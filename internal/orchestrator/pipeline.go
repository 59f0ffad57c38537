package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dusk-indust/auratriage/internal/backend"
	"github.com/dusk-indust/auratriage/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/dusk-indust/auratriage/internal/orchestrator"

// Compile-time interface check.
var _ Orchestrator = (*Pipeline)(nil)

// Pipeline runs a case through the stages of a Plan, one after another,
// feeding each stage the rendered output of all earlier ones. A Pipeline holds
// no per-run state and is safe for concurrent use by independent runs.
type Pipeline struct {
	plan    Plan
	invoker backend.Invoker

	stageTimeout     time.Duration
	maxCascadeBytes  int
	stopOnDisconnect bool
	pacer            *backend.Pacer
	logger           *slog.Logger
	extractor        ConfidenceExtractor
	now              func() time.Time
	newID            func() string

	tracer    trace.Tracer
	completed metric.Int64Counter
	failed    metric.Int64Counter
	duration  metric.Int64Histogram
}

// New creates a Pipeline that executes plan using invoker for every backend
// call.
func New(plan Plan, invoker backend.Invoker, opts ...Option) (*Pipeline, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if invoker == nil {
		return nil, errors.New("orchestrator: invoker is nil")
	}

	p := &Pipeline{
		plan:    plan.clone(),
		invoker: invoker,
	}
	defaults(p)
	for _, o := range opts {
		o(p)
	}

	meter := telemetry.Meter(instrumentationName)
	p.tracer = telemetry.Tracer(instrumentationName)
	p.completed, _ = meter.Int64Counter("triage.stage.completed",
		metric.WithDescription("Stages whose backend call returned output"))
	p.failed, _ = meter.Int64Counter("triage.stage.failed",
		metric.WithDescription("Stages whose backend call failed"))
	p.duration, _ = meter.Int64Histogram("triage.stage.duration_ms",
		metric.WithDescription("Backend call latency per stage (ms)"),
		metric.WithUnit("ms"))

	return p, nil
}

// Plan returns a copy of the executed plan.
func (p *Pipeline) Plan() Plan {
	return p.plan.clone()
}

// Run executes every stage and then the summary, delivering events to sink.
// On success the returned Run carries the summary. On failure exactly one
// error event has been delivered and the Run is returned with the error.
func (p *Pipeline) Run(ctx context.Context, in CaseInput, sink Sink) (*Run, error) {
	return p.execute(ctx, in, sink, true)
}

// RunAndCollect executes the ordinary stages with no event delivery and
// returns their raw outputs in stage order. On failure the outputs of the
// stages that completed are returned with the error.
func (p *Pipeline) RunAndCollect(ctx context.Context, in CaseInput) ([]string, error) {
	run, err := p.execute(ctx, in, NopSink{}, false)
	if run == nil {
		return nil, err
	}
	return run.Outputs(), err
}

// ---------------------------------------------------------------------------
// Run loop
// ---------------------------------------------------------------------------

func (p *Pipeline) execute(ctx context.Context, in CaseInput, sink Sink, summarize bool) (*Run, error) {
	if sink == nil {
		sink = NopSink{}
	}
	id := in.RunID
	if id == "" {
		id = p.newID()
	}
	run := &Run{
		ID:        id,
		Input:     in,
		Status:    StatusRunning,
		StartedAt: p.now(),
	}
	log := p.logger.With("run_id", run.ID)
	if in.PatientID != "" {
		log = log.With("patient_id", in.PatientID)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	ctx, span := p.tracer.Start(ctx, "triage.run", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.Int("run.stages", len(p.plan.Stages)),
	))
	defer span.End()

	out := &emitter{sink: sink, log: log, cancel: cancel, stopOnDisconnect: p.stopOnDisconnect}
	cascade := &Cascade{}

	fail := func(err error) (*Run, error) {
		run.Status = StatusFailed
		run.Err = err
		run.FinishedAt = p.now()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("triage run failed", "stages_completed", len(run.Results), "error", err)
		out.emit(ctx, ErrorEvent(err.Error()))
		return run, err
	}

	for i, st := range p.plan.Stages {
		text, err := p.runStage(ctx, log, out, cascade, in, i, st)
		if err != nil {
			return fail(err)
		}
		res := StageResult{
			Index:      i,
			Key:        st.Key,
			Role:       st.Role,
			Output:     text,
			Confidence: p.extractor.Extract(text),
			EmittedAt:  p.now(),
		}
		cascade.Append(st.Role, text)
		run.Results = append(run.Results, res)
		out.emit(ctx, ResultEvent(st.Role, st.Avatar, i, text, res.Confidence))
	}

	if summarize {
		summary, err := p.runStage(ctx, log, out, cascade, in, len(p.plan.Stages), p.plan.Summary)
		if err != nil {
			return fail(err)
		}
		run.Summary = summary
	}

	run.Status = StatusCompleted
	run.FinishedAt = p.now()
	if summarize {
		out.emit(ctx, CompleteEvent(run.Summary, len(p.plan.Stages)))
	}
	log.Info("triage run complete",
		"stages", len(run.Results),
		"cascade_bytes", cascade.Len(),
		"duration", run.FinishedAt.Sub(run.StartedAt))
	return run, nil
}

// runStage paces, announces, and invokes one stage. It never mutates the
// cascade; the caller appends the returned text.
func (p *Pipeline) runStage(ctx context.Context, log *slog.Logger, out *emitter, cascade *Cascade, in CaseInput, index int, st StageSpec) (string, error) {
	if ctx.Err() != nil {
		return "", cancelledError(ctx)
	}
	if err := p.pacer.Wait(ctx, st.Backend); err != nil {
		if ctx.Err() != nil {
			return "", cancelledError(ctx)
		}
		return "", fmt.Errorf("orchestrator: pace %s: %w", st.Backend, err)
	}
	if p.maxCascadeBytes > 0 && cascade.Len() > p.maxCascadeBytes {
		return "", fmt.Errorf("%s (stage %d): %w (%d > %d bytes)",
			st.Role, index, ErrContextBudget, cascade.Len(), p.maxCascadeBytes)
	}

	out.emit(ctx, ThinkingEvent(st.Role, st.Avatar, index))

	prompt := st.Build(PromptInput{
		CaseContext:  in.CaseContext,
		InitialInput: in.InitialInput,
		Cascade:      cascade.Render(),
	})
	return p.invoke(ctx, log, index, st, prompt)
}

type reply struct {
	text string
	err  error
}

// invoke calls the backend on its own goroutine and waits for the reply, the
// stage timeout, or cancellation of the run, whichever comes first. An
// abandoned call finishes in the background and its reply is discarded.
func (p *Pipeline) invoke(ctx context.Context, log *slog.Logger, index int, st StageSpec, prompt string) (string, error) {
	attrs := []attribute.KeyValue{
		attribute.Int("stage.index", index),
		attribute.String("stage.role", st.Role),
		attribute.String("backend.ref", st.Backend),
	}
	ctx, span := p.tracer.Start(ctx, "triage.stage", trace.WithAttributes(attrs...))
	defer span.End()

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.stageTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, p.stageTimeout)
	}
	defer cancel()

	start := time.Now()
	done := make(chan reply, 1)
	go func() {
		text, err := p.invoker.Invoke(callCtx, prompt, st.Backend)
		done <- reply{text: text, err: err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-callCtx.Done():
		r.err = &backend.TransientError{
			Ref: st.Backend,
			Err: fmt.Errorf("no response within %s: %w", p.stageTimeout, context.DeadlineExceeded),
		}
	}
	elapsed := time.Since(start)
	p.duration.Record(ctx, elapsed.Milliseconds(), metric.WithAttributes(attrs...))

	if r.err != nil {
		if ctx.Err() != nil {
			return "", cancelledError(ctx)
		}
		if backend.IsRateLimited(r.err) {
			p.pacer.Throttle(st.Backend)
		}
		p.failed.Add(ctx, 1, metric.WithAttributes(attrs...))
		span.RecordError(r.err)
		span.SetStatus(codes.Error, r.err.Error())
		return "", &ProviderError{Stage: index, Role: st.Role, Err: r.err}
	}

	p.pacer.Recover(st.Backend)
	p.completed.Add(ctx, 1, metric.WithAttributes(attrs...))
	log.Info("stage complete",
		"stage", index,
		"role", st.Role,
		"backend", st.Backend,
		"duration", elapsed,
		"bytes", len(r.text))
	return r.text, nil
}

func cancelledError(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

// emitter delivers events and turns a vanished consumer into cancellation of
// the run when configured to.
type emitter struct {
	sink             Sink
	log              *slog.Logger
	cancel           context.CancelCauseFunc
	stopOnDisconnect bool
}

func (e *emitter) emit(ctx context.Context, ev Event) {
	err := e.sink.Deliver(ctx, ev)
	if err == nil {
		return
	}
	e.log.Warn("event delivery failed", "event", string(ev.Type), "error", err)
	if e.stopOnDisconnect && errors.Is(err, ErrConsumerGone) {
		e.cancel(ErrConsumerGone)
	}
}
