package orchestrator

import (
	"log/slog"
	"time"

	"github.com/dusk-indust/auratriage/internal/backend"
	"github.com/google/uuid"
)

// DefaultStageTimeout bounds one backend call when no option overrides it.
const DefaultStageTimeout = 120 * time.Second

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStageTimeout bounds each backend call. Zero disables the bound; the
// run's context remains the only deadline.
func WithStageTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.stageTimeout = d }
}

// WithMaxCascadeBytes fails a run whose cascade exceeds n bytes before the
// next stage is invoked. Zero means unlimited. The cascade is never
// truncated.
func WithMaxCascadeBytes(n int) Option {
	return func(p *Pipeline) { p.maxCascadeBytes = n }
}

// WithStopOnDisconnect controls whether a sink reporting ErrConsumerGone
// stops the run from scheduling further stages.
func WithStopOnDisconnect(stop bool) Option {
	return func(p *Pipeline) { p.stopOnDisconnect = stop }
}

// WithPacer spaces consecutive calls to the same backend. Nil disables
// pacing.
func WithPacer(pc *backend.Pacer) Option {
	return func(p *Pipeline) { p.pacer = pc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithExtractor replaces the confidence extractor.
func WithExtractor(x ConfidenceExtractor) Option {
	return func(p *Pipeline) {
		if x != nil {
			p.extractor = x
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDGenerator replaces the run ID generator, for tests.
func WithIDGenerator(gen func() string) Option {
	return func(p *Pipeline) {
		if gen != nil {
			p.newID = gen
		}
	}
}

func defaults(p *Pipeline) {
	p.stageTimeout = DefaultStageTimeout
	p.stopOnDisconnect = true
	p.logger = slog.Default()
	p.extractor = PercentExtractor{}
	p.now = time.Now
	p.newID = uuid.NewString
}
