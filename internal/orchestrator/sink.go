package orchestrator

import (
	"context"
	"errors"
	"fmt"
)

// ErrDeliveryFailed is matched by every DeliveryError.
var ErrDeliveryFailed = errors.New("orchestrator: event delivery failed")

// ErrConsumerGone signals that nobody is listening any more. A sink returns
// it (possibly wrapped) once its consumer has disconnected.
var ErrConsumerGone = errors.New("orchestrator: event consumer gone")

// DeliveryError describes one event that a sink could not hand over.
type DeliveryError struct {
	Event EventType
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s event: %v", e.Event, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDeliveryFailed) hold for every DeliveryError.
func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailed }

// Sink receives the events of a run, synchronously and in order. A delivery
// error is never fatal to the run.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, ev Event) error { return f(ctx, ev) }

// NopSink discards every event.
type NopSink struct{}

// Deliver implements Sink.
func (NopSink) Deliver(context.Context, Event) error { return nil }

// MultiSink delivers each event to every sink in order. It keeps going after
// a failure and returns the failures joined.
func MultiSink(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, ev Event) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Deliver(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// CollectingSink records delivered events in memory.
type CollectingSink struct {
	Events []Event
}

// Deliver implements Sink.
func (c *CollectingSink) Deliver(_ context.Context, ev Event) error {
	c.Events = append(c.Events, ev)
	return nil
}
