package orchestrator

import (
	"context"
	"fmt"
	"sync"
)

// Compile-time interface check.
var _ Sink = (*ChannelSink)(nil)

// ChannelSink hands events to a consumer goroutine through a buffered
// channel. Deliver blocks while the buffer is full; events are never dropped.
// The producer calls Close once its run has returned; the consumer calls
// Detach if it stops reading early.
type ChannelSink struct {
	ch         chan Event
	gone       chan struct{}
	detachOnce sync.Once
}

// NewChannelSink creates a ChannelSink with the given buffer size. A
// non-positive size defaults to 64.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{
		ch:   make(chan Event, buffer),
		gone: make(chan struct{}),
	}
}

// Deliver sends ev to the consumer, waiting for buffer space. An event that
// fits in the buffer is delivered even when ctx is already done, so a
// cancelled run still reports its terminal error. It returns ErrConsumerGone
// after Detach.
func (s *ChannelSink) Deliver(ctx context.Context, ev Event) error {
	select {
	case <-s.gone:
		return &DeliveryError{Event: ev.Type, Err: ErrConsumerGone}
	default:
	}
	select {
	case s.ch <- ev:
		return nil
	default:
	}
	select {
	case s.ch <- ev:
		return nil
	case <-s.gone:
		return &DeliveryError{Event: ev.Type, Err: ErrConsumerGone}
	case <-ctx.Done():
		return &DeliveryError{Event: ev.Type, Err: ctx.Err()}
	}
}

// Events returns the channel the consumer reads from. It is closed by Close.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Close closes the event channel. Call it from the producer side only, after
// the last Deliver has returned.
func (s *ChannelSink) Close() {
	close(s.ch)
}

// Detach tells the producer that the consumer has stopped reading.
func (s *ChannelSink) Detach() {
	s.detachOnce.Do(func() { close(s.gone) })
}

// FormatEvent renders an event as a single human-readable status line.
func FormatEvent(ev Event) string {
	switch ev.Type {
	case EventAgentThinking:
		return fmt.Sprintf("  ● [%d] %s %s...", ev.Index, ev.Avatar, ev.Agent)
	case EventAgentResult:
		return fmt.Sprintf("  ✓ [%d] %s %s complete (confidence %d%%)", ev.Index, ev.Avatar, ev.Agent, ev.Confidence)
	case EventError:
		return fmt.Sprintf("  ✗ triage failed: %s", ev.Message)
	case EventTriageComplete:
		return fmt.Sprintf("  ✓ triage complete (%d agents)", ev.AgentCount)
	default:
		return fmt.Sprintf("  ? %s (unknown event)", ev.Type)
	}
}
