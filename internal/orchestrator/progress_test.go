package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dusk-indust/auratriage/internal/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSink_DeliverAndReceive(t *testing.T) {
	sink := NewChannelSink(4)
	want := ThinkingEvent("Chief Diagnostician", "🩺", 0)

	require.NoError(t, sink.Deliver(context.Background(), want))

	select {
	case got := <-sink.Events():
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestChannelSink_FullBufferBlocksUntilRead(t *testing.T) {
	sink := NewChannelSink(1)
	require.NoError(t, sink.Deliver(context.Background(), ErrorEvent("first")))

	delivered := make(chan error, 1)
	go func() {
		delivered <- sink.Deliver(context.Background(), ErrorEvent("second"))
	}()

	select {
	case <-delivered:
		t.Fatal("Deliver should block while the buffer is full")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, "first", (<-sink.Events()).Message)
	require.NoError(t, <-delivered)
	assert.Equal(t, "second", (<-sink.Events()).Message)
}

func TestChannelSink_DetachReportsConsumerGone(t *testing.T) {
	sink := NewChannelSink(1)
	require.NoError(t, sink.Deliver(context.Background(), ErrorEvent("fills buffer")))

	blocked := make(chan error, 1)
	go func() {
		blocked <- sink.Deliver(context.Background(), ErrorEvent("never read"))
	}()

	sink.Detach()
	sink.Detach() // idempotent

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, ErrConsumerGone)
		assert.ErrorIs(t, err, ErrDeliveryFailed)
	case <-time.After(time.Second):
		t.Fatal("Detach should release a blocked Deliver")
	}

	err := sink.Deliver(context.Background(), ErrorEvent("after detach"))
	assert.ErrorIs(t, err, ErrConsumerGone)
}

func TestChannelSink_ContextCancelled(t *testing.T) {
	sink := NewChannelSink(1)
	require.NoError(t, sink.Deliver(context.Background(), ErrorEvent("fills buffer")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := sink.Deliver(ctx, ErrorEvent("times out"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrConsumerGone))
}

func TestChannelSink_BufferedDeliveryIgnoresCancelledContext(t *testing.T) {
	sink := NewChannelSink(256)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 200; i++ {
		require.NoError(t, sink.Deliver(ctx, ErrorEvent(fmt.Sprintf("event %d", i))), "event %d", i)
	}
	assert.Len(t, sink.Events(), 200)
}

func TestChannelSink_CancelledRunDeliversOneErrorEvent(t *testing.T) {
	for i := 0; i < 100; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		inv := backend.InvokerFunc(func(_ context.Context, _, ref string) (string, error) {
			if ref == "s1" {
				cancel()
			}
			return "reply 70%", nil
		})
		p := newTestPipeline(t, inv)

		sink := NewChannelSink(0)
		received := make(chan []Event, 1)
		go func() {
			var got []Event
			for ev := range sink.Events() {
				got = append(got, ev)
			}
			received <- got
		}()

		_, err := p.Run(ctx, testCase, sink)
		sink.Close()
		cancel()
		require.ErrorIs(t, err, ErrCancelled)

		errorEvents := 0
		for _, ev := range <-received {
			if ev.Type == EventError {
				errorEvents++
			}
		}
		require.Equal(t, 1, errorEvents, "run %d", i)
	}
}

func TestChannelSink_CloseEndsRange(t *testing.T) {
	sink := NewChannelSink(0)
	require.NoError(t, sink.Deliver(context.Background(), ErrorEvent("x")))
	sink.Close()

	count := 0
	for range sink.Events() {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestMultiSink_DeliversToAllAndJoinsErrors(t *testing.T) {
	a, b := &CollectingSink{}, &CollectingSink{}
	broken := SinkFunc(func(context.Context, Event) error { return errors.New("broken pipe") })

	err := MultiSink(a, broken, b).Deliver(context.Background(), ErrorEvent("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Len(t, a.Events, 1)
	assert.Len(t, b.Events, 1)

	assert.NoError(t, MultiSink(a, b).Deliver(context.Background(), ErrorEvent("y")))
}

func TestFormatEvent(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{ThinkingEvent("Chief Diagnostician", "🩺", 0), "  ● [0] 🩺 Chief Diagnostician..."},
		{ResultEvent("Chief Diagnostician", "🩺", 0, "text", 82), "  ✓ [0] 🩺 Chief Diagnostician complete (confidence 82%)"},
		{ErrorEvent("boom"), "  ✗ triage failed: boom"},
		{CompleteEvent("sum", 4), "  ✓ triage complete (4 agents)"},
		{Event{Type: "weird"}, "  ? weird (unknown event)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatEvent(tt.ev))
	}
}
