package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dusk-indust/auratriage/internal/orchestrator"
)

// StreamEvent is one event read off an SSE stream. Err is set when the frame
// could not be decoded; the reader keeps going after such a frame.
type StreamEvent struct {
	Event orchestrator.Event
	Err   error
}

// SSEWriter writes Server-Sent Events to an http.ResponseWriter.
// Call Init once before writing any events to set the required headers.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSEWriter wrapping the given ResponseWriter.
// If w does not implement http.Flusher, writes still succeed but may be
// buffered.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	f, _ := w.(http.Flusher)
	return &SSEWriter{
		w:       w,
		flusher: f,
	}
}

// Init sets the SSE response headers and flushes them to the client.
func (sw *SSEWriter) Init() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	sw.w.WriteHeader(http.StatusOK)
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// WriteEvent writes ev as one frame:
//
//	data: {json}\n\n
//
// and flushes so the client sees it immediately.
func (sw *SSEWriter) WriteEvent(ev orchestrator.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sse: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("sse: write event: %w", err)
	}
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}

// ReadEvents reads SSE events from body and delivers them on the returned
// channel. The channel is closed when the body is exhausted, a read error
// occurs, or ctx is cancelled. The body is closed when reading finishes.
//
// Format rules applied:
//   - Lines prefixed with "data: " (or "data:") carry the JSON payload.
//   - Lines starting with ":" are comments and are ignored.
//   - An empty line ends an event.
//   - Multiple "data:" lines within one event are joined with newlines.
func ReadEvents(ctx context.Context, body io.ReadCloser) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		var dataBuf strings.Builder

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if !scanner.Scan() {
				if dataBuf.Len() > 0 {
					emit(ctx, ch, dataBuf.String())
				}
				if err := scanner.Err(); err != nil && ctx.Err() == nil {
					send(ctx, ch, StreamEvent{Err: fmt.Errorf("sse: read stream: %w", err)})
				}
				return
			}

			line := scanner.Text()

			switch {
			case line == "":
				if dataBuf.Len() > 0 {
					emit(ctx, ch, dataBuf.String())
					dataBuf.Reset()
				}

			case strings.HasPrefix(line, ":"):
				// Comment.

			case strings.HasPrefix(line, "data:"):
				payload := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
				if dataBuf.Len() > 0 {
					dataBuf.WriteByte('\n')
				}
				dataBuf.WriteString(payload)

			default:
				// Unknown field; ignored.
			}
		}
	}()
	return ch
}

// emit decodes raw into an event and sends it on ch.
func emit(ctx context.Context, ch chan<- StreamEvent, raw string) {
	var se StreamEvent
	if err := json.Unmarshal([]byte(raw), &se.Event); err != nil {
		se = StreamEvent{Err: fmt.Errorf("sse: unmarshal event: %w", err)}
	}
	send(ctx, ch, se)
}

func send(ctx context.Context, ch chan<- StreamEvent, se StreamEvent) {
	select {
	case ch <- se:
	case <-ctx.Done():
	}
}

// sseSink delivers pipeline events as SSE frames. A closed done channel or a
// failed write means the client has gone.
type sseSink struct {
	w    *SSEWriter
	done <-chan struct{}
}

func (s sseSink) Deliver(_ context.Context, ev orchestrator.Event) error {
	select {
	case <-s.done:
		return &orchestrator.DeliveryError{Event: ev.Type, Err: fmt.Errorf("%w: request closed", orchestrator.ErrConsumerGone)}
	default:
	}
	if err := s.w.WriteEvent(ev); err != nil {
		return &orchestrator.DeliveryError{Event: ev.Type, Err: fmt.Errorf("%w: %w", orchestrator.ErrConsumerGone, err)}
	}
	return nil
}
