package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dusk-indust/auratriage/internal/orchestrator"
	"github.com/gorilla/websocket"
)

// wsSink delivers pipeline events as WebSocket text frames.
type wsSink struct {
	conn    *websocket.Conn
	timeout time.Duration

	mu       sync.Mutex // serialises writers
	gone     chan struct{}
	goneOnce sync.Once
}

func (s *wsSink) markGone() {
	s.goneOnce.Do(func() { close(s.gone) })
}

func (s *wsSink) Deliver(_ context.Context, ev orchestrator.Event) error {
	select {
	case <-s.gone:
		return &orchestrator.DeliveryError{Event: ev.Type, Err: orchestrator.ErrConsumerGone}
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	}
	if err := s.conn.WriteJSON(ev); err != nil {
		s.markGone()
		return &orchestrator.DeliveryError{Event: ev.Type, Err: fmt.Errorf("%w: %w", orchestrator.ErrConsumerGone, err)}
	}
	return nil
}

// close sends a close frame unless the peer is already gone.
func (s *wsSink) close(code int, reason string) {
	select {
	case <-s.gone:
		return
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
