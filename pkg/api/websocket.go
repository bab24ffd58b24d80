package api

import (
	"context"

	"github.com/coder/websocket"

	"github.com/taskweave/taskweave/pkg/events"
)

// wsSink adapts a WebSocket connection to the events.Sink interface.
// Writes are serialized by the subscriber's drain goroutine, so no extra
// locking is needed here.
type wsSink struct {
	conn *websocket.Conn
}

var _ events.Sink = (*wsSink)(nil)

func (s *wsSink) Write(ctx context.Context, data []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *wsSink) Close(reason string) error {
	return s.conn.Close(websocket.StatusNormalClosure, reason)
}
