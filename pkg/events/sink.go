package events

import "context"

// Sink is the write side of one push channel. The WebSocket handler supplies
// the real implementation; tests supply in-memory ones.
//
// Write returning an error is treated as permanent: the manager disconnects
// the subscriber with reason "sink_error".
type Sink interface {
	Write(ctx context.Context, data []byte) error
	Close(reason string) error
}
