package events

import (
	"errors"
	"sync"
	"time"
)

// Outbox errors.
var (
	ErrOutboxClosed    = errors.New("outbox closed")
	ErrTerminalTimeout = errors.New("terminal enqueue timed out")
)

type outboxItem struct {
	data     []byte
	terminal bool
}

// outbox is the bounded per-subscriber FIFO buffer between producers and the
// drain goroutine. Progress is a stream, so on overflow the oldest pending
// non-terminal message is dropped in favor of the new one. Terminal frames
// are exempt: Push never evicts them and PushTerminal blocks instead of
// dropping.
type outbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []outboxItem
	cap    int
	closed bool

	dropped int // non-terminal messages lost to overflow
}

func newOutbox(capacity int) *outbox {
	o := &outbox{cap: capacity}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// Push enqueues a non-terminal message. On a full outbox the oldest pending
// non-terminal message is evicted in favor of the new one; when every
// pending item is terminal the new message is the stale one and is dropped
// instead, keeping the buffer at capacity. Returns true when a message was
// dropped either way.
func (o *outbox) Push(data []byte) (dropped bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}

	if len(o.items) >= o.cap {
		o.dropped++
		dropped = true
		evicted := false
		for i, item := range o.items {
			if !item.terminal {
				o.items = append(o.items[:i], o.items[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return dropped
		}
	}

	o.items = append(o.items, outboxItem{data: data})
	o.cond.Broadcast()
	return dropped
}

// PushTerminal enqueues a terminal message, blocking up to timeout while the
// outbox is full. On timeout the caller must treat the subscriber as
// unhealthy and disconnect it.
func (o *outbox) PushTerminal(data []byte, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	// Wake the waiter when the deadline passes; cond.Wait has no timeout.
	timer := time.AfterFunc(timeout, func() {
		o.mu.Lock()
		o.mu.Unlock() //nolint:staticcheck // lock barrier so the waiter is parked
		o.cond.Broadcast()
	})
	defer timer.Stop()

	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.items) >= o.cap {
		if o.closed {
			return ErrOutboxClosed
		}
		if !time.Now().Before(deadline) {
			return ErrTerminalTimeout
		}
		o.cond.Wait()
	}
	if o.closed {
		return ErrOutboxClosed
	}

	o.items = append(o.items, outboxItem{data: data, terminal: true})
	o.cond.Broadcast()
	return nil
}

// Pop blocks until a message is available or the outbox is closed.
// A closed outbox with pending items keeps draining them first.
func (o *outbox) Pop() ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.items) == 0 {
		if o.closed {
			return nil, ErrOutboxClosed
		}
		o.cond.Wait()
	}

	item := o.items[0]
	o.items = o.items[1:]
	o.cond.Broadcast()
	return item.data, nil
}

// Close wakes all waiters. Pending items remain poppable.
func (o *outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.cond.Broadcast()
}

// Dropped returns the number of messages evicted on overflow.
func (o *outbox) Dropped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// Len returns the number of pending messages.
func (o *outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}
