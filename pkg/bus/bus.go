// Package bus provides the typed in-process event bus that decouples the
// workflow engine and broadcaster from the push transport and other
// consumers. Handlers run synchronously on the publisher's goroutine; a
// panicking handler is logged and skipped without affecting the others.
package bus

import (
	"log/slog"
	"sync"
)

// Topic identifies one event stream on the bus. The set is closed: new
// topics require code changes.
type Topic string

// The closed topic set.
const (
	TopicWorkflowStarted       Topic = "workflow.started"
	TopicWorkflowStepStarted   Topic = "workflow.step.started"
	TopicWorkflowStepCompleted Topic = "workflow.step.completed"
	TopicWorkflowCompleted     Topic = "workflow.completed"
	TopicWorkflowFailed        Topic = "workflow.failed"
	TopicProgressUpdate        Topic = "progress.update"
	TopicConnectionOpened      Topic = "connection.opened"
	TopicConnectionClosed      Topic = "connection.closed"
)

// Handler consumes events published to a topic. Handlers must not block;
// slow consumers are expected to queue internally (the bus has no queue).
type Handler func(topic Topic, payload any)

// Token deregisters a subscription via Unsubscribe.
type Token struct {
	topic Topic
	id    uint64
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a typed in-process pub/sub broker. Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]subscription
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers a handler for a topic and returns a token usable to
// deregister it. Handlers registered for the same topic are invoked in
// registration order.
func (b *Bus) Subscribe(topic Topic, handler Handler) Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[topic] = append(b.subs[topic], subscription{id: b.nextID, handler: handler})
	return Token{topic: topic, id: b.nextID}
}

// Unsubscribe removes the subscription identified by token. Unknown tokens
// are ignored.
func (b *Bus) Unsubscribe(token Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[token.topic]
	for i, sub := range subs {
		if sub.id == token.id {
			b.subs[token.topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers payload to every handler currently registered on topic.
// Delivery is synchronous and best-effort: a panicking handler is logged and
// skipped. Events published from a single goroutine are observed by each
// handler in publish order.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	// Snapshot under the read lock so handlers run without holding it
	// (a handler may itself subscribe or unsubscribe).
	subs := make([]subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.dispatch(topic, sub, payload)
	}
}

// SubscriberCount returns the number of handlers registered on topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) dispatch(topic Topic, sub subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event handler panicked",
				"topic", topic, "subscription_id", sub.id, "panic", r)
		}
	}()
	sub.handler(topic, payload)
}
