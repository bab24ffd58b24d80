package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taskweave/taskweave/pkg/bus"
	"github.com/taskweave/taskweave/pkg/config"
)

// SendResult is the outcome of a targeted send.
type SendResult string

// Send outcomes.
const (
	SendDelivered SendResult = "delivered"
	SendNotFound  SendResult = "not_found"
	SendDropped   SendResult = "dropped" // accepted, but a non-terminal message was lost to overflow
)

// Disconnect reasons.
const (
	ReasonReplaced  = "replaced"
	ReasonTimeout   = "timeout"
	ReasonSinkError = "sink_error"
	ReasonUnhealthy = "unhealthy"
	ReasonShutdown  = "shutdown"
	ReasonClient    = "client_closed"
)

// subscriber is one push channel. Owned by the ConnectionManager; producers
// only ever see its client_id.
type subscriber struct {
	clientID    string
	sink        Sink
	outbox      *outbox
	connectedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	taskFilter    string // empty = all tasks
	lastSeenAt    time.Time
	lastEnqueueAt time.Time
}

func (s *subscriber) wantsTask(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskFilter == "" || taskID == "" || s.taskFilter == taskID
}

func (s *subscriber) markSeen(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeenAt = now
}

func (s *subscriber) markEnqueue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEnqueueAt = now
}

// ConnectionManager owns the set of active push subscribers and delivers
// frames to them. Safe for concurrent accept/disconnect/send/broadcast.
// Delivery happens off the index critical section: producers enqueue into
// per-subscriber outboxes, and one drain goroutine per subscriber writes to
// the sink.
type ConnectionManager struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber

	outboxCapacity    int
	terminalTimeout   time.Duration
	heartbeatInterval time.Duration
	livenessDeadline  time.Duration

	busMu sync.RWMutex
	bus   *bus.Bus // optional; set via BindBus

	logger *slog.Logger
}

// NewConnectionManager creates a manager from transport and progress config.
func NewConnectionManager(progressCfg *config.ProgressConfig, transportCfg *config.TransportConfig) *ConnectionManager {
	return &ConnectionManager{
		subscribers:       make(map[string]*subscriber),
		outboxCapacity:    progressCfg.OutboxCapacity,
		terminalTimeout:   progressCfg.TerminalEnqueueTimeout(),
		heartbeatInterval: transportCfg.HeartbeatInterval(),
		livenessDeadline:  transportCfg.LivenessDeadline(),
		logger:            slog.With("component", "connections"),
	}
}

// BindBus subscribes the manager to all workflow and progress topics,
// fanning each published payload out to subscribers as a wire frame.
// Connection lifecycle events are published back on the same bus.
func (m *ConnectionManager) BindBus(b *bus.Bus) {
	m.busMu.Lock()
	m.bus = b
	m.busMu.Unlock()
	topics := []bus.Topic{
		bus.TopicProgressUpdate,
		bus.TopicWorkflowStarted,
		bus.TopicWorkflowStepStarted,
		bus.TopicWorkflowStepCompleted,
		bus.TopicWorkflowCompleted,
		bus.TopicWorkflowFailed,
	}
	for _, topic := range topics {
		b.Subscribe(topic, func(_ bus.Topic, payload any) {
			frame, ok := frameForPayload(payload)
			if !ok {
				return
			}
			m.Broadcast(frame)
		})
	}
}

// Subscription is an opaque handle to one accepted connection. Disconnect
// paths that hold a Subscription tear down only that exact registration, so
// a replaced connection's read loop cannot remove the connection that
// replaced it.
type Subscription struct {
	sub *subscriber
}

// ClientID returns the client id the subscription was accepted under.
func (s *Subscription) ClientID() string { return s.sub.clientID }

// Accept registers a subscriber and starts its drain goroutine. If client_id
// is already connected the prior subscriber is closed first
// (last-writer-wins), so a reconnecting client never fights its stale
// connection. The returned handle is what the connection's read loop must
// disconnect with.
func (m *ConnectionManager) Accept(parentCtx context.Context, clientID string, sink Sink) *Subscription {
	ctx, cancel := context.WithCancel(parentCtx)
	now := time.Now()
	sub := &subscriber{
		clientID:      clientID,
		sink:          sink,
		outbox:        newOutbox(m.outboxCapacity),
		connectedAt:   now,
		lastSeenAt:    now,
		lastEnqueueAt: now,
		ctx:           ctx,
		cancel:        cancel,
	}

	m.mu.Lock()
	prior := m.subscribers[clientID]
	m.subscribers[clientID] = sub
	m.mu.Unlock()

	if prior != nil {
		m.closeSubscriber(prior, ReasonReplaced)
		m.publishLifecycle(bus.TopicConnectionClosed, clientID)
		m.logger.Info("Subscriber replaced", "client_id", clientID)
	}

	go m.drain(sub)

	m.publishLifecycle(bus.TopicConnectionOpened, clientID)
	m.logger.Info("Subscriber connected", "client_id", clientID)
	return &Subscription{sub: sub}
}

// Disconnect closes and removes whichever subscriber currently holds the
// client id. No-op for unknown ids.
func (m *ConnectionManager) Disconnect(clientID, reason string) {
	m.mu.RLock()
	sub, ok := m.subscribers[clientID]
	m.mu.RUnlock()
	if ok {
		m.disconnectSub(sub, reason)
	}
}

// DisconnectSubscription closes and removes the exact subscriber behind the
// handle. If that subscriber has already been replaced or removed nothing
// happens.
func (m *ConnectionManager) DisconnectSubscription(s *Subscription, reason string) {
	m.disconnectSub(s.sub, reason)
}

// disconnectSub removes sub only while it is still the registered subscriber
// for its client id. A subscriber that was already replaced or removed is
// left alone; whoever removed it also closed it.
func (m *ConnectionManager) disconnectSub(sub *subscriber, reason string) {
	m.mu.Lock()
	if m.subscribers[sub.clientID] != sub {
		m.mu.Unlock()
		return
	}
	delete(m.subscribers, sub.clientID)
	m.mu.Unlock()

	m.closeSubscriber(sub, reason)
	m.publishLifecycle(bus.TopicConnectionClosed, sub.clientID)
	m.logger.Info("Subscriber disconnected", "client_id", sub.clientID, "reason", reason)
}

func (m *ConnectionManager) publishLifecycle(topic bus.Topic, clientID string) {
	m.busMu.RLock()
	b := m.bus
	m.busMu.RUnlock()
	if b != nil {
		b.Publish(topic, clientID)
	}
}

// Send delivers one frame to a single subscriber.
func (m *ConnectionManager) Send(clientID string, frame Frame) SendResult {
	m.mu.RLock()
	sub, ok := m.subscribers[clientID]
	m.mu.RUnlock()
	if !ok {
		return SendNotFound
	}
	return m.enqueue(sub, frame)
}

// Broadcast delivers a frame to every subscriber whose task filter matches.
// A per-subscriber failure never propagates to the caller.
func (m *ConnectionManager) Broadcast(frame Frame) (delivered, dropped int) {
	for _, sub := range m.snapshot() {
		if !sub.wantsTask(frame.TaskID) {
			continue
		}
		switch m.enqueue(sub, frame) {
		case SendDelivered:
			delivered++
		case SendDropped:
			delivered++
			dropped++
		case SendNotFound:
		}
	}
	return delivered, dropped
}

// enqueue routes a frame into the subscriber's outbox. Terminal frames block
// up to the terminal timeout; on timeout the subscriber is disconnected as
// unhealthy rather than losing the frame silently.
func (m *ConnectionManager) enqueue(sub *subscriber, frame Frame) SendResult {
	data, err := frame.Marshal()
	if err != nil {
		m.logger.Error("Failed to marshal frame", "type", frame.Type, "error", err)
		return SendNotFound
	}

	sub.markEnqueue(time.Now())

	if frame.IsTerminal() {
		if err := sub.outbox.PushTerminal(data, m.terminalTimeout); err != nil {
			m.logger.Warn("Terminal enqueue failed, disconnecting subscriber",
				"client_id", sub.clientID, "error", err)
			m.disconnectSub(sub, ReasonUnhealthy)
			return SendNotFound
		}
		return SendDelivered
	}

	if dropped := sub.outbox.Push(data); dropped {
		return SendDropped
	}
	return SendDelivered
}

// MarkSeen records client liveness (any inbound message counts).
func (m *ConnectionManager) MarkSeen(clientID string) {
	m.mu.RLock()
	sub, ok := m.subscribers[clientID]
	m.mu.RUnlock()
	if ok {
		sub.markSeen(time.Now())
	}
}

// SetTaskFilter restricts a subscriber to one task's stream.
func (m *ConnectionManager) SetTaskFilter(clientID, taskID string) {
	m.mu.RLock()
	sub, ok := m.subscribers[clientID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	sub.mu.Lock()
	sub.taskFilter = taskID
	sub.mu.Unlock()
	sub.markSeen(time.Now())
}

// ActiveSubscribers returns the number of connected subscribers.
func (m *ConnectionManager) ActiveSubscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

// Dropped returns the subscriber's dropped-message counter, or -1 for
// unknown ids.
func (m *ConnectionManager) Dropped(clientID string) int {
	m.mu.RLock()
	sub, ok := m.subscribers[clientID]
	m.mu.RUnlock()
	if !ok {
		return -1
	}
	return sub.outbox.Dropped()
}

// Run drives heartbeats and liveness checks until ctx is cancelled, then
// disconnects all subscribers.
func (m *ConnectionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return
		case <-ticker.C:
			m.HeartbeatTick()
		}
	}
}

// HeartbeatTick enqueues a heartbeat frame for every subscriber that has had
// no traffic for a full interval, and disconnects subscribers whose clients
// have been silent past the liveness deadline.
func (m *ConnectionManager) HeartbeatTick() {
	now := time.Now()
	for _, sub := range m.snapshot() {
		sub.mu.Lock()
		lastSeen := sub.lastSeenAt
		lastEnqueue := sub.lastEnqueueAt
		sub.mu.Unlock()

		if now.Sub(lastSeen) > m.livenessDeadline {
			m.disconnectSub(sub, ReasonTimeout)
			continue
		}
		if now.Sub(lastEnqueue) >= m.heartbeatInterval {
			m.enqueue(sub, NewFrame(FrameTypeHeartbeat, "", nil))
		}
	}
}

// Shutdown disconnects every subscriber.
func (m *ConnectionManager) Shutdown() {
	for _, sub := range m.snapshot() {
		m.disconnectSub(sub, ReasonShutdown)
	}
}

// drain services one subscriber: pops frames from the outbox and writes them
// to the sink until the outbox closes or a write fails.
func (m *ConnectionManager) drain(sub *subscriber) {
	for {
		data, err := sub.outbox.Pop()
		if err != nil {
			return
		}
		if err := sub.sink.Write(sub.ctx, data); err != nil {
			m.logger.Warn("Sink write failed",
				"client_id", sub.clientID, "error", err)
			m.disconnectSub(sub, ReasonSinkError)
			return
		}
	}
}

// snapshot copies the subscriber set so delivery happens outside the lock.
func (m *ConnectionManager) snapshot() []*subscriber {
	m.mu.RLock()
	defer m.mu.RUnlock()
	subs := make([]*subscriber, 0, len(m.subscribers))
	for _, sub := range m.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

func (m *ConnectionManager) closeSubscriber(sub *subscriber, reason string) {
	sub.cancel()
	sub.outbox.Close()
	_ = sub.sink.Close(reason)
}
