// Package events provides real-time progress delivery to push subscribers.
//
// Producers (workflow engine, multi-agent flow) talk to the Broadcaster,
// which publishes typed payloads on the in-process event bus. The
// ConnectionManager subscribes to the bus, wraps payloads into wire frames
// and fans them out to its subscribers, each drained by its own goroutine.
// The Broadcaster never holds a subscriber reference.
package events

import (
	"encoding/json"
	"time"
)

// Server → client frame types.
const (
	FrameTypeProgress          = "progress"
	FrameTypeWorkflowStarted   = "workflow.started"
	FrameTypeStepStarted       = "workflow.step.started"
	FrameTypeStepCompleted     = "workflow.step.completed"
	FrameTypeWorkflowCompleted = "workflow.completed"
	FrameTypeWorkflowFailed    = "workflow.failed"
	FrameTypeHeartbeat         = "heartbeat"
	FrameTypePong              = "pong"
)

// Client → server message types.
const (
	ClientMessageTypePing      = "ping"
	ClientMessageTypeSubscribe = "subscribe"
)

// Frame is the server → client message envelope. One JSON object per frame.
type Frame struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id,omitempty"`
	TS     string `json:"ts"` // RFC3339
	Data   any    `json:"data,omitempty"`
}

// NewFrame builds a frame stamped with the current time.
func NewFrame(frameType, taskID string, data any) Frame {
	return Frame{
		Type:   frameType,
		TaskID: taskID,
		TS:     time.Now().UTC().Format(time.RFC3339),
		Data:   data,
	}
}

// Marshal serializes the frame to its wire form.
func (f Frame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// IsTerminal reports whether the frame ends a task's stream. Terminal frames
// are exempt from outbox drop (delivered or the subscriber is disconnected).
func (f Frame) IsTerminal() bool {
	return f.Type == FrameTypeWorkflowCompleted || f.Type == FrameTypeWorkflowFailed
}

// ClientMessage is the JSON structure for client → server messages.
// Only ping and subscribe are recognized.
type ClientMessage struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id,omitempty"` // for subscribe: restrict to one task's stream
}

// frameForPayload converts a bus payload into its wire frame. Returns false
// for payloads the push transport does not forward.
func frameForPayload(payload any) (Frame, bool) {
	switch p := payload.(type) {
	case ProgressUpdate:
		return NewFrame(FrameTypeProgress, p.TaskID, p), true
	case WorkflowStartedPayload:
		return NewFrame(FrameTypeWorkflowStarted, p.WorkflowID, p), true
	case StepStartedPayload:
		return NewFrame(FrameTypeStepStarted, p.WorkflowID, p), true
	case StepCompletedPayload:
		return NewFrame(FrameTypeStepCompleted, p.WorkflowID, p), true
	case WorkflowCompletedPayload:
		return NewFrame(FrameTypeWorkflowCompleted, p.WorkflowID, p), true
	case WorkflowFailedPayload:
		return NewFrame(FrameTypeWorkflowFailed, p.WorkflowID, p), true
	default:
		return Frame{}, false
	}
}
