// Package session implements the Agent Session Engine: per-agent
// conversation sessions backed by an append-only on-disk event log,
// with streaming fan-out to concurrent subscribers.
package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// marshalPayload encodes an event payload, wrapping encoding failures
// with context so callers don't need to repeat the json.Marshal dance.
func marshalPayload(payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode session event payload: %w", err)
	}
	return raw, nil
}

// EventType tags an AgentSessionEvent's payload shape.
type EventType string

const (
	EventSessionCreated EventType = "session_created"
	EventMessage        EventType = "message"
	EventRunStatus      EventType = "run_status"
	EventSubSession     EventType = "sub_session"
	EventRunControl     EventType = "run_control"
	EventToolCall       EventType = "tool_call"
	EventToolResult     EventType = "tool_result"
)

// Role identifies the author of a message event.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// RunState is the lifecycle of a single postMessage-triggered run.
type RunState string

const (
	RunThinking    RunState = "thinking"
	RunSearching   RunState = "searching"
	RunResponding  RunState = "responding"
	RunDone        RunState = "done"
	RunPaused      RunState = "paused"
	RunInterrupted RunState = "interrupted"
)

// Event is a single append-only entry in a session's log.
type Event struct {
	Seq       int64           `json:"seq"`
	SessionID string          `json:"sessionId"`
	Type      EventType       `json:"type"`
	Ts        time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// SessionCreatedPayload is the bootstrap event emitted by createSession.
type SessionCreatedPayload struct {
	AgentID         string `json:"agentId"`
	Title           string `json:"title"`
	ParentSessionID string `json:"parentSessionId,omitempty"`
}

// Attachment carries an uploaded file reference attached to a message.
type Attachment struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MimeType      string `json:"mimeType"`
	SizeBytes     int64  `json:"sizeBytes"`
	ContentBase64 string `json:"contentBase64,omitempty"`
	Truncated     bool   `json:"truncated,omitempty"`
}

// MessagePayload is the content of a message event.
type MessagePayload struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// RunStatusPayload reports a run's current lifecycle state.
type RunStatusPayload struct {
	State RunState `json:"state"`
}

// RunControlPayload records a pause/resume/interrupt request.
type RunControlPayload struct {
	Action      string `json:"action"` // pause|resume|interrupt
	RequestedBy string `json:"requestedBy"`
	Reason      string `json:"reason,omitempty"`
}

// SubSessionPayload links a forked sub-session.
type SubSessionPayload struct {
	ChildSessionID string `json:"childSessionId"`
}

// ToolCallPayload records a tool invocation made during a run.
type ToolCallPayload struct {
	ToolID string          `json:"toolId"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// ToolResultPayload records a tool invocation's outcome.
type ToolResultPayload struct {
	ToolID  string `json:"toolId"`
	Ok      bool   `json:"ok"`
	Summary string `json:"summary,omitempty"`
}

// Summary is the in-memory index entry for a session.
type Summary struct {
	ID                 string    `json:"id"`
	AgentID            string    `json:"agentId"`
	Title              string    `json:"title"`
	ParentSessionID    string    `json:"parentSessionId,omitempty"`
	MessageCount       int       `json:"messageCount"`
	LastMessagePreview string    `json:"lastMessagePreview"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

const previewMaxChars = 120

func preview(content string) string {
	r := []rune(content)
	if len(r) <= previewMaxChars {
		return content
	}
	return string(r[:previewMaxChars]) + "…"
}
