package common

import (
	"encoding/json"
	"time"
)

// EventDirection records which way a message travelled relative to the hub.
type EventDirection string

const (
	DirectionInbound  EventDirection = "inbound"  // downstream client -> hub
	DirectionOutbound EventDirection = "outbound" // hub -> upstream server
	DirectionInternal EventDirection = "internal" // lifecycle/system event, no wire message
)

// EventKind classifies what an Event describes.
type EventKind string

const (
	EventConnectorState EventKind = "connector_state"
	EventToolCall       EventKind = "tool_call"
	EventAdmin          EventKind = "admin"
	EventSystem         EventKind = "system"
)

// Event is the one structured record every package logs through
// internal/logging. It is transport-agnostic: a stdio connector reconnect,
// an HTTP tool call, and an admin settings edit all produce one of these.
type Event struct {
	Timestamp   time.Time         `json:"timestamp"`
	Kind        EventKind         `json:"kind"`
	Direction   EventDirection    `json:"direction"`
	RequestID   string            `json:"request_id,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	ServerName  string            `json:"server_name,omitempty"`
	Scope       string            `json:"scope,omitempty"`
	ToolName    string            `json:"tool_name,omitempty"`
	Success     bool              `json:"success"`
	ErrorKind   ErrorKind         `json:"error_kind,omitempty"`
	Error       string            `json:"error,omitempty"`
	DurationMS  int64             `json:"duration_ms,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	rawMessage  string
	hasRaw      bool
}

// NewEvent starts an Event with required fields populated.
func NewEvent(kind EventKind, direction EventDirection) *Event {
	return &Event{
		Timestamp: time.Now(),
		Kind:      kind,
		Direction: direction,
		Success:   true,
		Metadata:  make(map[string]string),
	}
}

func (e *Event) WithRequestID(id string) *Event { e.RequestID = id; return e }
func (e *Event) WithSessionID(id string) *Event { e.SessionID = id; return e }
func (e *Event) WithServer(name string) *Event  { e.ServerName = name; return e }
func (e *Event) WithScope(scope string) *Event  { e.Scope = scope; return e }
func (e *Event) WithTool(name string) *Event    { e.ToolName = name; return e }

// WithMetadata sets a single metadata key, initializing the map if needed.
func (e *Event) WithMetadata(k, v string) *Event {
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	e.Metadata[k] = v
	return e
}

func (e *Event) WithDuration(d time.Duration) *Event {
	e.DurationMS = d.Milliseconds()
	return e
}

// WithError marks the event as failed and records the error's kind.
func (e *Event) WithError(err error) *Event {
	if err == nil {
		return e
	}
	ue := AsUpstreamError(err)
	e.Success = false
	e.ErrorKind = ue.Kind
	e.Error = ue.Error()
	return e
}

// WithRawMessage attaches the raw JSON-RPC payload for diagnostic replay.
func (e *Event) WithRawMessage(msg string) *Event {
	e.rawMessage = msg
	e.hasRaw = true
	return e
}

func (e *Event) RawMessage() string { return e.rawMessage }

// MarshalJSON injects the raw message only when one was attached, folding
// the private field into the public payload.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	data, err := json.Marshal(alias(e))
	if err != nil {
		return nil, err
	}
	if !e.hasRaw {
		return data, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m["raw_message"] = e.rawMessage
	return json.Marshal(m)
}
