// Package hooks lets operators wire shell scripts, webhooks, or structured
// stdio output to the hub's stream lifecycle (registration, ingest
// accept/reject, subscriber join/leave, catalog pushes).
package hooks

import "time"

// EventType identifies a point in the hub's stream lifecycle.
type EventType string

const (
	EventStreamRegister   EventType = "stream_register"
	EventStreamDeregister EventType = "stream_deregister"
	EventIngestAccept     EventType = "ingest_accept"
	EventIngestReject     EventType = "ingest_reject"
	EventSubscriberJoin   EventType = "subscriber_join"
	EventSubscriberLeave  EventType = "subscriber_leave"
	EventCatalogPush      EventType = "catalog_push"
)

// Event is a single lifecycle occurrence that can trigger hooks.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	SessionID string                 `json:"session_id,omitempty"`
	StreamID  string                 `json:"stream_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates an Event stamped with the current time.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      make(map[string]interface{}),
	}
}

func (e *Event) WithSessionID(id string) *Event {
	e.SessionID = id
	return e
}

func (e *Event) WithStreamID(id string) *Event {
	e.StreamID = id
	return e
}

func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// String returns a human-readable representation, preferring the stream id
// over the session id since most operators key on stream identity.
func (e *Event) String() string {
	if e.StreamID != "" {
		return string(e.Type) + ":" + e.StreamID
	}
	if e.SessionID != "" {
		return string(e.Type) + ":" + e.SessionID
	}
	return string(e.Type)
}
