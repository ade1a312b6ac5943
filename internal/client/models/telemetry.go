package models

import "time"

// TelemetryEvent is an analytics event queued on the device until the
// backend accepts the batch that carries it.
type TelemetryEvent struct {
	LocalID    int64
	EventType  string
	SessionID  string
	UserID     string
	Properties map[string]any
	EnqueuedAt time.Time
	Delivered  bool
}

// EventPayload is the wire form of a TelemetryEvent. ClientEventID lets the
// backend drop re-delivered duplicates.
type EventPayload struct {
	ClientEventID int64          `json:"client_event_id"`
	EventType     string         `json:"event_type"`
	SessionID     string         `json:"session_id"`
	UserID        string         `json:"user_id,omitempty"`
	Properties    map[string]any `json:"properties,omitempty"`
	OccurredAt    int64          `json:"occurred_at"`
}

// Payload converts e to its wire form. OccurredAt is unix milliseconds.
func (e TelemetryEvent) Payload() EventPayload {
	return EventPayload{
		ClientEventID: e.LocalID,
		EventType:     e.EventType,
		SessionID:     e.SessionID,
		UserID:        e.UserID,
		Properties:    e.Properties,
		OccurredAt:    e.EnqueuedAt.UnixMilli(),
	}
}
