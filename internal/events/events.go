// Package events provides pipeline event publishing to Redis Streams.
package events

import "time"

// StreamName is the Redis stream all curator events are appended to.
const StreamName = "curator:events"

// EventType identifies what happened.
type EventType string

const (
	EventContentPublished EventType = "content.published"
	EventContentRejected  EventType = "content.rejected"
	EventDigestBuilt      EventType = "digest.built"
	EventSourceError      EventType = "source.error"
)

// Event is one pipeline event.
type Event struct {
	EventID   string         `json:"event_id"`
	EventType EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}
