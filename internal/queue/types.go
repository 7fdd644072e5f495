package queue

import (
	"time"

	"github.com/alvesdmateus/image-publisher/internal/publish"
)

// EventType classifies publish events on the sink.
type EventType string

const (
	// EventTypePublished is emitted after every finished publish run,
	// successful or not.
	EventTypePublished EventType = "published"
)

// Event is the JSON payload pushed onto the event sink for downstream
// consumers (deploy triggers, audit collectors).
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Report    *publish.Report `json:"report"`
	EmittedAt time.Time       `json:"emitted_at"`
}
