package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/c360/mediaconnector/pipeline"
)

// Kind names what happened to a tap
type Kind string

// Event kinds
const (
	KindTapCreated      Kind = "tap_created"
	KindTapStateChanged Kind = "tap_state_changed"
	KindTapReleased     Kind = "tap_released"
	KindFormatArrived   Kind = "format_arrived"
)

// DefaultSubjectPrefix is used when no prefix is configured
const DefaultSubjectPrefix = "mediaconnector.events"

// Event is a single tap lifecycle notification
type Event struct {
	ID        string    `json:"id"`
	Connector string    `json:"connector"`
	Tap       string    `json:"tap"`
	Direction string    `json:"direction"`
	Kind      Kind      `json:"kind"`
	State     string    `json:"state,omitempty"`
	Caps      string    `json:"caps,omitempty"`
	Time      time.Time `json:"time"`
}

// New creates an event stamped with a fresh id and the current time
func New(connector, tap string, dir pipeline.Direction, kind Kind) Event {
	return Event{
		ID:        uuid.NewString(),
		Connector: connector,
		Tap:       tap,
		Direction: dir.String(),
		Kind:      kind,
		Time:      time.Now().UTC(),
	}
}

// Subject returns the NATS subject "<prefix>.<connector>.<tap>"
func (e Event) Subject(prefix string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + "." + e.Connector + "." + e.Tap
}
