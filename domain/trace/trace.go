// Package trace provides recorded dispatcher event types for replaying
// wakelock accounting offline.
// All functions are pure - no side effects.
package trace

import (
	"errors"
	"fmt"
)

// EventType identifies a dispatcher call.
type EventType string

const (
	EventStart   EventType = "start"    // StartTracking
	EventStop    EventType = "stop"     // StopTracking
	EventStopAll EventType = "stop_all" // StopTrackingAll
)

// Validation errors.
var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMissingClient    = errors.New("client is required")
)

// Event is one recorded dispatcher call (immutable value type).
type Event struct {
	Type        EventType `yaml:"type" json:"type"`
	Client      string    `yaml:"client,omitempty" json:"client,omitempty"`
	Kind        int       `yaml:"kind,omitempty" json:"kind,omitempty"`
	Token       int       `yaml:"token,omitempty" json:"token,omitempty"`
	Outstanding int       `yaml:"outstanding,omitempty" json:"outstanding,omitempty"`
	AtMs        int64     `yaml:"at_ms" json:"at_ms"`
}

// Trace is a named sequence of dispatcher events.
type Trace struct {
	Name   string  `yaml:"name"`
	Events []Event `yaml:"events"`
}

// Validate checks a single event.
// This is a PURE function.
func (e Event) Validate() error {
	switch e.Type {
	case EventStart, EventStop:
		if e.Client == "" {
			return ErrMissingClient
		}
	case EventStopAll:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}
	return nil
}

// Validate checks every event and reports the first failure with its index.
// This is a PURE function.
func (t Trace) Validate() error {
	for i, e := range t.Events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
	}
	return nil
}
