package events

import (
	"context"
	"time"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "BRIEF_GENERATED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

const (
	TypeBriefGenerated  = "BRIEF_GENERATED"
	TypeSafetyEscalated = "SAFETY_ESCALATED"
)

// BaseEvent is the concrete event used throughout the service.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Publisher delivers events to whatever bus is configured.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// BriefGenerated is raised once an escalation brief exists for a session.
func BriefGenerated(sessionID, briefID, urgency string, brief interface{}) BaseEvent {
	return BaseEvent{
		Type: TypeBriefGenerated,
		Data: map[string]interface{}{
			"session_id": sessionID,
			"brief_id":   briefID,
			"urgency":    urgency,
			"brief":      brief,
		},
		OccurredAt: time.Now().UTC(),
	}
}

// SafetyEscalated is raised when a turn ends on crisis resources.
func SafetyEscalated(sessionID, category, jurisdiction string) BaseEvent {
	return BaseEvent{
		Type: TypeSafetyEscalated,
		Data: map[string]interface{}{
			"session_id":    sessionID,
			"risk_category": category,
			"jurisdiction":  jurisdiction,
		},
		OccurredAt: time.Now().UTC(),
	}
}
