package events

import (
	"time"

	"github.com/google/uuid"
)

// Event defines the contract for all conversation domain events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "MESSAGE_APPENDED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Domain event codes published by the synchronizer.
const (
	TypeConversationCreated  = "CONVERSATION_CREATED"
	TypeMessageAppended      = "MESSAGE_APPENDED"
	TypeConversationResolved = "CONVERSATION_RESOLVED"
	TypeConversationRead     = "CONVERSATION_READ"
)

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

func NewConversationCreated(conversationId uuid.UUID, team string) Event {
	return BaseEvent{
		Type: TypeConversationCreated,
		Data: map[string]interface{}{
			"conversation_id": conversationId.String(),
			"team":            team,
		},
		OccurredAt: time.Now(),
	}
}

func NewMessageAppended(conversationId, messageId uuid.UUID, sender string) Event {
	return BaseEvent{
		Type: TypeMessageAppended,
		Data: map[string]interface{}{
			"conversation_id": conversationId.String(),
			"message_id":      messageId.String(),
			"sender":          sender,
		},
		OccurredAt: time.Now(),
	}
}

func NewConversationResolved(conversationId uuid.UUID) Event {
	return BaseEvent{
		Type: TypeConversationResolved,
		Data: map[string]interface{}{
			"conversation_id": conversationId.String(),
		},
		OccurredAt: time.Now(),
	}
}
