package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Server-to-client event types fanned out over the transport.
const (
	EventIncomingMessage     = "incoming_message"
	EventResolved            = "resolved"
	EventConversationCreated = "conversation_created"
	EventConversationRead    = "conversation_read"
)

// EventEnvelope is the wire shape of every fan-out event.
type EventEnvelope struct {
	Type           string                `json:"type"`
	ConversationId uuid.UUID             `json:"conversation_id"`
	Message        *MessageResponse      `json:"message,omitempty"`
	Conversation   *ConversationResponse `json:"conversation,omitempty"`
}

func (e EventEnvelope) Marshal() []byte {
	payload, _ := json.Marshal(e)
	return payload
}

// EventLogMessage is the in-process bus payload consumed by the event-log
// worker.
type EventLogMessage struct {
	ConversationId uuid.UUID       `json:"conversation_id"`
	EventType      string          `json:"event_type"`
	Envelope       json.RawMessage `json:"envelope"`
}
