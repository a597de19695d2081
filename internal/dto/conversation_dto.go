package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type CreateConversationRequest struct {
	ParticipantName  string `json:"participant_name" validate:"required"`
	ParticipantEmail string `json:"participant_email" validate:"required,email"`
	Team             string `json:"team" validate:"required"`
}

type AppendMessageRequest struct {
	Text   string `json:"text" validate:"required"`
	Sender string `json:"sender" validate:"required,oneof=user agent"`
}

type MessageResponse struct {
	Id             uuid.UUID `json:"id"`
	ConversationId uuid.UUID `json:"conversation_id"`
	Text           string    `json:"text"`
	Sender         string    `json:"sender"`
	CreatedAt      time.Time `json:"created_at"`
}

type ConversationResponse struct {
	Id               uuid.UUID         `json:"id"`
	ParticipantName  string            `json:"participant_name"`
	ParticipantEmail string            `json:"participant_email"`
	Team             string            `json:"team"`
	Status           string            `json:"status"`
	AssignedAgentId  *uuid.UUID        `json:"assigned_agent_id,omitempty"`
	IsRead           bool              `json:"is_read"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	Messages         []MessageResponse `json:"messages"`
}

type ConversationEventResponse struct {
	Seq       int64           `json:"seq"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
