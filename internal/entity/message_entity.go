package entity

import (
	"time"

	"github.com/google/uuid"
)

// Message sender kinds.
const (
	SenderUser   = "user"
	SenderAgent  = "agent"
	SenderSystem = "system"
)

type Message struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	Text           string
	Sender         string
	CreatedAt      time.Time
}
