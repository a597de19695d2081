package entity

import (
	"time"

	"github.com/google/uuid"
)

// Conversation status. A conversation starts Active and moves to Resolved
// exactly once; it never transitions back.
const (
	StatusActive   = "active"
	StatusResolved = "resolved"
)

type Conversation struct {
	Id               uuid.UUID
	ParticipantName  string
	ParticipantEmail string
	Team             string
	Status           string
	AssignedAgentId  *uuid.UUID
	IsRead           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Messages         []*Message
}

func (c *Conversation) IsResolved() bool {
	return c.Status == StatusResolved
}
