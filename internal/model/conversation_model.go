package model

import (
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	Id               uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ParticipantName  string     `gorm:"type:text;not null"`
	ParticipantEmail string     `gorm:"type:text;not null"`
	Team             string     `gorm:"type:text;not null;index"`
	Status           string     `gorm:"type:text;not null;default:active;index"`
	AssignedAgentId  *uuid.UUID `gorm:"type:uuid"`
	IsRead           bool       `gorm:"not null;default:false"`
	CreatedAt        time.Time  `gorm:"autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"index"` // sort key for inbox lists, bumped on every message
}

func (Conversation) TableName() string {
	return "conversations"
}
