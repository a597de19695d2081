package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ConversationEvent struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ConversationId uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_conversation_seq"`
	Seq            int64          `gorm:"not null;uniqueIndex:idx_conversation_seq"`
	EventType      string         `gorm:"type:text;not null"`
	Payload        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"autoCreateTime"`
}

func (ConversationEvent) TableName() string {
	return "conversation_events"
}
