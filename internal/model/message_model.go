package model

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationId uuid.UUID `gorm:"type:uuid;not null;index"`
	Text           string    `gorm:"type:text;not null"`
	Sender         string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"index"`
}

func (Message) TableName() string {
	return "messages"
}
