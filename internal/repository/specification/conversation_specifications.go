package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByConversationID struct {
	ConversationID uuid.UUID
}

func (s ByConversationID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("conversation_id = ?", s.ConversationID)
}

type ByStatus struct {
	Status string
}

func (s ByStatus) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", s.Status)
}

// SeqAfter selects event-log rows past a known sequence number, used for
// incremental catch-up after a reconnect.
type SeqAfter struct {
	Seq int64
}

func (s SeqAfter) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("seq > ?", s.Seq)
}
