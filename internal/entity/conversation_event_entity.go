package entity

import (
	"time"

	"github.com/google/uuid"
)

// ConversationEvent is one row of the per-conversation event log. Seq is
// assigned by the event-log consumer and is strictly increasing within a
// conversation, which lets reconnecting clients catch up incrementally
// instead of refetching the full snapshot.
type ConversationEvent struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	Seq            int64
	EventType      string
	Payload        []byte
	CreatedAt      time.Time
}
