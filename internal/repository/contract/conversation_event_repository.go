package contract

import (
	"context"

	"support-chat-be/internal/entity"
	"support-chat-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ConversationEventRepository interface {
	Create(ctx context.Context, event *entity.ConversationEvent) error
	// MaxSeq returns the highest sequence number recorded for the
	// conversation, or 0 when the log is empty.
	MaxSeq(ctx context.Context, conversationId uuid.UUID) (int64, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ConversationEvent, error)
}
