package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"support-chat-be/internal/dto"
	"support-chat-be/internal/entity"
	"support-chat-be/internal/repository/unitofwork"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService drains the in-process bus and appends rows to the
// per-conversation event log. It runs as a single goroutine, so sequence
// assignment needs no extra locking.
type consumerService struct {
	pubSub     *gochannel.GoChannel
	topicName  string
	uowFactory unitofwork.RepositoryFactory
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
) IConsumerService {
	return &consumerService{
		pubSub:     pubSub,
		topicName:  topicName,
		uowFactory: uowFactory,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.EventLogMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal event-log message: %v", err)
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	repo := uow.ConversationEventRepository()

	seq, err := repo.MaxSeq(ctx, payload.ConversationId)
	if err != nil {
		log.Printf("[ERROR] Failed to read event seq for %s: %v", payload.ConversationId, err)
		msg.Nack()
		return
	}

	row := entity.ConversationEvent{
		Id:             uuid.New(),
		ConversationId: payload.ConversationId,
		Seq:            seq + 1,
		EventType:      payload.EventType,
		Payload:        payload.Envelope,
		CreatedAt:      time.Now().UTC(),
	}
	if err := repo.Create(ctx, &row); err != nil {
		log.Printf("[ERROR] Failed to append event log for %s: %v", payload.ConversationId, err)
		msg.Nack()
		return
	}

	msg.Ack()
}
