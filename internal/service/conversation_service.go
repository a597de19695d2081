package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"support-chat-be/internal/constant"
	"support-chat-be/internal/dto"
	"support-chat-be/internal/entity"
	"support-chat-be/internal/pkg/logger"
	"support-chat-be/internal/pkg/serverutils"
	"support-chat-be/internal/repository/specification"
	"support-chat-be/internal/repository/unitofwork"
	"support-chat-be/pkg/events"
	pktNats "support-chat-be/pkg/nats"

	"github.com/google/uuid"
)

// SyncDelivery defines how fan-out events reach subscribed channels.
// Implemented by the websocket hub adapter.
type SyncDelivery interface {
	BroadcastRoom(conversationId uuid.UUID, payload []byte)
	BroadcastLobby(payload []byte)
}

type IConversationService interface {
	Create(ctx context.Context, req *dto.CreateConversationRequest) (*dto.ConversationResponse, error)
	Append(ctx context.Context, conversationId uuid.UUID, text, sender string, agentId *uuid.UUID) (*dto.MessageResponse, error)
	Resolve(ctx context.Context, conversationId uuid.UUID) (*dto.ConversationResponse, error)
	MarkRead(ctx context.Context, conversationId uuid.UUID) error
	GetActive(ctx context.Context) ([]*dto.ConversationResponse, error)
	GetResolved(ctx context.Context) ([]*dto.ConversationResponse, error)
	Show(ctx context.Context, id uuid.UUID) (*dto.ConversationResponse, error)
	GetEvents(ctx context.Context, id uuid.UUID, afterSeq int64) ([]*dto.ConversationEventResponse, error)
}

// conversationService is the synchronizer: the sole writer of conversation
// state. It turns inbound events into persisted facts first, then fans the
// resulting event out to the conversation room and the admin lobby.
type conversationService struct {
	uowFactory       unitofwork.RepositoryFactory
	delivery         SyncDelivery
	publisherService IPublisherService
	natsPub          *pktNats.Publisher
	logger           logger.ILogger

	// Appends on the same conversation are serialized here so created-at
	// assignment stays strictly monotonic. The store's own per-row safety
	// is not enough: two handler goroutines could otherwise persist equal
	// timestamps. Locks are striped by conversation id, so memory stays
	// bounded no matter how many conversations pass through; a stripe
	// collision only costs serialization, never correctness.
	stripes [64]sync.Mutex

	mu        sync.Mutex
	lastStamp map[uuid.UUID]time.Time
}

func NewConversationService(
	uowFactory unitofwork.RepositoryFactory,
	delivery SyncDelivery,
	publisherService IPublisherService,
	natsPub *pktNats.Publisher,
	log logger.ILogger,
) IConversationService {
	return &conversationService{
		uowFactory:       uowFactory,
		delivery:         delivery,
		publisherService: publisherService,
		natsPub:          natsPub,
		logger:           log,
		lastStamp:        make(map[uuid.UUID]time.Time),
	}
}

func (s *conversationService) lockConversation(id uuid.UUID) *sync.Mutex {
	l := &s.stripes[int(id[0])%len(s.stripes)]
	l.Lock()
	return l
}

// nextStamp returns a timestamp strictly after every stamp handed out for
// the conversation. Callers must hold the conversation lock.
func (s *conversationService) nextStamp(id uuid.UUID) time.Time {
	now := time.Now().UTC()
	s.mu.Lock()
	if last, ok := s.lastStamp[id]; ok && !now.After(last) {
		now = last.Add(time.Microsecond)
	}
	s.lastStamp[id] = now
	s.mu.Unlock()
	return now
}

func (s *conversationService) Create(ctx context.Context, req *dto.CreateConversationRequest) (*dto.ConversationResponse, error) {
	name := strings.TrimSpace(req.ParticipantName)
	email := strings.TrimSpace(req.ParticipantEmail)
	if name == "" {
		return nil, serverutils.NewValidationError("participant name is required")
	}
	if email == "" {
		return nil, serverutils.NewValidationError("participant email is required")
	}
	if !constant.IsValidTeam(req.Team) {
		return nil, serverutils.NewValidationError("unknown team: " + req.Team)
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	now := time.Now().UTC()
	conversation := entity.Conversation{
		Id:               uuid.New(),
		ParticipantName:  name,
		ParticipantEmail: email,
		Team:             req.Team,
		Status:           entity.StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := uow.ConversationRepository().Create(ctx, &conversation); err != nil {
		return nil, err
	}

	res := s.toResponse(&conversation, nil)

	// New conversations are announced to the lobby only; nobody is in the
	// conversation room yet.
	envelope := dto.EventEnvelope{
		Type:           dto.EventConversationCreated,
		ConversationId: conversation.Id,
		Conversation:   res,
	}
	s.delivery.BroadcastLobby(envelope.Marshal())

	s.recordEvent(ctx, conversation.Id, envelope)
	s.publishDomainEvent(ctx, events.NewConversationCreated(conversation.Id, conversation.Team))

	return res, nil
}

func (s *conversationService) Append(ctx context.Context, conversationId uuid.UUID, text, sender string, agentId *uuid.UUID) (*dto.MessageResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, serverutils.NewValidationError("message text is required")
	}
	if sender != entity.SenderUser && sender != entity.SenderAgent {
		return nil, serverutils.NewValidationError("unknown sender: " + sender)
	}

	l := s.lockConversation(conversationId)
	defer l.Unlock()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	conversation, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: conversationId})
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, serverutils.NewNotFoundError("conversation not found")
	}
	if conversation.IsResolved() {
		return nil, serverutils.NewConversationClosedError("this conversation is archived")
	}

	msg := entity.Message{
		Id:             uuid.New(),
		ConversationId: conversationId,
		Text:           text,
		Sender:         sender,
		CreatedAt:      s.nextStamp(conversationId),
	}

	// Persist before any fan-out: clients never see server-unconfirmed
	// messages.
	if err := uow.MessageRepository().Create(ctx, &msg); err != nil {
		return nil, err
	}

	conversation.UpdatedAt = msg.CreatedAt
	if sender == entity.SenderUser {
		conversation.IsRead = false
	}
	if sender == entity.SenderAgent && conversation.AssignedAgentId == nil && agentId != nil {
		conversation.AssignedAgentId = agentId
	}
	if err := uow.ConversationRepository().Update(ctx, conversation); err != nil {
		return nil, err
	}

	msgRes := dto.MessageResponse{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		Text:           msg.Text,
		Sender:         msg.Sender,
		CreatedAt:      msg.CreatedAt,
	}

	envelope := dto.EventEnvelope{
		Type:           dto.EventIncomingMessage,
		ConversationId: conversationId,
		Message:        &msgRes,
	}
	payload := envelope.Marshal()
	s.delivery.BroadcastRoom(conversationId, payload)
	s.delivery.BroadcastLobby(payload)

	s.recordEvent(ctx, conversationId, envelope)
	s.publishDomainEvent(ctx, events.NewMessageAppended(conversationId, msg.Id, sender))

	return &msgRes, nil
}

func (s *conversationService) Resolve(ctx context.Context, conversationId uuid.UUID) (*dto.ConversationResponse, error) {
	l := s.lockConversation(conversationId)
	defer l.Unlock()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	conversation, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: conversationId})
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, serverutils.NewNotFoundError("conversation not found")
	}
	if conversation.IsResolved() {
		// Idempotent: report current state, broadcast nothing.
		return s.toResponse(conversation, nil), nil
	}

	conversation.Status = entity.StatusResolved
	conversation.UpdatedAt = s.nextStamp(conversationId)
	if err := uow.ConversationRepository().Update(ctx, conversation); err != nil {
		return nil, err
	}

	// Resolved conversations reject appends, so their stamp tracking can go.
	s.mu.Lock()
	delete(s.lastStamp, conversationId)
	s.mu.Unlock()

	envelope := dto.EventEnvelope{
		Type:           dto.EventResolved,
		ConversationId: conversationId,
	}
	payload := envelope.Marshal()
	s.delivery.BroadcastRoom(conversationId, payload)
	s.delivery.BroadcastLobby(payload)

	s.recordEvent(ctx, conversationId, envelope)
	s.publishDomainEvent(ctx, events.NewConversationResolved(conversationId))

	return s.toResponse(conversation, nil), nil
}

func (s *conversationService) MarkRead(ctx context.Context, conversationId uuid.UUID) error {
	l := s.lockConversation(conversationId)
	defer l.Unlock()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	conversation, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: conversationId})
	if err != nil {
		return err
	}
	if conversation == nil {
		return serverutils.NewNotFoundError("conversation not found")
	}
	if conversation.IsRead {
		return nil
	}

	conversation.IsRead = true
	if err := uow.ConversationRepository().Update(ctx, conversation); err != nil {
		return err
	}

	// Other admin inboxes clear the unread badge without a refresh.
	envelope := dto.EventEnvelope{
		Type:           dto.EventConversationRead,
		ConversationId: conversationId,
	}
	s.delivery.BroadcastLobby(envelope.Marshal())
	return nil
}

func (s *conversationService) GetActive(ctx context.Context) ([]*dto.ConversationResponse, error) {
	return s.listByStatus(ctx, entity.StatusActive)
}

func (s *conversationService) GetResolved(ctx context.Context) ([]*dto.ConversationResponse, error) {
	return s.listByStatus(ctx, entity.StatusResolved)
}

func (s *conversationService) listByStatus(ctx context.Context, status string) ([]*dto.ConversationResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	conversations, err := uow.ConversationRepository().FindAll(ctx,
		specification.ByStatus{Status: status},
		specification.OrderBy{Field: "updated_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	result := make([]*dto.ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		messages, err := uow.MessageRepository().FindAll(ctx,
			specification.ByConversationID{ConversationID: conversation.Id},
			specification.OrderBy{Field: "created_at", Desc: false},
		)
		if err != nil {
			return nil, err
		}
		result = append(result, s.toResponse(conversation, messages))
	}
	return result, nil
}

func (s *conversationService) Show(ctx context.Context, id uuid.UUID) (*dto.ConversationResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	conversation, err := uow.ConversationRepository().FindOne(ctx, specification.ByID{ID: id})
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, serverutils.NewNotFoundError("conversation not found")
	}

	messages, err := uow.MessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: id},
		specification.OrderBy{Field: "created_at", Desc: false},
	)
	if err != nil {
		return nil, err
	}
	return s.toResponse(conversation, messages), nil
}

func (s *conversationService) GetEvents(ctx context.Context, id uuid.UUID, afterSeq int64) ([]*dto.ConversationEventResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	eventRows, err := uow.ConversationEventRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: id},
		specification.SeqAfter{Seq: afterSeq},
		specification.OrderBy{Field: "seq"},
	)
	if err != nil {
		return nil, err
	}

	result := make([]*dto.ConversationEventResponse, 0, len(eventRows))
	for _, e := range eventRows {
		result = append(result, &dto.ConversationEventResponse{
			Seq:       e.Seq,
			EventType: e.EventType,
			Payload:   json.RawMessage(e.Payload),
			CreatedAt: e.CreatedAt,
		})
	}
	return result, nil
}

// recordEvent hands the envelope to the event-log worker. Failures are
// logged, never propagated: the log is a catch-up aid, not the source of
// truth.
func (s *conversationService) recordEvent(ctx context.Context, conversationId uuid.UUID, envelope dto.EventEnvelope) {
	if s.publisherService == nil {
		return
	}
	logMsg := dto.EventLogMessage{
		ConversationId: conversationId,
		EventType:      envelope.Type,
		Envelope:       envelope.Marshal(),
	}
	payload, _ := json.Marshal(logMsg)
	if err := s.publisherService.Publish(ctx, payload); err != nil {
		s.logger.Warn("ConversationService", "Failed to publish event-log message", map[string]interface{}{
			"conversation_id": conversationId.String(),
			"error":           err.Error(),
		})
	}
}

func (s *conversationService) publishDomainEvent(ctx context.Context, event events.Event) {
	if s.natsPub == nil {
		return
	}
	if err := s.natsPub.Publish(ctx, event); err != nil {
		s.logger.Warn("ConversationService", "Failed to publish domain event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err.Error(),
		})
	}
}

func (s *conversationService) toResponse(c *entity.Conversation, messages []*entity.Message) *dto.ConversationResponse {
	msgResponses := make([]dto.MessageResponse, 0, len(messages))
	for _, m := range messages {
		msgResponses = append(msgResponses, dto.MessageResponse{
			Id:             m.Id,
			ConversationId: m.ConversationId,
			Text:           m.Text,
			Sender:         m.Sender,
			CreatedAt:      m.CreatedAt,
		})
	}

	return &dto.ConversationResponse{
		Id:               c.Id,
		ParticipantName:  c.ParticipantName,
		ParticipantEmail: c.ParticipantEmail,
		Team:             c.Team,
		Status:           c.Status,
		AssignedAgentId:  c.AssignedAgentId,
		IsRead:           c.IsRead,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
		Messages:         msgResponses,
	}
}
