package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"support-chat-be/internal/dto"
	"support-chat-be/internal/entity"
	"support-chat-be/internal/pkg/logger"
	"support-chat-be/internal/pkg/serverutils"
	"support-chat-be/internal/repository/memory"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDelivery records broadcasts instead of writing to websockets.
type fakeDelivery struct {
	mu    sync.Mutex
	room  [][]byte
	lobby [][]byte
}

func (d *fakeDelivery) BroadcastRoom(conversationId uuid.UUID, payload []byte) {
	d.mu.Lock()
	d.room = append(d.room, payload)
	d.mu.Unlock()
}

func (d *fakeDelivery) BroadcastLobby(payload []byte) {
	d.mu.Lock()
	d.lobby = append(d.lobby, payload)
	d.mu.Unlock()
}

func (d *fakeDelivery) counts() (room, lobby int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.room), len(d.lobby)
}

type noopLogger struct{}

func (noopLogger) Debug(string, string, map[string]interface{}) {}
func (noopLogger) Info(string, string, map[string]interface{})  {}
func (noopLogger) Warn(string, string, map[string]interface{})  {}
func (noopLogger) Error(string, string, map[string]interface{}) {}
func (noopLogger) Sync() error                                  { return nil }

var _ logger.ILogger = noopLogger{}

func newTestService(t *testing.T) (IConversationService, *fakeDelivery) {
	t.Helper()
	delivery := &fakeDelivery{}
	factory := memory.NewRepositoryFactory(memory.NewStore())
	svc := NewConversationService(factory, delivery, nil, nil, noopLogger{})
	return svc, delivery
}

func createConversation(t *testing.T, svc IConversationService) *dto.ConversationResponse {
	t.Helper()
	res, err := svc.Create(context.Background(), &dto.CreateConversationRequest{
		ParticipantName:  "Jordan Example",
		ParticipantEmail: "jordan@example.com",
		Team:             "Support",
	})
	require.NoError(t, err)
	return res
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  dto.CreateConversationRequest
	}{
		{name: "missing name", req: dto.CreateConversationRequest{ParticipantEmail: "a@b.c", Team: "Support"}},
		{name: "missing email", req: dto.CreateConversationRequest{ParticipantName: "A", Team: "Support"}},
		{name: "unknown team", req: dto.CreateConversationRequest{ParticipantName: "A", ParticipantEmail: "a@b.c", Team: "Legal"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, &tt.req)
			require.Error(t, err)
			appErr, ok := err.(*serverutils.AppError)
			require.True(t, ok)
			assert.Equal(t, serverutils.KindValidation, appErr.Kind)
		})
	}
}

func TestCreateBroadcastsLobbyOnly(t *testing.T) {
	svc, delivery := newTestService(t)

	res := createConversation(t, svc)
	assert.Equal(t, entity.StatusActive, res.Status)
	assert.False(t, res.IsRead)

	room, lobby := delivery.counts()
	assert.Equal(t, 0, room, "nobody is in the conversation room yet")
	assert.Equal(t, 1, lobby)
}

func TestAppendUnknownConversation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Append(context.Background(), uuid.New(), "hello", entity.SenderUser, nil)
	require.Error(t, err)
	appErr, ok := err.(*serverutils.AppError)
	require.True(t, ok)
	assert.Equal(t, serverutils.KindNotFound, appErr.Kind)
}

func TestAppendEmptyText(t *testing.T) {
	svc, _ := newTestService(t)
	conversation := createConversation(t, svc)

	_, err := svc.Append(context.Background(), conversation.Id, "   ", entity.SenderUser, nil)
	require.Error(t, err)
	appErr, ok := err.(*serverutils.AppError)
	require.True(t, ok)
	assert.Equal(t, serverutils.KindValidation, appErr.Kind)
}

func TestAppendToResolvedConversation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	conversation := createConversation(t, svc)

	_, err := svc.Resolve(ctx, conversation.Id)
	require.NoError(t, err)

	_, err = svc.Append(ctx, conversation.Id, "too late", entity.SenderUser, nil)
	require.Error(t, err)
	appErr, ok := err.(*serverutils.AppError)
	require.True(t, ok)
	assert.Equal(t, serverutils.KindConversationClosed, appErr.Kind)
}

func TestAppendFansOutToRoomAndLobby(t *testing.T) {
	svc, delivery := newTestService(t)
	conversation := createConversation(t, svc)

	msg, err := svc.Append(context.Background(), conversation.Id, "hello", entity.SenderUser, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, entity.SenderUser, msg.Sender)

	room, lobby := delivery.counts()
	assert.Equal(t, 1, room)
	assert.Equal(t, 2, lobby) // conversation_created + incoming_message
}

func TestUserMessageResetsRead(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	conversation := createConversation(t, svc)

	require.NoError(t, svc.MarkRead(ctx, conversation.Id))
	shown, err := svc.Show(ctx, conversation.Id)
	require.NoError(t, err)
	require.True(t, shown.IsRead)

	_, err = svc.Append(ctx, conversation.Id, "are you there?", entity.SenderUser, nil)
	require.NoError(t, err)

	shown, err = svc.Show(ctx, conversation.Id)
	require.NoError(t, err)
	assert.False(t, shown.IsRead, "a new user message must flip the conversation back to unread")
}

func TestFirstAgentMessageAssignsAgent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	conversation := createConversation(t, svc)

	first := uuid.New()
	second := uuid.New()

	_, err := svc.Append(ctx, conversation.Id, "hi, I can help", entity.SenderAgent, &first)
	require.NoError(t, err)
	_, err = svc.Append(ctx, conversation.Id, "still me", entity.SenderAgent, &second)
	require.NoError(t, err)

	shown, err := svc.Show(ctx, conversation.Id)
	require.NoError(t, err)
	require.NotNil(t, shown.AssignedAgentId)
	assert.Equal(t, first, *shown.AssignedAgentId, "assignment sticks to the first responding agent")
}

func TestResolveIsIdempotent(t *testing.T) {
	svc, delivery := newTestService(t)
	ctx := context.Background()
	conversation := createConversation(t, svc)

	res, err := svc.Resolve(ctx, conversation.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusResolved, res.Status)

	roomBefore, lobbyBefore := delivery.counts()

	// Second resolve reports current state and broadcasts nothing.
	res, err = svc.Resolve(ctx, conversation.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusResolved, res.Status)

	roomAfter, lobbyAfter := delivery.counts()
	assert.Equal(t, roomBefore, roomAfter)
	assert.Equal(t, lobbyBefore, lobbyAfter)
}

func TestMarkReadBroadcastsLobby(t *testing.T) {
	svc, delivery := newTestService(t)
	ctx := context.Background()
	conversation := createConversation(t, svc)

	require.NoError(t, svc.MarkRead(ctx, conversation.Id))

	_, lobby := delivery.counts()
	assert.Equal(t, 2, lobby) // conversation_created + conversation_read

	// Already-read conversations stay quiet.
	require.NoError(t, svc.MarkRead(ctx, conversation.Id))
	_, lobby = delivery.counts()
	assert.Equal(t, 2, lobby)
}

func TestConcurrentAppendsStayMonotonic(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	conversation := createConversation(t, svc)

	const writers = 50
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.Append(ctx, conversation.Id, "ping", entity.SenderUser, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	shown, err := svc.Show(ctx, conversation.Id)
	require.NoError(t, err)
	require.Len(t, shown.Messages, writers)

	for i := 1; i < len(shown.Messages); i++ {
		prev := shown.Messages[i-1].CreatedAt
		curr := shown.Messages[i].CreatedAt
		assert.True(t, curr.After(prev),
			"message %d (%v) must be strictly after message %d (%v)", i, curr, i-1, prev)
	}
}

func TestConcurrentAppendsAcrossConversations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const conversations = 8
	const writers = 10
	ids := make([]uuid.UUID, conversations)
	for i := range ids {
		ids[i] = createConversation(t, svc).Id
	}

	// Conversations sharing a lock stripe must still get per-conversation
	// monotonic stamps, and never block each other into errors.
	var wg sync.WaitGroup
	for _, id := range ids {
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				_, err := svc.Append(ctx, id, "ping", entity.SenderUser, nil)
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	for _, id := range ids {
		shown, err := svc.Show(ctx, id)
		require.NoError(t, err)
		require.Len(t, shown.Messages, writers)
		for i := 1; i < len(shown.Messages); i++ {
			assert.True(t, shown.Messages[i].CreatedAt.After(shown.Messages[i-1].CreatedAt))
		}
	}
}

func TestResolveReleasesStampTracking(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	conversation := createConversation(t, svc)

	_, err := svc.Append(ctx, conversation.Id, "hello", entity.SenderUser, nil)
	require.NoError(t, err)

	inner := svc.(*conversationService)
	inner.mu.Lock()
	_, tracked := inner.lastStamp[conversation.Id]
	inner.mu.Unlock()
	require.True(t, tracked)

	_, err = svc.Resolve(ctx, conversation.Id)
	require.NoError(t, err)

	// Resolved conversations reject appends, so keeping their stamp state
	// would only leak memory over the service's lifetime.
	inner.mu.Lock()
	_, tracked = inner.lastStamp[conversation.Id]
	inner.mu.Unlock()
	assert.False(t, tracked)
}

func TestEventLogCatchUp(t *testing.T) {
	delivery := &fakeDelivery{}
	factory := memory.NewRepositoryFactory(memory.NewStore())

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	publisher := NewPublisherService("conversation_events", pubSub)
	consumer := NewConsumerService(pubSub, "conversation_events", factory)
	require.NoError(t, consumer.Consume(context.Background()))

	svc := NewConversationService(factory, delivery, publisher, nil, noopLogger{})
	ctx := context.Background()

	conversation := createConversation(t, svc)
	_, err := svc.Append(ctx, conversation.Id, "first", entity.SenderUser, nil)
	require.NoError(t, err)
	_, err = svc.Append(ctx, conversation.Id, "second", entity.SenderUser, nil)
	require.NoError(t, err)

	// The consumer assigns sequence numbers asynchronously.
	require.Eventually(t, func() bool {
		rows, err := svc.GetEvents(ctx, conversation.Id, 0)
		return err == nil && len(rows) == 3
	}, 2*time.Second, 10*time.Millisecond)

	rows, err := svc.GetEvents(ctx, conversation.Id, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, dto.EventConversationCreated, rows[0].EventType)
	for i, row := range rows {
		assert.Equal(t, int64(i+1), row.Seq, "sequence numbers are dense and start at 1")
	}

	// Incremental catch-up skips already-seen events.
	rows, err = svc.GetEvents(ctx, conversation.Id, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].Seq)
}
