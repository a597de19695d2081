package client

import (
	"context"
	"testing"
	"time"

	"support-chat-be/internal/dto"
	"support-chat-be/pkg/visibility"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConversation(team string) *dto.ConversationResponse {
	now := time.Now().UTC()
	return &dto.ConversationResponse{
		Id:               uuid.New(),
		ParticipantName:  "Jordan Example",
		ParticipantEmail: "jordan@example.com",
		Team:             team,
		Status:           "active",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func messageEvent(conversationId uuid.UUID, sender, text string) []byte {
	return messageEventAt(conversationId, sender, text, time.Now().UTC())
}

func messageEventAt(conversationId uuid.UUID, sender, text string, at time.Time) []byte {
	envelope := dto.EventEnvelope{
		Type:           dto.EventIncomingMessage,
		ConversationId: conversationId,
		Message: &dto.MessageResponse{
			Id:             uuid.New(),
			ConversationId: conversationId,
			Text:           text,
			Sender:         sender,
			CreatedAt:      at,
		},
	}
	return envelope.Marshal()
}

func TestSnapshotReplacesStateAndClearsStale(t *testing.T) {
	cache := NewCache(CacheOptions{LocalSender: "agent"})
	old := testConversation("Support")
	cache.ReplaceAll([]*dto.ConversationResponse{old})
	cache.MarkStale()
	require.True(t, cache.IsStale())

	fresh := testConversation("Support")
	cache.ReplaceAll([]*dto.ConversationResponse{fresh})

	assert.False(t, cache.IsStale())
	assert.Nil(t, cache.Get(old.Id), "snapshot replaces, never merges")
	assert.NotNil(t, cache.Get(fresh.Id))
}

func TestSnapshotFiltersByTeam(t *testing.T) {
	viewer := &visibility.Viewer{Role: "agent", Team: "Support"}
	cache := NewCache(CacheOptions{Viewer: viewer, LocalSender: "agent"})

	mine := testConversation("Support")
	other := testConversation("Technical")
	cache.ReplaceAll([]*dto.ConversationResponse{mine, other})

	assert.NotNil(t, cache.Get(mine.Id))
	assert.Nil(t, cache.Get(other.Id))
	assert.Len(t, cache.Active(), 1)
}

func TestDuplicateMessageIsDropped(t *testing.T) {
	cache := NewCache(CacheOptions{LocalSender: "agent"})
	conversation := testConversation("Support")
	cache.ReplaceAll([]*dto.ConversationResponse{conversation})

	raw := messageEvent(conversation.Id, "user", "hello")
	require.NoError(t, cache.ApplyEvent(context.Background(), raw))
	// Same event arrives again via the lobby subscription.
	require.NoError(t, cache.ApplyEvent(context.Background(), raw))

	assert.Len(t, cache.Get(conversation.Id).Messages, 1)
}

func TestIncomingMessageMovesConversationToFront(t *testing.T) {
	cache := NewCache(CacheOptions{LocalSender: "agent"})
	first := testConversation("Support")
	second := testConversation("Support")
	cache.ReplaceAll([]*dto.ConversationResponse{first, second})

	raw := messageEvent(second.Id, "user", "bump")
	require.NoError(t, cache.ApplyEvent(context.Background(), raw))

	active := cache.Active()
	require.Len(t, active, 2)
	assert.Equal(t, second.Id, active[0].Id)
}

func TestResolvedMovesToHistory(t *testing.T) {
	cache := NewCache(CacheOptions{LocalSender: "agent"})
	conversation := testConversation("Support")
	cache.ReplaceAll([]*dto.ConversationResponse{conversation})

	envelope := dto.EventEnvelope{Type: dto.EventResolved, ConversationId: conversation.Id}
	require.NoError(t, cache.ApplyEvent(context.Background(), envelope.Marshal()))

	assert.Len(t, cache.Active(), 0)
	require.Len(t, cache.History(), 1)
	assert.Equal(t, "resolved", cache.History()[0].Status)
}

func TestUnknownConversationIsFetched(t *testing.T) {
	fetched := testConversation("Support")
	fetchCalls := 0
	cache := NewCache(CacheOptions{
		LocalSender: "agent",
		Fetch: func(ctx context.Context, id uuid.UUID) (*dto.ConversationResponse, error) {
			fetchCalls++
			assert.Equal(t, fetched.Id, id)
			return fetched, nil
		},
	})

	raw := messageEvent(fetched.Id, "user", "first contact")
	require.NoError(t, cache.ApplyEvent(context.Background(), raw))

	assert.Equal(t, 1, fetchCalls)
	assert.NotNil(t, cache.Get(fetched.Id))
}

func TestInterleavedDeliveryStaysSorted(t *testing.T) {
	cache := NewCache(CacheOptions{LocalSender: "agent"})
	conversation := testConversation("Support")
	cache.ReplaceAll([]*dto.ConversationResponse{conversation})

	base := time.Now().UTC()
	ctx := context.Background()
	// Deliveries arrive out of timestamp order.
	require.NoError(t, cache.ApplyEvent(ctx, messageEventAt(conversation.Id, "user", "third", base.Add(3*time.Second))))
	require.NoError(t, cache.ApplyEvent(ctx, messageEventAt(conversation.Id, "agent", "first", base.Add(1*time.Second))))
	require.NoError(t, cache.ApplyEvent(ctx, messageEventAt(conversation.Id, "user", "second", base.Add(2*time.Second))))

	messages := cache.Get(conversation.Id).Messages
	require.Len(t, messages, 3)
	for i := 1; i < len(messages); i++ {
		assert.False(t, messages[i].CreatedAt.Before(messages[i-1].CreatedAt),
			"message %d (%q) before message %d (%q)", i, messages[i].Text, i-1, messages[i-1].Text)
	}
	assert.Equal(t, "first", messages[0].Text)
	assert.Equal(t, "second", messages[1].Text)
	assert.Equal(t, "third", messages[2].Text)
}

func TestEchoReconciliationKeepsOrder(t *testing.T) {
	cache := NewCache(CacheOptions{LocalSender: "agent", EchoWindow: time.Second})
	conversation := testConversation("Support")
	cache.ReplaceAll([]*dto.ConversationResponse{conversation})

	base := time.Now().UTC()
	ctx := context.Background()

	// Echo first, then a user message with an earlier server timestamp
	// than the echo's eventual confirmation.
	cache.AddLocalEcho(conversation.Id, "let me check")
	require.NoError(t, cache.ApplyEvent(ctx, messageEventAt(conversation.Id, "user", "any update?", base.Add(1*time.Second))))

	confirmed := dto.EventEnvelope{
		Type:           dto.EventIncomingMessage,
		ConversationId: conversation.Id,
		Message: &dto.MessageResponse{
			Id:             uuid.New(),
			ConversationId: conversation.Id,
			Text:           "let me check",
			Sender:         "agent",
			CreatedAt:      base.Add(2 * time.Second),
		},
	}
	require.NoError(t, cache.ApplyEvent(ctx, confirmed.Marshal()))

	messages := cache.Get(conversation.Id).Messages
	require.Len(t, messages, 2)
	assert.Equal(t, "any update?", messages[0].Text, "reconciliation must not pull the confirmation ahead of an earlier message")
	assert.Equal(t, "let me check", messages[1].Text)
	assert.True(t, messages[1].CreatedAt.After(messages[0].CreatedAt))
}

func TestHiddenConversationFetchDoesNotNotify(t *testing.T) {
	fetched := testConversation("Technical")
	var notified []*dto.MessageResponse
	cache := NewCache(CacheOptions{
		Viewer:      &visibility.Viewer{Role: "agent", Team: "Support"},
		LocalSender: "agent",
		Fetch: func(ctx context.Context, id uuid.UUID) (*dto.ConversationResponse, error) {
			return fetched, nil
		},
		Notifier: NotifierFunc(func(msg *dto.MessageResponse) {
			notified = append(notified, msg)
		}),
	})

	raw := messageEvent(fetched.Id, "user", "wrong team")
	require.NoError(t, cache.ApplyEvent(context.Background(), raw))

	assert.Nil(t, cache.Get(fetched.Id), "conversation outside the viewer's team stays out of the cache")
	assert.Empty(t, notified, "and never fires a notification")
}

func TestFetchFailureFlagsStale(t *testing.T) {
	cache := NewCache(CacheOptions{
		LocalSender: "agent",
		Fetch: func(ctx context.Context, id uuid.UUID) (*dto.ConversationResponse, error) {
			return nil, context.DeadlineExceeded
		},
	})

	raw := messageEvent(uuid.New(), "user", "unreachable")
	err := cache.ApplyEvent(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, cache.IsStale(), "cache keeps serving but admits it may be behind")
}

func TestEchoIsReplacedNotAppended(t *testing.T) {
	cache := NewCache(CacheOptions{LocalSender: "agent", EchoWindow: time.Second})
	conversation := testConversation("Support")
	cache.ReplaceAll([]*dto.ConversationResponse{conversation})

	echo := cache.AddLocalEcho(conversation.Id, "on it")
	require.Len(t, cache.Get(conversation.Id).Messages, 1)

	confirmed := dto.EventEnvelope{
		Type:           dto.EventIncomingMessage,
		ConversationId: conversation.Id,
		Message: &dto.MessageResponse{
			Id:             uuid.New(),
			ConversationId: conversation.Id,
			Text:           "on it",
			Sender:         "agent",
			CreatedAt:      time.Now().UTC(),
		},
	}
	require.NoError(t, cache.ApplyEvent(context.Background(), confirmed.Marshal()))

	messages := cache.Get(conversation.Id).Messages
	require.Len(t, messages, 1, "the confirmed copy replaces the echo in place")
	assert.Equal(t, confirmed.Message.Id, messages[0].Id)
	assert.NotEqual(t, echo.Id, messages[0].Id)
}

func TestNotifierSkipsLocalMessages(t *testing.T) {
	var notified []*dto.MessageResponse
	cache := NewCache(CacheOptions{
		LocalSender: "agent",
		Notifier: NotifierFunc(func(msg *dto.MessageResponse) {
			notified = append(notified, msg)
		}),
	})
	conversation := testConversation("Support")
	cache.ReplaceAll([]*dto.ConversationResponse{conversation})

	require.NoError(t, cache.ApplyEvent(context.Background(), messageEvent(conversation.Id, "agent", "mine")))
	require.NoError(t, cache.ApplyEvent(context.Background(), messageEvent(conversation.Id, "user", "theirs")))

	require.Len(t, notified, 1)
	assert.Equal(t, "theirs", notified[0].Text)
}

func TestReadEventClearsUnread(t *testing.T) {
	cache := NewCache(CacheOptions{LocalSender: "agent"})
	conversation := testConversation("Support")
	conversation.IsRead = false
	cache.ReplaceAll([]*dto.ConversationResponse{conversation})

	envelope := dto.EventEnvelope{Type: dto.EventConversationRead, ConversationId: conversation.Id}
	require.NoError(t, cache.ApplyEvent(context.Background(), envelope.Marshal()))

	assert.True(t, cache.Get(conversation.Id).IsRead)
}

func TestCreatedEventIsTeamFiltered(t *testing.T) {
	viewer := &visibility.Viewer{Role: "agent", Team: "Support"}
	cache := NewCache(CacheOptions{Viewer: viewer, LocalSender: "agent"})

	visible := testConversation("Support")
	hidden := testConversation("Technical")
	for _, conversation := range []*dto.ConversationResponse{visible, hidden} {
		envelope := dto.EventEnvelope{
			Type:           dto.EventConversationCreated,
			ConversationId: conversation.Id,
			Conversation:   conversation,
		}
		require.NoError(t, cache.ApplyEvent(context.Background(), envelope.Marshal()))
	}

	assert.NotNil(t, cache.Get(visible.Id))
	assert.Nil(t, cache.Get(hidden.Id))
}
