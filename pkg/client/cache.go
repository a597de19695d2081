// Package client implements the consumer side of the sync protocol: a
// resilient websocket channel, a local conversation cache that mirrors
// server state, and the notification trigger for inbound messages.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"support-chat-be/internal/dto"
	"support-chat-be/pkg/visibility"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// FetchConversation loads a full conversation from the server. The cache
// calls it when an event references a conversation it has never seen.
type FetchConversation func(ctx context.Context, id uuid.UUID) (*dto.ConversationResponse, error)

// Cache mirrors the server's conversation state for one client. It is not
// a source of truth: every write is driven by a server-confirmed event or
// snapshot, except local echoes, which are reconciled against their
// confirmed copies within the echo window.
type Cache struct {
	mu sync.Mutex

	// active is ordered by recency, most recently touched first.
	active  []*dto.ConversationResponse
	history []*dto.ConversationResponse
	byId    map[uuid.UUID]*dto.ConversationResponse

	// echoes maps an echo key to the locally assigned message id so the
	// confirmed copy replaces the echo instead of duplicating it.
	echoes *gocache.Cache

	// viewer, when set, drops conversations outside the viewer's team.
	viewer *visibility.Viewer

	// localSender marks messages authored on this side so they never fire
	// notifications.
	localSender string

	fetch    FetchConversation
	notifier Notifier

	stale bool
}

type CacheOptions struct {
	// Viewer filters conversations by team. Nil means no filtering
	// (customer caches hold a single conversation anyway).
	Viewer *visibility.Viewer
	// LocalSender is the sender kind this client writes as ("user"/"agent").
	LocalSender string
	// EchoWindow bounds how long a local echo waits for its confirmation.
	EchoWindow time.Duration
	Fetch      FetchConversation
	Notifier   Notifier
}

func NewCache(opts CacheOptions) *Cache {
	window := opts.EchoWindow
	if window <= 0 {
		window = 10 * time.Second
	}
	return &Cache{
		byId:        make(map[uuid.UUID]*dto.ConversationResponse),
		echoes:      gocache.New(window, window),
		viewer:      opts.Viewer,
		localSender: opts.LocalSender,
		fetch:       opts.Fetch,
		notifier:    opts.Notifier,
	}
}

// ReplaceAll installs a fresh server snapshot, discarding all cached state.
// Clears the stale flag.
func (c *Cache) ReplaceAll(conversations []*dto.ConversationResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = nil
	c.history = nil
	c.byId = make(map[uuid.UUID]*dto.ConversationResponse)

	for _, conversation := range conversations {
		if !c.viewable(conversation.Team) {
			continue
		}
		c.insertLocked(conversation)
	}
	c.stale = false
}

// MarkStale flags the cache as possibly behind the server. Set on any
// disconnect; cleared by the next snapshot.
func (c *Cache) MarkStale() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
}

func (c *Cache) IsStale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}

// AddLocalEcho appends an optimistic message so the UI shows it before the
// server confirms. Returns the provisional message. The echo is replaced
// in place when the confirmed copy arrives within the echo window.
func (c *Cache) AddLocalEcho(conversationId uuid.UUID, text string) *dto.MessageResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	echo := &dto.MessageResponse{
		Id:             uuid.New(),
		ConversationId: conversationId,
		Text:           text,
		Sender:         c.localSender,
		CreatedAt:      time.Now().UTC(),
	}

	if conversation, ok := c.byId[conversationId]; ok {
		conversation.Messages = insertMessageSorted(conversation.Messages, *echo)
		c.touchLocked(conversationId)
	}

	c.echoes.Set(echoKey(conversationId, c.localSender, text), echo.Id, gocache.DefaultExpiration)
	return echo
}

// ApplyEvent folds one server event into the cache.
func (c *Cache) ApplyEvent(ctx context.Context, raw []byte) error {
	var envelope dto.EventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return err
	}

	switch envelope.Type {
	case dto.EventIncomingMessage:
		return c.applyMessage(ctx, &envelope)
	case dto.EventConversationCreated:
		c.applyCreated(&envelope)
	case dto.EventResolved:
		c.applyResolved(envelope.ConversationId)
	case dto.EventConversationRead:
		c.applyRead(envelope.ConversationId)
	}
	return nil
}

func (c *Cache) applyMessage(ctx context.Context, envelope *dto.EventEnvelope) error {
	if envelope.Message == nil {
		return nil
	}
	msg := envelope.Message

	c.mu.Lock()
	conversation, known := c.byId[envelope.ConversationId]
	c.mu.Unlock()

	if !known {
		// A message for a conversation we have never seen: pull the full
		// conversation, which already contains this message.
		if c.fetch == nil {
			return nil
		}
		fetched, err := c.fetch(ctx, envelope.ConversationId)
		if err != nil {
			// Keep what we have and flag it; the next snapshot repairs us.
			c.MarkStale()
			return err
		}
		c.mu.Lock()
		if !c.viewable(fetched.Team) {
			// Outside the viewer's team: neither cached nor notified.
			c.mu.Unlock()
			return nil
		}
		if _, ok := c.byId[fetched.Id]; !ok {
			c.insertLocked(fetched)
		}
		c.touchLocked(fetched.Id)
		c.mu.Unlock()
		c.maybeNotify(msg)
		return nil
	}

	c.mu.Lock()
	// Echo reconciliation: the confirmed copy supplants the echo. The
	// echo is removed and the confirmation takes its sorted position, so
	// a third-party message delivered in between keeps its place.
	key := echoKey(envelope.ConversationId, msg.Sender, msg.Text)
	if echoId, ok := c.echoes.Get(key); ok {
		c.echoes.Delete(key)
		for i := range conversation.Messages {
			if conversation.Messages[i].Id == echoId.(uuid.UUID) {
				conversation.Messages = append(conversation.Messages[:i], conversation.Messages[i+1:]...)
				conversation.Messages = insertMessageSorted(conversation.Messages, *msg)
				c.touchLocked(envelope.ConversationId)
				c.mu.Unlock()
				return nil
			}
		}
	}

	// Dedup: delivery can repeat across room and lobby subscriptions.
	for i := range conversation.Messages {
		if conversation.Messages[i].Id == msg.Id {
			c.mu.Unlock()
			return nil
		}
	}

	conversation.Messages = insertMessageSorted(conversation.Messages, *msg)
	if msg.CreatedAt.After(conversation.UpdatedAt) {
		conversation.UpdatedAt = msg.CreatedAt
	}
	if msg.Sender == "user" {
		conversation.IsRead = false
	}
	c.touchLocked(envelope.ConversationId)
	c.mu.Unlock()

	c.maybeNotify(msg)
	return nil
}

// insertMessageSorted keeps the slice ordered by created_at ascending.
// Equal timestamps keep arrival order, so delivery interleaving never
// reorders what the server already ordered.
func insertMessageSorted(messages []dto.MessageResponse, msg dto.MessageResponse) []dto.MessageResponse {
	i := len(messages)
	for i > 0 && messages[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}
	messages = append(messages, dto.MessageResponse{})
	copy(messages[i+1:], messages[i:])
	messages[i] = msg
	return messages
}

func (c *Cache) applyCreated(envelope *dto.EventEnvelope) {
	if envelope.Conversation == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.viewable(envelope.Conversation.Team) {
		return
	}
	if _, ok := c.byId[envelope.Conversation.Id]; ok {
		return
	}
	c.insertLocked(envelope.Conversation)
	c.touchLocked(envelope.Conversation.Id)
}

func (c *Cache) applyResolved(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conversation, ok := c.byId[id]
	if !ok {
		return
	}
	conversation.Status = "resolved"

	for i, active := range c.active {
		if active.Id == id {
			c.active = append(c.active[:i], c.active[i+1:]...)
			break
		}
	}
	c.history = append([]*dto.ConversationResponse{conversation}, c.history...)
}

func (c *Cache) applyRead(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conversation, ok := c.byId[id]; ok {
		conversation.IsRead = true
	}
}

// Active returns the active conversations, most recently touched first.
func (c *Cache) Active() []*dto.ConversationResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*dto.ConversationResponse(nil), c.active...)
}

// History returns resolved conversations.
func (c *Cache) History() []*dto.ConversationResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*dto.ConversationResponse(nil), c.history...)
}

// Get returns the cached conversation, or nil.
func (c *Cache) Get(id uuid.UUID) *dto.ConversationResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byId[id]
}

func (c *Cache) viewable(team string) bool {
	if c.viewer == nil {
		return true
	}
	return visibility.CanView(*c.viewer, team)
}

// insertLocked registers the conversation in the right list. Caller holds mu.
func (c *Cache) insertLocked(conversation *dto.ConversationResponse) {
	c.byId[conversation.Id] = conversation
	if conversation.Status == "resolved" {
		c.history = append(c.history, conversation)
		return
	}
	c.active = append(c.active, conversation)
}

// touchLocked moves an active conversation to the front. Caller holds mu.
func (c *Cache) touchLocked(id uuid.UUID) {
	for i, conversation := range c.active {
		if conversation.Id == id {
			if i > 0 {
				c.active = append(c.active[:i], c.active[i+1:]...)
				c.active = append([]*dto.ConversationResponse{conversation}, c.active...)
			}
			return
		}
	}
}

func (c *Cache) maybeNotify(msg *dto.MessageResponse) {
	if c.notifier == nil {
		return
	}
	// Locally authored messages never notify; the author is looking at them.
	if msg.Sender == c.localSender {
		return
	}
	c.notifier.Notify(msg)
}

func echoKey(conversationId uuid.UUID, sender, text string) string {
	return conversationId.String() + "|" + sender + "|" + text
}
