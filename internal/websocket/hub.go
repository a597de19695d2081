package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"support-chat-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LobbyRoom is the distinguished room holding every connected admin
// channel. Events for conversations an admin has not opened are fanned out
// here so inbox lists stay current.
const LobbyRoom = "admin:lobby"

// RoomForConversation returns the room id for a conversation.
func RoomForConversation(conversationId uuid.UUID) string {
	return "conversation:" + conversationId.String()
}

// room is one broadcast group. Each room carries its own lock so that
// subscribe/broadcast on different rooms never block each other.
type room struct {
	mu      sync.RWMutex
	members map[*Client]struct{}
}

func (r *room) add(c *Client) {
	r.mu.Lock()
	r.members[c] = struct{}{}
	r.mu.Unlock()
}

func (r *room) remove(c *Client) {
	r.mu.Lock()
	delete(r.members, c)
	r.mu.Unlock()
}

func (r *room) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.members))
	for c := range r.members {
		out = append(out, c)
	}
	return out
}

// Hub is the room registry: it maps room ids to the live set of transport
// channels subscribed to them. Subscriptions do not survive a dropped
// connection; clients re-join on every reconnect.
type Hub struct {
	rooms       map[string]*room
	memberships map[*Client]map[string]struct{}
	mu          sync.RWMutex

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Redis connection for cross-instance fan-out
	rdb *redis.Client

	// instanceId tags relayed payloads so the publishing instance skips
	// its own relay messages.
	instanceId string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		rooms:       make(map[string]*room),
		memberships: make(map[*Client]map[string]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		rdb:         rdb,
		instanceId:  uuid.NewString(),
		logger:      log,
	}
}

func (h *Hub) Run() {
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.memberships[client] = make(map[string]struct{})
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"actor_id": client.Identity.ActorId})

		case client := <-h.unregister:
			h.UnsubscribeAll(client)
			h.mu.Lock()
			if _, ok := h.memberships[client]; ok {
				delete(h.memberships, client)
				client.closeSend()
			}
			h.mu.Unlock()
			h.logger.Info("Hub", "Client unregistered", map[string]interface{}{"actor_id": client.Identity.ActorId})
		}
	}
}

// Subscribe adds the client to a room. Adding an already-subscribed client
// is a no-op.
func (h *Hub) Subscribe(c *Client, roomId string) {
	h.mu.Lock()
	rm, ok := h.rooms[roomId]
	if !ok {
		rm = &room{members: make(map[*Client]struct{})}
		h.rooms[roomId] = rm
	}
	members, ok := h.memberships[c]
	if !ok {
		members = make(map[string]struct{})
		h.memberships[c] = members
	}
	members[roomId] = struct{}{}
	h.mu.Unlock()

	rm.add(c)
}

// Unsubscribe removes the client from a room; no error if it was never
// subscribed.
func (h *Hub) Unsubscribe(c *Client, roomId string) {
	h.mu.Lock()
	rm := h.rooms[roomId]
	if members, ok := h.memberships[c]; ok {
		delete(members, roomId)
	}
	h.mu.Unlock()

	if rm != nil {
		rm.remove(c)
	}
}

// UnsubscribeAll removes the client from every room it joined. Called on
// any disconnect, graceful or not.
func (h *Hub) UnsubscribeAll(c *Client) {
	h.mu.Lock()
	roomIds := make([]string, 0)
	for roomId := range h.memberships[c] {
		roomIds = append(roomIds, roomId)
	}
	rms := make([]*room, 0, len(roomIds))
	for _, roomId := range roomIds {
		if rm, ok := h.rooms[roomId]; ok {
			rms = append(rms, rm)
		}
		delete(h.memberships[c], roomId)
	}
	h.mu.Unlock()

	for _, rm := range rms {
		rm.remove(c)
	}
}

// Broadcast delivers a payload to every channel subscribed to the room.
// Delivery to a channel that is gone or backed up is dropped silently; the
// client reconciles via snapshot on its next reconnect.
func (h *Hub) Broadcast(roomId string, payload []byte) {
	h.broadcastLocal(roomId, payload)

	if h.rdb != nil {
		relay := map[string]interface{}{
			"origin":  h.instanceId,
			"room":    roomId,
			"message": json.RawMessage(payload),
		}
		jsonPayload, _ := json.Marshal(relay)
		h.rdb.Publish(context.Background(), "room_events", jsonPayload)
	}
}

func (h *Hub) broadcastLocal(roomId string, payload []byte) {
	h.mu.RLock()
	rm := h.rooms[roomId]
	h.mu.RUnlock()
	if rm == nil {
		return
	}

	for _, client := range rm.snapshot() {
		if !client.trySend(payload) {
			h.logger.Warn("Hub", "Client gone or backed up, dropping delivery", map[string]interface{}{
				"actor_id": client.Identity.ActorId,
				"room":     roomId,
			})
		}
	}
}

// RoomSize reports the current subscriber count of a room.
func (h *Hub) RoomSize(roomId string) int {
	h.mu.RLock()
	rm := h.rooms[roomId]
	h.mu.RUnlock()
	if rm == nil {
		return 0
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.members)
}

func (h *Hub) subscribeToRedis() {
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, "room_events")
	defer pubsub.Close()

	ch := pubsub.Channel()

	for msg := range ch {
		var relay struct {
			Origin  string          `json:"origin"`
			Room    string          `json:"room"`
			Message json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &relay); err != nil {
			log.Printf("Redis msg parse error: %v", err)
			continue
		}
		// Skip relays we published ourselves; local delivery already happened.
		if relay.Origin == h.instanceId {
			continue
		}
		h.broadcastLocal(relay.Room, relay.Message)
	}
}
