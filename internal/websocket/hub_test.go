package websocket

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type testLogger struct{}

func (testLogger) Debug(string, string, map[string]interface{}) {}
func (testLogger) Info(string, string, map[string]interface{})  {}
func (testLogger) Warn(string, string, map[string]interface{})  {}
func (testLogger) Error(string, string, map[string]interface{}) {}
func (testLogger) Sync() error                                  { return nil }

func newTestClient() *Client {
	return &Client{
		Identity: Identity{Kind: KindAgent, ActorId: uuid.NewString()},
		Send:     make(chan []byte, 8),
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(nil, testLogger{})
	client := newTestClient()
	roomId := RoomForConversation(uuid.New())

	hub.Subscribe(client, roomId)
	hub.Subscribe(client, roomId)

	assert.Equal(t, 1, hub.RoomSize(roomId))

	hub.Broadcast(roomId, []byte("once"))
	assert.Len(t, client.Send, 1, "double subscription must not double deliveries")
}

func TestBroadcastIsScopedToRoom(t *testing.T) {
	hub := NewHub(nil, testLogger{})
	inRoom := newTestClient()
	outOfRoom := newTestClient()

	roomA := RoomForConversation(uuid.New())
	roomB := RoomForConversation(uuid.New())
	hub.Subscribe(inRoom, roomA)
	hub.Subscribe(outOfRoom, roomB)

	hub.Broadcast(roomA, []byte("hello"))

	assert.Len(t, inRoom.Send, 1)
	assert.Len(t, outOfRoom.Send, 0)
}

func TestBroadcastToEmptyRoom(t *testing.T) {
	hub := NewHub(nil, testLogger{})

	// No subscribers, no panic, nothing delivered.
	hub.Broadcast(RoomForConversation(uuid.New()), []byte("void"))
	assert.Equal(t, 0, hub.RoomSize("conversation:none"))
}

func TestUnsubscribeRemovesOnlyThatRoom(t *testing.T) {
	hub := NewHub(nil, testLogger{})
	client := newTestClient()

	roomA := RoomForConversation(uuid.New())
	hub.Subscribe(client, roomA)
	hub.Subscribe(client, LobbyRoom)

	hub.Unsubscribe(client, roomA)

	assert.Equal(t, 0, hub.RoomSize(roomA))
	assert.Equal(t, 1, hub.RoomSize(LobbyRoom))
}

func TestUnsubscribeAll(t *testing.T) {
	hub := NewHub(nil, testLogger{})
	client := newTestClient()

	roomA := RoomForConversation(uuid.New())
	roomB := RoomForConversation(uuid.New())
	hub.Subscribe(client, roomA)
	hub.Subscribe(client, roomB)
	hub.Subscribe(client, LobbyRoom)

	hub.UnsubscribeAll(client)

	assert.Equal(t, 0, hub.RoomSize(roomA))
	assert.Equal(t, 0, hub.RoomSize(roomB))
	assert.Equal(t, 0, hub.RoomSize(LobbyRoom))
}

func TestBroadcastSurvivesDisconnectChurn(t *testing.T) {
	hub := NewHub(nil, testLogger{})
	go hub.Run()

	roomId := RoomForConversation(uuid.New())
	done := make(chan struct{})
	var wg sync.WaitGroup

	// Broadcasters hammer the room while clients connect and drop; a
	// disconnect mid-broadcast must drop the delivery, never panic.
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					hub.Broadcast(roomId, []byte("tick"))
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		client := newTestClient()
		hub.register <- client
		hub.Subscribe(client, roomId)
		hub.unregister <- client
	}

	close(done)
	wg.Wait()
}

func TestFullBufferDropsDelivery(t *testing.T) {
	hub := NewHub(nil, testLogger{})
	client := &Client{
		Identity: Identity{Kind: KindAgent, ActorId: uuid.NewString()},
		Send:     make(chan []byte, 1),
	}
	roomId := RoomForConversation(uuid.New())
	hub.Subscribe(client, roomId)

	hub.Broadcast(roomId, []byte("fits"))
	hub.Broadcast(roomId, []byte("dropped"))

	// The second delivery is dropped, not blocked on.
	assert.Len(t, client.Send, 1)
	assert.Equal(t, []byte("fits"), <-client.Send)
}
