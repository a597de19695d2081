package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"support-chat-be/internal/pkg/serverutils"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Actor kinds carried by a channel's identity.
const (
	KindCustomer = "customer"
	KindAgent    = "agent"
)

// Identity describes who is behind a transport channel. Customers carry
// their conversation id; agents carry role and team for visibility checks.
type Identity struct {
	Kind    string
	ActorId string
	Role    string
	Team    string
}

// SenderKind maps the channel identity to the message sender enum.
func (i Identity) SenderKind() string {
	if i.Kind == KindAgent {
		return "agent"
	}
	return "user"
}

// Frame is the inbound client-to-server protocol message.
type Frame struct {
	Type           string    `json:"type"` // join_room | send_message | resolve
	ConversationId uuid.UUID `json:"conversation_id"`
	Text           string    `json:"text,omitempty"`
}

// EventRouter receives decoded inbound frames. Implemented by the sync
// handler so the transport stays decoupled from the synchronizer.
type EventRouter interface {
	OnJoin(ctx context.Context, c *Client, conversationId uuid.UUID) error
	OnSendMessage(ctx context.Context, c *Client, conversationId uuid.UUID, text string) error
	OnResolve(ctx context.Context, c *Client, conversationId uuid.UUID) error
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	Identity Identity

	// Buffered channel of outbound messages.
	Send chan []byte

	// sendMu serializes enqueues with the hub's close of Send; a
	// broadcast racing a disconnect must never send on a closed channel.
	sendMu     sync.Mutex
	sendClosed bool

	router EventRouter
}

// trySend enqueues without blocking. Returns false when the channel is
// already closed or its buffer is full; the caller drops the delivery.
func (c *Client) trySend(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound channel exactly once. Only the hub calls
// this, on unregister.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.Send)
}

// SendError writes an error frame to this channel only. Validation and
// closed-conversation failures never become room broadcasts.
func (c *Client) SendError(err error) {
	kind := "transport_error"
	message := err.Error()
	if appErr, ok := err.(*serverutils.AppError); ok {
		kind = appErr.Kind
		message = appErr.Message
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"type":  "error",
		"error": map[string]string{"kind": kind, "message": message},
	})
	c.trySend(payload)
}

// readPump pumps frames from the websocket connection to the router.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Client", "Unexpected close", map[string]interface{}{
					"actor_id": c.Identity.ActorId,
					"error":    err.Error(),
				})
			}
			break
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.SendError(serverutils.NewValidationError("malformed frame"))
			continue
		}

		ctx := context.Background()
		switch frame.Type {
		case "join_room":
			if err := c.router.OnJoin(ctx, c, frame.ConversationId); err != nil {
				c.SendError(err)
			}
		case "send_message":
			if err := c.router.OnSendMessage(ctx, c, frame.ConversationId, frame.Text); err != nil {
				c.SendError(err)
			}
		case "resolve":
			if err := c.router.OnResolve(ctx, c, frame.ConversationId); err != nil {
				c.SendError(err)
			}
		default:
			c.SendError(serverutils.NewValidationError("unknown frame type: " + frame.Type))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
