package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"support-chat-be/internal/dto"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Channel connection states. A channel starts Connecting, moves to
// Connected on a successful handshake, drops to Reconnecting while it
// retries, and ends in ConnectionLost once retries are exhausted.
type Status string

const (
	StatusConnecting     Status = "connecting"
	StatusConnected      Status = "connected"
	StatusReconnecting   Status = "reconnecting"
	StatusConnectionLost Status = "connection_lost"
	StatusClosed         Status = "closed"
)

// ErrChannelClosed is returned by writes after Close.
var ErrChannelClosed = errors.New("channel closed")

// ErrConnectionLost is returned by Run once the retry ceiling is passed.
var ErrConnectionLost = errors.New("connection lost: reconnect attempts exhausted")

// SnapshotFunc pulls the viewer's full conversation list from the REST
// surface. Called after every reconnect so the cache never trusts state
// that crossed a gap in connectivity.
type SnapshotFunc func(ctx context.Context) ([]*dto.ConversationResponse, error)

type ChannelOptions struct {
	// URL is the full websocket endpoint including auth query params.
	URL string
	// MaxReconnectAttempts bounds consecutive failed retries before the
	// channel gives up and reports ConnectionLost.
	MaxReconnectAttempts int
	// BaseBackoff and MaxBackoff shape the retry schedule. Delay doubles
	// per consecutive failure, capped at MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	Cache    *Cache
	Snapshot SnapshotFunc
	// OnStatus observes state transitions. Optional.
	OnStatus func(Status)
}

type frame struct {
	Type           string    `json:"type"`
	ConversationId uuid.UUID `json:"conversation_id"`
	Text           string    `json:"text,omitempty"`
}

// Channel is a websocket connection that survives drops: it reconnects
// with capped exponential backoff, re-joins every room it had joined, and
// refreshes the cache from a snapshot so no events are silently missing.
type Channel struct {
	opts ChannelOptions

	mu     sync.Mutex
	conn   *websocket.Conn
	status Status
	rooms  map[uuid.UUID]struct{}
	closed bool

	// writeMu serializes frame writes; gorilla supports one concurrent
	// writer, and resync's join replays race application sends.
	writeMu sync.Mutex

	done chan struct{}
}

func NewChannel(opts ChannelOptions) *Channel {
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 10
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Channel{
		opts:   opts,
		status: StatusConnecting,
		rooms:  make(map[uuid.UUID]struct{}),
		done:   make(chan struct{}),
	}
}

// Run connects and processes events until Close is called, the context is
// cancelled, or reconnection gives up. It blocks; run it in a goroutine.
func (ch *Channel) Run(ctx context.Context) error {
	attempts := 0
	for {
		if ch.isClosed() {
			return ErrChannelClosed
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, ch.opts.URL, nil)
		if err != nil {
			if retryErr := ch.delayRetry(ctx, &attempts); retryErr != nil {
				return retryErr
			}
			continue
		}

		ch.mu.Lock()
		ch.conn = conn
		ch.mu.Unlock()
		ch.setStatus(StatusConnected)

		if err := ch.resync(ctx); err != nil {
			// A failed resync counts toward the retry ceiling like a
			// failed dial; otherwise a dead snapshot endpoint becomes a
			// hot redial loop.
			conn.Close()
			ch.mu.Lock()
			ch.conn = nil
			ch.mu.Unlock()
			if retryErr := ch.delayRetry(ctx, &attempts); retryErr != nil {
				return retryErr
			}
			continue
		}
		attempts = 0

		_ = ch.readLoop(ctx, conn)
		ch.mu.Lock()
		ch.conn = nil
		ch.mu.Unlock()

		if ch.isClosed() || ctx.Err() != nil {
			conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}

		// Anything read over the gap may be missing; the snapshot after
		// reconnect repairs it.
		if ch.opts.Cache != nil {
			ch.opts.Cache.MarkStale()
		}
		ch.setStatus(StatusReconnecting)
	}
}

// delayRetry counts one failed connection attempt and sleeps the backoff
// for it. Returns ErrConnectionLost once the ceiling is passed, or the
// close/cancellation error if the channel goes away while waiting.
func (ch *Channel) delayRetry(ctx context.Context, attempts *int) error {
	*attempts++
	if *attempts > ch.opts.MaxReconnectAttempts {
		ch.setStatus(StatusConnectionLost)
		return ErrConnectionLost
	}
	ch.setStatus(StatusReconnecting)
	select {
	case <-time.After(ch.backoff(*attempts)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-ch.done:
		return ErrChannelClosed
	}
}

// resync restores server state after a (re)connect: refresh the cache
// from a snapshot, then re-join every room this channel had subscribed.
func (ch *Channel) resync(ctx context.Context) error {
	if ch.opts.Snapshot != nil && ch.opts.Cache != nil {
		conversations, err := ch.opts.Snapshot(ctx)
		if err != nil {
			return err
		}
		ch.opts.Cache.ReplaceAll(conversations)
	}

	ch.mu.Lock()
	roomIds := make([]uuid.UUID, 0, len(ch.rooms))
	for id := range ch.rooms {
		roomIds = append(roomIds, id)
	}
	ch.mu.Unlock()

	for _, id := range roomIds {
		if err := ch.write(frame{Type: "join_room", ConversationId: id}); err != nil {
			return err
		}
	}
	return nil
}

func (ch *Channel) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if ch.opts.Cache != nil {
			if err := ch.opts.Cache.ApplyEvent(ctx, raw); err != nil {
				continue
			}
		}
	}
}

// Join subscribes to a conversation room. The membership is remembered
// and restored after every reconnect.
func (ch *Channel) Join(conversationId uuid.UUID) error {
	ch.mu.Lock()
	ch.rooms[conversationId] = struct{}{}
	ch.mu.Unlock()
	return ch.write(frame{Type: "join_room", ConversationId: conversationId})
}

// SendMessage echoes the message locally and ships it to the server. The
// echo is reconciled with the confirmed copy by the cache.
func (ch *Channel) SendMessage(conversationId uuid.UUID, text string) error {
	if ch.opts.Cache != nil {
		ch.opts.Cache.AddLocalEcho(conversationId, text)
	}
	return ch.write(frame{Type: "send_message", ConversationId: conversationId, Text: text})
}

// Resolve asks the server to close the conversation.
func (ch *Channel) Resolve(conversationId uuid.UUID) error {
	return ch.write(frame{Type: "resolve", ConversationId: conversationId})
}

func (ch *Channel) Status() Status {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.status
}

func (ch *Channel) Close() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	conn := ch.conn
	ch.mu.Unlock()

	close(ch.done)
	if conn != nil {
		ch.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		ch.writeMu.Unlock()
		conn.Close()
	}
	ch.setStatus(StatusClosed)
}

func (ch *Channel) write(f frame) error {
	ch.mu.Lock()
	conn := ch.conn
	closed := ch.closed
	ch.mu.Unlock()

	if closed {
		return ErrChannelClosed
	}
	if conn == nil {
		return errors.New("channel not connected")
	}

	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// backoff returns the delay before the given consecutive attempt, doubling
// from BaseBackoff and capped at MaxBackoff.
func (ch *Channel) backoff(attempt int) time.Duration {
	delay := ch.opts.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ch.opts.MaxBackoff {
			return ch.opts.MaxBackoff
		}
	}
	if delay > ch.opts.MaxBackoff {
		return ch.opts.MaxBackoff
	}
	return delay
}

func (ch *Channel) setStatus(s Status) {
	ch.mu.Lock()
	if ch.status == s {
		ch.mu.Unlock()
		return
	}
	ch.status = s
	ch.mu.Unlock()
	if ch.opts.OnStatus != nil {
		ch.opts.OnStatus(s)
	}
}

func (ch *Channel) isClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}
