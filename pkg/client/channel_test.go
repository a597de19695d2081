package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"support-chat-be/internal/dto"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsTestServer upgrades every request and hands the raw text frames it
// reads to the returned channel. Connections stay open until the server
// shuts down.
func wsTestServer(t *testing.T) (*httptest.Server, <-chan []byte) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	frames := make(chan []byte, 256)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- raw
		}
	}))
	return srv, frames
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	ch := NewChannel(ChannelOptions{
		URL:         "ws://localhost:0/api/ws",
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  time.Second,
	})

	assert.Equal(t, 100*time.Millisecond, ch.backoff(1))
	assert.Equal(t, 200*time.Millisecond, ch.backoff(2))
	assert.Equal(t, 400*time.Millisecond, ch.backoff(3))
	assert.Equal(t, 800*time.Millisecond, ch.backoff(4))
	assert.Equal(t, time.Second, ch.backoff(5))
	assert.Equal(t, time.Second, ch.backoff(20))
}

func TestResyncFailureBacksOffToConnectionLost(t *testing.T) {
	srv, _ := wsTestServer(t)
	defer srv.Close()

	var snapshotCalls atomic.Int32
	ch := NewChannel(ChannelOptions{
		URL:                  wsURL(srv),
		MaxReconnectAttempts: 2,
		BaseBackoff:          time.Millisecond,
		MaxBackoff:           2 * time.Millisecond,
		Cache:                NewCache(CacheOptions{LocalSender: "agent"}),
		Snapshot: func(ctx context.Context) ([]*dto.ConversationResponse, error) {
			snapshotCalls.Add(1)
			return nil, context.DeadlineExceeded
		},
	})

	// Dials succeed but every resync fails; the channel must give up
	// after the retry ceiling instead of redialing forever.
	err := ch.Run(context.Background())
	require.ErrorIs(t, err, ErrConnectionLost)
	assert.Equal(t, StatusConnectionLost, ch.Status())
	assert.Equal(t, int32(3), snapshotCalls.Load(), "initial attempt plus two retries")
}

func TestConcurrentSendsDoNotCorruptFrames(t *testing.T) {
	srv, frames := wsTestServer(t)
	defer srv.Close()

	ch := NewChannel(ChannelOptions{URL: wsURL(srv)})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)
	require.Eventually(t, func() bool {
		return ch.Status() == StatusConnected
	}, time.Second, 5*time.Millisecond)

	conversationId := uuid.New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 8; j++ {
				assert.NoError(t, ch.SendMessage(conversationId, "burst"))
			}
		}()
	}
	wg.Wait()

	// Every frame the server reads must still be a well-formed message;
	// interleaved writes would corrupt them.
	for i := 0; i < 64; i++ {
		select {
		case raw := <-frames:
			var f frame
			require.NoError(t, json.Unmarshal(raw, &f))
			assert.Equal(t, "send_message", f.Type)
			assert.Equal(t, conversationId, f.ConversationId)
		case <-time.After(time.Second):
			t.Fatalf("only %d of 64 frames arrived", i)
		}
	}

	ch.Close()
}

func TestWriteAfterCloseFails(t *testing.T) {
	ch := NewChannel(ChannelOptions{URL: "ws://localhost:0/api/ws"})
	ch.Close()

	err := ch.SendMessage(uuid.New(), "late")
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.Equal(t, StatusClosed, ch.Status())
}
