package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"support-chat-be/internal/dto"
	"support-chat-be/pkg/client"
	"support-chat-be/pkg/visibility"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	baseURL = "http://localhost:3000/api/conversations/v1"
	wsURL   = "ws://localhost:3000/api/ws"
)

func main() {
	fmt.Println("=== Support Chat Simulation Client ===")

	agentToken, err := mintAgentToken()
	if err != nil {
		log.Fatalf("Failed to mint agent token: %v", err)
	}

	// 1. Customer opens a conversation over REST.
	conversation, err := createConversation("Jordan Example", "jordan@example.com", "Support")
	if err != nil {
		log.Fatalf("Failed to create conversation: %v", err)
	}
	color.Green("Conversation created: %s (team %s)", conversation.Id, conversation.Team)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Customer channel: single conversation, no team filter.
	customerCache := client.NewCache(client.CacheOptions{
		LocalSender: "user",
		Notifier: client.NotifierFunc(func(msg *dto.MessageResponse) {
			color.Cyan("[customer notification] %s: %s", msg.Sender, msg.Text)
		}),
	})
	customerCh := client.NewChannel(client.ChannelOptions{
		URL:   wsURL + "?conversation_id=" + conversation.Id.String(),
		Cache: customerCache,
		OnStatus: func(s client.Status) {
			color.Yellow("[customer channel] %s", s)
		},
	})
	go customerCh.Run(ctx)
	defer customerCh.Close()

	// 3. Agent channel: lobby plus explicit room joins, team filtered.
	viewer := &visibility.Viewer{Role: "super", Team: "Support"}
	agentCache := client.NewCache(client.CacheOptions{
		Viewer:      viewer,
		LocalSender: "agent",
		Fetch:       fetchConversation,
		Notifier: client.NotifierFunc(func(msg *dto.MessageResponse) {
			color.Magenta("[agent notification] %s: %s", msg.Sender, msg.Text)
		}),
	})
	agentCh := client.NewChannel(client.ChannelOptions{
		URL:      wsURL + "?token=" + agentToken,
		Cache:    agentCache,
		Snapshot: fetchActive(agentToken),
		OnStatus: func(s client.Status) {
			color.Yellow("[agent channel] %s", s)
		},
	})
	go agentCh.Run(ctx)
	defer agentCh.Close()

	time.Sleep(500 * time.Millisecond)

	// 4. Both sides join the conversation room and exchange messages.
	if err := customerCh.Join(conversation.Id); err != nil {
		log.Fatalf("Customer join failed: %v", err)
	}
	if err := agentCh.Join(conversation.Id); err != nil {
		log.Fatalf("Agent join failed: %v", err)
	}

	script := []struct {
		channel *client.Channel
		label   string
		text    string
	}{
		{customerCh, "CUSTOMER", "Hi, my invoice looks wrong this month."},
		{agentCh, "AGENT", "Hello Jordan, let me pull that up for you."},
		{customerCh, "CUSTOMER", "Thanks, it shows a double charge."},
		{agentCh, "AGENT", "Confirmed, refund issued. Anything else?"},
		{customerCh, "CUSTOMER", "No, that's all. Thank you!"},
	}
	for _, step := range script {
		fmt.Printf("\n%s: %s\n", step.label, step.text)
		if err := step.channel.SendMessage(conversation.Id, step.text); err != nil {
			log.Printf("Send failed: %v", err)
		}
		time.Sleep(300 * time.Millisecond)
	}

	// 5. Agent resolves; the room is told and the conversation archives.
	if err := agentCh.Resolve(conversation.Id); err != nil {
		log.Printf("Resolve failed: %v", err)
	}
	time.Sleep(500 * time.Millisecond)

	color.Green("\nAgent cache: %d active, %d resolved",
		len(agentCache.Active()), len(agentCache.History()))
	if cached := customerCache.Get(conversation.Id); cached != nil {
		color.Green("Customer cache holds %d messages, status %s",
			len(cached.Messages), cached.Status)
	}
}

// mintAgentToken signs a short-lived super-admin token with the server's
// shared secret. Simulation only; real tokens come from the auth system.
func mintAgentToken() (string, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return "", fmt.Errorf("JWT_SECRET is not set")
	}
	claims := jwt.MapClaims{
		"agent_id": uuid.NewString(),
		"role":     "super",
		"team":     "Support",
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

type apiEnvelope[T any] struct {
	Data T `json:"data"`
}

func createConversation(name, email, team string) (*dto.ConversationResponse, error) {
	payload, _ := json.Marshal(dto.CreateConversationRequest{
		ParticipantName:  name,
		ParticipantEmail: email,
		Team:             team,
	})

	resp, err := http.Post(baseURL, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API Error %d: %s", resp.StatusCode, string(body))
	}

	var res apiEnvelope[*dto.ConversationResponse]
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

func fetchConversation(ctx context.Context, id uuid.UUID) (*dto.ConversationResponse, error) {
	req, _ := http.NewRequestWithContext(ctx, "GET", baseURL+"/"+id.String(), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API Error %d: %s", resp.StatusCode, string(body))
	}

	var res apiEnvelope[*dto.ConversationResponse]
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

func fetchActive(token string) client.SnapshotFunc {
	return func(ctx context.Context) ([]*dto.ConversationResponse, error) {
		req, _ := http.NewRequestWithContext(ctx, "GET", baseURL+"/active", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != 200 {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("API Error %d: %s", resp.StatusCode, string(body))
		}

		var res apiEnvelope[[]*dto.ConversationResponse]
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return nil, err
		}
		return res.Data, nil
	}
}
