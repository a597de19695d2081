package handler

import (
	"context"

	"support-chat-be/internal/pkg/logger"
	"support-chat-be/internal/pkg/serverutils"
	"support-chat-be/internal/service"
	internalWS "support-chat-be/internal/websocket"
	"support-chat-be/pkg/visibility"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// SyncHandler terminates the websocket surface: it authenticates the
// handshake, builds the channel identity, and routes inbound frames into
// the synchronizer.
type SyncHandler struct {
	service service.IConversationService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewSyncHandler(svc service.IConversationService, hub *internalWS.Hub, log logger.ILogger) *SyncHandler {
	return &SyncHandler{
		service: svc,
		hub:     hub,
		logger:  log,
	}
}

// ServeWs handles websocket requests from the peer.
//
// Agents authenticate with a JWT (query param 'token' or Authorization
// header). Customers carry no token; they identify by the conversation they
// opened via the 'conversation_id' query param.
func (h *SyncHandler) ServeWs(c *fiber.Ctx) error {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}

	var identity internalWS.Identity
	if tokenStr != "" {
		admin, err := serverutils.ParseAdminToken(tokenStr)
		if err != nil {
			h.logger.Warn("SyncHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		}
		identity = internalWS.Identity{
			Kind:    internalWS.KindAgent,
			ActorId: admin.AgentId,
			Role:    admin.Role,
			Team:    admin.Team,
		}
	} else {
		conversationId, err := uuid.Parse(c.Query("conversation_id"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token or conversation_id"})
		}
		identity = internalWS.Identity{
			Kind:    internalWS.KindCustomer,
			ActorId: conversationId.String(),
		}
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("SyncHandler", "Starting WebSocket session", map[string]interface{}{
				"kind":     identity.Kind,
				"actor_id": identity.ActorId,
			})
			internalWS.ServeWs(h.hub, conn, identity, h)
			h.logger.Info("SyncHandler", "WebSocket session ended", map[string]interface{}{
				"kind":     identity.Kind,
				"actor_id": identity.ActorId,
			})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

// OnJoin subscribes the channel to a conversation room. Customers may only
// join their own conversation; agents are checked against the team
// visibility predicate so a restricted admin never receives rooms outside
// its team.
func (h *SyncHandler) OnJoin(ctx context.Context, c *internalWS.Client, conversationId uuid.UUID) error {
	if c.Identity.Kind == internalWS.KindCustomer {
		if c.Identity.ActorId != conversationId.String() {
			return serverutils.NewValidationError("cannot join another participant's conversation")
		}
		h.hub.Subscribe(c, internalWS.RoomForConversation(conversationId))
		return nil
	}

	conversation, err := h.service.Show(ctx, conversationId)
	if err != nil {
		return err
	}
	viewer := visibility.Viewer{Role: c.Identity.Role, Team: c.Identity.Team}
	if !visibility.CanView(viewer, conversation.Team) {
		return serverutils.NewValidationError("conversation is outside your team")
	}

	h.hub.Subscribe(c, internalWS.RoomForConversation(conversationId))
	return nil
}

func (h *SyncHandler) OnSendMessage(ctx context.Context, c *internalWS.Client, conversationId uuid.UUID, text string) error {
	if c.Identity.Kind == internalWS.KindCustomer && c.Identity.ActorId != conversationId.String() {
		return serverutils.NewValidationError("cannot write to another participant's conversation")
	}

	var agentId *uuid.UUID
	if c.Identity.Kind == internalWS.KindAgent {
		if parsed, err := uuid.Parse(c.Identity.ActorId); err == nil {
			agentId = &parsed
		}
	}

	_, err := h.service.Append(ctx, conversationId, text, c.Identity.SenderKind(), agentId)
	return err
}

func (h *SyncHandler) OnResolve(ctx context.Context, c *internalWS.Client, conversationId uuid.UUID) error {
	if c.Identity.Kind != internalWS.KindAgent {
		return serverutils.NewValidationError("only agents can resolve conversations")
	}

	conversation, err := h.service.Show(ctx, conversationId)
	if err != nil {
		return err
	}
	viewer := visibility.Viewer{Role: c.Identity.Role, Team: c.Identity.Team}
	if !visibility.CanView(viewer, conversation.Team) {
		return serverutils.NewValidationError("conversation is outside your team")
	}

	_, err = h.service.Resolve(ctx, conversationId)
	return err
}
