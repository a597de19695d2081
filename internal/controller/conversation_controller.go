package controller

import (
	"support-chat-be/internal/dto"
	"support-chat-be/internal/pkg/serverutils"
	"support-chat-be/internal/service"
	"support-chat-be/pkg/visibility"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IConversationController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	GetActive(ctx *fiber.Ctx) error
	GetResolved(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	AppendMessage(ctx *fiber.Ctx) error
	Resolve(ctx *fiber.Ctx) error
	MarkRead(ctx *fiber.Ctx) error
	GetEvents(ctx *fiber.Ctx) error
}

type conversationController struct {
	conversationService service.IConversationService
}

func NewConversationController(conversationService service.IConversationService) IConversationController {
	return &conversationController{
		conversationService: conversationService,
	}
}

func (c *conversationController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/conversations/v1")

	// Admin list routes first so ":id" does not shadow them.
	h.Get("active", serverutils.JwtMiddleware, c.GetActive)
	h.Get("resolved", serverutils.JwtMiddleware, c.GetResolved)

	// Customer surface: possession of the conversation id is the capability.
	h.Post("", c.Create)
	h.Get(":id", c.Show)
	h.Post(":id/messages", c.AppendMessage)
	h.Get(":id/events", c.GetEvents)

	// Admin mutations.
	h.Post(":id/resolve", serverutils.JwtMiddleware, c.Resolve)
	h.Post(":id/read", serverutils.JwtMiddleware, c.MarkRead)
}

func (c *conversationController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateConversationRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	err := serverutils.ValidateRequest(req)
	if err != nil {
		return err
	}

	res, err := c.conversationService.Create(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success create conversation", res))
}

func (c *conversationController) GetActive(ctx *fiber.Ctx) error {
	res, err := c.conversationService.GetActive(ctx.Context())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list active conversations", filterByViewer(ctx, res)))
}

func (c *conversationController) GetResolved(ctx *fiber.Ctx) error {
	res, err := c.conversationService.GetResolved(ctx.Context())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list resolved conversations", filterByViewer(ctx, res)))
}

func (c *conversationController) Show(ctx *fiber.Ctx) error {
	idParam := ctx.Params("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		return serverutils.NewValidationError("invalid conversation id")
	}

	res, err := c.conversationService.Show(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show conversation", res))
}

func (c *conversationController) AppendMessage(ctx *fiber.Ctx) error {
	idParam := ctx.Params("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		return serverutils.NewValidationError("invalid conversation id")
	}

	var req dto.AppendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	// Agent sends over REST carry their identity from the token when present.
	var agentId *uuid.UUID
	if agentIdStr, ok := ctx.Locals("agent_id").(string); ok {
		if parsed, parseErr := uuid.Parse(agentIdStr); parseErr == nil {
			agentId = &parsed
		}
	}

	res, err := c.conversationService.Append(ctx.Context(), id, req.Text, req.Sender, agentId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success append message", res))
}

func (c *conversationController) Resolve(ctx *fiber.Ctx) error {
	idParam := ctx.Params("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		return serverutils.NewValidationError("invalid conversation id")
	}

	res, err := c.conversationService.Resolve(ctx.Context(), id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success resolve conversation", res))
}

func (c *conversationController) MarkRead(ctx *fiber.Ctx) error {
	idParam := ctx.Params("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		return serverutils.NewValidationError("invalid conversation id")
	}

	if err := c.conversationService.MarkRead(ctx.Context(), id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success mark conversation read", nil))
}

func (c *conversationController) GetEvents(ctx *fiber.Ctx) error {
	idParam := ctx.Params("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		return serverutils.NewValidationError("invalid conversation id")
	}

	afterSeq := int64(ctx.QueryInt("after_seq", 0))

	res, err := c.conversationService.GetEvents(ctx.Context(), id, afterSeq)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list conversation events", res))
}

// filterByViewer drops conversations outside the admin's team. Super admins
// see everything.
func filterByViewer(ctx *fiber.Ctx, conversations []*dto.ConversationResponse) []*dto.ConversationResponse {
	role, _ := ctx.Locals("agent_role").(string)
	team, _ := ctx.Locals("agent_team").(string)
	viewer := visibility.Viewer{Role: role, Team: team}

	result := make([]*dto.ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		if visibility.CanView(viewer, conversation.Team) {
			result = append(result, conversation)
		}
	}
	return result
}
