package controller

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/dto"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/pkg/logger"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/pkg/serverutils"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type IConversationController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	List(ctx *fiber.Ctx) error
	GetMessages(ctx *fiber.Ctx) error
	Stream(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
}

type conversationController struct {
	service service.IConversationService
	logger  logger.ILogger
}

func NewConversationController(service service.IConversationService, logger logger.ILogger) IConversationController {
	return &conversationController{service: service, logger: logger}
}

func (c *conversationController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/conversations")
	h.Use(serverutils.JwtMiddleware)
	h.Post("/", c.Create)
	h.Get("/", c.List)
	h.Post("/stream", c.Stream)
	h.Get("/:id/messages", c.GetMessages)
	h.Delete("/:id", c.Delete)
}

func (c *conversationController) Create(ctx *fiber.Ctx) error {
	userId := mustUserId(ctx)

	var req dto.CreateConversationRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
	}

	res, err := c.service.Create(ctx.Context(), userId, &req)
	if err != nil {
		return conversationError(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Conversation created", res))
}

func (c *conversationController) List(ctx *fiber.Ctx) error {
	userId := mustUserId(ctx)
	workspaceId, err := uuid.Parse(ctx.Query("workspace_id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid workspace_id"))
	}

	res, err := c.service.FindAll(ctx.Context(), userId, workspaceId)
	if err != nil {
		return conversationError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Conversations", res))
}

func (c *conversationController) GetMessages(ctx *fiber.Ctx) error {
	userId := mustUserId(ctx)
	conversationId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid conversation ID"))
	}

	res, err := c.service.GetMessages(ctx.Context(), userId, conversationId)
	if err != nil {
		return conversationError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Messages", res))
}

// Stream runs one conversational turn and pushes the pipeline events to
// the client as server-sent events. The response stays open until the
// turn completes or the client disconnects.
func (c *conversationController) Stream(ctx *fiber.Ctx) error {
	userId := mustUserId(ctx)

	var req dto.SendTurnRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
	}

	// The pipeline outlives the handler, so it must not hold the pooled
	// fasthttp request context. Canceling turnCtx when the writer exits is
	// what stops the pipeline on client disconnect.
	turnCtx, cancel := context.WithCancel(context.Background())

	events, err := c.service.StreamTurn(turnCtx, userId, &req)
	if err != nil {
		cancel()
		return conversationError(ctx, err)
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for ev := range events {
			payload, err := json.Marshal(ev)
			if err != nil {
				c.logger.Error("ConversationController", "Failed to encode stream event", map[string]interface{}{"error": err.Error()})
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				// Client went away; the deferred cancel unparks the
				// pipeline, which still persists the turn.
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}

func (c *conversationController) Delete(ctx *fiber.Ctx) error {
	userId := mustUserId(ctx)
	conversationId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid conversation ID"))
	}

	if err := c.service.Delete(ctx.Context(), userId, conversationId); err != nil {
		return conversationError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Conversation deleted", nil))
}

func conversationError(ctx *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrConversationNotFound), errors.Is(err, service.ErrWorkspaceNotFound):
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(404, err.Error()))
	case errors.Is(err, service.ErrEmptyPrompt), errors.Is(err, service.ErrSchemaUnavailable):
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(serverutils.ErrorResponse(422, err.Error()))
	default:
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
}
