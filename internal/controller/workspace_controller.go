package controller

import (
	"errors"

	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/dto"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/pkg/serverutils"
	"github.com/DarshilChauhan1/sql-query-builder-llm/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IWorkspaceController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	List(ctx *fiber.Ctx) error
	Get(ctx *fiber.Ctx) error
	GetSchema(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	ValidateConnection(ctx *fiber.Ctx) error
	RefreshSchema(ctx *fiber.Ctx) error
}

type workspaceController struct {
	service service.IWorkspaceService
}

func NewWorkspaceController(service service.IWorkspaceService) IWorkspaceController {
	return &workspaceController{service: service}
}

func (c *workspaceController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/workspaces")
	h.Use(serverutils.JwtMiddleware)
	h.Post("/", c.Create)
	h.Get("/", c.List)
	h.Post("/validate-connection", c.ValidateConnection)
	h.Get("/:id", c.Get)
	h.Get("/:id/schema", c.GetSchema)
	h.Post("/:id/refresh-schema", c.RefreshSchema)
	h.Delete("/:id", c.Delete)
}

func (c *workspaceController) Create(ctx *fiber.Ctx) error {
	userId := mustUserId(ctx)

	var req dto.CreateWorkspaceRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
	}

	res, err := c.service.Create(ctx.Context(), userId, &req)
	if err != nil {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(serverutils.ErrorResponse(422, err.Error()))
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Workspace created successfully", res))
}

func (c *workspaceController) List(ctx *fiber.Ctx) error {
	userId := mustUserId(ctx)

	res, err := c.service.FindAll(ctx.Context(), userId)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("Workspaces", res))
}

func (c *workspaceController) Get(ctx *fiber.Ctx) error {
	userId := mustUserId(ctx)
	workspaceId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid workspace ID"))
	}

	res, err := c.service.FindOne(ctx.Context(), userId, workspaceId)
	if err != nil {
		return workspaceError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Workspace", res))
}

func (c *workspaceController) GetSchema(ctx *fiber.Ctx) error {
	userId := mustUserId(ctx)
	workspaceId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid workspace ID"))
	}

	res, err := c.service.GetSchema(ctx.Context(), userId, workspaceId)
	if err != nil {
		return workspaceError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Workspace schema", res))
}

func (c *workspaceController) Delete(ctx *fiber.Ctx) error {
	userId := mustUserId(ctx)
	workspaceId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid workspace ID"))
	}

	if err := c.service.Delete(ctx.Context(), userId, workspaceId); err != nil {
		return workspaceError(ctx, err)
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Workspace deleted", nil))
}

func (c *workspaceController) ValidateConnection(ctx *fiber.Ctx) error {
	var req dto.ValidateConnectionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
	}

	res, err := c.service.ValidateConnection(ctx.Context(), &req)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("Connection check", res))
}

func (c *workspaceController) RefreshSchema(ctx *fiber.Ctx) error {
	userId := mustUserId(ctx)
	workspaceId, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid workspace ID"))
	}

	if err := c.service.RefreshSchema(ctx.Context(), userId, workspaceId); err != nil {
		return workspaceError(ctx, err)
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse[any]("Schema refresh queued", nil))
}

func workspaceError(ctx *fiber.Ctx, err error) error {
	if errors.Is(err, service.ErrWorkspaceNotFound) {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(404, err.Error()))
	}
	return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
}

func mustUserId(ctx *fiber.Ctx) uuid.UUID {
	userIdStr, _ := ctx.Locals("user_id").(string)
	userId, _ := uuid.Parse(userIdStr)
	return userId
}
