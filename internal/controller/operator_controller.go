package controller

import (
	"legal-assistant-be/internal/dto"
	"legal-assistant-be/internal/pkg/serverutils"
	"legal-assistant-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IOperatorController interface {
	RegisterRoutes(r fiber.Router)
	ShowSession(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	GetLogs(ctx *fiber.Ctx) error
}

type operatorController struct {
	service   service.IOperatorService
	jwtSecret string
}

func NewOperatorController(service service.IOperatorService, jwtSecret string) IOperatorController {
	return &operatorController{service: service, jwtSecret: jwtSecret}
}

func (c *operatorController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/operator")
	h.Use(serverutils.JwtMiddleware(c.jwtSecret))
	h.Get("/sessions/:id", c.ShowSession)
	h.Delete("/sessions/:id", c.DeleteSession)
	h.Get("/logs", c.GetLogs)
}

func (c *operatorController) ShowSession(ctx *fiber.Ctx) error {
	res, err := c.service.GetSession(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get session", res))
}

func (c *operatorController) DeleteSession(ctx *fiber.Ctx) error {
	if err := c.service.DeleteSession(ctx.UserContext(), ctx.Params("id")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Session deleted", nil))
}

func (c *operatorController) GetLogs(ctx *fiber.Ctx) error {
	var q dto.LogQuery
	if err := ctx.QueryParser(&q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed query")
	}
	if err := serverutils.Validate(&q); err != nil {
		return err
	}

	res, err := c.service.GetLogs(ctx.UserContext(), q)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get logs", res))
}
