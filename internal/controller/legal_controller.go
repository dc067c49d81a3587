package controller

import (
	"legal-assistant-be/internal/dto"
	"legal-assistant-be/internal/pkg/serverutils"
	"legal-assistant-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ILegalController interface {
	RegisterRoutes(r fiber.Router)
	ChatTurn(ctx *fiber.Ctx) error
	Analyze(ctx *fiber.Ctx) error
}

type legalController struct {
	service service.ILegalService
}

func NewLegalController(service service.ILegalService) ILegalController {
	return &legalController{service: service}
}

func (c *legalController) RegisterRoutes(r fiber.Router) {
	r.Post("/chat/turn", c.ChatTurn)
	r.Post("/analysis", c.Analyze)
}

func (c *legalController) ChatTurn(ctx *fiber.Ctx) error {
	var req dto.ChatTurnRequest
	if err := serverutils.ParseAndValidate(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.ChatTurn(ctx.UserContext(), req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Turn completed", res))
}

func (c *legalController) Analyze(ctx *fiber.Ctx) error {
	var req dto.AnalysisRequest
	if err := serverutils.ParseAndValidate(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.Analyze(ctx.UserContext(), req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Analysis completed", res))
}
