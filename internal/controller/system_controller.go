package controller

import (
	"time"

	"legal-assistant-be/internal/metrics"
	"legal-assistant-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

type ISystemController interface {
	RegisterRoutes(r fiber.Router)
	Health(ctx *fiber.Ctx) error
}

type systemController struct {
	gatherer prometheus.Gatherer
	started  time.Time
}

func NewSystemController(gatherer prometheus.Gatherer) ISystemController {
	return &systemController{gatherer: gatherer, started: time.Now()}
}

func (c *systemController) RegisterRoutes(r fiber.Router) {
	r.Get("/health", c.Health)
	if c.gatherer != nil {
		r.Get("/metrics", metrics.Handler(c.gatherer))
	}
}

func (c *systemController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("ok", fiber.Map{
		"uptime_seconds": int(time.Since(c.started).Seconds()),
	}))
}
