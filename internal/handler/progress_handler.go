package handler

import (
	"legal-assistant-be/internal/pkg/logger"
	"legal-assistant-be/internal/pkg/serverutils"
	internalWS "legal-assistant-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// ProgressHandler upgrades websocket requests onto the hub.
type ProgressHandler struct {
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewProgressHandler(hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *ProgressHandler {
	return &ProgressHandler{hub: hub, jwtSecret: jwtSecret, logger: log}
}

func (h *ProgressHandler) RegisterRoutes(r fiber.Router) {
	// The unguessable session id is the only credential a client holds.
	r.Get("/ws/:session_id", requireUpgrade, h.ServeSession)
	r.Get("/operator/ws", serverutils.JwtMiddleware(h.jwtSecret), requireUpgrade, h.ServeOperators)
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// ServeSession streams stage progress for one session.
func (h *ProgressHandler) ServeSession(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("ProgressHandler", "progress stream opened", map[string]interface{}{"session_id": sessionID})
		internalWS.ServeWs(h.hub, conn, sessionID)
		h.logger.Info("ProgressHandler", "progress stream closed", map[string]interface{}{"session_id": sessionID})
	})(c)
}

// ServeOperators streams safety alerts across all sessions.
func (h *ProgressHandler) ServeOperators(c *fiber.Ctx) error {
	operator, _ := c.Locals("operator_id").(string)
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("ProgressHandler", "operator feed opened", map[string]interface{}{"operator_id": operator})
		internalWS.ServeWs(h.hub, conn, internalWS.OperatorKey)
	})(c)
}
