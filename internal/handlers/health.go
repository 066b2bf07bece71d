package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger reports whether the ledger database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness plus ledger and gateway readiness.
type HealthHandler struct {
	db           Pinger
	gatewayReady bool
}

func NewHealthHandler(db Pinger, gatewayReady bool) *HealthHandler {
	return &HealthHandler{db: db, gatewayReady: gatewayReady}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	database := "connected"
	if err := h.db.Ping(ctx); err != nil {
		database = "disconnected"
	}
	gateway := "ready"
	if !h.gatewayReady {
		gateway = "not_configured"
	}

	return c.JSON(fiber.Map{
		"ok":        true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  database,
		"alipay":    gateway,
	})
}
