package handlers

import (
	"crypto/subtle"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/pointpay/internal/config"
	"github.com/example/pointpay/internal/utils"
)

// AuthHandler issues admin dashboard tokens.
type AuthHandler struct {
	cfg *config.Config
	log *zap.Logger
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, log: log}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AdminLogin checks the configured admin credentials and returns a bearer token.
func (h *AuthHandler) AdminLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Username == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "username and password are required",
		})
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.cfg.AdminUsername)) == 1
	passOK := utils.CheckPassword(h.cfg.AdminPasswordHash, req.Password)
	if !userOK || !passOK {
		h.log.Warn("admin login failed", zap.String("username", req.Username), zap.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "invalid username or password",
		})
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, h.cfg.AdminUsername, utils.RoleAdmin, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	h.log.Info("admin logged in", zap.String("username", req.Username))
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"token":     token,
			"username":  h.cfg.AdminUsername,
			"expiresAt": time.Now().Add(h.cfg.TokenExpires).UTC().Format(time.RFC3339),
		},
	})
}
