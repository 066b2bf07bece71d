package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/pointpay/internal/services"
	"github.com/example/pointpay/internal/utils"
)

const adminContextKey = "currentAdmin"

// AdminAuth requires a bearer token issued by the admin login.
func AdminAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := bearerClaims(c, secret)
		if err != nil {
			return err
		}
		if claims.Role != utils.RoleAdmin {
			return fiber.NewError(fiber.StatusForbidden, "admin access required")
		}

		c.Locals(adminContextKey, claims.Subject)
		return c.Next()
	}
}

// UserAuth requires a user bearer token and attaches the user ID to the
// request context for principal resolution.
func UserAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := bearerClaims(c, secret)
		if err != nil {
			return err
		}
		if claims.Role != utils.RoleUser {
			return fiber.NewError(fiber.StatusForbidden, "user token required")
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.SetUserContext(services.WithPrincipal(c.UserContext(), userID))
		return c.Next()
	}
}

// GetCurrentAdmin returns the admin username set by AdminAuth.
func GetCurrentAdmin(c *fiber.Ctx) (string, bool) {
	name, ok := c.Locals(adminContextKey).(string)
	return name, ok && name != ""
}

func bearerClaims(c *fiber.Ctx, secret string) (*utils.Claims, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
	}

	claims, err := utils.ParseToken(secret, strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}
	return claims, nil
}
