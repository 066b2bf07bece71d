package handlers

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/pointpay/internal/services"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind error
		want int
	}{
		{kind: services.ErrValidation, want: fiber.StatusBadRequest},
		{kind: services.ErrConflict, want: fiber.StatusConflict},
		{kind: services.ErrNotFound, want: fiber.StatusNotFound},
		{kind: services.ErrAuthenticity, want: fiber.StatusUnauthorized},
		{kind: services.ErrTransient, want: fiber.StatusInternalServerError},
		{kind: services.ErrIntegrity, want: fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(&services.Error{Kind: tt.kind, Message: "x"}))
		})
	}
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Get("/fiber", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short and stout")
	})
	app.Get("/internal", func(c *fiber.Ctx) error {
		return errors.New("pq: password authentication failed")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/fiber", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/internal", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "internal server error", body["error"])
}
