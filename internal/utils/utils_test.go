package utils

import (
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
	assert.False(t, CheckPassword("", "correct horse"))

	_, err = HashPassword(strings.Repeat("x", MinPasswordLength-1))
	assert.ErrorIs(t, err, ErrPasswordTooShort)
	assert.Contains(t, err.Error(), strconv.Itoa(MinPasswordLength))

	_, err = HashPassword(strings.Repeat("x", MinPasswordLength))
	assert.NoError(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("secret", "admin", RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestParseTokenRejects(t *testing.T) {
	valid, err := GenerateToken("secret", "admin", RoleAdmin, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken("secret", "admin", RoleAdmin, -time.Minute)
	require.NoError(t, err)
	badRole, err := GenerateToken("secret", "admin", "root", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: RoleAdmin}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{name: "wrong secret", secret: "other", token: valid},
		{name: "expired", secret: "secret", token: expired},
		{name: "unknown role", secret: "secret", token: badRole},
		{name: "unsigned", secret: "secret", token: none},
		{name: "garbage", secret: "secret", token: "not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.secret, tt.token)
			assert.Error(t, err)
		})
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query      string
		wantPage   int
		wantLimit  int
		wantOffset int
	}{
		{query: "", wantPage: 1, wantLimit: 20, wantOffset: 0},
		{query: "?page=3&limit=10", wantPage: 3, wantLimit: 10, wantOffset: 20},
		{query: "?page=-1&limit=0", wantPage: 1, wantLimit: 20, wantOffset: 0},
		{query: "?page=abc&limit=500", wantPage: 1, wantLimit: 100, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			app := fiber.New()
			var got Pagination
			app.Get("/", func(c *fiber.Ctx) error {
				got = ParsePagination(c)
				return c.SendStatus(fiber.StatusNoContent)
			})

			_, err := app.Test(httptest.NewRequest("GET", "/"+tt.query, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, got.Page)
			assert.Equal(t, tt.wantLimit, got.Limit)
			assert.Equal(t, tt.wantOffset, got.Offset)
		})
	}
}

func TestPaginationPages(t *testing.T) {
	p := Pagination{Page: 1, Limit: 10}
	assert.EqualValues(t, 0, p.Pages(0))
	assert.EqualValues(t, 1, p.Pages(10))
	assert.EqualValues(t, 2, p.Pages(11))
}
