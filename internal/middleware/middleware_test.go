package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	jwtPkg "VoiceAssistant/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp(t *testing.T) *fiber.App {
	t.Helper()
	t.Setenv(AccessTokenSecret, "test-secret")

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := New(logger)

	app := fiber.New()
	app.Use(m.NewRequestIDMiddleware())
	app.Get("/me", m.NewTokenMiddleware, func(c *fiber.Ctx) error {
		user, err := jwtPkg.GetUserLoginData(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"id": user.ID, "username": user.Username, "hasToken": user.Token != ""})
	})
	return app
}

func signed(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	token, _, err := jwtPkg.Sign(claims, time.Hour)
	require.NoError(t, err)
	return token
}

func TestTokenMiddleware(t *testing.T) {
	app := testApp(t)
	valid := signed(t, map[string]interface{}{"id": "42", "username": "alice", "email": "a@example.com"})
	numeric := signed(t, map[string]interface{}{"id": 42, "username": "alice"})
	missing := signed(t, map[string]interface{}{"email": "a@example.com"})

	tests := []struct {
		name   string
		target string
		header string
		status int
	}{
		{name: "bearer header", target: "/me", header: "Bearer " + valid, status: fiber.StatusOK},
		{name: "query token", target: "/me?token=" + valid, status: fiber.StatusOK},
		{name: "numeric id claim", target: "/me", header: "Bearer " + numeric, status: fiber.StatusOK},
		{name: "no token", target: "/me", status: fiber.StatusUnauthorized},
		{name: "malformed header", target: "/me", header: "Token " + valid, status: fiber.StatusUnauthorized},
		{name: "missing claims", target: "/me", header: "Bearer " + missing, status: fiber.StatusUnauthorized},
		{name: "garbage", target: "/me", header: "Bearer abc", status: fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get(RequestIDKey))

			if tt.status == fiber.StatusOK {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.JSONEq(t, `{"id":"42","username":"alice","hasToken":true}`, string(body))
			}
		})
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	app := testApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(RequestIDKey, "req-123")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "req-123", resp.Header.Get(RequestIDKey))
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := &middleware{rateLimitter: newRateLimiter(0, 2), log: logger}

	app := fiber.New()
	app.Get("/", m.NewRateLimiter, func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
		require.NoError(t, err)
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, []int{fiber.StatusNoContent, fiber.StatusNoContent, fiber.StatusTooManyRequests}, statuses)
}

func TestSanitizeRequestBody(t *testing.T) {
	assert.JSONEq(t, `{"text":"查看余额","token":"[SECRET]"}`, sanitizeRequestBody(`{"text":"查看余额","token":"abc"}`))
	assert.Equal(t, "[non-JSON body]", sanitizeRequestBody("plain"))
}
