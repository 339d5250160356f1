package middleware

import (
	"fmt"

	"VoiceAssistant/internal/entity"
	jwtPkg "VoiceAssistant/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	AccessTokenSecret = jwtPkg.SecretEnvKey
)

type tokenMiddleware struct {
}

func newTokenMiddleware() *tokenMiddleware {
	return &tokenMiddleware{}
}

func unauthorized(ctx *fiber.Ctx) error {
	return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Unauthorized, access token invalid or expired",
	})
}

// claimString accepts string claims and the numeric ids some issuers emit.
func claimString(claims jwt.MapClaims, key string) (string, bool) {
	switch v := claims[key].(type) {
	case string:
		return v, v != ""
	case float64:
		return fmt.Sprintf("%.0f", v), true
	default:
		return "", false
	}
}

func (m *middleware) NewTokenMiddleware(ctx *fiber.Ctx) error {
	m.log.WithFields(logrus.Fields{
		"path":      ctx.Path(),
		"method":    ctx.Method(),
		"client_ip": ctx.IP(),
	}).Debug("Incoming request")

	accessToken, err := jwtPkg.BearerToken(ctx)
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("Authorization header check")
		return unauthorized(ctx)
	}

	userToken, err := jwtPkg.VerifyTokenHeader(ctx, AccessTokenSecret)
	if err != nil {
		m.log.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("Token verification failed")
		return unauthorized(ctx)
	}

	claims, ok := userToken.Claims.(jwt.MapClaims)
	if !ok {
		m.log.WithFields(logrus.Fields{
			"error": "Invalid token claims",
		}).Warn("Token claims check")
		return unauthorized(ctx)
	}

	id, okID := claimString(claims, "id")
	username, okUsername := claimString(claims, "username")
	email, _ := claimString(claims, "email")
	if !okID || !okUsername {
		m.log.WithFields(logrus.Fields{
			"error": "Token claims are missing required fields",
		}).Warn("Token claims check")
		return unauthorized(ctx)
	}

	user := entity.UserLoginData{
		ID:       id,
		Email:    email,
		Username: username,
		Token:    accessToken,
	}
	ctx.Locals("user", user)

	m.log.WithField("user_id", id).Debug("Authentication successful")
	return ctx.Next()
}
