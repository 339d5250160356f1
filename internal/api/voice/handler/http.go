package voiceHandler

import (
	"time"

	voiceService "VoiceAssistant/internal/api/voice/service"
	"VoiceAssistant/internal/entity"
	"VoiceAssistant/internal/middleware"
	"VoiceAssistant/pkg/assistant"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

// AssistantFactory builds the backend client used by one user's session.
type AssistantFactory func(user entity.UserLoginData) assistant.IClient

type VoiceHandler struct {
	log          *logrus.Logger
	validator    *validator.Validate
	middleware   middleware.Middleware
	voiceService voiceService.IVoiceService
	assistants   AssistantFactory
}

func New(
	log *logrus.Logger,
	validate *validator.Validate,
	middleware middleware.Middleware,
	vs voiceService.IVoiceService,
	assistants AssistantFactory,
) *VoiceHandler {
	return &VoiceHandler{
		log:          log,
		validator:    validate,
		middleware:   middleware,
		voiceService: vs,
		assistants:   assistants,
	}
}

func (h *VoiceHandler) Start(srv fiber.Router) {
	voice := srv.Group("/voice")

	// All voice endpoints require authentication
	voice.Use(h.middleware.NewTokenMiddleware)

	// Live session over websocket
	voice.Get("/ws", h.RequireUpgrade, websocket.New(h.ServeSession, websocket.Config{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}))

	// Offline intent classification
	voice.Post("/classify", h.middleware.NewRateLimiter, h.Classify)

	// Journaled turns
	voice.Get("/history", h.GetHistory)
}
