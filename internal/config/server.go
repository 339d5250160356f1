package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"VoiceAssistant/database/postgres"
	voiceHandler "VoiceAssistant/internal/api/voice/handler"
	voiceRepository "VoiceAssistant/internal/api/voice/repository"
	voiceService "VoiceAssistant/internal/api/voice/service"
	"VoiceAssistant/internal/entity"
	"VoiceAssistant/internal/middleware"
	"VoiceAssistant/pkg/assistant"
	"VoiceAssistant/pkg/nlp"
	"VoiceAssistant/pkg/redis"
	"VoiceAssistant/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

type ServerOption func(*Server) error

type Server struct {
	engine      *fiber.App
	db          *sqlx.DB
	log         *logrus.Logger
	middleware  middleware.Middleware
	validator   *validator.Validate
	utils       utils.IUtils
	handlers    []handler
	redisServer redis.IRedis
	voiceConfig *VoiceConfig
	httpClient  *http.Client
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.validator == nil {
		server.validator = NewValidator()
	}
	if server.utils == nil {
		server.utils = utils.New()
	}
	if server.middleware == nil {
		server.middleware = middleware.New(server.log)
	}
	if server.voiceConfig == nil {
		cfg, err := LoadVoiceConfig(server.validator)
		if err != nil {
			return nil, err
		}
		server.voiceConfig = &cfg
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

// WithDatabase enables the interaction journal. Without it history is
// kept only in the session snapshot.
func WithDatabase() ServerOption {
	return func(s *Server) error {
		db, err := postgres.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database: %v", err)
			}
			return fmt.Errorf("failed to create database connection: %w", err)
		}
		s.db = db
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func WithVoiceConfig(cfg VoiceConfig) ServerOption {
	return func(s *Server) error {
		s.voiceConfig = &cfg
		return nil
	}
}

// WithHTTPClient sets the client shared by every assistant connection.
func WithHTTPClient(hc *http.Client) ServerOption {
	return func(s *Server) error {
		s.httpClient = hc
		return nil
	}
}

func (s *Server) RegisterHandler() {
	cfg := *s.voiceConfig

	// Voice Domain
	classifier := nlp.NewClassifier(cfg.Categories...)

	var journal voiceService.Journal
	if s.db != nil {
		journal = voiceRepository.NewJournal(voiceRepository.New(s.db, s.log))
	}

	var snapshots voiceService.SnapshotStore
	if s.redisServer != nil {
		snapshots = voiceRepository.NewSnapshotStore(s.redisServer, cfg.SnapshotTTL, s.log)
	}

	voiceServices := voiceService.NewVoiceService(s.log, classifier, snapshots, journal, s.utils, cfg.Session)
	voiceHandlers := voiceHandler.New(s.log, s.validator, s.middleware, voiceServices, s.assistantFactory(cfg))

	s.setupHealthCheck()
	s.handlers = append(s.handlers, voiceHandlers)
}

func (s *Server) assistantFactory(cfg VoiceConfig) voiceHandler.AssistantFactory {
	tracer := otel.Tracer("VoiceAssistant/pkg/assistant")
	hc := s.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.AssistantTimeout}
	}

	return func(user entity.UserLoginData) assistant.IClient {
		opts := []assistant.Option{
			assistant.WithHTTPClient(hc),
			assistant.WithTimeout(cfg.AssistantTimeout),
			assistant.WithValidator(s.validator),
			assistant.WithTracer(tracer),
			assistant.WithLogger(s.log),
		}
		if user.Token != "" {
			opts = append(opts, assistant.WithTokenSource(assistant.BearerToken(user.Token)))
		}
		return assistant.New(cfg.AssistantURL, opts...)
	}
}

func (s *Server) mount() {
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())
	router := s.engine.Group("/api/v1")

	for _, h := range s.handlers {
		h.Start(router)
	}
}

func (s *Server) Run() error {
	s.mount()

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "3000"
	}

	if err := s.engine.Listen(fmt.Sprintf(":%s", port)); err != nil {
		return err
	}

	return nil
}

// Shutdown stops accepting connections and releases the stores.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if err := s.engine.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("fiber: %w", err))
	}
	if s.redisServer != nil {
		if err := s.redisServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message": "Server is Healthy!",
			"time":    time.Now().Format(time.RFC3339),
		})
	})
}
