package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"VoiceAssistant/internal/api/voice"
	"VoiceAssistant/internal/config"
	"VoiceAssistant/pkg/log"
	"VoiceAssistant/pkg/nlp"
	"VoiceAssistant/pkg/redis"

	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "voice-assistant",
		Short:         "Voice assistant session gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(envFile); err != nil {
				log.Warn(log.Fields{"file": envFile}, "No env file loaded, using process environment")
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "path to the env file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "classify <text>",
		Short: "Run the local intent classifier and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return classify(cmd.OutOrStdout(), strings.Join(args, " "))
		},
	})

	return root
}

func serve(ctx context.Context) error {
	logger := log.NewLogger()

	fiberApp := config.NewFiber(logger)
	validator := config.NewValidator()

	voiceConfig, err := config.LoadVoiceConfig(validator)
	if err != nil {
		return err
	}

	options := []config.ServerOption{
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithValidator(validator),
		config.WithVoiceConfig(voiceConfig),
		config.WithMiddleware(),
		config.WithUtils(),
	}
	if os.Getenv("DB_HOST") != "" {
		options = append(options, config.WithDatabase())
	}
	if os.Getenv("REDIS_ADDRESS") != "" {
		options = append(options, config.WithRedisServer(redis.New()))
	}

	server, err := config.NewServer(options...)
	if err != nil {
		return err
	}

	server.RegisterHandler()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	logger.Info("Server started successfully")

	select {
	case err := <-errCh:
		return fmt.Errorf("error starting server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func classify(w io.Writer, text string) error {
	validator := config.NewValidator()
	voiceConfig, err := config.LoadVoiceConfig(validator)
	if err != nil {
		return err
	}

	classifier := nlp.NewClassifier(voiceConfig.Categories...)
	classification := classifier.Classify(text)
	entities := classifier.ExtractEntities(text, classification.Intent)
	validation := classifier.Validate(classification.Intent, entities)

	out := voice.ClassifyResponse{
		Classification: classification,
		Entities:       entities,
		Validation:     validation,
	}
	if validation.IsValid {
		out.ConfirmationMessage = classifier.GenerateConfirmationMessage(classification.Intent, validation.Entities)
	}

	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
