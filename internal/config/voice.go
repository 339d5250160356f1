package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	voiceService "VoiceAssistant/internal/api/voice/service"
	"VoiceAssistant/pkg/assistant"
	"VoiceAssistant/pkg/nlp"

	"github.com/go-playground/validator/v10"
)

type VoiceConfig struct {
	AssistantURL     string        `validate:"required,url"`
	AssistantTimeout time.Duration `validate:"gt=0"`
	SnapshotTTL      time.Duration `validate:"gte=0"`
	Session          voiceService.Config
	Categories       []nlp.Category `validate:"dive"`
}

// LoadVoiceConfig reads the voice settings from the environment. Unset
// variables keep their defaults; malformed ones are an error.
func LoadVoiceConfig(v *validator.Validate) (VoiceConfig, error) {
	cfg := VoiceConfig{
		AssistantURL:     assistant.DefaultBaseURL,
		AssistantTimeout: assistant.DefaultTimeout,
		Session:          voiceService.DefaultConfig(),
		Categories:       nlp.DefaultCategories(),
	}

	if url := os.Getenv("ASSISTANT_API_URL"); url != "" {
		cfg.AssistantURL = url
	}

	var err error
	if cfg.AssistantTimeout, err = envDuration("ASSISTANT_TIMEOUT", cfg.AssistantTimeout); err != nil {
		return cfg, err
	}
	if cfg.SnapshotTTL, err = envDuration("VOICE_SNAPSHOT_TTL", 0); err != nil {
		return cfg, err
	}
	if cfg.Session.ConfirmTimeout, err = envDuration("VOICE_CONFIRM_TIMEOUT", cfg.Session.ConfirmTimeout); err != nil {
		return cfg, err
	}
	if cfg.Session.ResetDelay, err = envDuration("VOICE_RESET_DELAY", cfg.Session.ResetDelay); err != nil {
		return cfg, err
	}
	if cfg.Session.ErrorResetDelay, err = envDuration("VOICE_ERROR_RESET_DELAY", cfg.Session.ErrorResetDelay); err != nil {
		return cfg, err
	}
	if cfg.Session.LocalValidation, err = envBool("VOICE_LOCAL_VALIDATION", cfg.Session.LocalValidation); err != nil {
		return cfg, err
	}
	if cfg.Session.MinRejectKeywords, err = envInt("VOICE_LOCAL_VALIDATION_MIN_KEYWORDS", cfg.Session.MinRejectKeywords); err != nil {
		return cfg, err
	}
	if cfg.Session.HistoryLimit, err = envInt("VOICE_HISTORY_LIMIT", cfg.Session.HistoryLimit); err != nil {
		return cfg, err
	}
	cfg.Session.CallTimeout = cfg.AssistantTimeout
	cfg.Session.FatalBusinessCodes = envList("VOICE_FATAL_BUSINESS_CODES")

	if path := os.Getenv("VOICE_KEYWORDS_FILE"); path != "" {
		kf, err := nlp.LoadKeywordFile(path)
		if err != nil {
			return cfg, err
		}
		if len(kf.Categories) > 0 {
			cfg.Categories = kf.Categories
		}
		if len(kf.Confirmation.Affirmative) > 0 {
			cfg.Session.Affirmative = kf.Confirmation.Affirmative
		}
		if len(kf.Confirmation.Negative) > 0 {
			cfg.Session.Negative = kf.Confirmation.Negative
		}
	}

	if err := v.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid voice configuration: %w", err)
	}

	return cfg, nil
}

// envDuration accepts Go durations ("30s") or whole seconds ("30").
func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
