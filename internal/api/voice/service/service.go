package voiceService

import (
	"context"
	"time"

	"VoiceAssistant/internal/api/voice"
	"VoiceAssistant/internal/entity"
	"VoiceAssistant/pkg/assistant"
	"VoiceAssistant/pkg/nlp"
	"VoiceAssistant/pkg/speech"
	"VoiceAssistant/pkg/utils"

	"github.com/sirupsen/logrus"
)

type IVoiceService interface {
	// OpenSession restores the user's snapshot and returns a session ready
	// to Run. The caller owns the session and must cancel Run's context.
	OpenSession(ctx context.Context, params SessionParams) (*Session, error)

	Classify(ctx context.Context, req voice.ClassifyRequest) (*voice.ClassifyResponse, error)
	GetHistory(ctx context.Context, userID string, limit, offset int) ([]entity.Interaction, int, error)
}

// CaptureAdapter is the session's view of a speech recorder.
type CaptureAdapter interface {
	Supported() bool
	Start(ctx context.Context) error
	Stop() string
	Events() <-chan speech.CaptureEvent
}

// NarrationAdapter is the session's view of a speech narrator.
type NarrationAdapter interface {
	Supported() bool
	Speak(ctx context.Context, text string) (string, error)
	Cancel()
}

type SnapshotStore interface {
	Load(ctx context.Context, key string) (*entity.SessionSnapshot, error)
	Save(ctx context.Context, key string, snapshot entity.SessionSnapshot) error
	Delete(ctx context.Context, key string) error
}

type Journal interface {
	Record(ctx context.Context, interaction entity.Interaction) error
	List(ctx context.Context, userID string, limit, offset int) ([]entity.Interaction, int, error)
}

// Config tunes a Session. MinRejectKeywords is how many keywords the
// classifier must match before failing local validation rejects an
// utterance without asking the backend.
type Config struct {
	ConfirmTimeout     time.Duration `validate:"gt=0"`
	ResetDelay         time.Duration `validate:"gt=0"`
	ErrorResetDelay    time.Duration `validate:"gte=0"`
	CallTimeout        time.Duration `validate:"gte=0"`
	LocalValidation    bool
	MinRejectKeywords  int `validate:"gte=1"`
	HistoryLimit       int `validate:"gte=0"`
	FatalBusinessCodes []string
	Affirmative        []string `validate:"min=1"`
	Negative           []string `validate:"min=1"`
}

func DefaultConfig() Config {
	return Config{
		ConfirmTimeout:    30 * time.Second,
		ResetDelay:        3 * time.Second,
		ErrorResetDelay:   0,
		CallTimeout:       assistant.DefaultTimeout,
		LocalValidation:   true,
		MinRejectKeywords: 2,
		HistoryLimit:      50,
		Affirmative:       DefaultAffirmative(),
		Negative:          DefaultNegative(),
	}
}

type SessionParams struct {
	User      entity.UserLoginData
	Recorder  CaptureAdapter
	Narrator  NarrationAdapter
	Assistant assistant.IClient
}

type voiceService struct {
	log        *logrus.Logger
	classifier nlp.IClassifier
	snapshots  SnapshotStore
	journal    Journal
	utils      utils.IUtils
	config     Config
}

func NewVoiceService(
	log *logrus.Logger,
	classifier nlp.IClassifier,
	snapshots SnapshotStore,
	journal Journal,
	utils utils.IUtils,
	config Config,
) IVoiceService {
	return &voiceService{
		log:        log,
		classifier: classifier,
		snapshots:  snapshots,
		journal:    journal,
		utils:      utils,
		config:     config,
	}
}
