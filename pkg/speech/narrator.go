package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	"VoiceAssistant/pkg/utils"

	"github.com/sirupsen/logrus"
)

// Narrator owns the single audible output of a session: every Speak cancels
// whatever is playing before the new utterance starts.
type Narrator struct {
	mu       sync.Mutex
	engine   SynthesisEngine
	utils    utils.IUtils
	log      *logrus.Logger
	language string
	rate     float64
	current  string
	speaking bool
	events   chan NarrationEvent
}

type NarratorOption func(*Narrator)

func WithNarratorLogger(log *logrus.Logger) NarratorOption {
	return func(n *Narrator) {
		n.log = log
	}
}

func WithVoice(language string, rate float64) NarratorOption {
	return func(n *Narrator) {
		n.language = language
		n.rate = rate
	}
}

func WithIDGenerator(u utils.IUtils) NarratorOption {
	return func(n *Narrator) {
		n.utils = u
	}
}

func NewNarrator(engine SynthesisEngine, options ...NarratorOption) *Narrator {
	n := &Narrator{
		engine:   engine,
		utils:    utils.New(),
		log:      logrus.StandardLogger(),
		language: DefaultLanguage,
		rate:     1,
		events:   make(chan NarrationEvent, 32),
	}

	for _, option := range options {
		option(n)
	}

	return n
}

func (n *Narrator) Supported() bool {
	return n.engine != nil && n.engine.Available()
}

// Speak cancels the current utterance and starts text. Blank text is a no-op
// and returns an empty id.
func (n *Narrator) Speak(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if !n.Supported() {
		return "", ErrUnsupportedPlatform
	}

	id, err := n.utils.NewULIDFromTimestamp(time.Now())
	if err != nil {
		return "", err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.engine.Cancel(); err != nil {
		n.log.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("Failed to cancel previous utterance")
	}

	n.current = id
	n.speaking = true

	u := Utterance{
		ID:       id,
		Text:     text,
		Language: n.language,
		Rate:     n.rate,
		Pitch:    1,
		Volume:   1,
	}
	if err := n.engine.Speak(ctx, u); err != nil {
		n.speaking = false
		n.log.WithFields(logrus.Fields{
			"utterance_id": id,
			"error":        err.Error(),
		}).Warn("Failed to start narration")
		return id, narrationErrorFromCode(id, CodeSynthesisFailed)
	}

	return id, nil
}

func (n *Narrator) Cancel() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.speaking || n.engine == nil {
		return
	}
	if err := n.engine.Cancel(); err != nil {
		n.log.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("Failed to cancel narration")
	}
	n.speaking = false
}

func (n *Narrator) Speaking() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.speaking
}

func (n *Narrator) Events() <-chan NarrationEvent {
	return n.events
}

func (n *Narrator) HandleStart(id string) {
	n.emit(NarrationEvent{Type: NarrationStarted, UtteranceID: id})
}

func (n *Narrator) HandleEnd(id string) {
	n.finish(id)
	n.emit(NarrationEvent{Type: NarrationEnded, UtteranceID: id})
}

// HandleError reports a synthesis failure. Interruptions caused by our own
// cancel are reported as a normal end.
func (n *Narrator) HandleError(id, code string) {
	n.finish(id)

	if code == CodeInterrupted || code == CodeCanceled {
		n.emit(NarrationEvent{Type: NarrationEnded, UtteranceID: id})
		return
	}

	err := narrationErrorFromCode(id, code)
	n.log.WithFields(logrus.Fields{
		"utterance_id": id,
		"code":         code,
	}).Warn(err.Message)
	n.emit(NarrationEvent{Type: NarrationFailed, UtteranceID: id, Err: err})
}

func (n *Narrator) finish(id string) {
	n.mu.Lock()
	if id == n.current {
		n.speaking = false
	}
	n.mu.Unlock()
}

func (n *Narrator) emit(ev NarrationEvent) {
	select {
	case n.events <- ev:
	default:
		n.log.WithField("utterance_id", ev.UtteranceID).Debug("Narration event dropped")
	}
}
