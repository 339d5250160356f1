package speech

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Recorder is the single capture channel of a session. Start is a no-op
// while a recognition run is active.
type Recorder struct {
	mu         sync.Mutex
	engine     RecognitionEngine
	opts       RecognitionOptions
	log        *logrus.Logger
	recording  bool
	transcript string
	events     chan CaptureEvent
	done       chan struct{}
	closeOnce  sync.Once
}

type RecorderOption func(*Recorder)

func WithRecognitionOptions(opts RecognitionOptions) RecorderOption {
	return func(r *Recorder) {
		r.opts = opts
	}
}

func WithRecorderLogger(log *logrus.Logger) RecorderOption {
	return func(r *Recorder) {
		r.log = log
	}
}

func NewRecorder(engine RecognitionEngine, options ...RecorderOption) *Recorder {
	r := &Recorder{
		engine: engine,
		opts: RecognitionOptions{
			Language:       DefaultLanguage,
			InterimResults: true,
		},
		log:    logrus.StandardLogger(),
		events: make(chan CaptureEvent, 32),
		done:   make(chan struct{}),
	}

	for _, option := range options {
		option(r)
	}

	return r
}

func (r *Recorder) Supported() bool {
	return r.engine != nil && r.engine.Available()
}

func (r *Recorder) Start(ctx context.Context) error {
	if !r.Supported() {
		return ErrUnsupportedPlatform
	}

	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		r.log.Debug("Recorder already running, start ignored")
		return nil
	}
	r.recording = true
	r.transcript = ""
	r.mu.Unlock()

	if err := r.engine.Start(ctx, r.opts); err != nil {
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()

		r.log.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("Failed to start recognition")

		if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrUnsupportedPlatform) {
			return err
		}
		return &CaptureError{Reason: "start", Message: "启动语音识别失败: " + err.Error()}
	}

	return nil
}

// Stop ends the recognition run and returns the latest transcript. The
// engine may still deliver a final result afterwards.
func (r *Recorder) Stop() string {
	r.mu.Lock()
	wasRecording := r.recording
	r.recording = false
	transcript := r.transcript
	r.mu.Unlock()

	if wasRecording && r.engine != nil {
		if err := r.engine.Stop(); err != nil {
			r.log.WithFields(logrus.Fields{
				"error": err.Error(),
			}).Warn("Failed to stop recognition")
		}
	}

	return transcript
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *Recorder) Events() <-chan CaptureEvent {
	return r.events
}

// HandleResult records a transcript. A final result ends a non-continuous
// run.
func (r *Recorder) HandleResult(text string, final bool) {
	r.mu.Lock()
	r.transcript = text
	if final && !r.opts.Continuous {
		r.recording = false
	}
	r.mu.Unlock()

	r.emit(CaptureEvent{Type: CaptureResult, Text: text, Final: final})
}

func (r *Recorder) HandleError(code string) {
	r.mu.Lock()
	r.recording = false
	r.mu.Unlock()

	err := CaptureErrorFromCode(code)
	r.log.WithFields(logrus.Fields{
		"code":  code,
		"error": err.Error(),
	}).Warn("Recognition error")

	r.emit(CaptureEvent{Type: CaptureFailed, Err: err})
}

func (r *Recorder) HandleEnd() {
	r.mu.Lock()
	r.recording = false
	r.mu.Unlock()

	r.emit(CaptureEvent{Type: CaptureEnded})
}

// Close releases any goroutine blocked delivering an event.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

func (r *Recorder) emit(ev CaptureEvent) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}
