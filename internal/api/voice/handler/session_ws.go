package voiceHandler

import (
	"context"
	"errors"
	"sync"
	"time"

	"VoiceAssistant/internal/api/voice"
	voiceService "VoiceAssistant/internal/api/voice/service"
	"VoiceAssistant/internal/entity"
	"VoiceAssistant/internal/middleware"
	contextPkg "VoiceAssistant/pkg/context"
	"VoiceAssistant/pkg/log"
	"VoiceAssistant/pkg/speech"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

const (
	helloTimeout = 10 * time.Second
	writeTimeout = 5 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func (h *VoiceHandler) RequireUpgrade(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}
	return ctx.Next()
}

// ServeSession runs one voice session for the lifetime of the connection. The
// client owns the microphone and speaker; recognition and synthesis requests
// travel as frames and their results come back the same way.
func (h *VoiceHandler) ServeSession(conn *websocket.Conn) {
	user, ok := conn.Locals("user").(entity.UserLoginData)
	if !ok {
		_ = conn.Close()
		return
	}
	requestID, _ := conn.Locals(middleware.RequestIDKey).(string)

	ctx, cancel := context.WithCancel(contextPkg.WithRequestID(context.Background(), requestID))
	defer cancel()

	entry := log.WithRequestID(ctx).WithFields(logrus.Fields{
		"user_id": user.ID,
		"conn_id": uuid.NewString(),
	})
	bridge := &wsBridge{conn: conn, log: entry}
	defer conn.Close()

	hello, err := bridge.readHello()
	if err != nil {
		entry.WithField("error", err.Error()).Warn("Voice client did not introduce itself")
		bridge.sendError(voice.ErrInvalidMessage)
		return
	}
	bridge.recognition = hello.Recognition
	bridge.synthesis = hello.Synthesis

	recorder := speech.NewRecorder(remoteRecognizer{bridge}, speech.WithRecorderLogger(h.log))
	defer recorder.Close()
	narrator := speech.NewNarrator(remoteSynthesizer{bridge}, speech.WithNarratorLogger(h.log))

	session, err := h.voiceService.OpenSession(ctx, voiceService.SessionParams{
		User:      user,
		Recorder:  recorder,
		Narrator:  narrator,
		Assistant: h.assistants(user),
	})
	if err != nil {
		entry.WithField("error", err.Error()).Error("Failed to open voice session")
		bridge.sendError(err)
		return
	}

	unsubscribe := session.Subscribe(func(st entity.SessionState) {
		bridge.send(voice.ServerMessage{Type: voice.MsgState, State: &st})
	})
	defer unsubscribe()

	go func() {
		if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			entry.WithField("error", err.Error()).Error("Voice session stopped")
		}
	}()
	go h.watchNarration(ctx, narrator, entry)

	entry.WithFields(logrus.Fields{
		"recognition": hello.Recognition,
		"synthesis":   hello.Synthesis,
	}).Info("Voice session connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			entry.WithField("error", err.Error()).Debug("Voice client disconnected")
			break
		}

		var msg voice.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			bridge.sendError(voice.ErrInvalidMessage)
			continue
		}
		if err := h.validator.Struct(msg); err != nil {
			bridge.sendError(voice.ErrInvalidMessage)
			continue
		}

		if !h.dispatch(session, recorder, narrator, msg) {
			bridge.sendError(voice.ErrInvalidMessage)
		}
	}

	cancel()
	<-session.Done()
}

func (h *VoiceHandler) dispatch(session *voiceService.Session, recorder *speech.Recorder, narrator *speech.Narrator, msg voice.ClientMessage) bool {
	switch msg.Type {
	case voice.MsgStart:
		session.StartCapture()
	case voice.MsgStop:
		session.StopCapture()
	case voice.MsgTranscript:
		recorder.HandleResult(msg.Text, msg.Final)
	case voice.MsgCaptureError:
		recorder.HandleError(msg.Code)
	case voice.MsgCaptureEnd:
		recorder.HandleEnd()
	case voice.MsgSpeechStart:
		narrator.HandleStart(msg.ID)
	case voice.MsgSpeechEnd:
		narrator.HandleEnd(msg.ID)
	case voice.MsgSpeechError:
		narrator.HandleError(msg.ID, msg.Code)
	case voice.MsgConfirm:
		session.Confirm()
	case voice.MsgCancel:
		session.Cancel()
	case voice.MsgRetry:
		session.Retry()
	case voice.MsgDismiss:
		session.Dismiss()
	case voice.MsgLogout:
		session.Logout()
	case voice.MsgText:
		session.Submit(msg.Text)
	default:
		return false
	}
	return true
}

func (h *VoiceHandler) watchNarration(ctx context.Context, narrator *speech.Narrator, entry *logrus.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-narrator.Events():
			if ev.Type == speech.NarrationFailed && ev.Err != nil {
				entry.WithFields(logrus.Fields{
					"utterance_id": ev.UtteranceID,
					"error":        ev.Err.Error(),
				}).Warn("Narration failed on client")
			}
		}
	}
}

// wsBridge serializes frames written to one client connection.
type wsBridge struct {
	conn        *websocket.Conn
	log         *logrus.Entry
	mu          sync.Mutex
	recognition bool
	synthesis   bool
}

func (b *wsBridge) readHello() (voice.ClientMessage, error) {
	_ = b.conn.SetReadDeadline(time.Now().Add(helloTimeout))
	defer b.conn.SetReadDeadline(time.Time{})

	_, data, err := b.conn.ReadMessage()
	if err != nil {
		return voice.ClientMessage{}, err
	}

	var msg voice.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return voice.ClientMessage{}, err
	}
	if msg.Type != voice.MsgHello {
		return voice.ClientMessage{}, errors.New("first frame must be hello")
	}
	return msg, nil
}

func (b *wsBridge) send(msg voice.ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	_ = b.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		b.log.WithFields(logrus.Fields{
			"type":  msg.Type,
			"error": err.Error(),
		}).Warn("Failed to write voice frame")
		return err
	}
	return nil
}

func (b *wsBridge) sendError(err error) {
	_ = b.send(voice.ServerMessage{Type: voice.MsgError, Error: err.Error()})
}

// remoteRecognizer asks the client to run its platform recognizer.
type remoteRecognizer struct {
	b *wsBridge
}

func (r remoteRecognizer) Available() bool { return r.b.recognition }

func (r remoteRecognizer) Start(_ context.Context, opts speech.RecognitionOptions) error {
	return r.b.send(voice.ServerMessage{
		Type:     voice.MsgRecognizeStart,
		Lang:     opts.Language,
		Interim:  opts.InterimResults,
		Continue: opts.Continuous,
	})
}

func (r remoteRecognizer) Stop() error {
	return r.b.send(voice.ServerMessage{Type: voice.MsgRecognizeStop})
}

// remoteSynthesizer asks the client to speak through its platform voice.
type remoteSynthesizer struct {
	b *wsBridge
}

func (s remoteSynthesizer) Available() bool { return s.b.synthesis }

func (s remoteSynthesizer) Speak(_ context.Context, u speech.Utterance) error {
	return s.b.send(voice.ServerMessage{
		Type: voice.MsgSpeak,
		ID:   u.ID,
		Text: u.Text,
		Lang: u.Language,
		Rate: u.Rate,
	})
}

func (s remoteSynthesizer) Cancel() error {
	return s.b.send(voice.ServerMessage{Type: voice.MsgSpeakCancel})
}
