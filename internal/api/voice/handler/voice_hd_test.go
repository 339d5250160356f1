package voiceHandler

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"VoiceAssistant/internal/api/voice"
	voiceService "VoiceAssistant/internal/api/voice/service"
	"VoiceAssistant/internal/entity"
	"VoiceAssistant/internal/middleware"
	"VoiceAssistant/pkg/assistant"
	jwtPkg "VoiceAssistant/pkg/jwt"
	"VoiceAssistant/pkg/nlp"
	"VoiceAssistant/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAssistant struct{}

func (stubAssistant) Interpret(_ context.Context, req assistant.InterpretRequest) (*assistant.Interpretation, error) {
	if strings.Contains(req.Query, "转账") {
		return &assistant.Interpretation{
			Type:                 assistant.TypeToolCall,
			ToolCalls:            []entity.ToolCall{{ToolID: "transfer", Parameters: map[string]any{"amount": 10}}},
			ConfirmText:          "您要向 Alice 转账 10 SOL，是否确认？",
			RequiresConfirmation: true,
		}, nil
	}
	return &assistant.Interpretation{Type: assistant.TypeDirectResponse, Message: "今天晴天", SessionID: "sess-1"}, nil
}

func (stubAssistant) Execute(context.Context, assistant.ExecuteRequest) (*assistant.Execution, error) {
	return &assistant.Execution{Success: true, ToolID: "transfer", TTSMessage: "转账成功"}, nil
}

func newTestApp(t *testing.T) (*fiber.App, string) {
	t.Helper()
	t.Setenv(middleware.AccessTokenSecret, "test-secret")

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := voiceService.DefaultConfig()
	cfg.ResetDelay = time.Hour
	svc := voiceService.NewVoiceService(logger, nlp.NewClassifier(), nil, nil, utils.New(), cfg)

	h := New(logger, validator.New(), middleware.New(logger), svc, func(entity.UserLoginData) assistant.IClient {
		return stubAssistant{}
	})

	app := fiber.New()
	mw := middleware.New(logger)
	app.Use(mw.NewRequestIDMiddleware())
	h.Start(app.Group("/api/v1"))

	token, _, err := jwtPkg.Sign(map[string]interface{}{"id": "42", "username": "alice", "email": "a@example.com"}, time.Hour)
	require.NoError(t, err)

	return app, token
}

func TestClassify(t *testing.T) {
	app, token := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/voice/classify", strings.NewReader(`{"text":"向Alice转账10个SOL"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body voice.ClassifyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, nlp.IntentTransfer, body.Classification.Intent)
	assert.Equal(t, "Alice", body.Entities.Recipient)
	assert.True(t, body.Validation.IsValid)
	assert.Equal(t, "您要向 Alice 转账 10 SOL，是否确认？", body.ConfirmationMessage)
}

func TestClassifyRejectsEmptyText(t *testing.T) {
	app, token := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/voice/classify", strings.NewReader(`{"text":""}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestRoutesRequireToken(t *testing.T) {
	app, _ := newTestApp(t)

	for _, target := range []string{"/api/v1/voice/history", "/api/v1/voice/ws"} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, target, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, target)
	}
}

func TestHistoryUnavailableWithoutJournal(t *testing.T) {
	app, token := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/voice/history?limit=5", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebsocketRequiresUpgrade(t *testing.T) {
	app, token := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/voice/ws?token="+token, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialSession(t *testing.T) *wsClient {
	t.Helper()
	app, token := newTestApp(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	url := fmt.Sprintf("ws://%s/api/v1/voice/ws?token=%s", ln.Addr().String(), token)
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{})
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })

	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(msg voice.ClientMessage) {
	c.t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, data))
}

// await reads frames until match accepts one.
func (c *wsClient) await(match func(voice.ServerMessage) bool) voice.ServerMessage {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err)

		var msg voice.ServerMessage
		require.NoError(c.t, json.Unmarshal(data, &msg))
		if match(msg) {
			return msg
		}
	}
}

func stageIs(stage entity.Stage) func(voice.ServerMessage) bool {
	return func(m voice.ServerMessage) bool {
		return m.Type == voice.MsgState && m.State != nil && m.State.Stage == stage
	}
}

func typeIs(kind string) func(voice.ServerMessage) bool {
	return func(m voice.ServerMessage) bool { return m.Type == kind }
}

func TestWebsocketTypedQuery(t *testing.T) {
	c := dialSession(t)
	c.send(voice.ClientMessage{Type: voice.MsgHello, Recognition: true, Synthesis: true})
	c.await(stageIs(entity.StageIdle))

	c.send(voice.ClientMessage{Type: voice.MsgText, Text: "今天天气怎么样"})

	speak := c.await(typeIs(voice.MsgSpeak))
	assert.Equal(t, "今天晴天", speak.Text)
	assert.NotEmpty(t, speak.ID)

	done := c.await(stageIs(entity.StageCompleted))
	assert.Equal(t, "sess-1", done.State.SessionID)
	assert.Equal(t, "今天晴天", done.State.LastResult.Message)
}

func TestWebsocketSpokenTransferWithConfirmation(t *testing.T) {
	c := dialSession(t)
	c.send(voice.ClientMessage{Type: voice.MsgHello, Recognition: true, Synthesis: true})
	c.await(stageIs(entity.StageIdle))

	c.send(voice.ClientMessage{Type: voice.MsgStart})
	start := c.await(typeIs(voice.MsgRecognizeStart))
	assert.Equal(t, "zh-CN", start.Lang)
	c.await(stageIs(entity.StageRecording))

	c.send(voice.ClientMessage{Type: voice.MsgTranscript, Text: "向Alice转账10个SOL", Final: true})

	confirming := c.await(stageIs(entity.StageConfirming))
	assert.Equal(t, "您要向 Alice 转账 10 SOL，是否确认？", confirming.State.ConfirmationPrompt())

	c.send(voice.ClientMessage{Type: voice.MsgConfirm})
	done := c.await(stageIs(entity.StageCompleted))
	assert.Equal(t, "转账成功", done.State.LastResult.Message)
}

func TestWebsocketRejectsUnknownFrame(t *testing.T) {
	c := dialSession(t)
	c.send(voice.ClientMessage{Type: voice.MsgHello})
	c.await(stageIs(entity.StageIdle))

	c.send(voice.ClientMessage{Type: "dance"})
	errFrame := c.await(typeIs(voice.MsgError))
	assert.Equal(t, voice.ErrInvalidMessage.Error(), errFrame.Error)
}

func TestWebsocketRequiresHello(t *testing.T) {
	c := dialSession(t)
	c.send(voice.ClientMessage{Type: voice.MsgText, Text: "你好"})

	errFrame := c.await(typeIs(voice.MsgError))
	assert.Equal(t, voice.ErrInvalidMessage.Error(), errFrame.Error)
}
