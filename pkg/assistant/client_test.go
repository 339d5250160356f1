package assistant

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"VoiceAssistant/internal/entity"
	contextPkg "VoiceAssistant/pkg/context"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	path      string
	auth      string
	requestID string
	body      map[string]any
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.path = r.URL.Path
		rec.auth = r.Header.Get("Authorization")
		rec.requestID = r.Header.Get("X-Request-ID")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &rec.body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newTestClient(url string, options ...Option) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(url, append([]Option{WithLogger(logger)}, options...)...)
}

func TestInterpretToolCall(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, `{
		"type": "tool_call",
		"tool_calls": [{"tool_id": "weather", "parameters": {"city": "上海"}}],
		"confirmText": "您想查询上海的天气吗？",
		"sessionId": "s-1"
	}`)
	client := newTestClient(srv.URL, WithTokenSource(BearerToken("tok")))

	ctx := contextPkg.WithRequestID(context.Background(), "req-1")
	got, err := client.Interpret(ctx, InterpretRequest{Query: "查询上海天气", SessionID: "s-0", UserID: 7})
	require.NoError(t, err)

	assert.Equal(t, &Interpretation{
		Type:                 TypeToolCall,
		ToolCalls:            []entity.ToolCall{{ToolID: "weather", Parameters: map[string]any{"city": "上海"}}},
		ConfirmText:          "您想查询上海的天气吗？",
		RequiresConfirmation: true,
		SessionID:            "s-1",
	}, got)

	assert.Equal(t, "/v1/api/interpret", rec.path)
	assert.Equal(t, "Bearer tok", rec.auth)
	assert.Equal(t, "req-1", rec.requestID)
	assert.Equal(t, map[string]any{"query": "查询上海天气", "sessionId": "s-0", "userId": float64(7)}, rec.body)
}

func TestInterpretVariants(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Interpretation
	}{
		{
			name: "direct response",
			body: `{"type":"direct_response","message":"你好","sessionId":"s"}`,
			want: Interpretation{Type: TypeDirectResponse, Message: "你好", SessionID: "s"},
		},
		{
			name: "clarification with snake session id",
			body: `{"type":"clarification","message":"请问转给谁？","session_id":"s"}`,
			want: Interpretation{Type: TypeClarification, Message: "请问转给谁？", SessionID: "s"},
		},
		{
			name: "tool call without confirmation",
			body: `{"type":"tool_call","toolCalls":[{"toolId":"balance","parameters":{}}],"requires_confirmation":false}`,
			want: Interpretation{
				Type:      TypeToolCall,
				ToolCalls: []entity.ToolCall{{ToolID: "balance", Parameters: map[string]any{}}},
			},
		},
		{
			name: "confirmation_message alias",
			body: `{"type":"tool_call","tool_calls":[{"tool_id":"t"}],"confirmation_message":"确认吗？"}`,
			want: Interpretation{
				Type:                 TypeToolCall,
				ToolCalls:            []entity.ToolCall{{ToolID: "t"}},
				ConfirmText:          "确认吗？",
				RequiresConfirmation: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, http.StatusOK, tt.body)
			got, err := newTestClient(srv.URL).Interpret(context.Background(), InterpretRequest{Query: "q"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestInterpretInvalidResponses(t *testing.T) {
	bodies := map[string]string{
		"malformed json":       `{"type":`,
		"unknown type":         `{"type":"shrug"}`,
		"missing type":         `{"message":"hi"}`,
		"tool call no calls":   `{"type":"tool_call","confirmText":"ok?"}`,
		"tool call no prompt":  `{"type":"tool_call","toolCalls":[{"toolId":"t"}]}`,
		"tool call no tool id": `{"type":"tool_call","toolCalls":[{"parameters":{}}],"confirmText":"ok?"}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv, _ := newTestServer(t, http.StatusOK, body)
			_, err := newTestClient(srv.URL).Interpret(context.Background(), InterpretRequest{Query: "q"})
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, "interpret", validationErr.Op)
		})
	}
}

func TestInterpretRejectsEmptyQuery(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, `{}`)
	_, err := newTestClient(srv.URL).Interpret(context.Background(), InterpretRequest{})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Empty(t, rec.path)
}

func TestServerErrorDetail(t *testing.T) {
	tests := []struct {
		body   string
		status int
		detail string
	}{
		{`{"error":{"code":"X","message":"服务维护中"}}`, http.StatusServiceUnavailable, "服务维护中"},
		{`{"error":"bad token"}`, http.StatusUnauthorized, "bad token"},
		{`{"message":"oops"}`, http.StatusInternalServerError, "oops"},
		{`{"detail":"Not authenticated"}`, http.StatusForbidden, "Not authenticated"},
		{`{"detail":[{"msg":"field required"}]}`, http.StatusUnprocessableEntity, "field required"},
		{`gateway timeout`, http.StatusGatewayTimeout, "gateway timeout"},
		{`{}`, http.StatusBadGateway, "Bad Gateway"},
	}

	for _, tt := range tests {
		srv, _ := newTestServer(t, tt.status, tt.body)
		_, err := newTestClient(srv.URL).Interpret(context.Background(), InterpretRequest{Query: "q"})

		var serverErr *ServerError
		require.ErrorAs(t, err, &serverErr)
		assert.Equal(t, tt.status, serverErr.Status)
		assert.Equal(t, tt.detail, serverErr.Detail)
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).Interpret(context.Background(), InterpretRequest{Query: "q"})
	var networkErr *NetworkError
	require.ErrorAs(t, err, &networkErr)

	_, err = newTestClient(url).Execute(context.Background(), ExecuteRequest{
		ToolCalls: []entity.ToolCall{{ToolID: "t"}},
	})
	require.ErrorAs(t, err, &networkErr)
	assert.Equal(t, "execute", networkErr.Op)
}

func TestExecuteSuccess(t *testing.T) {
	srv, rec := newTestServer(t, http.StatusOK, `{
		"success": true,
		"toolId": "weather",
		"data": {"tts_message": "上海今天晴", "raw_data": {"temp": 21}},
		"sessionId": "s-1"
	}`)

	calls := []entity.ToolCall{{ToolID: "weather", Parameters: map[string]any{"city": "上海"}}}
	got, err := newTestClient(srv.URL).Execute(context.Background(), ExecuteRequest{
		ToolCalls: calls,
		SessionID: "s-1",
		UserID:    3,
	})
	require.NoError(t, err)

	assert.Equal(t, &Execution{
		Success:    true,
		ToolID:     "weather",
		TTSMessage: "上海今天晴",
		RawData:    map[string]any{"temp": float64(21)},
		SessionID:  "s-1",
	}, got)

	assert.Equal(t, "/v1/api/execute", rec.path)
	assert.Equal(t, "s-1", rec.body["sessionId"])
	assert.Equal(t, float64(3), rec.body["userId"])
	assert.Equal(t, "weather", rec.body["toolId"])
	assert.Equal(t, []any{
		map[string]any{"toolId": "weather", "parameters": map[string]any{"city": "上海"}},
	}, rec.body["toolCalls"])
}

func TestExecuteBusinessFailure(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{
		"success": false,
		"toolId": "transfer",
		"error": {"code": "INSUFFICIENT_BALANCE", "message": "余额不足，无法完成转账"}
	}`)

	got, err := newTestClient(srv.URL).Execute(context.Background(), ExecuteRequest{
		ToolCalls: []entity.ToolCall{{ToolID: "transfer"}},
	})
	require.NoError(t, err)
	assert.False(t, got.Success)
	assert.Equal(t, &ExecutionError{Code: "INSUFFICIENT_BALANCE", Message: "余额不足，无法完成转账"}, got.Error)
}

func TestExecuteFailureMessageFallbacks(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"success": false, "error": "工具不存在"}`)
	got, err := newTestClient(srv.URL).Execute(context.Background(), ExecuteRequest{
		ToolCalls: []entity.ToolCall{{ToolID: "x"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "工具不存在", got.Error.Message)

	srv, _ = newTestServer(t, http.StatusOK, `{"success": false, "message": "失败了"}`)
	got, err = newTestClient(srv.URL).Execute(context.Background(), ExecuteRequest{
		ToolCalls: []entity.ToolCall{{ToolID: "x"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "失败了", got.Error.Message)
}

func TestExecuteMissingSuccess(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"toolId": "x"}`)
	_, err := newTestClient(srv.URL).Execute(context.Background(), ExecuteRequest{
		ToolCalls: []entity.ToolCall{{ToolID: "x"}},
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestExecuteRequiresToolCalls(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1").Execute(context.Background(), ExecuteRequest{})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
}
