package assistant

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"VoiceAssistant/internal/entity"
	contextPkg "VoiceAssistant/pkg/context"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultBaseURL = "http://localhost:8001"
	DefaultTimeout = 15 * time.Second

	interpretPath = "/v1/api/interpret"
	executePath   = "/v1/api/execute"

	maxResponseBytes = 4 << 20
)

type Client struct {
	baseURL     string
	http        *http.Client
	tokenSource oauth2.TokenSource
	timeout     time.Duration
	validate    *validator.Validate
	tracer      trace.Tracer
	log         *logrus.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTokenSource sends every request with the source's bearer token.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		c.tokenSource = ts
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithValidator(v *validator.Validate) Option {
	return func(c *Client) {
		c.validate = v
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

func WithLogger(log *logrus.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// BearerToken is a token source for a token handed over by the caller.
func BearerToken(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}

	for _, option := range options {
		option(c)
	}

	if c.http == nil {
		c.http = &http.Client{}
	}
	hc := *c.http
	if hc.Timeout == 0 {
		hc.Timeout = c.timeout
	}
	if c.tokenSource != nil {
		hc.Transport = &oauth2.Transport{Source: c.tokenSource, Base: hc.Transport}
	}
	c.http = &hc

	if c.validate == nil {
		c.validate = validator.New()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("VoiceAssistant/pkg/assistant")
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}

	return c
}

func (c *Client) Interpret(ctx context.Context, req InterpretRequest) (*Interpretation, error) {
	ctx, span := c.tracer.Start(ctx, "assistant.interpret",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("assistant.session_id", req.SessionID)),
	)
	defer span.End()

	result, err := c.interpret(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "interpret failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("assistant.type", string(result.Type)),
		attribute.Int("assistant.tool_calls", len(result.ToolCalls)),
	)
	return result, nil
}

func (c *Client) interpret(ctx context.Context, req InterpretRequest) (*Interpretation, error) {
	const op = "interpret"

	if err := c.validate.Struct(req); err != nil {
		return nil, &ValidationError{Op: op, Detail: "invalid request: " + err.Error()}
	}

	var payload interpretPayload
	if err := c.post(ctx, op, interpretPath, req, &payload); err != nil {
		return nil, err
	}

	result := payload.normalize()
	if err := c.validate.Struct(result); err != nil {
		return nil, &ValidationError{Op: op, Detail: err.Error()}
	}
	if result.Type == TypeToolCall {
		if len(result.ToolCalls) == 0 {
			return nil, &ValidationError{Op: op, Detail: "tool_call response without tool calls"}
		}
		if result.RequiresConfirmation && result.ConfirmText == "" {
			return nil, &ValidationError{Op: op, Detail: "tool_call response without confirmText"}
		}
	}

	return &result, nil
}

func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (*Execution, error) {
	ctx, span := c.tracer.Start(ctx, "assistant.execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("assistant.session_id", req.SessionID),
			attribute.Int("assistant.tool_calls", len(req.ToolCalls)),
		),
	)
	defer span.End()

	result, err := c.execute(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execute failed")
		return nil, err
	}

	span.SetAttributes(attribute.Bool("assistant.success", result.Success))
	return result, nil
}

func (c *Client) execute(ctx context.Context, req ExecuteRequest) (*Execution, error) {
	const op = "execute"

	if err := c.validate.Struct(req); err != nil {
		return nil, &ValidationError{Op: op, Detail: "invalid request: " + err.Error()}
	}

	body := executeBody{
		ToolCalls: req.ToolCalls,
		SessionID: req.SessionID,
		UserID:    req.UserID,
	}
	if len(req.ToolCalls) == 1 {
		body.ToolID = req.ToolCalls[0].ToolID
		body.Parameters = req.ToolCalls[0].Parameters
	}

	var payload executePayload
	if err := c.post(ctx, op, executePath, body, &payload); err != nil {
		return nil, err
	}

	if err := c.validate.Struct(payload); err != nil {
		return nil, &ValidationError{Op: op, Detail: err.Error()}
	}

	result := payload.normalize()
	return &result, nil
}

func (c *Client) post(ctx context.Context, op, path string, in, out any) error {
	requestID := contextPkg.GetRequestID(ctx)

	raw, err := json.Marshal(in)
	if err != nil {
		return &ValidationError{Op: op, Detail: "encode request: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if requestID != "unknown" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"op":         op,
			"error":      err.Error(),
		}).Warn("Assistant request failed")
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serverErr := &ServerError{Op: op, Status: resp.StatusCode, Detail: errorDetail(data, resp.StatusCode)}
		c.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"op":         op,
			"status":     resp.StatusCode,
			"detail":     serverErr.Detail,
		}).Warn("Assistant returned an error status")
		return serverErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		c.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"op":         op,
			"error":      err.Error(),
		}).Warn("Assistant response could not be decoded")
		return &ValidationError{Op: op, Detail: "malformed JSON: " + err.Error()}
	}

	return nil
}

// errorDetail pulls the human readable message out of the error body shapes
// the backend uses: {error:{message}}, {error:"..."}, {message} and {detail}.
func errorDetail(body []byte, status int) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		switch e := payload["error"].(type) {
		case string:
			if e != "" {
				return e
			}
		case map[string]any:
			if msg, ok := e["message"].(string); ok && msg != "" {
				return msg
			}
		}

		if msg, ok := payload["message"].(string); ok && msg != "" {
			return msg
		}

		switch d := payload["detail"].(type) {
		case string:
			if d != "" {
				return d
			}
		case []any:
			for _, item := range d {
				if m, ok := item.(map[string]any); ok {
					if msg, ok := m["msg"].(string); ok && msg != "" {
						return msg
					}
				}
			}
		}
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 256 {
		return text
	}

	return http.StatusText(status)
}

var _ IClient = (*Client)(nil)

type executeBody struct {
	ToolCalls  []entity.ToolCall `json:"toolCalls"`
	SessionID  string            `json:"sessionId"`
	UserID     int64             `json:"userId,omitempty"`
	ToolID     string            `json:"toolId,omitempty"`
	Parameters map[string]any    `json:"parameters,omitempty"`
}
