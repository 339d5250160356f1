package assistant

import (
	"context"
	"fmt"

	"VoiceAssistant/internal/entity"
)

type InterpretationType string

const (
	TypeDirectResponse InterpretationType = "direct_response"
	TypeToolCall       InterpretationType = "tool_call"
	TypeClarification  InterpretationType = "clarification"
)

type InterpretRequest struct {
	Query     string `json:"query" validate:"required"`
	SessionID string `json:"sessionId,omitempty"`
	UserID    int64  `json:"userId,omitempty"`
}

type ExecuteRequest struct {
	ToolCalls []entity.ToolCall `json:"toolCalls" validate:"required,min=1,dive"`
	SessionID string            `json:"sessionId"`
	UserID    int64             `json:"userId,omitempty"`
}

// Interpretation is the tagged result of an interpret call. Message is set for
// direct_response and clarification, ToolCalls and ConfirmText for tool_call.
type Interpretation struct {
	Type                 InterpretationType `json:"type" validate:"required,oneof=direct_response tool_call clarification"`
	Message              string             `json:"message,omitempty"`
	ToolCalls            []entity.ToolCall  `json:"toolCalls,omitempty" validate:"dive"`
	ConfirmText          string             `json:"confirmText,omitempty"`
	RequiresConfirmation bool               `json:"requiresConfirmation"`
	SessionID            string             `json:"sessionId,omitempty"`
}

type ExecutionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Execution struct {
	Success    bool            `json:"success"`
	ToolID     string          `json:"toolId,omitempty"`
	TTSMessage string          `json:"ttsMessage,omitempty"`
	RawData    any             `json:"rawData,omitempty"`
	Error      *ExecutionError `json:"error,omitempty"`
	SessionID  string          `json:"sessionId,omitempty"`
}

type IClient interface {
	Interpret(ctx context.Context, req InterpretRequest) (*Interpretation, error)
	Execute(ctx context.Context, req ExecuteRequest) (*Execution, error)
}

// NetworkError is a transport failure: the request never produced an HTTP
// response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServerError is a non-2xx response. Detail is the message the server put in
// its error body, if any.
type ServerError struct {
	Op     string
	Status int
	Detail string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Status, e.Detail)
}

// ValidationError is a response that decoded but does not have the expected
// shape.
type ValidationError struct {
	Op     string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid response: %s", e.Op, e.Detail)
}
