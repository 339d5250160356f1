package entity

import "time"

type Stage string

const (
	StageIdle         Stage = "idle"
	StageRecording    Stage = "recording"
	StageInterpreting Stage = "interpreting"
	StageConfirming   Stage = "confirming"
	StageExecuting    Stage = "executing"
	StageCompleted    Stage = "completed"
	StageError        Stage = "error"
)

var stageStatusMessages = map[Stage]string{
	StageIdle:         "点击麦克风开始语音交互",
	StageRecording:    "正在聆听...",
	StageInterpreting: "正在理解您的意图...",
	StageConfirming:   "请确认您的请求...",
	StageExecuting:    "正在执行...",
	StageCompleted:    "执行完成",
	StageError:        "出现错误，请重试",
}

// StatusMessage is the default status line shown for the stage.
func (s Stage) StatusMessage() string {
	return stageStatusMessages[s]
}

type ToolCall struct {
	ToolID     string         `json:"toolId" validate:"required"`
	Parameters map[string]any `json:"parameters"`
}

// PendingAction groups the tool calls awaiting confirmation with the prompt
// that asked for it. Both are present or neither is.
type PendingAction struct {
	ToolCalls []ToolCall `json:"toolCalls"`
	Prompt    string     `json:"confirmationPrompt"`
}

type ExecutionResult struct {
	Success   bool   `json:"success"`
	ToolID    string `json:"toolId,omitempty"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

type ErrorDescriptor struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Status    int    `json:"status,omitempty"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable"`
}

type SessionState struct {
	SessionID     string           `json:"sessionId,omitempty"`
	Stage         Stage            `json:"stage"`
	StatusMessage string           `json:"statusMessage"`
	Pending       *PendingAction   `json:"pending,omitempty"`
	LastResult    *ExecutionResult `json:"lastResult,omitempty"`
	LastError     *ErrorDescriptor `json:"lastError,omitempty"`
	Listening     bool             `json:"listening"`
	Transcript    string           `json:"transcript,omitempty"`
	Seq           uint64           `json:"seq"`
}

func (s SessionState) PendingToolCalls() []ToolCall {
	if s.Pending == nil {
		return nil
	}
	return s.Pending.ToolCalls
}

func (s SessionState) ConfirmationPrompt() string {
	if s.Pending == nil {
		return ""
	}
	return s.Pending.Prompt
}

type Utterance struct {
	Text  string `json:"text"`
	Seq   uint64 `json:"seq"`
	Final bool   `json:"final"`
}

// Turn is one finished exchange kept in the session history.
type Turn struct {
	Query     string    `json:"query"`
	Type      string    `json:"type"`
	ToolIDs   []string  `json:"toolIds,omitempty"`
	Outcome   string    `json:"outcome"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionSnapshot is what survives a reconnect.
type SessionSnapshot struct {
	SessionID string    `json:"sessionId"`
	History   []Turn    `json:"history"`
	SavedAt   time.Time `json:"savedAt"`
}

// Interaction is a journaled turn.
type Interaction struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	SessionID string    `db:"session_id" json:"sessionId"`
	Query     string    `db:"query" json:"query"`
	Type      string    `db:"interpretation_type" json:"type"`
	ToolIDs   []string  `db:"-" json:"toolIds"`
	Outcome   string    `db:"outcome" json:"outcome"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
