package assistant

import (
	"VoiceAssistant/internal/entity"

	jsoniter "github.com/json-iterator/go"
)

// The backend has shipped both snake_case and camelCase field names, so the
// payloads accept either.

type toolCallPayload struct {
	ToolID      string         `json:"tool_id"`
	ToolIDCamel string         `json:"toolId"`
	Parameters  map[string]any `json:"parameters"`
}

type interpretPayload struct {
	Type                      string            `json:"type"`
	Message                   string            `json:"message"`
	ToolCalls                 []toolCallPayload `json:"toolCalls"`
	ToolCallsSnake            []toolCallPayload `json:"tool_calls"`
	ConfirmText               string            `json:"confirmText"`
	ConfirmationMessage       string            `json:"confirmation_message"`
	RequiresConfirmation      *bool             `json:"requiresConfirmation"`
	RequiresConfirmationSnake *bool             `json:"requires_confirmation"`
	SessionID                 string            `json:"sessionId"`
	SessionIDSnake            string            `json:"session_id"`
}

func (p interpretPayload) normalize() Interpretation {
	calls := p.ToolCalls
	if len(calls) == 0 {
		calls = p.ToolCallsSnake
	}

	result := Interpretation{
		Type:                 InterpretationType(p.Type),
		Message:              p.Message,
		ConfirmText:          firstNonEmpty(p.ConfirmText, p.ConfirmationMessage),
		SessionID:            firstNonEmpty(p.SessionID, p.SessionIDSnake),
		RequiresConfirmation: true,
	}

	switch {
	case p.RequiresConfirmation != nil:
		result.RequiresConfirmation = *p.RequiresConfirmation
	case p.RequiresConfirmationSnake != nil:
		result.RequiresConfirmation = *p.RequiresConfirmationSnake
	}
	if result.Type != TypeToolCall {
		result.RequiresConfirmation = false
	}

	for _, c := range calls {
		result.ToolCalls = append(result.ToolCalls, entity.ToolCall{
			ToolID:     firstNonEmpty(c.ToolIDCamel, c.ToolID),
			Parameters: c.Parameters,
		})
	}

	return result
}

type executeData struct {
	TTSMessage      string `json:"tts_message"`
	TTSMessageCamel string `json:"ttsMessage"`
	RawData         any    `json:"raw_data"`
	RawDataCamel    any    `json:"rawData"`
}

type executePayload struct {
	Success        *bool               `json:"success" validate:"required"`
	ToolID         string              `json:"toolId"`
	ToolIDSnake    string              `json:"tool_id"`
	Data           *executeData        `json:"data"`
	Error          jsoniter.RawMessage `json:"error"`
	Message        string              `json:"message"`
	SessionID      string              `json:"sessionId"`
	SessionIDSnake string              `json:"session_id"`
}

func (p executePayload) normalize() Execution {
	result := Execution{
		Success:   *p.Success,
		ToolID:    firstNonEmpty(p.ToolID, p.ToolIDSnake),
		SessionID: firstNonEmpty(p.SessionID, p.SessionIDSnake),
	}

	if p.Data != nil {
		result.TTSMessage = firstNonEmpty(p.Data.TTSMessage, p.Data.TTSMessageCamel)
		result.RawData = p.Data.RawData
		if result.RawData == nil {
			result.RawData = p.Data.RawDataCamel
		}
	}

	if !result.Success {
		result.Error = decodeExecutionError(p.Error)
		if result.Error == nil {
			result.Error = &ExecutionError{}
		}
		if result.Error.Message == "" {
			result.Error.Message = firstNonEmpty(p.Message, result.TTSMessage)
		}
	}

	return result
}

func decodeExecutionError(raw jsoniter.RawMessage) *ExecutionError {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return &ExecutionError{Message: text}
	}

	var e ExecutionError
	if err := json.Unmarshal(raw, &e); err == nil {
		return &e
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
