package voice

import (
	"VoiceAssistant/internal/entity"
	"VoiceAssistant/pkg/nlp"
)

type ClassifyRequest struct {
	Text string `json:"text" validate:"required,max=500"`
}

type ClassifyResponse struct {
	Classification      nlp.Classification `json:"classification"`
	Entities            nlp.Entities       `json:"entities"`
	Validation          nlp.Validation     `json:"validation"`
	ConfirmationMessage string             `json:"confirmationMessage"`
}

type HistoryResponse struct {
	Interactions []entity.Interaction `json:"interactions"`
	Total        int                  `json:"total"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}

// Client to server websocket frame types.
const (
	MsgHello        = "hello"
	MsgStart        = "start"
	MsgStop         = "stop"
	MsgTranscript   = "transcript"
	MsgCaptureError = "capture_error"
	MsgCaptureEnd   = "capture_end"
	MsgSpeechStart  = "speech_start"
	MsgSpeechEnd    = "speech_end"
	MsgSpeechError  = "speech_error"
	MsgConfirm      = "confirm"
	MsgCancel       = "cancel"
	MsgRetry        = "retry"
	MsgDismiss      = "dismiss"
	MsgLogout       = "logout"
	MsgText         = "text"
)

// Server to client websocket frame types.
const (
	MsgState          = "state"
	MsgRecognizeStart = "recognize_start"
	MsgRecognizeStop  = "recognize_stop"
	MsgSpeak          = "speak"
	MsgSpeakCancel    = "speak_cancel"
	MsgError          = "error"
)

type ClientMessage struct {
	Type        string `json:"type" validate:"required"`
	Text        string `json:"text,omitempty"`
	Final       bool   `json:"final,omitempty"`
	Code        string `json:"code,omitempty"`
	ID          string `json:"id,omitempty"`
	Recognition bool   `json:"recognition,omitempty"`
	Synthesis   bool   `json:"synthesis,omitempty"`
}

type ServerMessage struct {
	Type     string               `json:"type"`
	State    *entity.SessionState `json:"state,omitempty"`
	ID       string               `json:"id,omitempty"`
	Text     string               `json:"text,omitempty"`
	Lang     string               `json:"lang,omitempty"`
	Rate     float64              `json:"rate,omitempty"`
	Interim  bool                 `json:"interim,omitempty"`
	Continue bool                 `json:"continuous,omitempty"`
	Error    string               `json:"error,omitempty"`
}
