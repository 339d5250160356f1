package speech

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnsupportedPlatform = errors.New("speech capability unavailable on this platform")
	ErrPermissionDenied    = errors.New("麦克风权限被拒绝")
	ErrClosed              = errors.New("speech adapter closed")
)

const DefaultLanguage = "zh-CN"

// Engine error codes as reported by platform recognizers and synthesizers.
const (
	CodeNotAllowed           = "not-allowed"
	CodeServiceNotAllowed    = "service-not-allowed"
	CodeNetwork              = "network"
	CodeNoSpeech             = "no-speech"
	CodeAborted              = "aborted"
	CodeAudioCapture         = "audio-capture"
	CodeSynthesisUnavailable = "synthesis-unavailable"
	CodeSynthesisFailed      = "synthesis-failed"
	CodeInterrupted          = "interrupted"
	CodeCanceled             = "canceled"
)

// CaptureError is a recoverable runtime failure of the recognition engine.
type CaptureError struct {
	Reason  string
	Message string
}

func (e *CaptureError) Error() string {
	return e.Message
}

// NarrationError is a synthesis failure for one utterance.
type NarrationError struct {
	UtteranceID string
	Reason      string
	Message     string
}

func (e *NarrationError) Error() string {
	return e.Message
}

// CaptureErrorFromCode maps a recognizer error code to the error surfaced to
// the session.
func CaptureErrorFromCode(code string) error {
	switch code {
	case CodeNotAllowed:
		return ErrPermissionDenied
	case CodeNetwork:
		return &CaptureError{Reason: code, Message: "网络错误，请检查网络连接"}
	case CodeServiceNotAllowed:
		return &CaptureError{Reason: code, Message: "语音识别服务不可用"}
	case CodeNoSpeech:
		return &CaptureError{Reason: code, Message: "没有检测到语音"}
	case CodeAborted:
		return &CaptureError{Reason: code, Message: "语音识别已中止"}
	case CodeAudioCapture:
		return &CaptureError{Reason: code, Message: "无法访问麦克风"}
	default:
		return &CaptureError{Reason: code, Message: fmt.Sprintf("语音识别出错: %s", code)}
	}
}

func narrationErrorFromCode(id, code string) *NarrationError {
	var msg string
	switch code {
	case CodeNetwork:
		msg = "网络错误，请检查网络连接"
	case CodeSynthesisUnavailable:
		msg = "语音合成服务不可用"
	case CodeSynthesisFailed:
		msg = "语音合成失败，请重试"
	default:
		msg = fmt.Sprintf("语音合成出错: %s", code)
	}
	return &NarrationError{UtteranceID: id, Reason: code, Message: msg}
}

type RecognitionOptions struct {
	Language       string
	InterimResults bool
	Continuous     bool
}

// RecognitionEngine is the platform recognizer. It reports results back
// through the Recorder's Handle methods.
type RecognitionEngine interface {
	Available() bool
	Start(ctx context.Context, opts RecognitionOptions) error
	Stop() error
}

// SynthesisEngine is the platform synthesizer. Speak returns once playback
// has been requested and must not call back into the Narrator before
// returning.
type SynthesisEngine interface {
	Available() bool
	Speak(ctx context.Context, u Utterance) error
	Cancel() error
}

type Utterance struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	Language string  `json:"lang"`
	Rate     float64 `json:"rate"`
	Pitch    float64 `json:"pitch"`
	Volume   float64 `json:"volume"`
}

type CaptureEventType int

const (
	CaptureResult CaptureEventType = iota
	CaptureFailed
	CaptureEnded
)

type CaptureEvent struct {
	Type  CaptureEventType
	Text  string
	Final bool
	Err   error
}

type NarrationEventType int

const (
	NarrationStarted NarrationEventType = iota
	NarrationEnded
	NarrationFailed
)

type NarrationEvent struct {
	Type        NarrationEventType
	UtteranceID string
	Err         error
}
