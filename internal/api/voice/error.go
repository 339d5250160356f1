package voice

import (
	"errors"
	"fmt"

	"VoiceAssistant/pkg/assistant"
	"VoiceAssistant/pkg/response"
	"VoiceAssistant/pkg/speech"
)

var (
	ErrSessionNotFound    = response.NewError(404, "session not found")
	ErrInvalidSession     = response.NewError(400, "invalid session state")
	ErrInvalidMessage     = response.NewError(400, "invalid websocket message")
	ErrUnauthorizedAccess = response.NewError(403, "unauthorized access to voice features")
	ErrRateLimitExceeded  = response.NewError(429, "rate limit exceeded")
	ErrHistoryUnavailable = response.NewError(503, "interaction history unavailable")
)

type ErrorKind string

const (
	KindUnsupportedPlatform ErrorKind = "UnsupportedPlatform"
	KindPermissionDenied    ErrorKind = "PermissionDenied"
	KindCaptureError        ErrorKind = "CaptureError"
	KindNetworkError        ErrorKind = "NetworkError"
	KindServerError         ErrorKind = "ServerError"
	KindBusinessFailure     ErrorKind = "BusinessFailure"
	KindValidationError     ErrorKind = "ValidationError"
	KindUnknown             ErrorKind = "Unknown"
)

// BusinessFailure is an execute call that reached the backend but whose
// action could not be carried out.
type BusinessFailure struct {
	Code    string
	Message string
}

func (e *BusinessFailure) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LocalValidationError is raised when extracted entities fail validation
// before any network call is made.
type LocalValidationError struct {
	Errors []string
}

func (e *LocalValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	return e.Errors[0]
}

func KindOf(err error) ErrorKind {
	var (
		captureErr    *speech.CaptureError
		networkErr    *assistant.NetworkError
		serverErr     *assistant.ServerError
		validationErr *assistant.ValidationError
		localErr      *LocalValidationError
		businessErr   *BusinessFailure
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, speech.ErrUnsupportedPlatform):
		return KindUnsupportedPlatform
	case errors.Is(err, speech.ErrPermissionDenied):
		return KindPermissionDenied
	case errors.As(err, &captureErr):
		return KindCaptureError
	case errors.As(err, &networkErr):
		return KindNetworkError
	case errors.As(err, &serverErr):
		return KindServerError
	case errors.As(err, &validationErr), errors.As(err, &localErr):
		return KindValidationError
	case errors.As(err, &businessErr):
		return KindBusinessFailure
	default:
		return KindUnknown
	}
}
