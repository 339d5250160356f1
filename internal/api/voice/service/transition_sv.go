package voiceService

import (
	"errors"
	"strings"

	"VoiceAssistant/internal/api/voice"
	"VoiceAssistant/internal/entity"
	"VoiceAssistant/pkg/assistant"
	"VoiceAssistant/pkg/nlp"
	"VoiceAssistant/pkg/speech"

	"github.com/sirupsen/logrus"
)

func (s *Session) startup() {
	if s.deps.Recorder == nil || !s.deps.Recorder.Supported() {
		s.log.WithFields(s.fields()).Warn("Speech recognition unavailable for session")
		s.state.StatusMessage = msgCaptureUnsupported
		s.touch()
	}
	if s.deps.Narrator == nil || !s.deps.Narrator.Supported() {
		s.log.WithFields(s.fields()).Warn("Speech synthesis unavailable for session")
	}
}

func (s *Session) onStartCapture() {
	rec := s.deps.Recorder
	if rec == nil || !rec.Supported() {
		s.log.WithFields(s.fields()).Debug("Capture requested without a recognizer")
		return
	}

	switch s.state.Stage {
	case entity.StageIdle, entity.StageInterpreting, entity.StageConfirming, entity.StageExecuting:
	default:
		s.log.WithFields(s.fields()).Debug("Capture request ignored")
		return
	}

	if s.deps.Narrator != nil {
		s.deps.Narrator.Cancel()
	}

	if err := rec.Start(s.ctx); err != nil {
		s.onCaptureStartFailed(err)
		return
	}

	s.state.Listening = true
	s.state.Transcript = ""
	if s.state.Stage == entity.StageIdle {
		s.setStage(entity.StageRecording, "")
		return
	}
	s.touch()
}

func (s *Session) onCaptureStartFailed(err error) {
	s.state.Listening = false

	if errors.Is(err, speech.ErrPermissionDenied) {
		if s.state.Stage == entity.StageIdle {
			s.setStage(entity.StageIdle, err.Error())
		} else {
			s.touch()
		}
		s.narrate(err.Error())
		return
	}

	if s.state.Stage != entity.StageIdle {
		s.log.WithFields(s.fields()).WithField("error", err.Error()).Warn("Failed to start capture")
		s.touch()
		return
	}
	s.fail(err, lastRequest{kind: requestCapture}, err.Error())
}

func (s *Session) onStopCapture() {
	if s.deps.Recorder == nil {
		return
	}
	s.deps.Recorder.Stop()
}

func (s *Session) onCapture(ev speech.CaptureEvent) {
	switch ev.Type {
	case speech.CaptureResult:
		if !ev.Final {
			s.state.Transcript = ev.Text
			s.touch()
			return
		}
		s.state.Listening = false
		s.onFinalTranscript(ev.Text)
	case speech.CaptureFailed:
		s.onCaptureError(ev.Err)
	case speech.CaptureEnded:
		s.onCaptureEnded()
	}
}

func (s *Session) onFinalTranscript(text string) {
	text = strings.TrimSpace(text)
	s.touch()

	switch s.state.Stage {
	case entity.StageRecording:
		if text == "" {
			s.state.Transcript = ""
			s.setStage(entity.StageIdle, msgNoSpeech)
			return
		}
		s.beginTurn(text)

	case entity.StageConfirming:
		if text == "" {
			return
		}
		switch s.matcher.match(text) {
		case replyCancel:
			s.state.Transcript = text
			s.cancelPending()
		case replyConfirm:
			s.state.Transcript = text
			s.confirmPending()
		default:
			s.log.WithFields(s.fields()).Debug("New utterance replaces pending action")
			s.recordTurn(outcomeCancelled, "")
			s.beginTurn(text)
		}

	case entity.StageInterpreting, entity.StageExecuting:
		if text == "" {
			return
		}
		s.log.WithFields(s.fields()).Debug("New utterance supersedes request in flight")
		s.beginTurn(text)

	default:
		s.log.WithFields(s.fields()).Debug("Transcript ignored")
	}
}

func (s *Session) onCaptureError(err error) {
	if err == nil {
		err = &speech.CaptureError{Message: "语音识别出错"}
	}
	s.state.Listening = false

	if s.state.Stage != entity.StageRecording {
		s.log.WithFields(s.fields()).WithField("error", err.Error()).Warn("Capture failed outside recording")
		s.touch()
		return
	}

	if errors.Is(err, speech.ErrPermissionDenied) {
		s.setStage(entity.StageIdle, err.Error())
		s.narrate(err.Error())
		return
	}
	s.fail(err, lastRequest{kind: requestCapture}, err.Error())
}

func (s *Session) onCaptureEnded() {
	s.state.Listening = false
	s.touch()

	if s.state.Stage != entity.StageRecording {
		return
	}
	if text := strings.TrimSpace(s.state.Transcript); text != "" {
		s.beginTurn(text)
		return
	}
	s.setStage(entity.StageIdle, msgNoSpeech)
}

func (s *Session) onSubmit(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	switch s.state.Stage {
	case entity.StageIdle, entity.StageCompleted, entity.StageError:
		s.stopTimer()
		s.state.LastResult = nil
		s.state.LastError = nil
		s.last = lastRequest{}
		s.setStage(entity.StageRecording, "")
	}
	s.onFinalTranscript(text)
}

func (s *Session) beginTurn(query string) {
	s.stopTimer()
	s.state.Pending = nil
	s.state.LastResult = nil
	s.state.LastError = nil
	s.state.Transcript = query
	s.turn = turnInfo{query: query}

	if rejected := s.preflight(query); rejected != nil {
		// drop whatever is still in flight
		s.seq++
		s.last = lastRequest{}
		msg := rejected.Error()
		s.log.WithFields(s.fields()).WithField("errors", rejected.Errors).Info("Utterance rejected by local validation")
		s.setStage(entity.StageIdle, msg)
		s.narrate(msg)
		s.recordTurn(outcomeRejected, msg)
		return
	}

	s.setStage(entity.StageInterpreting, "")
	s.callInterpret(query)
}

// preflight returns an error when the utterance confidently carries a
// recognized intent whose entities are invalid. Weak matches go to the
// backend, which has the final say.
func (s *Session) preflight(query string) *voice.LocalValidationError {
	if !s.cfg.LocalValidation || s.deps.Classifier == nil {
		return nil
	}

	c := s.deps.Classifier.Classify(query)
	if c.Intent == nlp.IntentUnknown {
		return nil
	}
	minKeywords := s.cfg.MinRejectKeywords
	if minKeywords < 1 {
		minKeywords = 1
	}
	if len(c.MatchedKeywords) < minKeywords {
		return nil
	}

	entities := s.deps.Classifier.ExtractEntities(query, c.Intent)
	v := s.deps.Classifier.Validate(c.Intent, entities)
	if v.IsValid {
		return nil
	}
	return &voice.LocalValidationError{Errors: v.Errors}
}

func (s *Session) onInterpreted(ev interpretedEvent) {
	if ev.seq != s.seq || s.state.Stage != entity.StageInterpreting {
		s.log.WithFields(s.fields()).WithField("result_seq", ev.seq).Debug("Discarding stale interpretation")
		return
	}

	if ev.err != nil {
		msg := errorMessage(ev.err, msgInterpretError)
		s.fail(ev.err, lastRequest{kind: requestInterpret, query: ev.query}, msg)
		s.recordTurn(outcomeError, msg)
		return
	}

	res := ev.result
	s.adoptSessionID(res.SessionID)
	s.turn.kind = string(res.Type)

	switch res.Type {
	case assistant.TypeDirectResponse:
		s.state.LastResult = &entity.ExecutionResult{Success: true, Message: res.Message}
		s.setStage(entity.StageCompleted, res.Message)
		s.narrate(res.Message)
		s.schedule(s.cfg.ResetDelay, timerReset)
		s.recordTurn(outcomeAnswered, res.Message)

	case assistant.TypeClarification:
		s.setStage(entity.StageIdle, res.Message)
		s.narrate(res.Message)
		s.recordTurn(outcomeClarification, res.Message)

	case assistant.TypeToolCall:
		s.turn.toolIDs = toolIDs(res.ToolCalls)
		if !res.RequiresConfirmation {
			s.setStage(entity.StageExecuting, "")
			s.callExecute(res.ToolCalls, "")
			return
		}
		s.state.Pending = &entity.PendingAction{ToolCalls: res.ToolCalls, Prompt: res.ConfirmText}
		s.setStage(entity.StageConfirming, "")
		s.narrate(res.ConfirmText)
		s.schedule(s.cfg.ConfirmTimeout, timerConfirm)
	}
}

func (s *Session) onConfirm() {
	if s.state.Stage != entity.StageConfirming {
		s.log.WithFields(s.fields()).Debug("Confirm ignored")
		return
	}
	s.confirmPending()
}

func (s *Session) confirmPending() {
	if s.state.Pending == nil {
		return
	}
	s.stopTimer()
	if s.deps.Narrator != nil {
		s.deps.Narrator.Cancel()
	}

	pending := s.state.Pending
	s.setStage(entity.StageExecuting, "")
	s.callExecute(pending.ToolCalls, pending.Prompt)
}

func (s *Session) cancelPending() {
	s.stopTimer()
	s.state.Pending = nil
	s.setStage(entity.StageIdle, msgCancelled)
	s.narrate(msgCancelled)
	s.recordTurn(outcomeCancelled, msgCancelled)
}

func (s *Session) onCancel() {
	switch s.state.Stage {
	case entity.StageConfirming:
		s.cancelPending()

	case entity.StageInterpreting, entity.StageExecuting:
		// results of the abandoned call are dropped on arrival
		s.seq++
		s.last = lastRequest{}
		s.cancelPending()

	case entity.StageRecording:
		if s.deps.Recorder != nil {
			s.deps.Recorder.Stop()
		}
		s.state.Listening = false
		s.state.Transcript = ""
		s.setStage(entity.StageIdle, "")

	default:
		s.log.WithFields(s.fields()).Debug("Cancel ignored")
	}
}

func (s *Session) onExecuted(ev executedEvent) {
	if ev.seq != s.seq || s.state.Stage != entity.StageExecuting {
		s.log.WithFields(s.fields()).WithField("result_seq", ev.seq).Debug("Discarding stale execution")
		return
	}

	s.state.Pending = nil

	if ev.err != nil {
		msg := errorMessage(ev.err, msgExecuteError)
		s.fail(ev.err, lastRequest{kind: requestExecute, calls: ev.calls, prompt: ev.prompt}, msg)
		s.recordTurn(outcomeError, msg)
		return
	}

	res := ev.result
	s.adoptSessionID(res.SessionID)

	if res.Success {
		msg := res.TTSMessage
		if msg == "" {
			msg = entity.StageCompleted.StatusMessage()
		}
		s.state.LastResult = &entity.ExecutionResult{
			Success: true,
			ToolID:  res.ToolID,
			Message: msg,
			Data:    res.RawData,
		}
		s.setStage(entity.StageCompleted, msg)
		s.narrate(msg)
		s.schedule(s.cfg.ResetDelay, timerReset)
		s.recordTurn(outcomeCompleted, msg)
		return
	}

	failure := &voice.BusinessFailure{}
	if res.Error != nil {
		failure.Code = res.Error.Code
		failure.Message = res.Error.Message
	}
	msg := failure.Message
	if msg == "" {
		msg = msgActionFailed
	}

	s.log.WithFields(s.fields()).WithFields(logrus.Fields{
		"tool_id": res.ToolID,
		"code":    failure.Code,
	}).Info("Tool execution reported failure")

	if s.fatalCodes[failure.Code] {
		s.state.LastError = &entity.ErrorDescriptor{
			Kind:    string(voice.KindBusinessFailure),
			Message: msg,
			Code:    failure.Code,
		}
		s.last = lastRequest{}
		s.setStage(entity.StageError, msg)
		s.narrate(msg)
		s.scheduleErrorReset()
		s.recordTurn(outcomeFailed, msg)
		return
	}

	s.state.LastResult = &entity.ExecutionResult{
		Success:   false,
		ToolID:    res.ToolID,
		Message:   msg,
		Data:      res.RawData,
		ErrorCode: failure.Code,
	}
	s.setStage(entity.StageCompleted, msg)
	s.narrate(msg)
	s.schedule(s.cfg.ResetDelay, timerReset)
	s.recordTurn(outcomeFailed, msg)
}

func (s *Session) onRetry() {
	if s.state.Stage != entity.StageError || s.last.kind == requestNone {
		s.log.WithFields(s.fields()).Debug("Retry ignored")
		return
	}

	retry := s.last
	s.stopTimer()
	s.state.LastError = nil

	switch retry.kind {
	case requestInterpret:
		s.state.Transcript = retry.query
		s.setStage(entity.StageInterpreting, "")
		s.callInterpret(retry.query)
	case requestExecute:
		if retry.prompt != "" {
			s.state.Pending = &entity.PendingAction{ToolCalls: retry.calls, Prompt: retry.prompt}
		}
		s.setStage(entity.StageExecuting, "")
		s.callExecute(retry.calls, retry.prompt)
	case requestCapture:
		s.last = lastRequest{}
		s.setStage(entity.StageIdle, "")
		s.onStartCapture()
	}
}

func (s *Session) onDismiss() {
	if s.state.Stage != entity.StageError {
		return
	}
	s.stopTimer()
	s.state.LastError = nil
	s.last = lastRequest{}
	s.setStage(entity.StageIdle, "")
}

func (s *Session) onTimer(ev timerEvent) {
	if ev.gen != s.timerGen {
		return
	}
	s.timer = nil

	switch {
	case ev.kind == timerConfirm && s.state.Stage == entity.StageConfirming:
		s.state.Pending = nil
		s.setStage(entity.StageIdle, msgConfirmTimeout)
		s.narrate(msgConfirmTimeout)
		s.recordTurn(outcomeTimeout, msgConfirmTimeout)

	case ev.kind == timerReset && s.state.Stage == entity.StageCompleted:
		s.state.LastResult = nil
		s.state.Pending = nil
		s.state.Transcript = ""
		s.setStage(entity.StageIdle, "")

	case ev.kind == timerReset && s.state.Stage == entity.StageError:
		s.state.LastError = nil
		s.last = lastRequest{}
		s.setStage(entity.StageIdle, "")
	}
}

func (s *Session) onLogout() {
	s.seq++
	s.stopTimer()

	if s.deps.Recorder != nil {
		s.deps.Recorder.Stop()
	}
	if s.deps.Narrator != nil {
		s.deps.Narrator.Cancel()
	}

	s.state = entity.SessionState{
		Stage:         entity.StageIdle,
		StatusMessage: entity.StageIdle.StatusMessage(),
	}
	s.history = nil
	s.last = lastRequest{}
	s.turn = turnInfo{}
	s.enqueuePersist(persistJob{remove: true})
	s.touch()

	s.log.WithFields(s.fields()).Info("Session cleared on logout")
}

// fail moves the session to the error stage. retry is what Retry re-issues;
// a zero value makes the error final.
func (s *Session) fail(err error, retry lastRequest, msg string) {
	desc := &entity.ErrorDescriptor{
		Kind:      string(voice.KindOf(err)),
		Message:   msg,
		Retryable: retry.kind != requestNone,
	}

	var (
		serverErr  *assistant.ServerError
		captureErr *speech.CaptureError
	)
	if errors.As(err, &serverErr) {
		desc.Status = serverErr.Status
		desc.Detail = serverErr.Detail
	}
	if errors.As(err, &captureErr) {
		desc.Code = captureErr.Reason
	}

	s.log.WithFields(s.fields()).WithFields(logrus.Fields{
		"kind":  desc.Kind,
		"error": err.Error(),
	}).Warn("Session request failed")

	s.state.LastError = desc
	s.state.Pending = nil
	s.last = retry
	s.setStage(entity.StageError, msg)
	s.narrate(msg)
	s.scheduleErrorReset()
}

func (s *Session) scheduleErrorReset() {
	if s.cfg.ErrorResetDelay > 0 {
		s.schedule(s.cfg.ErrorResetDelay, timerReset)
		return
	}
	s.stopTimer()
}

func errorMessage(err error, fallback string) string {
	var (
		networkErr *assistant.NetworkError
		serverErr  *assistant.ServerError
	)
	switch {
	case errors.As(err, &networkErr):
		return msgNetworkError
	case errors.As(err, &serverErr) && serverErr.Detail != "":
		return serverErr.Detail
	default:
		return fallback
	}
}

func toolIDs(calls []entity.ToolCall) []string {
	ids := make([]string, 0, len(calls))
	for _, c := range calls {
		ids = append(ids, c.ToolID)
	}
	return ids
}
