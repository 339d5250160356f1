package voiceService

import (
	"context"
	"sync"
	"time"

	"VoiceAssistant/internal/entity"
	"VoiceAssistant/pkg/assistant"
	contextPkg "VoiceAssistant/pkg/context"
	"VoiceAssistant/pkg/nlp"
	"VoiceAssistant/pkg/speech"
	"VoiceAssistant/pkg/utils"

	"github.com/sirupsen/logrus"
)

const (
	msgNoSpeech           = "没有识别到语音，请重试"
	msgCancelled          = "已取消操作"
	msgConfirmTimeout     = "等待确认超时"
	msgNetworkError       = "网络连接失败，请检查网络后重试"
	msgInterpretError     = "抱歉，处理您的请求时出现了错误"
	msgExecuteError       = "执行过程中出现了错误"
	msgActionFailed       = "操作未能完成"
	msgCaptureUnsupported = "启动语音识别失败: 您的浏览器不支持语音识别功能"
)

const (
	outcomeAnswered      = "answered"
	outcomeClarification = "clarification"
	outcomeCompleted     = "completed"
	outcomeFailed        = "failed"
	outcomeCancelled     = "cancelled"
	outcomeTimeout       = "timeout"
	outcomeRejected      = "rejected"
	outcomeError         = "error"
)

// Observer receives a copy of the session state after every change. It is
// called from the session goroutine and must not block.
type Observer func(entity.SessionState)

type SessionDeps struct {
	Log        *logrus.Logger
	Classifier nlp.IClassifier
	Recorder   CaptureAdapter
	Narrator   NarrationAdapter
	Assistant  assistant.IClient
	Snapshots  SnapshotStore
	Journal    Journal
	Utils      utils.IUtils
	User       entity.UserLoginData
}

type requestKind int

const (
	requestNone requestKind = iota
	requestInterpret
	requestExecute
	requestCapture
)

// lastRequest is what Retry re-issues.
type lastRequest struct {
	kind   requestKind
	query  string
	calls  []entity.ToolCall
	prompt string
}

type turnInfo struct {
	query   string
	kind    string
	toolIDs []string
}

type timerKind int

const (
	timerConfirm timerKind = iota
	timerReset
)

type event interface{}

type (
	startCaptureEvent struct{}
	stopCaptureEvent  struct{}
	submitEvent       struct{ text string }
	confirmEvent      struct{}
	cancelEvent       struct{}
	retryEvent        struct{}
	dismissEvent      struct{}
	logoutEvent       struct{}
	interpretedEvent  struct {
		seq    uint64
		query  string
		result *assistant.Interpretation
		err    error
	}
	executedEvent struct {
		seq    uint64
		calls  []entity.ToolCall
		prompt string
		result *assistant.Execution
		err    error
	}
	timerEvent struct {
		gen  uint64
		kind timerKind
	}
)

type persistJob struct {
	snapshot entity.SessionSnapshot
	remove   bool
}

// Session is the interaction state machine of one client. All transitions run
// on the goroutine executing Run; the exported methods only post events to it.
type Session struct {
	cfg        Config
	deps       SessionDeps
	log        *logrus.Logger
	matcher    *confirmationMatcher
	fatalCodes map[string]bool

	events  chan event
	persist chan persistJob
	done    chan struct{}

	mu               sync.RWMutex
	published        entity.SessionState
	publishedHistory []entity.Turn
	observers        []observerEntry
	observerN        int

	// owned by the Run goroutine
	ctx      context.Context
	state    entity.SessionState
	seq      uint64
	timerGen uint64
	timer    *time.Timer
	last     lastRequest
	turn     turnInfo
	history  []entity.Turn
	dirty    bool
}

type observerEntry struct {
	id int
	fn Observer
}

// NewSession builds an idle session, restoring the session id and history
// from snapshot when one is given.
func NewSession(cfg Config, deps SessionDeps, snapshot *entity.SessionSnapshot) *Session {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	if deps.Utils == nil {
		deps.Utils = utils.New()
	}

	affirmative, negative := cfg.Affirmative, cfg.Negative
	if len(affirmative) == 0 {
		affirmative = DefaultAffirmative()
	}
	if len(negative) == 0 {
		negative = DefaultNegative()
	}

	fatal := make(map[string]bool, len(cfg.FatalBusinessCodes))
	for _, code := range cfg.FatalBusinessCodes {
		fatal[code] = true
	}

	s := &Session{
		cfg:        cfg,
		deps:       deps,
		log:        deps.Log,
		matcher:    newConfirmationMatcher(affirmative, negative),
		fatalCodes: fatal,
		events:     make(chan event, 64),
		persist:    make(chan persistJob, 1),
		done:       make(chan struct{}),
		state: entity.SessionState{
			Stage:         entity.StageIdle,
			StatusMessage: entity.StageIdle.StatusMessage(),
		},
	}

	if snapshot != nil {
		s.state.SessionID = snapshot.SessionID
		s.history = append(s.history, snapshot.History...)
	}
	s.published = cloneState(s.state)
	s.publishedHistory = append([]entity.Turn(nil), s.history...)

	return s
}

// Run processes events until ctx is done. It must be called exactly once.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	defer close(s.done)
	defer s.stopTimer()

	go s.persistLoop(ctx)

	var capture <-chan speech.CaptureEvent
	if s.deps.Recorder != nil {
		capture = s.deps.Recorder.Events()
	}

	s.startup()
	s.publish()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			s.dispatch(ev)
		case ev := <-capture:
			s.onCapture(ev)
		}

		if s.dirty {
			s.publish()
		}
	}
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) StartCapture()      { s.post(startCaptureEvent{}) }
func (s *Session) StopCapture()       { s.post(stopCaptureEvent{}) }
func (s *Session) Submit(text string) { s.post(submitEvent{text: text}) }
func (s *Session) Confirm()           { s.post(confirmEvent{}) }
func (s *Session) Cancel()            { s.post(cancelEvent{}) }
func (s *Session) Retry()             { s.post(retryEvent{}) }
func (s *Session) Dismiss()           { s.post(dismissEvent{}) }
func (s *Session) Logout()            { s.post(logoutEvent{}) }

func (s *Session) State() entity.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneState(s.published)
}

// History returns the finished turns, oldest first.
func (s *Session) History() []entity.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entity.Turn(nil), s.publishedHistory...)
}

// Subscribe registers an observer and returns a function removing it.
func (s *Session) Subscribe(o Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observerN++
	id := s.observerN
	s.observers = append(s.observers, observerEntry{id: id, fn: o})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.observers {
			if e.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) publish() {
	s.dirty = false
	s.state.Seq = s.seq
	snapshot := cloneState(s.state)

	s.mu.Lock()
	s.published = snapshot
	s.publishedHistory = append(s.publishedHistory[:0:0], s.history...)
	observers := make([]Observer, 0, len(s.observers))
	for _, e := range s.observers {
		observers = append(observers, e.fn)
	}
	s.mu.Unlock()

	for _, o := range observers {
		o(cloneState(snapshot))
	}
}

func (s *Session) dispatch(ev event) {
	switch ev := ev.(type) {
	case startCaptureEvent:
		s.onStartCapture()
	case stopCaptureEvent:
		s.onStopCapture()
	case submitEvent:
		s.onSubmit(ev.text)
	case confirmEvent:
		s.onConfirm()
	case cancelEvent:
		s.onCancel()
	case retryEvent:
		s.onRetry()
	case dismissEvent:
		s.onDismiss()
	case logoutEvent:
		s.onLogout()
	case interpretedEvent:
		s.onInterpreted(ev)
	case executedEvent:
		s.onExecuted(ev)
	case timerEvent:
		s.onTimer(ev)
	}
}

func (s *Session) fields() logrus.Fields {
	return logrus.Fields{
		"user_id":    s.deps.User.ID,
		"session_id": s.state.SessionID,
		"stage":      s.state.Stage,
		"seq":        s.seq,
	}
}

func (s *Session) requestContext() context.Context {
	requestID, err := s.deps.Utils.NewULIDFromTimestamp(time.Now())
	if err != nil {
		requestID = "unknown"
	}
	return contextPkg.WithRequestID(s.ctx, requestID)
}

func (s *Session) callInterpret(query string) {
	s.seq++
	seq := s.seq
	s.last = lastRequest{kind: requestInterpret, query: query}

	req := assistant.InterpretRequest{
		Query:     query,
		SessionID: s.state.SessionID,
		UserID:    s.deps.User.NumericID(),
	}
	ctx := s.requestContext()

	s.log.WithFields(s.fields()).WithField("request_id", contextPkg.GetRequestID(ctx)).Debug("Interpreting utterance")

	go func() {
		if s.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()
		}
		result, err := s.deps.Assistant.Interpret(ctx, req)
		s.post(interpretedEvent{seq: seq, query: query, result: result, err: err})
	}()
}

func (s *Session) callExecute(calls []entity.ToolCall, prompt string) {
	s.seq++
	seq := s.seq
	s.last = lastRequest{kind: requestExecute, calls: calls, prompt: prompt}

	req := assistant.ExecuteRequest{
		ToolCalls: calls,
		SessionID: s.state.SessionID,
		UserID:    s.deps.User.NumericID(),
	}
	ctx := s.requestContext()

	s.log.WithFields(s.fields()).WithField("request_id", contextPkg.GetRequestID(ctx)).Debug("Executing tool calls")

	go func() {
		if s.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()
		}
		result, err := s.deps.Assistant.Execute(ctx, req)
		s.post(executedEvent{seq: seq, calls: calls, prompt: prompt, result: result, err: err})
	}()
}

func (s *Session) schedule(d time.Duration, kind timerKind) {
	s.stopTimer()
	gen := s.timerGen
	s.timer = time.AfterFunc(d, func() {
		s.post(timerEvent{gen: gen, kind: kind})
	})
}

// stopTimer invalidates any pending timer, including one whose event is
// already queued.
func (s *Session) stopTimer() {
	s.timerGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) narrate(text string) {
	n := s.deps.Narrator
	if n == nil || !n.Supported() || text == "" {
		return
	}
	if _, err := n.Speak(s.ctx, text); err != nil {
		s.log.WithFields(s.fields()).WithField("error", err.Error()).Warn("Narration failed")
	}
}

func (s *Session) setStage(stage entity.Stage, status string) {
	if status == "" {
		status = stage.StatusMessage()
	}
	s.state.Stage = stage
	s.state.StatusMessage = status
	s.dirty = true
}

func (s *Session) touch() {
	s.dirty = true
}

func (s *Session) adoptSessionID(id string) {
	if id == "" || id == s.state.SessionID {
		return
	}
	s.state.SessionID = id
	s.dirty = true
	s.savePersisted()
}

func (s *Session) recordTurn(outcome, message string) {
	turn := entity.Turn{
		Query:     s.turn.query,
		Type:      s.turn.kind,
		ToolIDs:   s.turn.toolIDs,
		Outcome:   outcome,
		Message:   message,
		CreatedAt: time.Now(),
	}

	s.history = append(s.history, turn)
	if limit := s.cfg.HistoryLimit; limit > 0 && len(s.history) > limit {
		s.history = append([]entity.Turn(nil), s.history[len(s.history)-limit:]...)
	}
	s.savePersisted()

	if s.deps.Journal == nil || s.deps.User.ID == "" {
		return
	}

	id, err := s.deps.Utils.NewULIDFromTimestamp(turn.CreatedAt)
	if err != nil {
		s.log.WithFields(s.fields()).WithField("error", err.Error()).Error("Failed to generate interaction id")
		return
	}
	interaction := entity.Interaction{
		ID:        id,
		UserID:    s.deps.User.ID,
		SessionID: s.state.SessionID,
		Query:     turn.Query,
		Type:      turn.Type,
		ToolIDs:   turn.ToolIDs,
		Outcome:   turn.Outcome,
		Message:   turn.Message,
		CreatedAt: turn.CreatedAt,
	}
	ctx := s.requestContext()

	go func() {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.deps.Journal.Record(ctx, interaction); err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": contextPkg.GetRequestID(ctx),
				"user_id":    interaction.UserID,
				"error":      err.Error(),
			}).Error("Failed to journal interaction")
		}
	}()
}

func (s *Session) savePersisted() {
	s.enqueuePersist(persistJob{snapshot: entity.SessionSnapshot{
		SessionID: s.state.SessionID,
		History:   append([]entity.Turn(nil), s.history...),
		SavedAt:   time.Now(),
	}})
}

func (s *Session) enqueuePersist(job persistJob) {
	if s.deps.Snapshots == nil || s.deps.User.ID == "" {
		return
	}
	// only the latest job matters
	for {
		select {
		case s.persist <- job:
			return
		default:
			select {
			case <-s.persist:
			default:
			}
		}
	}
}

// persistLoop writes snapshots until Run returns, then flushes the job
// still queued.
func (s *Session) persistLoop(ctx context.Context) {
	if s.deps.Snapshots == nil {
		return
	}

	for {
		select {
		case <-s.done:
			// Run has returned; the last turn may still be queued
			select {
			case job := <-s.persist:
				s.runPersist(ctx, job)
			default:
			}
			return
		case job := <-s.persist:
			s.runPersist(ctx, job)
		}
	}
}

func (s *Session) runPersist(ctx context.Context, job persistJob) {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var err error
	if job.remove {
		err = s.deps.Snapshots.Delete(opCtx, s.deps.User.ID)
	} else {
		err = s.deps.Snapshots.Save(opCtx, s.deps.User.ID, job.snapshot)
	}

	if err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id": s.deps.User.ID,
			"remove":  job.remove,
			"error":   err.Error(),
		}).Error("Failed to persist session snapshot")
	}
}

func cloneState(st entity.SessionState) entity.SessionState {
	out := st
	if st.Pending != nil {
		p := *st.Pending
		p.ToolCalls = append([]entity.ToolCall(nil), st.Pending.ToolCalls...)
		out.Pending = &p
	}
	if st.LastResult != nil {
		r := *st.LastResult
		out.LastResult = &r
	}
	if st.LastError != nil {
		e := *st.LastError
		out.LastError = &e
	}
	return out
}
