package speech

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeRecognizer struct {
	mu        sync.Mutex
	available bool
	startErr  error
	starts    int
	stops     int
	opts      RecognitionOptions
}

func (f *fakeRecognizer) Available() bool { return f.available }

func (f *fakeRecognizer) Start(_ context.Context, opts RecognitionOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.opts = opts
	return f.startErr
}

func (f *fakeRecognizer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

type fakeSynthesizer struct {
	mu        sync.Mutex
	available bool
	speakErr  error
	calls     []string
	spoken    []Utterance
}

func (f *fakeSynthesizer) Available() bool { return f.available }

func (f *fakeSynthesizer) Speak(_ context.Context, u Utterance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "speak")
	f.spoken = append(f.spoken, u)
	return f.speakErr
}

func (f *fakeSynthesizer) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "cancel")
	return nil
}

func nextCapture(t *testing.T, r *Recorder) CaptureEvent {
	t.Helper()
	select {
	case ev := <-r.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no capture event")
		return CaptureEvent{}
	}
}

func TestRecorderStartIsIdempotent(t *testing.T) {
	engine := &fakeRecognizer{available: true}
	r := NewRecorder(engine, WithRecorderLogger(testLogger()))

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()))

	assert.Equal(t, 1, engine.starts)
	assert.True(t, r.Recording())
	assert.Equal(t, RecognitionOptions{Language: "zh-CN", InterimResults: true}, engine.opts)
}

func TestRecorderStopReturnsTranscript(t *testing.T) {
	engine := &fakeRecognizer{available: true}
	r := NewRecorder(engine, WithRecorderLogger(testLogger()))
	require.NoError(t, r.Start(context.Background()))

	r.HandleResult("查询余", false)
	ev := nextCapture(t, r)
	assert.Equal(t, CaptureEvent{Type: CaptureResult, Text: "查询余", Final: false}, ev)

	assert.Equal(t, "查询余", r.Stop())
	assert.Equal(t, 1, engine.stops)
	assert.False(t, r.Recording())

	// stopping twice does not reach the engine again
	r.Stop()
	assert.Equal(t, 1, engine.stops)

	// a new run can start after the end of the previous one
	r.HandleEnd()
	assert.Equal(t, CaptureEnded, nextCapture(t, r).Type)
	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, 2, engine.starts)
}

func TestRecorderFinalResultEndsRun(t *testing.T) {
	engine := &fakeRecognizer{available: true}
	r := NewRecorder(engine, WithRecorderLogger(testLogger()))
	require.NoError(t, r.Start(context.Background()))

	r.HandleResult("查看余额", true)
	assert.True(t, nextCapture(t, r).Final)
	assert.False(t, r.Recording())

	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, 2, engine.starts)
}

func TestRecorderUnsupported(t *testing.T) {
	assert.ErrorIs(t, NewRecorder(nil).Start(context.Background()), ErrUnsupportedPlatform)
	assert.ErrorIs(t, NewRecorder(&fakeRecognizer{}).Start(context.Background()), ErrUnsupportedPlatform)
}

func TestRecorderStartFailure(t *testing.T) {
	engine := &fakeRecognizer{available: true, startErr: errors.New("busy")}
	r := NewRecorder(engine, WithRecorderLogger(testLogger()))

	err := r.Start(context.Background())
	var captureErr *CaptureError
	require.ErrorAs(t, err, &captureErr)
	assert.Equal(t, "启动语音识别失败: busy", captureErr.Message)
	assert.False(t, r.Recording())

	engine.startErr = ErrPermissionDenied
	assert.ErrorIs(t, r.Start(context.Background()), ErrPermissionDenied)
}

func TestRecorderHandleError(t *testing.T) {
	engine := &fakeRecognizer{available: true}
	r := NewRecorder(engine, WithRecorderLogger(testLogger()))
	require.NoError(t, r.Start(context.Background()))

	r.HandleError(CodeNotAllowed)
	ev := nextCapture(t, r)
	assert.Equal(t, CaptureFailed, ev.Type)
	assert.ErrorIs(t, ev.Err, ErrPermissionDenied)
	assert.False(t, r.Recording())
}

func TestCaptureErrorFromCode(t *testing.T) {
	tests := map[string]string{
		CodeNetwork:           "网络错误，请检查网络连接",
		CodeServiceNotAllowed: "语音识别服务不可用",
		"bad-grammar":         "语音识别出错: bad-grammar",
	}
	for code, want := range tests {
		var captureErr *CaptureError
		require.ErrorAs(t, CaptureErrorFromCode(code), &captureErr)
		assert.Equal(t, code, captureErr.Reason)
		assert.Equal(t, want, captureErr.Message)
	}
	assert.ErrorIs(t, CaptureErrorFromCode(CodeNotAllowed), ErrPermissionDenied)
}

func TestRecorderCloseUnblocksEmit(t *testing.T) {
	r := NewRecorder(&fakeRecognizer{available: true}, WithRecorderLogger(testLogger()))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			r.HandleResult("x", false)
		}
		close(done)
	}()

	r.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked after close")
	}
}

func TestNarratorCancelsBeforeSpeaking(t *testing.T) {
	engine := &fakeSynthesizer{available: true}
	n := NewNarrator(engine, WithNarratorLogger(testLogger()))

	first, err := n.Speak(context.Background(), "第一句")
	require.NoError(t, err)
	second, err := n.Speak(context.Background(), "第二句")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, []string{"cancel", "speak", "cancel", "speak"}, engine.calls)
	require.Len(t, engine.spoken, 2)
	assert.Equal(t, "第二句", engine.spoken[1].Text)
	assert.Equal(t, "zh-CN", engine.spoken[1].Language)
	assert.True(t, n.Speaking())

	// ending a superseded utterance does not clear the current one
	n.HandleEnd(first)
	assert.True(t, n.Speaking())
	n.HandleEnd(second)
	assert.False(t, n.Speaking())
}

func TestNarratorSkipsBlankText(t *testing.T) {
	engine := &fakeSynthesizer{available: true}
	n := NewNarrator(engine, WithNarratorLogger(testLogger()))

	id, err := n.Speak(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, engine.calls)
}

func TestNarratorUnsupported(t *testing.T) {
	_, err := NewNarrator(&fakeSynthesizer{}).Speak(context.Background(), "你好")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestNarratorSpeakFailure(t *testing.T) {
	engine := &fakeSynthesizer{available: true, speakErr: errors.New("boom")}
	n := NewNarrator(engine, WithNarratorLogger(testLogger()))

	_, err := n.Speak(context.Background(), "你好")
	var narrationErr *NarrationError
	require.ErrorAs(t, err, &narrationErr)
	assert.Equal(t, "语音合成失败，请重试", narrationErr.Message)
	assert.False(t, n.Speaking())
}

func TestNarratorEvents(t *testing.T) {
	engine := &fakeSynthesizer{available: true}
	n := NewNarrator(engine, WithNarratorLogger(testLogger()))

	id, err := n.Speak(context.Background(), "你好")
	require.NoError(t, err)

	n.HandleStart(id)
	n.HandleError(id, CodeInterrupted)
	n.HandleError(id, CodeSynthesisUnavailable)

	assert.Equal(t, NarrationStarted, (<-n.Events()).Type)
	assert.Equal(t, NarrationEnded, (<-n.Events()).Type)

	ev := <-n.Events()
	require.Equal(t, NarrationFailed, ev.Type)
	assert.EqualError(t, ev.Err, "语音合成服务不可用")
}
