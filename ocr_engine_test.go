package ocrservice

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchbaselabs/go.assert"
	"github.com/pkg/errors"
)

type engineRequest struct {
	Engine OcrEngineType `json:"engine"`
}

func TestOcrEngineTypeJson(t *testing.T) {
	req := engineRequest{}
	err := json.Unmarshal([]byte(`{"engine":"tesseract"}`), &req)
	assert.True(t, err == nil)
	assert.Equals(t, req.Engine, EngineTesseract)

	err = json.Unmarshal([]byte(`{"engine":"PaddleOCR"}`), &req)
	assert.True(t, err == nil)
	assert.Equals(t, req.Engine, EnginePaddle)

	err = json.Unmarshal([]byte(`{"engine":3}`), &req)
	assert.True(t, err == nil)
	assert.Equals(t, req.Engine, EngineRpc)

	err = json.Unmarshal([]byte(`{"engine":"abbyy"}`), &req)
	assert.True(t, err != nil)
}

func TestOcrEngineTypeString(t *testing.T) {
	assert.Equals(t, EnginePaddle.String(), "ENGINE_PADDLE")
	engineType, err := ParseOcrEngineType(" engine_mock ")
	assert.True(t, err == nil)
	assert.Equals(t, engineType, EngineMock)
}

// pathRecorder is a PathEngine that checks the file it is given.
type pathRecorder struct {
	seenPath string
	content  []byte
	err      error
}

func (p *pathRecorder) RecognizePath(ctx context.Context, path string) (RawResult, error) {
	p.seenPath = path
	p.content, _ = os.ReadFile(path)
	if p.err != nil {
		return nil, p.err
	}
	return RawResult(`[[[[[0,0],[1,0],[1,1],[0,1]],["from file",0.5]]]]`), nil
}

func TestPathAdapterSuccess(t *testing.T) {
	engine := &pathRecorder{}
	adapter := NewPathAdapter("recorder", engine, NewArtifactManager(t.TempDir()))

	raw, err := adapter.Recognize(context.Background(), UploadedImage{Data: []byte("pixels")})
	assert.True(t, err == nil)
	assert.Equals(t, string(engine.content), "pixels")
	_, statErr := os.Stat(engine.seenPath)
	assert.True(t, os.IsNotExist(statErr))

	lines, err := NormalizeResult(raw)
	assert.True(t, err == nil)
	assert.Equals(t, lines[0].Text, "from file")
}

func TestPathAdapterEngineFailure(t *testing.T) {
	engine := &pathRecorder{err: errors.New("model not loaded")}
	adapter := NewPathAdapter("recorder", engine, NewArtifactManager(t.TempDir()))

	_, err := adapter.Recognize(context.Background(), UploadedImage{Data: []byte("pixels")})
	var engineErr *EngineFailureError
	assert.True(t, errors.As(err, &engineErr))
	assert.Equals(t, engineErr.Engine, "recorder")
	assert.Equals(t, err.Error(), "model not loaded")

	_, statErr := os.Stat(engine.seenPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPathAdapterArtifactFailure(t *testing.T) {
	engine := &pathRecorder{}
	adapter := NewPathAdapter("recorder", engine, NewArtifactManager("/nonexistent/ocr/tmp"))

	_, err := adapter.Recognize(context.Background(), UploadedImage{Data: []byte("pixels")})
	var unexpected *UnexpectedError
	assert.True(t, errors.As(err, &unexpected))
	assert.Equals(t, engine.seenPath, "")
}

func TestBufferAdapterMock(t *testing.T) {
	adapter := NewBufferAdapter("mock", MockEngine{})
	assert.Equals(t, adapter.Name(), "mock")
	assert.True(t, adapter.Start(context.Background()) == nil)
	raw, err := adapter.Recognize(context.Background(), UploadedImage{Data: []byte("x")})
	assert.True(t, err == nil)
	assert.Equals(t, string(raw), MOCK_ENGINE_RESPONSE)
	assert.True(t, adapter.Close() == nil)
}

// slowEngine tracks how many calls overlap.
type slowEngine struct {
	concurrent bool
	active     int32
	maxActive  int32
	started    int32
	closed     int32
}

func (s *slowEngine) RecognizeBuffer(ctx context.Context, data []byte) (RawResult, error) {
	n := atomic.AddInt32(&s.active, 1)
	for {
		m := atomic.LoadInt32(&s.maxActive)
		if n <= m || atomic.CompareAndSwapInt32(&s.maxActive, m, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&s.active, -1)
	return RawResult("null"), nil
}

func (s *slowEngine) Concurrent() bool {
	return s.concurrent
}

func (s *slowEngine) Start(ctx context.Context) error {
	atomic.AddInt32(&s.started, 1)
	return nil
}

func (s *slowEngine) Close() error {
	atomic.AddInt32(&s.closed, 1)
	return nil
}

func runConcurrently(adapter OcrEngine, n int) {
	wg := sync.WaitGroup{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = adapter.Recognize(context.Background(), UploadedImage{Data: []byte("x")})
		}()
	}
	wg.Wait()
}

func TestAdapterSerializesNonReentrantEngine(t *testing.T) {
	engine := &slowEngine{}
	runConcurrently(NewBufferAdapter("slow", engine), 4)
	assert.Equals(t, atomic.LoadInt32(&engine.maxActive), int32(1))
}

func TestAdapterLetsReentrantEngineOverlap(t *testing.T) {
	engine := &slowEngine{concurrent: true}
	runConcurrently(NewBufferAdapter("slow", engine), 4)
	assert.True(t, atomic.LoadInt32(&engine.maxActive) > 1)
}

func TestAdapterForwardsLifecycle(t *testing.T) {
	engine := &slowEngine{}
	adapter := NewBufferAdapter("slow", engine)
	assert.True(t, adapter.Start(context.Background()) == nil)
	assert.True(t, adapter.Close() == nil)
	assert.Equals(t, atomic.LoadInt32(&engine.started), int32(1))
	assert.Equals(t, atomic.LoadInt32(&engine.closed), int32(1))
}
