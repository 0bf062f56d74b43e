package ocrservice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sasha-s/go-deadlock"
)

type OcrEngineType int

const (
	EngineMock = OcrEngineType(iota)
	EnginePaddle
	EngineTesseract
	EngineRpc
)

func (e OcrEngineType) String() string {
	switch e {
	case EngineMock:
		return "ENGINE_MOCK"
	case EnginePaddle:
		return "ENGINE_PADDLE"
	case EngineTesseract:
		return "ENGINE_TESSERACT"
	case EngineRpc:
		return "ENGINE_RPC"
	}
	return ""
}

// ParseOcrEngineType accepts the engine names used on the command line and in config files.
func ParseOcrEngineType(name string) (OcrEngineType, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "MOCK", "ENGINE_MOCK":
		return EngineMock, nil
	case "PADDLE", "PADDLEOCR", "ENGINE_PADDLE":
		return EnginePaddle, nil
	case "TESSERACT", "ENGINE_TESSERACT":
		return EngineTesseract, nil
	case "RPC", "ENGINE_RPC":
		return EngineRpc, nil
	}
	return EngineMock, fmt.Errorf("unknown ocr engine %q", name)
}

func (e *OcrEngineType) UnmarshalJSON(b []byte) error {
	var engineTypeStr string
	if err := json.Unmarshal(b, &engineTypeStr); err == nil {
		engineType, err := ParseOcrEngineType(engineTypeStr)
		if err != nil {
			return err
		}
		*e = engineType
		return nil
	}

	// not a string .. maybe it's an int
	var engineTypeInt int
	if err := json.Unmarshal(b, &engineTypeInt); err != nil {
		return err
	}
	*e = OcrEngineType(engineTypeInt)
	return nil
}

// OcrEngine is the single seam between the extraction pipeline and an OCR engine. Start and
// Close bracket the process lifetime of the engine; Recognize may be called in between.
type OcrEngine interface {
	Name() string
	Recognize(ctx context.Context, img UploadedImage) (RawResult, error)
	Start(ctx context.Context) error
	Close() error
}

// BufferEngine is an engine that reads the image from memory.
type BufferEngine interface {
	RecognizeBuffer(ctx context.Context, data []byte) (RawResult, error)
}

// PathEngine is an engine that needs the image in a file.
type PathEngine interface {
	RecognizePath(ctx context.Context, path string) (RawResult, error)
}

// Lifecycle is implemented by engines with process-wide state to set up and tear down.
type Lifecycle interface {
	Start(ctx context.Context) error
	Close() error
}

// ConcurrentEngine is implemented by engines that document concurrent calls as safe.
// Calls into engines that don't implement it are serialized.
type ConcurrentEngine interface {
	Concurrent() bool
}

// engineGuard holds what both adapters share: naming, lifecycle forwarding, serialization
// of non-reentrant engines and classification of engine errors.
type engineGuard struct {
	name      string
	impl      interface{}
	serialize bool
	mu        *deadlock.Mutex
	metrics   *Metrics
}

func newEngineGuard(name string, impl interface{}) engineGuard {
	serialize := true
	if c, ok := impl.(ConcurrentEngine); ok && c.Concurrent() {
		serialize = false
	}
	return engineGuard{name: name, impl: impl, serialize: serialize, mu: &deadlock.Mutex{}}
}

func (g *engineGuard) Name() string {
	return g.name
}

func (g *engineGuard) Start(ctx context.Context) error {
	if l, ok := g.impl.(Lifecycle); ok {
		return errors.Wrapf(l.Start(ctx), "start engine %s", g.name)
	}
	return nil
}

func (g *engineGuard) Close() error {
	if l, ok := g.impl.(Lifecycle); ok {
		return errors.Wrapf(l.Close(), "close engine %s", g.name)
	}
	return nil
}

// call runs fn under the engine mutex when required and turns any failure into an
// EngineFailureError carrying the engine's message.
func (g *engineGuard) call(ctx context.Context, fn func() (RawResult, error)) (RawResult, error) {
	logger := zerolog.Ctx(ctx)
	if g.serialize {
		g.mu.Lock()
		defer g.mu.Unlock()
	}

	start := time.Now()
	raw, err := fn()
	g.metrics.ObserveEngine(g.name, time.Since(start))
	if err != nil {
		logger.Error().Err(err).Str("component", "OCR_ENGINE").Str("engine", g.name).
			Msg("engine invocation failed")
		var engineErr *EngineFailureError
		if errors.As(err, &engineErr) {
			return nil, engineErr
		}
		return nil, &EngineFailureError{Engine: g.name, Err: err}
	}
	logger.Debug().Str("component", "OCR_ENGINE").Str("engine", g.name).
		Int("raw_size", len(raw)).Msg("engine returned")
	return raw, nil
}

// BufferAdapter passes the upload bytes straight to a BufferEngine.
type BufferAdapter struct {
	engineGuard
	engine BufferEngine
}

func NewBufferAdapter(name string, engine BufferEngine) *BufferAdapter {
	return &BufferAdapter{
		engineGuard: newEngineGuard(name, engine),
		engine:      engine,
	}
}

func (a *BufferAdapter) Recognize(ctx context.Context, img UploadedImage) (RawResult, error) {
	return a.call(ctx, func() (RawResult, error) {
		return a.engine.RecognizeBuffer(ctx, img.Data)
	})
}

// PathAdapter materializes the upload as a TransientArtifact before calling a PathEngine.
// The artifact is removed whatever the engine call returns.
type PathAdapter struct {
	engineGuard
	engine    PathEngine
	artifacts *ArtifactManager
}

func NewPathAdapter(name string, engine PathEngine, artifacts *ArtifactManager) *PathAdapter {
	return &PathAdapter{
		engineGuard: newEngineGuard(name, engine),
		engine:      engine,
		artifacts:   artifacts,
	}
}

func (a *PathAdapter) Recognize(ctx context.Context, img UploadedImage) (RawResult, error) {
	var raw RawResult
	err := a.artifacts.WithArtifact(ctx, img, func(path string) error {
		var callErr error
		raw, callErr = a.call(ctx, func() (RawResult, error) {
			return a.engine.RecognizePath(ctx, path)
		})
		return callErr
	})
	if err != nil {
		var engineErr *EngineFailureError
		if errors.As(err, &engineErr) {
			return nil, err
		}
		// the artifact could not be written; the engine never saw the image
		return nil, &UnexpectedError{Err: err}
	}
	return raw, nil
}

// WithMetrics makes the adapter record engine call durations.
func (a *BufferAdapter) WithMetrics(m *Metrics) *BufferAdapter {
	a.metrics = m
	return a
}

// WithMetrics makes the adapter record engine call durations.
func (a *PathAdapter) WithMetrics(m *Metrics) *PathAdapter {
	a.metrics = m
	return a
}
