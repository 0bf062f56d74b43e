package ocrservice

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Extractor runs one upload through validation, the engine and normalization.
type Extractor struct {
	engine  OcrEngine
	pool    *WorkerPool
	metrics *Metrics
}

func NewExtractor(engine OcrEngine, pool *WorkerPool, metrics *Metrics) *Extractor {
	return &Extractor{engine: engine, pool: pool, metrics: metrics}
}

// Extract returns the text found in img and its mean line confidence. Errors belong to the
// taxonomy in ocr_errors.go and are meant to be passed to MapError.
func (e *Extractor) Extract(ctx context.Context, img UploadedImage) (ExtractionResult, error) {
	result, err := e.extract(ctx, img)
	if err != nil {
		e.metrics.ObserveExtraction(MapError(err).Class)
		return ExtractionResult{}, err
	}
	e.metrics.ObserveExtraction(ClassOK)
	return result, nil
}

func (e *Extractor) extract(ctx context.Context, img UploadedImage) (ExtractionResult, error) {
	logger := zerolog.Ctx(ctx)

	if err := ValidateUpload(img); err != nil {
		logger.Warn().Str("component", "OCR_PIPELINE").Str("file_name", img.Filename).
			Msg("rejecting empty upload")
		return ExtractionResult{}, err
	}
	logger.Info().Str("component", "OCR_PIPELINE").Str("file_name", img.Filename).
		Int("size", img.Size()).Str("engine", e.engine.Name()).Msg("processing image")

	start := time.Now()
	var raw RawResult
	// the request goroutine parks here until a pool worker has run the engine
	err := e.pool.Do(ctx, func() error {
		var recognizeErr error
		raw, recognizeErr = e.engine.Recognize(ctx, img)
		return recognizeErr
	})
	if err != nil {
		return ExtractionResult{}, err
	}
	timeTrack(logger, start, "recognize_time", "engine call finished")

	lines, err := NormalizeResult(raw)
	if err != nil {
		logger.Error().Err(err).Str("component", "OCR_PIPELINE").Msg("could not normalize engine result")
		return ExtractionResult{}, err
	}
	if len(lines) == 0 {
		logger.Warn().Str("component", "OCR_PIPELINE").Msg("no text detected in image")
	}

	result := BuildResult(lines)
	logger.Info().Str("component", "OCR_PIPELINE").Int("lines", len(lines)).
		Int("chars", len(result.Text)).Float64("confidence", result.Confidence).
		Msg("ocr completed")
	return result, nil
}
