// Package engines builds the OcrEngine selected by the service configuration.
package engines

import (
	"github.com/pkg/errors"
	ocrservice "github.com/xf0e/paddle-ocr-service"
)

// NewOcrEngine returns the configured engine wrapped in the adapter matching its calling
// convention. The engine is not started.
func NewOcrEngine(cfg ocrservice.ServiceConfig, artifacts *ocrservice.ArtifactManager, metrics *ocrservice.Metrics) (ocrservice.OcrEngine, error) {
	engineType, err := cfg.EngineType()
	if err != nil {
		return nil, err
	}

	switch engineType {
	case ocrservice.EngineMock:
		return ocrservice.NewBufferAdapter("mock", ocrservice.MockEngine{}).WithMetrics(metrics), nil
	case ocrservice.EnginePaddle:
		paddle := ocrservice.NewPaddleEngine(cfg.PaddleCommand(), cfg.Lang)
		return ocrservice.NewPathAdapter("paddle", paddle, artifacts).WithMetrics(metrics), nil
	case ocrservice.EngineTesseract:
		return newTesseractEngine(cfg, metrics)
	case ocrservice.EngineRpc:
		client := ocrservice.NewOcrRpcClient(cfg.RabbitConfig)
		return ocrservice.NewBufferAdapter("rpc", client).WithMetrics(metrics), nil
	}
	return nil, errors.Errorf("no engine for %v", engineType)
}
