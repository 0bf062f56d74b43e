//go:build tesseract

package engines

import (
	ocrservice "github.com/xf0e/paddle-ocr-service"
	"github.com/xf0e/paddle-ocr-service/tesseract"
)

func newTesseractEngine(cfg ocrservice.ServiceConfig, metrics *ocrservice.Metrics) (ocrservice.OcrEngine, error) {
	return ocrservice.NewBufferAdapter("tesseract", tesseract.New(cfg.Lang)).WithMetrics(metrics), nil
}
