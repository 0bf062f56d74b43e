//go:build !tesseract

package engines

import (
	"github.com/pkg/errors"
	ocrservice "github.com/xf0e/paddle-ocr-service"
)

func newTesseractEngine(cfg ocrservice.ServiceConfig, metrics *ocrservice.Metrics) (ocrservice.OcrEngine, error) {
	return nil, errors.New("tesseract engine not compiled in, rebuild with -tags tesseract")
}
