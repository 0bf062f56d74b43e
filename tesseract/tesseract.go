//go:build tesseract

package tesseract

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/pkg/errors"
	ocrservice "github.com/xf0e/paddle-ocr-service"
)

// tesseract names for the language codes accepted by the paddle runner
var languageNames = map[string]string{
	"en":     "eng",
	"ch":     "chi_sim",
	"german": "deu",
	"french": "fra",
	"japan":  "jpn",
	"korean": "kor",
	"ru":     "rus",
}

// Engine recognizes text lines with a fresh gosseract client per call. Clients are not
// shared, so calls may run concurrently.
type Engine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

func New(lang string) *Engine {
	return &Engine{languages: Languages(lang), clientFactory: gosseract.NewClient}
}

// Languages maps a comma separated list of language codes to tesseract language names.
// Codes without a mapping are passed through.
func Languages(lang string) []string {
	var out []string
	for _, l := range strings.Split(lang, ",") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if name, ok := languageNames[strings.ToLower(l)]; ok {
			l = name
		}
		out = append(out, l)
	}
	return out
}

// Start checks that the trained data for every configured language is installed.
func (e *Engine) Start(ctx context.Context) error {
	available, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return errors.Wrap(err, "list tesseract languages")
	}
	installed := make(map[string]bool, len(available))
	for _, l := range available {
		installed[l] = true
	}
	for _, l := range e.languages {
		if !installed[l] {
			return errors.Errorf("tesseract language %q is not installed", l)
		}
	}
	return nil
}

func (e *Engine) Close() error {
	return nil
}

func (e *Engine) Concurrent() bool {
	return true
}

// RecognizeBuffer returns one PaddleOCR-style page: [[box, [text, confidence]], ...].
func (e *Engine) RecognizeBuffer(ctx context.Context, data []byte) (ocrservice.RawResult, error) {
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(data); err != nil {
		return nil, errors.Wrap(err, "set image")
	}
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return nil, errors.Wrap(err, "set languages")
		}
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, errors.Wrap(err, "recognize text")
	}
	return pageFromBoxes(boxes)
}

func pageFromBoxes(boxes []gosseract.BoundingBox) (ocrservice.RawResult, error) {
	page := make([][]interface{}, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		quad := [][2]int{
			{b.Box.Min.X, b.Box.Min.Y},
			{b.Box.Max.X, b.Box.Min.Y},
			{b.Box.Max.X, b.Box.Max.Y},
			{b.Box.Min.X, b.Box.Max.Y},
		}
		page = append(page, []interface{}{quad, []interface{}{text, b.Confidence / 100.0}})
	}
	if len(page) == 0 {
		return ocrservice.RawResult("[null]"), nil
	}
	raw, err := json.Marshal([]interface{}{page})
	if err != nil {
		return nil, err
	}
	return ocrservice.RawResult(raw), nil
}
