package ocrservice

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const uploadFieldName = "file"

// OcrHttpHandler serves POST /ocr: one multipart file in, {text, confidence} out.
type OcrHttpHandler struct {
	extractor      *Extractor
	maxUploadBytes int64
}

func NewOcrHttpHandler(extractor *Extractor, maxUploadBytes int64) *OcrHttpHandler {
	return &OcrHttpHandler{
		extractor:      extractor,
		maxUploadBytes: maxUploadBytes,
	}
}

func (s *OcrHttpHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	requestID := newRequestID()
	logger := log.With().Str("RequestID", requestID).Logger()
	ctx := withRequestID(logger.WithContext(req.Context()), requestID)
	w.Header().Set("X-Request-ID", requestID)

	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			logger.Warn().Err(err).Caller().Str("component", "OCR_HTTP").Msg(req.RequestURI + " request Body could not be closed")
		}
	}(req.Body)

	if req.Method != http.MethodPost {
		writeJSON(&logger, w, http.StatusMethodNotAllowed, ErrorResponse{Detail: "this endpoint only accepts POST requests"})
		return
	}

	if s.maxUploadBytes > 0 {
		req.Body = http.MaxBytesReader(w, req.Body, s.maxUploadBytes)
	}

	img, err := s.extractUpload(&logger, req)
	if err == nil {
		var result ExtractionResult
		result, err = s.extractor.Extract(ctx, img)
		if err == nil {
			writeJSON(&logger, w, http.StatusOK, result)
			return
		}
	} else {
		s.extractor.metrics.ObserveExtraction(MapError(err).Class)
	}

	resp := MapError(err)
	logger.Error().Err(err).Str("component", "OCR_HTTP").Int("status", resp.Status).
		Str("class", resp.Class).Msg("OCR error")
	writeJSON(&logger, w, resp.Status, resp)
}

// extractUpload reads the file part named "file", or failing that the first part that
// carries a filename.
func (s *OcrHttpHandler) extractUpload(logger *zerolog.Logger, req *http.Request) (UploadedImage, error) {
	reader, err := req.MultipartReader()
	if err != nil {
		return UploadedImage{}, &InvalidUploadError{Reason: "expected multipart/form-data body"}
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return UploadedImage{}, &InvalidUploadError{Reason: "no file field in form"}
		}
		if err != nil {
			return UploadedImage{}, s.readError(err)
		}

		if part.FormName() != uploadFieldName && part.FileName() == "" {
			_ = part.Close()
			continue
		}

		logger.Debug().Str("component", "OCR_HTTP").Str("form_name", part.FormName()).
			Str("content_type", part.Header.Get("Content-Type")).Msg("reading upload part")

		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return UploadedImage{}, s.readError(err)
		}
		return UploadedImage{Data: data, Filename: part.FileName()}, nil
	}
}

func (s *OcrHttpHandler) readError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return &UploadTooLargeError{Limit: maxBytesErr.Limit}
	}
	// a truncated body or broken boundary is the client's fault
	return &InvalidUploadError{Reason: err.Error()}
}

func writeJSON(logger *zerolog.Logger, w http.ResponseWriter, status int, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		logger.Error().Err(err).Str("component", "OCR_HTTP").Msg("could not marshal response")
		http.Error(w, `{"detail":"OCR processing failed: internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(js); err != nil {
		logger.Error().Err(err).Str("component", "OCR_HTTP").Msg("http write() failed")
	}
}
