package ocrservice

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/couchbaselabs/go.assert"
	"github.com/pkg/errors"
)

func newTestRouter(t *testing.T, engine BufferEngine, maxUploadBytes int64) http.Handler {
	cfg := DefaultServiceConfig()
	cfg.MaxUploadBytes = maxUploadBytes
	return NewRouter(cfg, newTestExtractor(t, engine, nil), nil, nil)
}

func multipartRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	assert.True(t, err == nil)
	_, err = part.Write(data)
	assert.True(t, err == nil)
	assert.True(t, writer.Close() == nil)

	req := httptest.NewRequest(http.MethodPost, "/ocr", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	out := map[string]interface{}{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not json: %q", rec.Body.String())
	}
	return out
}

func TestOcrHttpHandlerSuccess(t *testing.T) {
	router := newTestRouter(t, MockEngine{}, 1<<20)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "file", "receipt.png", tinyPng))

	assert.Equals(t, rec.Code, http.StatusOK)
	assert.Equals(t, rec.Header().Get("Content-Type"), "application/json")
	assert.True(t, rec.Header().Get("X-Request-ID") != "")
	body := decodeBody(t, rec)
	assert.Equals(t, body["text"], "mock engine decoder response\nmock engine")
	assert.Equals(t, len(body), 2)
}

func TestOcrHttpHandlerNoDetections(t *testing.T) {
	router := newTestRouter(t, &stubEngine{raw: "[[]]"}, 1<<20)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "file", "blank.png", tinyPng))

	assert.Equals(t, rec.Code, http.StatusOK)
	body := decodeBody(t, rec)
	assert.Equals(t, body["text"], "")
	assert.Equals(t, body["confidence"], 0.0)
}

func TestOcrHttpHandlerEmptyFile(t *testing.T) {
	engine := &stubEngine{raw: "null"}
	router := newTestRouter(t, engine, 1<<20)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "file", "empty.png", []byte{}))

	assert.Equals(t, rec.Code, http.StatusBadRequest)
	assert.Equals(t, decodeBody(t, rec)["detail"], "Empty file uploaded")
	assert.Equals(t, engine.calls, 0)
}

func TestOcrHttpHandlerEngineFailure(t *testing.T) {
	router := newTestRouter(t, &stubEngine{err: errors.New("model not loaded")}, 1<<20)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "file", "receipt.png", tinyPng))

	assert.Equals(t, rec.Code, http.StatusInternalServerError)
	assert.Equals(t, decodeBody(t, rec)["detail"], "OCR processing failed: model not loaded")
}

func TestOcrHttpHandlerAnyFileField(t *testing.T) {
	router := newTestRouter(t, MockEngine{}, 1<<20)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "image", "receipt.png", tinyPng))
	assert.Equals(t, rec.Code, http.StatusOK)
}

func TestOcrHttpHandlerMissingFile(t *testing.T) {
	router := newTestRouter(t, MockEngine{}, 1<<20)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	assert.True(t, writer.WriteField("comment", "no file here") == nil)
	assert.True(t, writer.Close() == nil)
	req := httptest.NewRequest(http.MethodPost, "/ocr", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equals(t, rec.Code, http.StatusBadRequest)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ocr", strings.NewReader(`{"img":"x"}`)))
	assert.Equals(t, rec.Code, http.StatusBadRequest)
}

func TestOcrHttpHandlerTooLarge(t *testing.T) {
	router := newTestRouter(t, MockEngine{}, 512)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "file", "huge.png", bytes.Repeat([]byte{0x42}, 4096)))
	assert.Equals(t, rec.Code, http.StatusRequestEntityTooLarge)
}

func TestOcrHttpHandlerMethod(t *testing.T) {
	router := newTestRouter(t, MockEngine{}, 1<<20)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ocr", nil))
	assert.Equals(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestStatusRoutes(t *testing.T) {
	router := newTestRouter(t, MockEngine{}, 1<<20)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equals(t, rec.Code, http.StatusOK)
	body := decodeBody(t, rec)
	assert.Equals(t, body["status"], "ok")
	assert.Equals(t, body["service"], "PaddleOCR Service")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equals(t, rec.Code, http.StatusOK)
	assert.Equals(t, decodeBody(t, rec)["status"], "healthy")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nothing-here", nil))
	assert.Equals(t, rec.Code, http.StatusNotFound)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equals(t, rec.Code, http.StatusMethodNotAllowed)
}
