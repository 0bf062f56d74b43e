package ocrservice

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

type serviceStatus struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
}

// OcrHttpStatusHandler answers GET / with the service name.
type OcrHttpStatusHandler struct {
	serviceName string
}

func NewOcrHttpStatusHandler(serviceName string) *OcrHttpStatusHandler {
	return &OcrHttpStatusHandler{serviceName: serviceName}
}

func (s *OcrHttpStatusHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	log.Debug().Str("component", "OCR_STATUS").Str("path", req.URL.Path).Msg("serveHttp called")

	// "/" matches every path that has no route of its own
	if req.URL.Path != "/" {
		writeJSON(&log.Logger, w, http.StatusNotFound, ErrorResponse{Detail: "Not Found"})
		return
	}
	if !allowRead(w, req) {
		return
	}
	writeJSON(&log.Logger, w, http.StatusOK, serviceStatus{Status: "ok", Service: s.serviceName})
}

// OcrHttpHealthHandler answers GET /health for liveness probes.
type OcrHttpHealthHandler struct{}

func NewOcrHttpHealthHandler() *OcrHttpHealthHandler {
	return &OcrHttpHealthHandler{}
}

func (*OcrHttpHealthHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !allowRead(w, req) {
		return
	}
	writeJSON(&log.Logger, w, http.StatusOK, serviceStatus{Status: "healthy"})
}

func allowRead(w http.ResponseWriter, req *http.Request) bool {
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	writeJSON(&log.Logger, w, http.StatusMethodNotAllowed, ErrorResponse{Detail: "Method Not Allowed"})
	return false
}
