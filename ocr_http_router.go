package ocrservice

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the routes of the http daemon. gatherer may be nil, in which case
// /metrics is not served.
func NewRouter(cfg ServiceConfig, extractor *Extractor, metrics *Metrics, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", metrics.InstrumentHandler("root", NewOcrHttpStatusHandler(cfg.ServiceName)))
	mux.Handle("/health", metrics.InstrumentHandler("health", NewOcrHttpHealthHandler()))
	mux.Handle("/ocr", metrics.InstrumentHandler("ocr", NewOcrHttpHandler(extractor, cfg.MaxUploadBytes)))
	if gatherer != nil {
		// expose metrics for prometheus
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}
