package ocrservice

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one service instance. A nil *Metrics records nothing,
// which keeps tests free of registry bookkeeping.
type Metrics struct {
	inFlightGauge  prometheus.Gauge
	counter        *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	requestSize    *prometheus.HistogramVec
	extractions    *prometheus.CounterVec
	engineDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ocr_in_flight_requests",
			Help: "Number of currently pending and processed requests.",
		}),
		counter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocr_api_requests_total",
				Help: "A counter for requests to the wrapped handler.",
			},
			[]string{"handler", "code", "method"},
		),
		// duration is partitioned by the HTTP method and handler. It uses custom
		// buckets based on the expected request duration.
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ocr_request_duration_seconds",
				Help:    "A histogram of latencies for requests.",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"handler", "method"},
		),
		requestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ocr_request_size_bytes",
				Help:    "A histogram of request sizes.",
				Buckets: []float64{100, 1500, 100000, 1000000, 5000000, 10000000, 25000000},
			},
			[]string{"handler"},
		),
		extractions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocr_extractions_total",
				Help: "Extraction attempts partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		engineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ocr_engine_duration_seconds",
				Help:    "Time spent inside the OCR engine per image.",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"engine"},
		),
	}
	reg.MustRegister(m.inFlightGauge, m.counter, m.duration, m.requestSize, m.extractions, m.engineDuration)
	return m
}

// InstrumentHandler wraps handler to provide prometheus metrics
func (m *Metrics) InstrumentHandler(name string, handler http.Handler) http.Handler {
	if m == nil {
		return handler
	}
	labels := prometheus.Labels{"handler": name}
	return promhttp.InstrumentHandlerInFlight(m.inFlightGauge,
		promhttp.InstrumentHandlerDuration(m.duration.MustCurryWith(labels),
			promhttp.InstrumentHandlerCounter(m.counter.MustCurryWith(labels),
				promhttp.InstrumentHandlerRequestSize(m.requestSize.MustCurryWith(labels), handler),
			),
		),
	)
}

func (m *Metrics) ObserveExtraction(outcome string) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveEngine(engine string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.engineDuration.WithLabelValues(engine).Observe(elapsed.Seconds())
}
