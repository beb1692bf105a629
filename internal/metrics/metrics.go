package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for intake, workflow and the HTTP surface.
type Metrics struct {
	CapturesIngested prometheus.Counter
	CapturesFailed   *prometheus.CounterVec
	ImagesDropped    prometheus.Counter
	Placeholders     *prometheus.CounterVec
	Anomalies        *prometheus.CounterVec
	ExtractDuration  prometheus.Histogram
	OCRInFlight      prometheus.Gauge

	Transitions   *prometheus.CounterVec
	CommandsSent  *prometheus.CounterVec
	RecordsByPart *prometheus.GaugeVec

	HTTPRequests   *prometheus.CounterVec
	HTTPInProgress prometheus.Gauge
	HTTPDuration   *prometheus.HistogramVec
}

// New registers every collector on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		CapturesIngested: f.NewCounter(prometheus.CounterOpts{
			Name: "checkflow_captures_ingested_total",
			Help: "Capture events turned into check records",
		}),
		CapturesFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkflow_captures_failed_total",
			Help: "Capture events aborted, by error kind",
		}, []string{"kind"}),
		ImagesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "checkflow_images_dropped_total",
			Help: "Image slots dropped because the payload was not valid base64",
		}),
		Placeholders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkflow_placeholders_total",
			Help: "Fields substituted with a placeholder, by field",
		}, []string{"field"}),
		Anomalies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkflow_anomalies_total",
			Help: "Anomalies recorded on new checks, by type and severity",
		}, []string{"type", "severity"}),
		ExtractDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkflow_extract_duration_seconds",
			Help:    "Duration of field extraction for one capture event",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		OCRInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "checkflow_ocr_in_flight",
			Help: "OCR sessions currently running",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkflow_status_transitions_total",
			Help: "Status transitions applied, by source and target status",
		}, []string{"from", "to"}),
		CommandsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkflow_scanner_commands_total",
			Help: "Scanner commands, by outcome (sent or dropped)",
		}, []string{"outcome"}),
		RecordsByPart: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "checkflow_records",
			Help: "Records currently held, by partition",
		}, []string{"partition"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "checkflow_http_requests_total",
			Help: "HTTP requests, by method and status code",
		}, []string{"method", "code"}),
		HTTPInProgress: f.NewGauge(prometheus.GaugeOpts{
			Name: "checkflow_http_requests_in_progress",
			Help: "HTTP requests currently being served",
		}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "checkflow_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

func (m *Metrics) IncIngested() {
	if m == nil {
		return
	}
	m.CapturesIngested.Inc()
}

func (m *Metrics) IncImageDropped() {
	if m == nil {
		return
	}
	m.ImagesDropped.Inc()
}

func (m *Metrics) IncPlaceholder(field string) {
	if m == nil {
		return
	}
	m.Placeholders.WithLabelValues(field).Inc()
}

func (m *Metrics) IncAnomaly(kind, severity string) {
	if m == nil {
		return
	}
	m.Anomalies.WithLabelValues(kind, severity).Inc()
}

func (m *Metrics) ObserveExtract(d time.Duration) {
	if m == nil {
		return
	}
	m.ExtractDuration.Observe(d.Seconds())
}

// OCRStarted marks one OCR session in flight; call the returned func when it ends.
func (m *Metrics) OCRStarted() func() {
	if m == nil {
		return func() {}
	}
	m.OCRInFlight.Inc()
	return m.OCRInFlight.Dec
}

func (m *Metrics) IncTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncCaptureFailed(kind string) {
	if m == nil {
		return
	}
	m.CapturesFailed.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncCommand(sent bool) {
	if m == nil {
		return
	}
	outcome := "dropped"
	if sent {
		outcome = "sent"
	}
	m.CommandsSent.WithLabelValues(outcome).Inc()
}

// SetPartitionSizes records the size of each partition after a mutation.
func (m *Metrics) SetPartitionSizes(sizes map[string]int) {
	if m == nil {
		return
	}
	for p, n := range sizes {
		m.RecordsByPart.WithLabelValues(p).Set(float64(n))
	}
}
