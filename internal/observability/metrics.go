package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the service's Prometheus metrics: message flow per
// channel, pipeline stage latency, vendor API outcomes, quota blocks,
// and wizard progress. Registered on the default registry, served at
// /metrics.
type Metrics struct {
	// MessageCounter tracks messages by channel and direction.
	// Labels: channel (twilio|whatsapp), direction (inbound|outbound)
	MessageCounter *prometheus.CounterVec

	// PipelineDuration measures pipeline stage latency in seconds.
	// Labels: stage (fetch|transcode|transcribe|detect|translate|synthesize|upload)
	PipelineDuration *prometheus.HistogramVec

	// VendorRequestCounter counts vendor API calls.
	// Labels: provider (openai|google_tts|stripe|twilio|s3), status (success|error)
	VendorRequestCounter *prometheus.CounterVec

	// VendorRequestDuration measures vendor API latency in seconds.
	// Labels: provider
	VendorRequestDuration *prometheus.HistogramVec

	// QuotaBlockCounter counts messages stopped by the free quota.
	QuotaBlockCounter prometheus.Counter

	// WizardTransitionCounter counts onboarding step transitions.
	// Labels: to_step
	WizardTransitionCounter *prometheus.CounterVec

	// TranslationCounter counts completed translations.
	// Labels: kind (text|voice)
	TranslationCounter *prometheus.CounterVec

	// HTTPRequestDuration measures webhook handler latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics. Call once at startup.
func NewMetrics() *Metrics {
	return &Metrics{
		MessageCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxlate_messages_total",
				Help: "Total messages processed by channel and direction",
			},
			[]string{"channel", "direction"},
		),

		PipelineDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voxlate_pipeline_stage_duration_seconds",
				Help:    "Duration of translation pipeline stages in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),

		VendorRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxlate_vendor_requests_total",
				Help: "Total vendor API requests by provider and status",
			},
			[]string{"provider", "status"},
		),

		VendorRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voxlate_vendor_request_duration_seconds",
				Help:    "Duration of vendor API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),

		QuotaBlockCounter: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "voxlate_quota_blocks_total",
				Help: "Total messages blocked by the exhausted free quota",
			},
		),

		WizardTransitionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxlate_wizard_transitions_total",
				Help: "Total onboarding wizard transitions by destination step",
			},
			[]string{"to_step"},
		),

		TranslationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxlate_translations_total",
				Help: "Total completed translations by input kind",
			},
			[]string{"kind"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voxlate_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxlate_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// MessageReceived increments the inbound message counter.
func (m *Metrics) MessageReceived(channel string) {
	m.MessageCounter.WithLabelValues(channel, "inbound").Inc()
}

// MessageSent increments the outbound message counter.
func (m *Metrics) MessageSent(channel string) {
	m.MessageCounter.WithLabelValues(channel, "outbound").Inc()
}

// ObserveStage records a pipeline stage duration.
func (m *Metrics) ObserveStage(stage string, seconds float64) {
	m.PipelineDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordVendorRequest records one vendor API call.
func (m *Metrics) RecordVendorRequest(provider, status string, seconds float64) {
	m.VendorRequestCounter.WithLabelValues(provider, status).Inc()
	m.VendorRequestDuration.WithLabelValues(provider).Observe(seconds)
}

// QuotaBlocked counts a message stopped by the free quota.
func (m *Metrics) QuotaBlocked() {
	m.QuotaBlockCounter.Inc()
}

// WizardTransition counts a step change.
func (m *Metrics) WizardTransition(toStep string) {
	m.WizardTransitionCounter.WithLabelValues(toStep).Inc()
}

// TranslationCompleted counts a finished translation.
func (m *Metrics) TranslationCompleted(kind string) {
	m.TranslationCounter.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records one handled HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, seconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(seconds)
}
