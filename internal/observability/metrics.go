package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Skill request metrics
	skillRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_practice_skill_requests_total",
		Help: "Total number of skill requests by request type and intent",
	}, []string{"request_type", "intent"})

	skillLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speech_practice_skill_latency_seconds",
		Help:    "Time spent answering a skill request in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
	}, []string{"request_type"})

	// Syllabifier metrics
	wordsPracticed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_practice_words_total",
		Help: "Total number of words sent to the syllabifier",
	}, []string{"source", "status"}) // source: skill, stream

	syllablesPerWord = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speech_practice_syllables_per_word",
		Help:    "Number of syllables produced per word",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10, 15},
	})

	// Verification metrics
	verificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_practice_verification_failures_total",
		Help: "Total number of rejected request signatures or timestamps",
	}, []string{"reason"})

	certFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_practice_cert_fetches_total",
		Help: "Total number of signing certificate chain lookups",
	}, []string{"status"}) // status: hit, success, error

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_practice_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "speech_practice_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"service"})

	// Stream metrics
	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speech_practice_active_streams",
		Help: "Number of open practice streams",
	})

	streamMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_practice_stream_messages_total",
		Help: "Total number of practice stream messages",
	}, []string{"direction"}) // direction: "in" or "out"
)

// RequestMetrics tracks metrics for a single skill request
type RequestMetrics struct {
	requestType string
	intent      string
	startTime   time.Time
}

// NewRequestMetrics starts tracking a skill request and counts it
func NewRequestMetrics(requestType, intent string) *RequestMetrics {
	skillRequests.WithLabelValues(requestType, intent).Inc()
	return &RequestMetrics{
		requestType: requestType,
		intent:      intent,
		startTime:   time.Now(),
	}
}

// RecordEnd observes the request latency
func (m *RequestMetrics) RecordEnd() {
	skillLatency.WithLabelValues(m.requestType).Observe(time.Since(m.startTime).Seconds())
}

// RecordError records an error
func (m *RequestMetrics) RecordError(errorType string) {
	RecordError(errorType, "skill")
}

// RecordError records an error for any component
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordWord records one syllabifier call. count is ignored when ok is false.
func RecordWord(source string, count int, ok bool) {
	if !ok {
		wordsPracticed.WithLabelValues(source, "invalid").Inc()
		return
	}
	wordsPracticed.WithLabelValues(source, "success").Inc()
	syllablesPerWord.Observe(float64(count))
}

// RecordVerificationFailure records a rejected request
func RecordVerificationFailure(reason string) {
	verificationFailures.WithLabelValues(reason).Inc()
}

// RecordCertFetch records a certificate chain lookup
func RecordCertFetch(status string) {
	certFetches.WithLabelValues(status).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordStreamOpen records a new practice stream
func RecordStreamOpen() {
	activeStreams.Inc()
}

// RecordStreamClose records a closed practice stream
func RecordStreamClose() {
	activeStreams.Dec()
}

// RecordStreamMessage records a stream message in the given direction
func RecordStreamMessage(direction string) {
	streamMessages.WithLabelValues(direction).Inc()
}
