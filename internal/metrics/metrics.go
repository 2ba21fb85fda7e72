package metrics

import (
	"strconv"
	"time"

	"github.com/eduvoice/eduvoice/internal/provider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the EduVoice API.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Provider metrics.
	ProviderAttemptsTotal        *prometheus.CounterVec
	ProviderClassificationsTotal *prometheus.CounterVec

	// Domain metrics.
	LedgerChargesTotal      *prometheus.CounterVec
	TutorOperationsTotal    *prometheus.CounterVec
	ExamTransitionsTotal    *prometheus.CounterVec
	VoucherRedemptionsTotal *prometheus.CounterVec

	// Rate limiting and auth.
	RateLimitRejectionsTotal prometheus.Counter
	AuthFailuresTotal        *prometheus.CounterVec

	// Collector (transaction log) metrics.
	CollectorFlushesTotal      *prometheus.CounterVec
	CollectorTransactionsTotal prometheus.Counter

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduvoice_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eduvoice_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "path_pattern"}),

		ProviderAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduvoice_provider_attempts_total",
			Help: "Provider calls by credential source and outcome.",
		}, []string{"source", "outcome"}),

		ProviderClassificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduvoice_provider_classifications_total",
			Help: "Provider errors by classified kind.",
		}, []string{"kind"}),

		LedgerChargesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduvoice_ledger_charges_total",
			Help: "Token charge attempts by result.",
		}, []string{"result"}),

		TutorOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduvoice_tutor_operations_total",
			Help: "AI operations by operation and result.",
		}, []string{"operation", "result"}),

		ExamTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduvoice_exam_transitions_total",
			Help: "Exam session state transitions by target status.",
		}, []string{"to"}),

		VoucherRedemptionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduvoice_voucher_redemptions_total",
			Help: "Voucher redemption attempts by result.",
		}, []string{"result"}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eduvoice_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduvoice_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		CollectorFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduvoice_collector_flushes_total",
			Help: "Total number of transaction-log flushes.",
		}, []string{"status"}),

		CollectorTransactionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eduvoice_collector_transactions_total",
			Help: "Total number of token transactions written.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eduvoice_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ProviderAttemptsTotal,
		m.ProviderClassificationsTotal,
		m.LedgerChargesTotal,
		m.TutorOperationsTotal,
		m.ExamTransitionsTotal,
		m.VoucherRedemptionsTotal,
		m.RateLimitRejectionsTotal,
		m.AuthFailuresTotal,
		m.CollectorFlushesTotal,
		m.CollectorTransactionsTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// RegisterCollectorBuffer exposes the transaction-log buffer length.
func (m *Metrics) RegisterCollectorBuffer(size func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "eduvoice_collector_buffer_size",
		Help: "Current number of buffered token transactions.",
	}, func() float64 { return float64(size()) }))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, pathPattern string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(d.Seconds())
}

// ObserveAttempt counts one provider call. It implements provider.Observer.
func (m *Metrics) ObserveAttempt(source, outcome string) {
	m.ProviderAttemptsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveClassification counts one classified provider error.
func (m *Metrics) ObserveClassification(kind provider.ErrorKind) {
	m.ProviderClassificationsTotal.WithLabelValues(kind.String()).Inc()
}

// IncLedgerCharge counts one ChargeOrSkip outcome.
func (m *Metrics) IncLedgerCharge(result string) {
	m.LedgerChargesTotal.WithLabelValues(result).Inc()
}

// IncTutorOperation counts one AI operation outcome.
func (m *Metrics) IncTutorOperation(operation, result string) {
	m.TutorOperationsTotal.WithLabelValues(operation, result).Inc()
}

// IncExamTransition counts one exam state change.
func (m *Metrics) IncExamTransition(to string) {
	m.ExamTransitionsTotal.WithLabelValues(to).Inc()
}

// IncVoucherRedemption counts one redemption outcome.
func (m *Metrics) IncVoucherRedemption(result string) {
	m.VoucherRedemptionsTotal.WithLabelValues(result).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection() {
	m.RateLimitRejectionsTotal.Inc()
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// ObserveFlush records a transaction-log flush. It matches
// metering.FlushObserver.
func (m *Metrics) ObserveFlush(count int, err error) {
	if err != nil {
		m.CollectorFlushesTotal.WithLabelValues("error").Inc()
		return
	}
	m.CollectorFlushesTotal.WithLabelValues("ok").Inc()
	m.CollectorTransactionsTotal.Add(float64(count))
}
