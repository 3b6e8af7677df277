package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PaymentMetrics records the outcomes of payment orchestrations.
type PaymentMetrics interface {
	IncPaymentStarted(mode string)
	IncPaymentOutcome(mode, outcome string)
	ObservePaymentDuration(mode string, d time.Duration)
	ObserveBackendRequest(endpoint string, d time.Duration, err bool)
}

type paymentMetrics struct {
	paymentsStarted  *prometheus.CounterVec
	paymentsOutcome  *prometheus.CounterVec
	paymentsDuration *prometheus.HistogramVec
	backendRequests  *prometheus.HistogramVec
}

// NewPaymentMetrics registers the payment metric set on the given registry.
func NewPaymentMetrics(registry *prometheus.Registry) PaymentMetrics {
	return &paymentMetrics{
		paymentsStarted: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "applepay_payments_started_total",
				Help: "The total number of started payment orchestrations",
			},
			[]string{"mode"},
		),
		paymentsOutcome: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "applepay_payments_outcome_total",
				Help: "The total number of finished payment orchestrations by outcome",
			},
			[]string{"mode", "outcome"},
		),
		paymentsDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "applepay_payment_duration_seconds",
				Help:    "End to end payment orchestration duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		backendRequests: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "applepay_backend_request_duration_seconds",
				Help:    "Backend gateway request duration by endpoint",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "error"},
		),
	}
}

func (m *paymentMetrics) IncPaymentStarted(mode string) {
	m.paymentsStarted.WithLabelValues(mode).Inc()
}

func (m *paymentMetrics) IncPaymentOutcome(mode, outcome string) {
	m.paymentsOutcome.WithLabelValues(mode, outcome).Inc()
}

func (m *paymentMetrics) ObservePaymentDuration(mode string, d time.Duration) {
	m.paymentsDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *paymentMetrics) ObserveBackendRequest(endpoint string, d time.Duration, err bool) {
	label := "false"
	if err {
		label = "true"
	}
	m.backendRequests.WithLabelValues(endpoint, label).Observe(d.Seconds())
}

type nopMetrics struct{}

// Nop returns a PaymentMetrics that records nothing.
func Nop() PaymentMetrics { return nopMetrics{} }

func (nopMetrics) IncPaymentStarted(string)                          {}
func (nopMetrics) IncPaymentOutcome(string, string)                  {}
func (nopMetrics) ObservePaymentDuration(string, time.Duration)      {}
func (nopMetrics) ObserveBackendRequest(string, time.Duration, bool) {}
