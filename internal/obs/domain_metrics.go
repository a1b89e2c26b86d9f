package obs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutOperationsTotal counts checkout session operations by outcome.
	CheckoutOperationsTotal *prometheus.CounterVec
	// CheckoutOperationLatency records checkout operation latency in milliseconds.
	CheckoutOperationLatency *prometheus.HistogramVec
	// PaymentCaptureTotal counts capture attempts per provider and outcome.
	PaymentCaptureTotal *prometheus.CounterVec
	// PaymentCaptureLatency records gateway latency in milliseconds.
	PaymentCaptureLatency *prometheus.HistogramVec
	// EventsPublishedTotal counts domain event deliveries per backend.
	EventsPublishedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics creates and registers the checkout collectors once.
// Collectors already registered under the same name are reused.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutOperationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_total",
			Help:      "Checkout session operations by outcome.",
		}, []string{"operation", "result"}))
		CheckoutOperationLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_operation_duration_ms",
			Help:      "Checkout session operation latency in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}, []string{"operation"}))
		PaymentCaptureTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_capture_total",
			Help:      "Payment capture attempts by provider and outcome.",
		}, []string{"provider", "result"}))
		PaymentCaptureLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_capture_duration_ms",
			Help:      "Payment gateway latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 15000},
		}, []string{"provider"}))
		EventsPublishedTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events handed to a publisher by outcome.",
		}, []string{"backend", "result"}))
	})
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
	return c
}
