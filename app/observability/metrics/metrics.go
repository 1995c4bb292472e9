package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	RegisterRequestsTotal   metric.Int64Counter
	LoginRequestsTotal      metric.Int64Counter
	LoginFailuresTotal      metric.Int64Counter
	ActivationsTotal        metric.Int64Counter
	ActivationFailuresTotal metric.Int64Counter
	ActivationCodesIssued   metric.Int64Counter
	RegisterDurationSeconds metric.Float64Histogram
	DbQueryErrorsTotal      metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metric instruments exactly once.
// The Meter comes from the globally configured MeterProvider, so the tracer
// package must be initialized first.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("account-service")
		var err error
		m := &AppMetrics{}

		m.RegisterRequestsTotal, err = meter.Int64Counter(
			"register_requests_total",
			metric.WithDescription("Total number of register requests completed"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create register_requests_total: %v", err)
		}

		m.LoginRequestsTotal, err = meter.Int64Counter(
			"login_requests_total",
			metric.WithDescription("Total number of login requests completed"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create login_requests_total: %v", err)
		}

		m.LoginFailuresTotal, err = meter.Int64Counter(
			"login_failures_total",
			metric.WithDescription("Total number of failed login attempts"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create login_failures_total: %v", err)
		}

		m.ActivationsTotal, err = meter.Int64Counter(
			"account_activations_total",
			metric.WithDescription("Total number of successful account activations"),
			metric.WithUnit("{activation}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create account_activations_total: %v", err)
		}

		m.ActivationFailuresTotal, err = meter.Int64Counter(
			"account_activation_failures_total",
			metric.WithDescription("Total number of rejected activation attempts"),
			metric.WithUnit("{activation}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create account_activation_failures_total: %v", err)
		}

		m.ActivationCodesIssued, err = meter.Int64Counter(
			"activation_codes_issued_total",
			metric.WithDescription("Total number of activation codes generated and dispatched"),
			metric.WithUnit("{code}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create activation_codes_issued_total: %v", err)
		}

		m.RegisterDurationSeconds, err = meter.Float64Histogram(
			"register_duration_seconds",
			metric.WithDescription("Duration of register requests in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create register_duration_seconds: %v", err)
		}

		m.DbQueryErrorsTotal, err = meter.Int64Counter(
			"db_query_errors_total",
			metric.WithDescription("Total number of database query errors"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create db_query_errors_total: %v", err)
		}

		appMetrics = m
	})
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}
