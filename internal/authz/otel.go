package authz

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "kslicense/authz"

// Metrics holds the engine's OpenTelemetry instruments.
type Metrics struct {
	AuthorizeAttempts metric.Int64Counter
	AuthorizeOutcomes metric.Int64Counter
	AuthorizeDuration metric.Float64Histogram
	AdminOperations   metric.Int64Counter
}

// newMetrics registers the engine instruments on the global meter
// provider. Before a provider is installed the instruments are no-ops.
func newMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}

	var err error
	m.AuthorizeAttempts, err = meter.Int64Counter(
		"license_authorize_attempts_total",
		metric.WithDescription("Total number of license authorization attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorize attempts counter: %w", err)
	}

	m.AuthorizeOutcomes, err = meter.Int64Counter(
		"license_authorize_outcomes_total",
		metric.WithDescription("License authorization outcomes by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorize outcomes counter: %w", err)
	}

	m.AuthorizeDuration, err = meter.Float64Histogram(
		"license_authorize_duration_seconds",
		metric.WithDescription("License authorization duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorize duration histogram: %w", err)
	}

	m.AdminOperations, err = meter.Int64Counter(
		"license_admin_operations_total",
		metric.WithDescription("Administrative operations by type and result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin operations counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordAttempt(ctx context.Context) {
	if m == nil {
		return
	}
	m.AuthorizeAttempts.Add(ctx, 1)
}

func (m *Metrics) recordAuthorize(ctx context.Context, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.AuthorizeOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.AuthorizeDuration.Record(ctx, time.Since(start).Seconds())
}

func (m *Metrics) recordAdmin(ctx context.Context, op string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.AdminOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("result", result),
	))
}
