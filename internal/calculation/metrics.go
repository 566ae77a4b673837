package calculation

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metric instruments. They are no-ops until InitMetrics runs.
var (
	calcCounter  metric.Int64Counter     = noop.Int64Counter{}
	calcDuration metric.Float64Histogram = noop.Float64Histogram{}
)

// InitMetrics registers the calculation instruments. Call this once at startup
// (after observability.InitMetrics).
func InitMetrics() error {
	meter := otel.Meter("calculation")

	var err error

	calcCounter, err = meter.Int64Counter("calculation.requests.total",
		metric.WithDescription("Calculations submitted to the backend"),
		metric.WithUnit("{calculation}"),
	)
	if err != nil {
		return fmt.Errorf("creating calculation counter: %w", err)
	}

	calcDuration, err = meter.Float64Histogram("calculation.request.duration",
		metric.WithDescription("Backend round trip of a calculation in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("creating calculation histogram: %w", err)
	}

	return nil
}
