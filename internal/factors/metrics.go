package factors

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metric instruments. They are no-ops until InitMetrics runs.
var (
	saveCounter  metric.Int64Counter   = noop.Int64Counter{}
	rangeCounter metric.Int64Counter   = noop.Int64Counter{}
	rangeKeys    metric.Int64Histogram = noop.Int64Histogram{}
)

// InitMetrics registers the factor editing instruments. Call this once at
// startup (after observability.InitMetrics).
func InitMetrics() error {
	meter := otel.Meter("factors")

	var err error

	saveCounter, err = meter.Int64Counter("factors.saves.total",
		metric.WithDescription("Single-key factor mutations by mode and outcome"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		return fmt.Errorf("creating save counter: %w", err)
	}

	rangeCounter, err = meter.Int64Counter("factors.range_applies.total",
		metric.WithDescription("Range applications by outcome"),
		metric.WithUnit("{apply}"),
	)
	if err != nil {
		return fmt.Errorf("creating range counter: %w", err)
	}

	rangeKeys, err = meter.Int64Histogram("factors.range_applies.committed_keys",
		metric.WithDescription("Keys committed per range application"),
		metric.WithUnit("{key}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 4, 8, 12, 16, 24),
	)
	if err != nil {
		return fmt.Errorf("creating range keys histogram: %w", err)
	}

	return nil
}
