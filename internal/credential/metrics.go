package credential

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var invalidations metric.Int64Counter = noop.Int64Counter{}

var validGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "lazycarbs",
	Name:      "credential_valid",
	Help:      "1 while the console holds a credential it assumes valid.",
})

// InitMetrics registers the credential instruments. Call it once at startup
// (after observability.InitMetrics).
func InitMetrics() error {
	meter := otel.Meter("credential")

	c, err := meter.Int64Counter("credential.invalidations.total",
		metric.WithDescription("Credentials dropped after a 401 from the backend"),
		metric.WithUnit("{invalidation}"),
	)
	if err != nil {
		return fmt.Errorf("creating invalidation counter: %w", err)
	}
	invalidations = c
	return nil
}

func recordState(s State) {
	if s == StatePresent {
		validGauge.Set(1)
		return
	}
	validGauge.Set(0)
}
