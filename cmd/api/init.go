package main

import (
	"context"

	"lazycarbs-console/internal/calculation"
	"lazycarbs-console/internal/console"
	"lazycarbs-console/internal/credential"
	"lazycarbs-console/internal/factors"
	"lazycarbs-console/internal/observability"
)

// initMetrics initialises all metric providers and application-specific
// metric instruments. Add new domain InitMetrics calls here as the project grows.
func initMetrics(ctx context.Context) (func(context.Context) error, error) {
	shutdown, err := observability.InitMetrics(ctx)
	if err != nil {
		return nil, err
	}

	for _, initFn := range []func() error{
		credential.InitMetrics,
		factors.InitMetrics,
		calculation.InitMetrics,
		console.InitMetrics,
	} {
		if err := initFn(); err != nil {
			return nil, err
		}
	}

	return shutdown, nil
}
