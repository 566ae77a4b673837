package observability

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogging exports logs over OTLP in addition to stdout. Only entries at
// or above minLevel are exported; an empty minLevel exports what stdout gets.
// Call it after InitLogger; the returned func flushes and stops the exporter.
func InitLogging(ctx context.Context, minLevel string) (func(context.Context) error, error) {

	exporter, err := otlploghttp.New(ctx)
	if err != nil {
		return nil, err
	}

	res, err := newResource(ctx)
	if err != nil {
		return nil, err
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(
			sdklog.NewBatchProcessor(exporter),
		),
	)

	var otelCore zapcore.Core = otelzap.NewCore(ServiceName(), otelzap.WithLoggerProvider(provider))
	if strings.TrimSpace(minLevel) != "" {
		lvl, err := zapcore.ParseLevel(strings.TrimSpace(minLevel))
		if err != nil {
			return nil, fmt.Errorf("otlp log level: %w", err)
		}
		if otelCore, err = zapcore.NewIncreaseLevelCore(otelCore, lvl); err != nil {
			return nil, fmt.Errorf("otlp log level: %w", err)
		}
	}

	// Tee the stdout core with the OTel core.
	Logger = zap.New(zapcore.NewTee(Logger.Core(), otelCore))

	return provider.Shutdown, nil
}
