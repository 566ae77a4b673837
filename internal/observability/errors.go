package observability

import (
	"context"
	"errors"
	"net/http"

	"lazycarbs-console/internal/apperr"
	"lazycarbs-console/internal/handlers"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RecordError centralises error handling across all domains: records the error
// on the span, increments the provided error counter, logs with trace context,
// and writes the JSON error response. The body carries the user-facing message,
// the error kind, and whether the credential prompt should be shown.
func RecordError(ctx context.Context, span trace.Span, logger *zap.Logger, counter metric.Int64Counter, opName string, err error, status int, w http.ResponseWriter) {
	kind := apperr.KindOf(err)
	msg := apperr.MessageOf(err)

	span.RecordError(err)
	span.SetStatus(codes.Error, msg)

	counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", opName),
		attribute.String("kind", kind.String()),
	))

	logger.Error(msg,
		zap.String("operation", opName),
		zap.String("kind", kind.String()),
		zap.Error(err),
		zap.String("request_id", RequestIDFromContext(ctx)),
	)

	body := handlers.ErrorBody{
		Error:            msg,
		Kind:             kind.String(),
		Code:             apperr.CodeOf(err),
		PromptCredential: kind.PromptsCredential(),
	}
	var pp partialProgress
	if errors.As(err, &pp) {
		key := pp.FailedKey()
		body.FailedKey = &key
		body.Committed = pp.CommittedKeys()
	}

	handlers.WriteJSON(w, status, body)
}

// partialProgress is implemented by errors from multi-step operations that
// stopped part way.
type partialProgress interface {
	FailedKey() int
	CommittedKeys() []int
}
