package factors

import (
	"context"
	"fmt"

	"lazycarbs-console/internal/apperr"
	"lazycarbs-console/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RangeRequest writes Value to every hour in [From, To].
type RangeRequest struct {
	From  int     `json:"from"`
	To    int     `json:"to"`
	Value float64 `json:"value"`
}

// Validate checks 0 <= From <= To <= 23 and a finite Value > 0.
func (r RangeRequest) Validate() error {
	if r.From < MinHour || r.To > MaxHour || r.From > r.To || !validFactor(r.Value) {
		return apperr.ErrInvalidRange
	}
	return nil
}

// RangeResult reports a fully applied range.
type RangeResult struct {
	Request   RangeRequest `json:"request"`
	Committed []int        `json:"committed"`
}

// RangeError reports where a range application stopped. Every hour in
// Committed already carries the new baseline; Key and the hours after it
// keep their previous values.
type RangeError struct {
	Key       int
	Committed []int
	Err       error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range stopped at hour %d after %d committed: %v", e.Key, len(e.Committed), e.Err)
}

func (e *RangeError) Unwrap() error { return e.Err }

// FailedKey is the hour whose write failed.
func (e *RangeError) FailedKey() int { return e.Key }

// CommittedKeys are the hours written before the failure.
func (e *RangeError) CommittedKeys() []int { return e.Committed }

// RangeApplier expands a range into single-key commits on a Buffer. The
// backend has no multi-key write, so hours are committed one at a time in
// ascending order and the first failure ends the run.
type RangeApplier struct {
	buf *Buffer
}

func NewRangeApplier(buf *Buffer) *RangeApplier {
	return &RangeApplier{buf: buf}
}

// Apply runs req to completion or to the first failing hour. Neither an
// invalid request nor a missing credential issues any call.
func (a *RangeApplier) Apply(ctx context.Context, req RangeRequest) (RangeResult, error) {
	result := RangeResult{Request: req}

	if err := req.Validate(); err != nil {
		return result, fmt.Errorf("apply range %d-%d: %w", req.From, req.To, err)
	}
	if !a.buf.gate.IsValid() {
		a.buf.gate.RequestPrompt()
		return result, fmt.Errorf("apply range %d-%d: %w", req.From, req.To, apperr.ErrNoCredential)
	}

	logger := observability.LoggerWithTrace(ctx)

	ctx, span := tracer.Start(ctx, "factors.range",
		trace.WithAttributes(
			attribute.Int("range.from", req.From),
			attribute.Int("range.to", req.To),
			attribute.Float64("range.value", req.Value),
		),
	)
	defer span.End()

	committed := make([]int, 0, req.To-req.From+1)

	for key := req.From; key <= req.To; key++ {
		stepCtx, stepSpan := tracer.Start(ctx, fmt.Sprintf("factors.range.hour.%d", key),
			trace.WithAttributes(attribute.Int("factors.hour", key)),
		)

		err := a.buf.commit(stepCtx, key, req.Value)
		recordSave(stepCtx, "range", err)

		if err != nil {
			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.End()

			span.RecordError(err)
			span.SetStatus(codes.Error, fmt.Sprintf("failed at hour %d", key))
			recordRange(ctx, err, len(committed))

			logger.Error("range application stopped",
				zap.Int("hour", key),
				zap.Ints("committed", committed),
				zap.Error(err),
			)

			result.Committed = committed
			return result, &RangeError{Key: key, Committed: committed, Err: err}
		}

		stepSpan.SetStatus(codes.Ok, "")
		stepSpan.End()
		committed = append(committed, key)
	}

	span.SetAttributes(attribute.Int("range.committed", len(committed)))
	span.SetStatus(codes.Ok, "")
	recordRange(ctx, nil, len(committed))

	logger.Info("range applied",
		zap.Int("from", req.From),
		zap.Int("to", req.To),
		zap.Float64("value", req.Value),
	)

	result.Committed = committed
	return result, nil
}

func recordRange(ctx context.Context, err error, committed int) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	rangeCounter.Add(ctx, 1, attrs)
	rangeKeys.Record(ctx, int64(committed), attrs)
}
