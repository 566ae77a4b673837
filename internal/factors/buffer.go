// Package factors reconciles server-held parameters with operator edits. The
// last fetched values (the baseline) and the values being typed (pending
// edits) live in two separate maps; only a confirmed save moves a value from
// one to the other.
package factors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"lazycarbs-console/internal/apperr"
	"lazycarbs-console/internal/observability"
	"lazycarbs-console/internal/remote"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("factors")

// Hour domain of the per-hour factors.
const (
	MinHour = 0
	MaxHour = 23
)

// HourlyService is the backend surface for per-hour factors.
type HourlyService interface {
	HourlyFactors(ctx context.Context) ([]remote.HourlyFactor, error)
	PutHourlyFactor(ctx context.Context, f remote.HourlyFactor, editors ...remote.RequestEditor) (remote.HourlyFactor, error)
}

// Gate is the part of the credential gate the editors consult.
type Gate interface {
	IsValid() bool
	Attach(req *http.Request)
	RequestPrompt()
	Check(ctx context.Context, err error) error
}

// Buffer tracks the per-hour baseline and the operator's pending edits.
// It is not safe for concurrent use.
type Buffer struct {
	svc  HourlyService
	gate Gate

	baseline map[int]float64
	pending  map[int]float64
}

func NewBuffer(svc HourlyService, gate Gate) *Buffer {
	return &Buffer{
		svc:      svc,
		gate:     gate,
		baseline: make(map[int]float64),
		pending:  make(map[int]float64),
	}
}

// Row is the read model of one hour.
type Row struct {
	Hour     int      `json:"hour"`
	Baseline *float64 `json:"baseline"`
	Pending  *float64 `json:"pending"`
	Dirty    bool     `json:"dirty"`
}

// Fetch replaces the baseline wholesale with the server's values and drops
// all pending edits. On failure both maps are left untouched.
func (b *Buffer) Fetch(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "factors.fetch")
	defer span.End()

	list, err := b.svc.HourlyFactors(ctx)
	if err != nil {
		err = remote.AsRemoteError(apperr.OpFetch, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("fetch hourly factors: %w", err)
	}

	baseline := make(map[int]float64, len(list))
	for _, f := range list {
		baseline[f.Hour] = f.BolusFactor
	}
	b.baseline = baseline
	b.pending = make(map[int]float64)

	span.SetAttributes(attribute.Int("factors.count", len(baseline)))
	span.SetStatus(codes.Ok, "")
	return nil
}

// Baseline returns the last confirmed value for key.
func (b *Buffer) Baseline(key int) (float64, bool) {
	v, ok := b.baseline[key]
	return v, ok
}

// SetEdit records raw operator input for key. Empty input removes the edit so
// the key falls back to its baseline; input that does not parse is kept as 0
// and rejected on save.
func (b *Buffer) SetEdit(key int, raw string) error {
	if !validHour(key) {
		return fmt.Errorf("hour %d: %w", key, apperr.ErrInvalidKey)
	}
	if raw == "" {
		delete(b.pending, key)
		return nil
	}
	b.pending[key] = parseInput(raw)
	return nil
}

// IsDirty reports whether key has a pending edit.
func (b *Buffer) IsDirty(key int) bool {
	_, ok := b.pending[key]
	return ok
}

// ValueToSave returns the pending edit for key. An unedited key has nothing
// to save; it does not fall back to the baseline.
func (b *Buffer) ValueToSave(key int) (float64, bool) {
	v, ok := b.pending[key]
	return v, ok
}

// Save submits the pending edit for key.
func (b *Buffer) Save(ctx context.Context, key int) error {
	if !b.gate.IsValid() {
		b.gate.RequestPrompt()
		return fmt.Errorf("save hour %d: %w", key, apperr.ErrNoCredential)
	}
	value, ok := b.ValueToSave(key)
	if !ok {
		return fmt.Errorf("save hour %d: %w", key, apperr.ErrNoPendingEdit)
	}
	if !validFactor(value) {
		return fmt.Errorf("save hour %d: %w", key, apperr.ErrInvalidValue)
	}

	ctx, span := tracer.Start(ctx, "factors.save",
		trace.WithAttributes(
			attribute.Int("factors.hour", key),
			attribute.Float64("factors.value", value),
		),
	)
	defer span.End()

	err := b.commit(ctx, key, value)
	recordSave(ctx, "single", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("save hour %d: %w", key, err)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// commit is the single-key mutation shared by Save and the range applier.
// On success the baseline takes value and the pending edit is dropped in the
// same step; on failure neither map changes.
func (b *Buffer) commit(ctx context.Context, key int, value float64) error {
	_, err := b.svc.PutHourlyFactor(ctx, remote.HourlyFactor{Hour: key, BolusFactor: value}, b.gate.Attach)
	if err != nil {
		if err = b.gate.Check(ctx, err); errors.Is(err, apperr.ErrUnauthorized) {
			return err
		}
		return remote.AsRemoteError(apperr.OpSave, err)
	}

	b.baseline[key] = value
	delete(b.pending, key)

	observability.LoggerWithTrace(ctx).Info("bolus factor saved",
		zap.Int("hour", key),
		zap.Float64("value", value),
	)
	return nil
}

// Rows lists every hour of the day with its baseline and pending edit.
func (b *Buffer) Rows() []Row {
	rows := make([]Row, 0, MaxHour-MinHour+1)
	for h := MinHour; h <= MaxHour; h++ {
		row := Row{Hour: h}
		if v, ok := b.baseline[h]; ok {
			row.Baseline = &v
		}
		if v, ok := b.pending[h]; ok {
			row.Pending = &v
			row.Dirty = true
		}
		rows = append(rows, row)
	}
	return rows
}

func validHour(h int) bool {
	return h >= MinHour && h <= MaxHour
}

func validFactor(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func parseInput(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v
}

func recordSave(ctx context.Context, mode string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	saveCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
}
