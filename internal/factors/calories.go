package factors

import (
	"context"
	"errors"
	"fmt"

	"lazycarbs-console/internal/apperr"
	"lazycarbs-console/internal/observability"
	"lazycarbs-console/internal/remote"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// CalorieField names one of the two global calorie parameters.
type CalorieField string

const (
	FieldUsualBeCalories            CalorieField = "usualBeCalories"
	FieldInsulinTypeCalorieCovering CalorieField = "insulinTypeCalorieCovering"
)

// CalorieService is the backend surface for the global calorie factors.
type CalorieService interface {
	CalorieFactors(ctx context.Context) (remote.CalorieFactors, error)
	PutCalorieFactors(ctx context.Context, f remote.CalorieFactors, editors ...remote.RequestEditor) error
}

// CalorieEditor edits both calorie factors together. Unlike the hourly
// buffer the two fields are saved as one record.
type CalorieEditor struct {
	svc  CalorieService
	gate Gate

	baseline remote.CalorieFactors
	working  remote.CalorieFactors
	stored   bool
}

func NewCalorieEditor(svc CalorieService, gate Gate) *CalorieEditor {
	return &CalorieEditor{svc: svc, gate: gate}
}

// Load fetches the stored factors. When none are stored yet the working
// values are seeded with remote.FallbackCalorieFactors and Stored reports false.
func (e *CalorieEditor) Load(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "factors.calories.load")
	defer span.End()

	f, err := e.svc.CalorieFactors(ctx)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		e.baseline = remote.CalorieFactors{}
		e.working = remote.FallbackCalorieFactors()
		e.stored = false
		observability.LoggerWithTrace(ctx).Info("no calorie factors stored, using fallback",
			zap.Float64("usual_be_calories", e.working.UsualBeCalories),
			zap.Float64("insulin_type_calorie_covering", e.working.InsulinTypeCalorieCovering),
		)
	case err != nil:
		err = remote.AsRemoteError(apperr.OpFetch, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("load calorie factors: %w", err)
	default:
		e.baseline = f
		e.working = f
		e.stored = true
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Working returns the values currently being edited.
func (e *CalorieEditor) Working() remote.CalorieFactors {
	return e.working
}

// Baseline returns the last values confirmed by the backend.
func (e *CalorieEditor) Baseline() remote.CalorieFactors {
	return e.baseline
}

// Stored reports whether the baseline exists on the backend.
func (e *CalorieEditor) Stored() bool {
	return e.stored
}

// IsDirty reports unsaved changes, including fallback values never persisted.
func (e *CalorieEditor) IsDirty() bool {
	return !e.stored || e.working != e.baseline
}

// SetField updates one working value from raw input; unparsable input becomes 0.
func (e *CalorieEditor) SetField(field CalorieField, raw string) error {
	v := parseInput(raw)
	switch field {
	case FieldUsualBeCalories:
		e.working.UsualBeCalories = v
	case FieldInsulinTypeCalorieCovering:
		e.working.InsulinTypeCalorieCovering = v
	default:
		return fmt.Errorf("calorie field %q: %w", field, apperr.ErrInvalidKey)
	}
	return nil
}

// Save persists both working values. The credential is mandatory.
func (e *CalorieEditor) Save(ctx context.Context) error {
	if !e.gate.IsValid() {
		e.gate.RequestPrompt()
		return fmt.Errorf("save calorie factors: %w", apperr.ErrNoCredential)
	}
	if !validFactor(e.working.UsualBeCalories) || !validFactor(e.working.InsulinTypeCalorieCovering) {
		return fmt.Errorf("save calorie factors: %w", apperr.ErrInvalidValue)
	}

	ctx, span := tracer.Start(ctx, "factors.calories.save")
	defer span.End()

	values := e.working
	err := e.svc.PutCalorieFactors(ctx, values, e.gate.Attach)
	if err != nil {
		if err = e.gate.Check(ctx, err); !errors.Is(err, apperr.ErrUnauthorized) {
			err = remote.AsRemoteError(apperr.OpSave, err)
		}
		recordSave(ctx, "calories", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("save calorie factors: %w", err)
	}

	e.baseline = values
	e.stored = true
	recordSave(ctx, "calories", nil)
	span.SetStatus(codes.Ok, "")

	observability.LoggerWithTrace(ctx).Info("calorie factors saved",
		zap.Float64("usual_be_calories", values.UsualBeCalories),
		zap.Float64("insulin_type_calorie_covering", values.InsulinTypeCalorieCovering),
	)
	return nil
}
