// Package calculation runs the two-phase calculator flow: load the global
// calorie defaults, then submit meal data merged with the working factors to
// the backend, which owns the actual bolus algorithm.
package calculation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

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

var tracer = otel.Tracer("calculation")

// State of the pipeline.
type State int

const (
	StateLoadingDefaults State = iota
	StateReady
	StateSubmitting
	// StateDefaultsUnavailable is terminal until Load is retried.
	StateDefaultsUnavailable
)

func (s State) String() string {
	switch s {
	case StateLoadingDefaults:
		return "loading_defaults"
	case StateReady:
		return "ready"
	case StateSubmitting:
		return "submitting"
	case StateDefaultsUnavailable:
		return "defaults_unavailable"
	default:
		return "unknown"
	}
}

// Service is the backend surface the pipeline needs.
type Service interface {
	CalorieFactors(ctx context.Context) (remote.CalorieFactors, error)
	Calculate(ctx context.Context, req remote.CalculationRequest, editors ...remote.RequestEditor) (remote.CalculationResult, error)
}

// Gate is the part of the credential gate the pipeline consults.
type Gate interface {
	IsValid() bool
	Attach(req *http.Request)
	RequestPrompt()
	Check(ctx context.Context, err error) error
}

// Input is one calculation as entered by the operator. The calorie factor
// overrides replace the working values for this call only when set.
type Input struct {
	MealCarbs                  float64  `json:"mealCarbs"`
	MealCalories               float64  `json:"mealCalories"`
	CurrentHour                float64  `json:"currentHour"`
	CurrentMinute              float64  `json:"currentMinute"`
	MovementFactor             float64  `json:"movementFactor"`
	UsualBeCalories            *float64 `json:"usualBeCalories,omitempty"`
	InsulinTypeCalorieCovering *float64 `json:"insulinTypeCalorieCovering,omitempty"`
	Persist                    bool     `json:"persist"`
}

// Pipeline is not safe for concurrent use.
type Pipeline struct {
	svc  Service
	gate Gate

	state          State
	working        remote.CalorieFactors
	usingFallback  bool
	unavailableMsg string
	last           *remote.CalculationResult
}

// New returns a pipeline in StateLoadingDefaults; call Load before Submit.
func New(svc Service, gate Gate) *Pipeline {
	return &Pipeline{svc: svc, gate: gate, state: StateLoadingDefaults}
}

func (p *Pipeline) State() State { return p.state }

// Working returns the calorie factors a submission will use without overrides.
func (p *Pipeline) Working() remote.CalorieFactors { return p.working }

// UsingFallback reports whether the working values came from the fallback constants.
func (p *Pipeline) UsingFallback() bool { return p.usingFallback }

// UnavailableMessage is the server message that put the pipeline in
// StateDefaultsUnavailable.
func (p *Pipeline) UnavailableMessage() string { return p.unavailableMsg }

// LastResult returns the most recent successful result, if any.
func (p *Pipeline) LastResult() (remote.CalculationResult, bool) {
	if p.last == nil {
		return remote.CalculationResult{}, false
	}
	return *p.last, true
}

// Load (re)runs the defaults phase. A 404 is not an error: the fallback
// constants become the working values and the pipeline is ready.
func (p *Pipeline) Load(ctx context.Context) error {
	if p.state == StateSubmitting {
		return fmt.Errorf("load defaults: %w", apperr.ErrNotReady)
	}

	ctx, span := tracer.Start(ctx, "calculation.load_defaults")
	defer span.End()

	logger := observability.LoggerWithTrace(ctx)
	p.state = StateLoadingDefaults
	p.unavailableMsg = ""

	f, err := p.svc.CalorieFactors(ctx)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		p.working = remote.FallbackCalorieFactors()
		p.usingFallback = true
		span.AddEvent("defaults.fallback")
		logger.Info("no stored calorie defaults, using fallback values")
	case err != nil:
		rerr := remote.AsRemoteError(apperr.OpDefaults, err)
		p.state = StateDefaultsUnavailable
		p.unavailableMsg = apperr.MessageOf(rerr)
		span.RecordError(rerr)
		span.SetStatus(codes.Error, p.unavailableMsg)
		logger.Error("loading calorie defaults failed", zap.Error(rerr))
		return fmt.Errorf("load defaults: %w", rerr)
	default:
		p.working = f
		p.usingFallback = false
	}

	p.state = StateReady
	span.SetAttributes(
		attribute.Float64("defaults.usual_be_calories", p.working.UsualBeCalories),
		attribute.Float64("defaults.insulin_type_calorie_covering", p.working.InsulinTypeCalorieCovering),
		attribute.Bool("defaults.fallback", p.usingFallback),
	)
	span.SetStatus(codes.Ok, "")
	return nil
}

// SetWorking updates one working calorie factor from raw input. Unparsable
// input becomes NaN and is rejected at submit.
func (p *Pipeline) SetWorking(field, raw string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		v = math.NaN()
	}
	switch field {
	case "usualBeCalories":
		p.working.UsualBeCalories = v
	case "insulinTypeCalorieCovering":
		p.working.InsulinTypeCalorieCovering = v
	default:
		return fmt.Errorf("working field %q: %w", field, apperr.ErrInvalidKey)
	}
	return nil
}

// Submit validates in, merges the working factors and calls the backend.
// The credential header is attached only when in.Persist is set.
func (p *Pipeline) Submit(ctx context.Context, in Input) (remote.CalculationResult, error) {
	if p.state != StateReady {
		return remote.CalculationResult{}, fmt.Errorf("calculate from %s: %w", p.state, apperr.ErrNotReady)
	}

	req, ok := p.merge(in)
	if !ok {
		return remote.CalculationResult{}, fmt.Errorf("calculate: %w", apperr.ErrInvalidInput)
	}

	var editors []remote.RequestEditor
	if in.Persist {
		if !p.gate.IsValid() {
			p.gate.RequestPrompt()
			return remote.CalculationResult{}, fmt.Errorf("calculate: %w", apperr.ErrPersistenceNeedsCredential)
		}
		editors = append(editors, p.gate.Attach)
	}

	ctx, span := tracer.Start(ctx, "calculation.submit",
		trace.WithAttributes(
			attribute.Float64("calculation.meal_carbs", req.MealCarbs),
			attribute.Float64("calculation.meal_calories", req.MealCalories),
			attribute.Bool("calculation.persist", in.Persist),
		),
	)
	defer span.End()

	p.state = StateSubmitting
	defer func() { p.state = StateReady }()

	start := time.Now()
	res, err := p.svc.Calculate(ctx, req, editors...)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		if err = p.gate.Check(ctx, err); !errors.Is(err, apperr.ErrUnauthorized) {
			err = remote.AsRemoteError(apperr.OpCalculate, err)
		}
		recordCalculation(ctx, in.Persist, err, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.MessageOf(err))
		return remote.CalculationResult{}, fmt.Errorf("calculate: %w", err)
	}

	p.last = &res
	recordCalculation(ctx, in.Persist, nil, elapsed)

	span.AddEvent("calculation.complete", trace.WithAttributes(
		attribute.Float64("final_correct_bolus", res.FinalCorrectBolus),
		attribute.Float64("duration_ms", elapsed),
	))
	span.SetStatus(codes.Ok, "")

	observability.LoggerWithTrace(ctx).Info("calculation completed",
		zap.Float64("meal_carbs", req.MealCarbs),
		zap.Float64("meal_calories", req.MealCalories),
		zap.Bool("persist", in.Persist),
		zap.String("method", res.SelectedMethodName),
		zap.String("db_status", res.DBStatus),
		zap.Float64("duration_ms", elapsed),
	)
	return res, nil
}

func (p *Pipeline) merge(in Input) (remote.CalculationRequest, bool) {
	req := remote.CalculationRequest{
		MealCarbs:                  in.MealCarbs,
		MealCalories:               in.MealCalories,
		UsualBeCalories:            p.working.UsualBeCalories,
		InsulinTypeCalorieCovering: p.working.InsulinTypeCalorieCovering,
		CurrentHour:                in.CurrentHour,
		CurrentMinute:              in.CurrentMinute,
		MovementFactor:             in.MovementFactor,
		EnableDatabaseStorage:      in.Persist,
	}
	if in.UsualBeCalories != nil {
		req.UsualBeCalories = *in.UsualBeCalories
	}
	if in.InsulinTypeCalorieCovering != nil {
		req.InsulinTypeCalorieCovering = *in.InsulinTypeCalorieCovering
	}

	for _, v := range []float64{req.MealCarbs, req.MealCalories, req.CurrentHour, req.CurrentMinute, req.MovementFactor} {
		if !finite(v) {
			return req, false
		}
	}
	if !positive(req.UsualBeCalories) || !positive(req.InsulinTypeCalorieCovering) {
		return req, false
	}
	return req, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func positive(v float64) bool {
	return finite(v) && v > 0
}

func recordCalculation(ctx context.Context, persist bool, err error, elapsedMS float64) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	attrs := metric.WithAttributes(
		attribute.Bool("persist", persist),
		attribute.String("outcome", outcome),
	)
	calcCounter.Add(ctx, 1, attrs)
	calcDuration.Record(ctx, elapsedMS, attrs)
}
