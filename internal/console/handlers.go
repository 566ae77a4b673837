package console

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"lazycarbs-console/internal/apperr"
	"lazycarbs-console/internal/calculation"
	"lazycarbs-console/internal/factors"
	"lazycarbs-console/internal/handlers"
	"lazycarbs-console/internal/observability"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("console")

// Handler exposes one Session over HTTP.
type Handler struct {
	session *Session
}

func NewHandler(s *Session) *Handler {
	return &Handler{session: s}
}

// run is the shared wrapper for every console operation: child span, session
// lock, metrics, trace-correlated logging and the JSON response. fn returns
// the value to encode; a json.RawMessage is written unchanged.
func (h *Handler) run(w http.ResponseWriter, r *http.Request, opName string, fn func(ctx context.Context) (any, error)) {
	ctx := r.Context()
	logger := observability.LoggerWithTrace(ctx)
	requestID := observability.RequestIDFromContext(ctx)

	ctx, span := tracer.Start(ctx, "console."+opName,
		trace.WithAttributes(
			attribute.String("console.operation", opName),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	start := time.Now()
	out, err := h.session.Do(func() (any, error) { return fn(ctx) })
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0

	attrs := metric.WithAttributes(attribute.String("operation", opName))
	opsCounter.Add(ctx, 1, attrs)
	opsHistogram.Record(ctx, elapsed, attrs)

	if err != nil {
		observability.RecordError(ctx, span, logger, errorCounter, opName, err, statusFor(err), w)
		return
	}

	span.SetStatus(codes.Ok, "")
	logger.Debug("console operation completed",
		zap.String("operation", opName),
		zap.String("request_id", requestID),
		zap.Float64("duration_ms", elapsed),
	)

	if raw, ok := out.(json.RawMessage); ok {
		handlers.WriteRawJSON(w, http.StatusOK, raw)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, out)
}

// statusFor maps the outcome taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindLocalValidation:
		return http.StatusBadRequest
	case apperr.KindNoCredential, apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotReady:
		return http.StatusConflict
	case apperr.KindRemoteFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrMalformedBody, err)
	}
	return nil
}

func hourParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "hour")
	hour, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("hour %q: %w", raw, apperr.ErrInvalidKey)
	}
	return hour, nil
}

// ---------------------------------------------------------------------------
// Credential
// ---------------------------------------------------------------------------

// GetCredential handles GET /api/credential. The value itself is never returned.
func (h *Handler) GetCredential(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "credential.get", func(context.Context) (any, error) {
		return h.credentialView(), nil
	})
}

// SubmitCredential handles PUT /api/credential.
func (h *Handler) SubmitCredential(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "credential.submit", func(ctx context.Context) (any, error) {
		var req CredentialRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		if err := h.session.Gate.Submit(ctx, req.Value); err != nil {
			return nil, err
		}
		return h.credentialView(), nil
	})
}

func (h *Handler) credentialView() CredentialView {
	g := h.session.Gate
	return CredentialView{
		State:  g.State().String(),
		Valid:  g.IsValid(),
		Prompt: g.PromptRequested(),
	}
}

// ---------------------------------------------------------------------------
// Hourly bolus factors
// ---------------------------------------------------------------------------

// ListFactors handles GET /api/factors.
func (h *Handler) ListFactors(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "factors.list", func(context.Context) (any, error) {
		return FactorsView{Rows: h.session.Hourly.Rows()}, nil
	})
}

// RefreshFactors handles POST /api/factors/refresh. Pending edits are dropped.
func (h *Handler) RefreshFactors(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "factors.refresh", func(ctx context.Context) (any, error) {
		if err := h.session.Hourly.Fetch(ctx); err != nil {
			return nil, err
		}
		return FactorsView{Rows: h.session.Hourly.Rows()}, nil
	})
}

// EditFactor handles PUT /api/factors/{hour}/edit. An empty value clears the edit.
func (h *Handler) EditFactor(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "factors.edit", func(context.Context) (any, error) {
		hour, err := hourParam(r)
		if err != nil {
			return nil, err
		}
		var req EditRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		if err := h.session.Hourly.SetEdit(hour, req.Value); err != nil {
			return nil, err
		}
		return h.session.Hourly.Rows()[hour], nil
	})
}

// SaveFactor handles POST /api/factors/{hour}/save.
func (h *Handler) SaveFactor(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "factors.save", func(ctx context.Context) (any, error) {
		hour, err := hourParam(r)
		if err != nil {
			return nil, err
		}
		if !validHourKey(hour) {
			return nil, fmt.Errorf("hour %d: %w", hour, apperr.ErrInvalidKey)
		}
		if err := h.session.Hourly.Save(ctx, hour); err != nil {
			return nil, err
		}
		return h.session.Hourly.Rows()[hour], nil
	})
}

// ApplyRange handles POST /api/factors/range. A partial failure reports the
// failing hour and the hours already committed.
func (h *Handler) ApplyRange(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "factors.range", func(ctx context.Context) (any, error) {
		var req factors.RangeRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		res, err := h.session.Ranges.Apply(ctx, req)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
}

func validHourKey(hour int) bool {
	return hour >= factors.MinHour && hour <= factors.MaxHour
}

// ---------------------------------------------------------------------------
// Calorie factors
// ---------------------------------------------------------------------------

// GetCalories handles GET /api/calories.
func (h *Handler) GetCalories(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "calories.get", func(context.Context) (any, error) {
		return h.caloriesView(), nil
	})
}

// RefreshCalories handles POST /api/calories/refresh.
func (h *Handler) RefreshCalories(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "calories.refresh", func(ctx context.Context) (any, error) {
		if err := h.session.Calories.Load(ctx); err != nil {
			return nil, err
		}
		return h.caloriesView(), nil
	})
}

// EditCalories handles PUT /api/calories/edit.
func (h *Handler) EditCalories(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "calories.edit", func(context.Context) (any, error) {
		var req FieldEditRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		if err := h.session.Calories.SetField(factors.CalorieField(req.Field), req.Value); err != nil {
			return nil, err
		}
		return h.caloriesView(), nil
	})
}

// SaveCalories handles POST /api/calories/save. The calculator reloads its
// defaults afterwards so its working values follow the saved ones.
func (h *Handler) SaveCalories(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "calories.save", func(ctx context.Context) (any, error) {
		if err := h.session.Calories.Save(ctx); err != nil {
			return nil, err
		}
		if err := h.session.Calculator.Load(ctx); err != nil {
			observability.LoggerWithTrace(ctx).Warn("reloading calculator defaults after save failed", zap.Error(err))
		}
		return h.caloriesView(), nil
	})
}

func (h *Handler) caloriesView() CaloriesView {
	c := h.session.Calories
	return CaloriesView{
		Working:  c.Working(),
		Baseline: c.Baseline(),
		Stored:   c.Stored(),
		Dirty:    c.IsDirty(),
	}
}

// ---------------------------------------------------------------------------
// Calculator
// ---------------------------------------------------------------------------

// GetCalculator handles GET /api/calculator.
func (h *Handler) GetCalculator(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "calculator.get", func(context.Context) (any, error) {
		return h.calculatorView(), nil
	})
}

// ReloadCalculator handles POST /api/calculator/reload, the retry path out of
// defaults_unavailable.
func (h *Handler) ReloadCalculator(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "calculator.reload", func(ctx context.Context) (any, error) {
		if err := h.session.Calculator.Load(ctx); err != nil {
			return nil, err
		}
		return h.calculatorView(), nil
	})
}

// EditWorking handles PUT /api/calculator/working.
func (h *Handler) EditWorking(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "calculator.working", func(context.Context) (any, error) {
		var req FieldEditRequest
		if err := decode(r, &req); err != nil {
			return nil, err
		}
		if err := h.session.Calculator.SetWorking(req.Field, req.Value); err != nil {
			return nil, err
		}
		return h.calculatorView(), nil
	})
}

// Submit handles POST /api/calculator/submit. The backend result is returned
// exactly as received.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "calculator.submit", func(ctx context.Context) (any, error) {
		var in calculation.Input
		if err := decode(r, &in); err != nil {
			return nil, err
		}
		result, err := h.session.Calculator.Submit(ctx, in)
		if err != nil {
			return nil, err
		}
		return result.Raw, nil
	})
}

func (h *Handler) calculatorView() CalculatorView {
	p := h.session.Calculator
	working := p.Working()
	view := CalculatorView{
		State:              p.State().String(),
		Working:            WorkingFactors{UsualBeCalories: finiteOrNil(working.UsualBeCalories), InsulinTypeCalorieCovering: finiteOrNil(working.InsulinTypeCalorieCovering)},
		UsingFallback:      p.UsingFallback(),
		UnavailableMessage: p.UnavailableMessage(),
	}
	if last, ok := p.LastResult(); ok {
		view.LastResult = last.Raw
	}
	return view
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
