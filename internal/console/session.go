package console

import (
	"context"
	"sync"

	"lazycarbs-console/internal/calculation"
	"lazycarbs-console/internal/credential"
	"lazycarbs-console/internal/factors"
	"lazycarbs-console/internal/observability"
	"lazycarbs-console/internal/remote"

	"go.uber.org/zap"
)

// Session is the single operator session served by the console. Every
// component owns its own state; the mutex only serialises HTTP requests so the
// engine keeps its one-caller-at-a-time model.
type Session struct {
	mu sync.Mutex

	Gate       *credential.Gate
	Hourly     *factors.Buffer
	Ranges     *factors.RangeApplier
	Calories   *factors.CalorieEditor
	Calculator *calculation.Pipeline
}

// NewSession wires the engine components around one backend client. The
// stored credential is read here, once.
func NewSession(ctx context.Context, client *remote.Client, store credential.Store, header string) *Session {
	gate := credential.NewGate(ctx, store, header)
	hourly := factors.NewBuffer(client, gate)

	return &Session{
		Gate:       gate,
		Hourly:     hourly,
		Ranges:     factors.NewRangeApplier(hourly),
		Calories:   factors.NewCalorieEditor(client, gate),
		Calculator: calculation.New(client, gate),
	}
}

// Start performs the initial reads. Failures are logged and left for the
// operator to retry through the refresh endpoints.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := observability.LoggerWithTrace(ctx)

	if err := s.Hourly.Fetch(ctx); err != nil {
		logger.Warn("initial bolus factor fetch failed", zap.Error(err))
	}
	if err := s.Calories.Load(ctx); err != nil {
		logger.Warn("initial calorie factor load failed", zap.Error(err))
	}
	if err := s.Calculator.Load(ctx); err != nil {
		logger.Warn("calculator defaults unavailable", zap.Error(err))
	}
}

// Do runs fn with exclusive access to the session.
func (s *Session) Do(fn func() (any, error)) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}
