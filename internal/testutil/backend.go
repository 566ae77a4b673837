package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// APIKeyHeader is the credential header the fake backend checks.
const APIKeyHeader = "X-API-Key"

// Failure is a canned non-success response.
type Failure struct {
	Status  int
	Message string
}

// RecordedRequest is one call observed by the fake backend.
type RecordedRequest struct {
	Method string
	Path   string
	APIKey string
}

type hourlyFactor struct {
	Hour        int     `json:"hour"`
	BolusFactor float64 `json:"bolusFactor"`
}

type calorieFactors struct {
	UsualBeCalories            float64 `json:"usualBeCalories"`
	InsulinTypeCalorieCovering float64 `json:"insulinTypeCalorieCovering"`
}

type calculation struct {
	MealCarbs                  float64 `json:"mealCarbs"`
	MealCalories               float64 `json:"mealCalories"`
	UsualBeCalories            float64 `json:"usualBeCalories"`
	InsulinTypeCalorieCovering float64 `json:"insulinTypeCalorieCovering"`
	CurrentHour                float64 `json:"currentHour"`
	CurrentMinute              float64 `json:"currentMinute"`
	MovementFactor             float64 `json:"movementFactor"`
	EnableDatabaseStorage      bool    `json:"enableDatabaseStorage"`
}

// Backend is an in-process stand-in for the LazyCarbs backend. Mutating
// endpoints answer 401 unless the request carries APIKey.
type Backend struct {
	Server *httptest.Server

	mu           sync.Mutex
	apiKey       string
	hourly       map[int]float64
	calories     *calorieFactors
	hourFailures map[int]Failure
	defaultsFail *Failure
	calcFail     *Failure
	calcBody     []byte
	requests     []RecordedRequest
}

// NewBackend starts a fake backend with every hour set to 1.0 and no stored
// calorie factors. It is closed when the test ends.
func NewBackend(t testing.TB, apiKey string) *Backend {
	t.Helper()

	b := &Backend{
		apiKey:       apiKey,
		hourly:       make(map[int]float64, 24),
		hourFailures: make(map[int]Failure),
	}
	for h := 0; h < 24; h++ {
		b.hourly[h] = 1.0
	}

	r := chi.NewRouter()
	r.Use(b.record)
	r.Get("/api/bolus-factors", b.listHourly)
	r.Put("/api/bolus-factors/{hour}", b.putHourly)
	r.Get("/api/calorie-factors", b.getCalories)
	r.Put("/api/calorie-factors", b.putCalories)
	r.Post("/api/calculate", b.calculate)

	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Server.Close)
	return b
}

// URL is the backend root.
func (b *Backend) URL() string { return b.Server.URL }

// SetAPIKey changes the accepted credential; existing clients start getting 401.
func (b *Backend) SetAPIKey(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.apiKey = key
}

func (b *Backend) SetHourly(hour int, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hourly[hour] = value
}

func (b *Backend) Hourly(hour int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hourly[hour]
}

func (b *Backend) SetCalories(usual, covering float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calories = &calorieFactors{UsualBeCalories: usual, InsulinTypeCalorieCovering: covering}
}

// Calories returns the stored calorie factors and whether any are stored.
func (b *Backend) Calories() (usual, covering float64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.calories == nil {
		return 0, 0, false
	}
	return b.calories.UsualBeCalories, b.calories.InsulinTypeCalorieCovering, true
}

// FailHour makes PUT for hour answer with f.
func (b *Backend) FailHour(hour int, f Failure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hourFailures[hour] = f
}

// FailDefaults makes GET /api/calorie-factors answer with f.
func (b *Backend) FailDefaults(f Failure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.defaultsFail = &f
}

// FailCalculate makes POST /api/calculate answer with f.
func (b *Backend) FailCalculate(f Failure) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calcFail = &f
}

// SetCalculateBody makes a successful POST /api/calculate answer with raw
// instead of the computed result.
func (b *Backend) SetCalculateBody(raw string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calcBody = []byte(raw)
}

// ClearFailures drops every canned failure.
func (b *Backend) ClearFailures() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hourFailures = make(map[int]Failure)
	b.defaultsFail = nil
	b.calcFail = nil
}

// Requests returns the calls observed so far.
func (b *Backend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]RecordedRequest, len(b.requests))
	copy(out, b.requests)
	return out
}

// CountRequests counts calls matching method and path.
func (b *Backend) CountRequests(method, path string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			APIKey: r.Header.Get(APIKeyHeader),
		})
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) authorized(r *http.Request) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.apiKey == "" || r.Header.Get(APIKeyHeader) == b.apiKey
}

func (b *Backend) listHourly(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	out := make([]hourlyFactor, 0, len(b.hourly))
	for h, v := range b.hourly {
		out = append(out, hourlyFactor{Hour: h, BolusFactor: v})
	}
	b.mu.Unlock()

	// Unordered on purpose; the client sorts.
	sort.Slice(out, func(i, j int) bool { return out[i].Hour > out[j].Hour })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) putHourly(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		http.Error(w, "Invalid API Key", http.StatusUnauthorized)
		return
	}
	hour, err := strconv.Atoi(chi.URLParam(r, "hour"))
	if err != nil {
		http.Error(w, "invalid hour", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	f, failing := b.hourFailures[hour]
	b.mu.Unlock()
	if failing {
		http.Error(w, f.Message, f.Status)
		return
	}

	var in hourlyFactor
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	b.hourly[hour] = in.BolusFactor
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, hourlyFactor{Hour: hour, BolusFactor: in.BolusFactor})
}

func (b *Backend) getCalories(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	fail, stored := b.defaultsFail, b.calories
	b.mu.Unlock()

	switch {
	case fail != nil:
		http.Error(w, fail.Message, fail.Status)
	case stored == nil:
		http.Error(w, "", http.StatusNotFound)
	default:
		writeJSON(w, http.StatusOK, stored)
	}
}

func (b *Backend) putCalories(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		http.Error(w, "Invalid API Key", http.StatusUnauthorized)
		return
	}
	var in calorieFactors
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.calories = &in
	b.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (b *Backend) calculate(w http.ResponseWriter, r *http.Request) {
	var in calculation
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"statusMessage": "invalid body"})
		return
	}
	if in.EnableDatabaseStorage && !b.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"statusMessage": "Invalid API Key"})
		return
	}

	b.mu.Lock()
	fail, body := b.calcFail, b.calcBody
	factor := b.hourly[int(in.CurrentHour)]
	b.mu.Unlock()
	if fail != nil {
		writeJSON(w, fail.Status, map[string]string{"statusMessage": fail.Message})
		return
	}
	if body != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
		return
	}

	dbStatus := "not stored"
	if in.EnableDatabaseStorage {
		dbStatus = "stored"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mealCarbs":                  in.MealCarbs,
		"mealCalories":               in.MealCalories,
		"usualBeCalories":            in.UsualBeCalories,
		"insulinTypeCalorieCovering": in.InsulinTypeCalorieCovering,
		"currentHour":                in.CurrentHour,
		"currentMinute":              in.CurrentMinute,
		"movementFactor":             in.MovementFactor,
		"usualBolusFactor":           factor,
		"finalCorrectBolus":          in.MealCarbs / 12 * factor * in.MovementFactor,
		"selectedMethodName":         "fake",
		"statusMessage":              "ok",
		"dbStatus":                   dbStatus,
		"backendOnlyField":           "passthrough",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
