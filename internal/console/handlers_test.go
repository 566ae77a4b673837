package console

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"lazycarbs-console/internal/credstore"
	"lazycarbs-console/internal/handlers"
	"lazycarbs-console/internal/remote"
	"lazycarbs-console/internal/testutil"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
)

type harness struct {
	router  http.Handler
	backend *testutil.Backend
	store   *credstore.MemoryStore
	session *Session
}

func newHarness(t *testing.T, storedKey string) *harness {
	t.Helper()

	backend := testutil.NewBackend(t, "secret")
	store := credstore.NewMemoryStore(storedKey)
	session := NewSession(context.Background(), remote.NewWithClient(backend.URL(), nil), store, testutil.APIKeyHeader)
	session.Start(context.Background())

	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(session))

	return &harness{router: r, backend: backend, store: store, session: session}
}

func (h *harness) do(t *testing.T, method, target string, body any) (int, []byte) {
	t.Helper()
	rr := testutil.ExecuteRequest(testutil.JSONRequest(t, method, target, body), h.router)
	return rr.Code, rr.Body.Bytes()
}

func decodeError(t *testing.T, raw []byte) handlers.ErrorBody {
	t.Helper()
	var body handlers.ErrorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decoding error body %q: %v", raw, err)
	}
	return body
}

func TestStartLoadsEveryComponent(t *testing.T) {
	h := newHarness(t, "secret")

	code, raw := h.do(t, http.MethodGet, "/api/factors", nil)
	testutil.CheckResponseCode(t, http.StatusOK, code)

	var view FactorsView
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatalf("decoding factors: %v", err)
	}
	if len(view.Rows) != 24 {
		t.Fatalf("expected 24 rows, got %d", len(view.Rows))
	}
	for _, row := range view.Rows {
		if row.Baseline == nil || *row.Baseline != 1.0 || row.Dirty {
			t.Fatalf("hour %d: unexpected row %+v", row.Hour, row)
		}
	}

	code, raw = h.do(t, http.MethodGet, "/api/calculator", nil)
	testutil.CheckResponseCode(t, http.StatusOK, code)

	var calc CalculatorView
	if err := json.Unmarshal(raw, &calc); err != nil {
		t.Fatalf("decoding calculator: %v", err)
	}
	if calc.State != "ready" || !calc.UsingFallback {
		t.Fatalf("expected ready with fallback, got %+v", calc)
	}
	if calc.Working.UsualBeCalories == nil || *calc.Working.UsualBeCalories != 105 {
		t.Fatalf("expected fallback usualBeCalories 105, got %+v", calc.Working)
	}
}

func TestCredentialEndpoints(t *testing.T) {
	h := newHarness(t, "")

	code, raw := h.do(t, http.MethodGet, "/api/credential", nil)
	testutil.CheckResponseCode(t, http.StatusOK, code)
	var view CredentialView
	json.Unmarshal(raw, &view)
	if diff := cmp.Diff(CredentialView{State: "absent"}, view); diff != "" {
		t.Fatalf("unexpected credential view (-want +got):\n%s", diff)
	}

	code, raw = h.do(t, http.MethodPut, "/api/credential", CredentialRequest{Value: "   "})
	testutil.CheckResponseCode(t, http.StatusBadRequest, code)
	if body := decodeError(t, raw); body.Code != "empty_credential" {
		t.Fatalf("expected empty_credential, got %+v", body)
	}

	code, raw = h.do(t, http.MethodPut, "/api/credential", CredentialRequest{Value: " secret "})
	testutil.CheckResponseCode(t, http.StatusOK, code)
	json.Unmarshal(raw, &view)
	if diff := cmp.Diff(CredentialView{State: "present", Valid: true}, view); diff != "" {
		t.Fatalf("unexpected credential view (-want +got):\n%s", diff)
	}
	if got, ok := h.store.Value(); !ok || got != "secret" {
		t.Fatalf("expected credential persisted, got %q", got)
	}
}

func TestEditAndSaveFactor(t *testing.T) {
	h := newHarness(t, "secret")

	code, raw := h.do(t, http.MethodPut, "/api/factors/9/edit", EditRequest{Value: "1.4"})
	testutil.CheckResponseCode(t, http.StatusOK, code)
	var row struct {
		Hour    int      `json:"hour"`
		Pending *float64 `json:"pending"`
		Dirty   bool     `json:"dirty"`
	}
	json.Unmarshal(raw, &row)
	if row.Hour != 9 || !row.Dirty || row.Pending == nil || *row.Pending != 1.4 {
		t.Fatalf("unexpected row after edit: %s", raw)
	}

	code, _ = h.do(t, http.MethodPost, "/api/factors/9/save", nil)
	testutil.CheckResponseCode(t, http.StatusOK, code)

	if got := h.backend.Hourly(9); got != 1.4 {
		t.Fatalf("expected backend hour 9 = 1.4, got %v", got)
	}
	if h.session.Hourly.IsDirty(9) {
		t.Fatal("expected hour 9 clean after save")
	}
}

func TestFactorRefusals(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		target   string
		body     any
		wantCode int
		wantErr  string
	}{
		{name: "non numeric hour", method: http.MethodPut, target: "/api/factors/x/edit", body: EditRequest{Value: "1"}, wantCode: http.StatusBadRequest, wantErr: "invalid_key"},
		{name: "hour out of range", method: http.MethodPut, target: "/api/factors/24/edit", body: EditRequest{Value: "1"}, wantCode: http.StatusBadRequest, wantErr: "invalid_key"},
		{name: "save out of range", method: http.MethodPost, target: "/api/factors/-1/save", wantCode: http.StatusBadRequest, wantErr: "invalid_key"},
		{name: "malformed body", method: http.MethodPut, target: "/api/factors/3/edit", body: "{", wantCode: http.StatusBadRequest, wantErr: "malformed_body"},
		{name: "nothing pending", method: http.MethodPost, target: "/api/factors/3/save", wantCode: http.StatusBadRequest, wantErr: "no_pending_edit"},
		{name: "inverted range", method: http.MethodPost, target: "/api/factors/range", body: map[string]any{"from": 9, "to": 3, "value": 1}, wantCode: http.StatusBadRequest, wantErr: "invalid_range"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, "secret")
			before := len(h.backend.Requests())

			code, raw := h.do(t, tc.method, tc.target, tc.body)
			testutil.CheckResponseCode(t, tc.wantCode, code)
			if body := decodeError(t, raw); body.Code != tc.wantErr || body.PromptCredential {
				t.Fatalf("unexpected error body %+v", body)
			}
			if after := len(h.backend.Requests()); after != before {
				t.Fatalf("expected no backend call, saw %d", after-before)
			}
		})
	}
}

func TestSaveWithoutCredentialPrompts(t *testing.T) {
	h := newHarness(t, "")

	h.do(t, http.MethodPut, "/api/factors/3/edit", EditRequest{Value: "2"})
	code, raw := h.do(t, http.MethodPost, "/api/factors/3/save", nil)

	testutil.CheckResponseCode(t, http.StatusUnauthorized, code)
	body := decodeError(t, raw)
	if body.Kind != "no_credential" || !body.PromptCredential {
		t.Fatalf("unexpected error body %+v", body)
	}
	if n := h.backend.CountRequests(http.MethodPut, "/api/bolus-factors/3"); n != 0 {
		t.Fatalf("expected no PUT, saw %d", n)
	}
}

func TestUnauthorizedInvalidatesForEveryComponent(t *testing.T) {
	h := newHarness(t, "stale")

	h.do(t, http.MethodPut, "/api/factors/3/edit", EditRequest{Value: "2"})
	code, raw := h.do(t, http.MethodPost, "/api/factors/3/save", nil)
	testutil.CheckResponseCode(t, http.StatusUnauthorized, code)
	if body := decodeError(t, raw); body.Kind != "unauthorized" || !body.PromptCredential {
		t.Fatalf("unexpected error body %+v", body)
	}
	if _, ok := h.store.Value(); ok {
		t.Fatal("expected stored credential cleared")
	}
	if !h.session.Hourly.IsDirty(3) {
		t.Fatal("expected the pending edit to survive")
	}

	// The calorie editor shares the gate and refuses locally now.
	before := len(h.backend.Requests())
	code, raw = h.do(t, http.MethodPost, "/api/calories/save", nil)
	testutil.CheckResponseCode(t, http.StatusUnauthorized, code)
	if body := decodeError(t, raw); body.Kind != "no_credential" {
		t.Fatalf("expected local refusal, got %+v", body)
	}
	if after := len(h.backend.Requests()); after != before {
		t.Fatal("expected no backend call after invalidation")
	}

	code, _ = h.do(t, http.MethodPut, "/api/credential", CredentialRequest{Value: "secret"})
	testutil.CheckResponseCode(t, http.StatusOK, code)
	code, _ = h.do(t, http.MethodPost, "/api/factors/3/save", nil)
	testutil.CheckResponseCode(t, http.StatusOK, code)
}

func TestApplyRange(t *testing.T) {
	h := newHarness(t, "secret")

	code, raw := h.do(t, http.MethodPost, "/api/factors/range", map[string]any{"from": 6, "to": 9, "value": 1.5})
	testutil.CheckResponseCode(t, http.StatusOK, code)

	var res struct {
		Committed []int `json:"committed"`
	}
	json.Unmarshal(raw, &res)
	if diff := cmp.Diff([]int{6, 7, 8, 9}, res.Committed); diff != "" {
		t.Fatalf("unexpected committed hours (-want +got):\n%s", diff)
	}
	for hour := 6; hour <= 9; hour++ {
		if got := h.backend.Hourly(hour); got != 1.5 {
			t.Fatalf("hour %d: expected 1.5, got %v", hour, got)
		}
	}
}

func TestApplyRangePartialFailure(t *testing.T) {
	h := newHarness(t, "secret")
	h.backend.FailHour(8, testutil.Failure{Status: http.StatusInternalServerError, Message: "hour locked"})

	code, raw := h.do(t, http.MethodPost, "/api/factors/range", map[string]any{"from": 6, "to": 10, "value": 2})
	testutil.CheckResponseCode(t, http.StatusBadGateway, code)

	body := decodeError(t, raw)
	if body.Error != "hour locked" {
		t.Fatalf("expected server message, got %q", body.Error)
	}
	if body.FailedKey == nil || *body.FailedKey != 8 {
		t.Fatalf("expected failed_key 8, got %v", body.FailedKey)
	}
	if diff := cmp.Diff([]int{6, 7}, body.Committed); diff != "" {
		t.Fatalf("unexpected committed hours (-want +got):\n%s", diff)
	}
	if got := h.backend.Hourly(9); got != 1.0 {
		t.Fatalf("expected hour 9 untouched, got %v", got)
	}
	if n := h.backend.CountRequests(http.MethodPut, "/api/bolus-factors/9"); n != 0 {
		t.Fatalf("expected no call after the failure, saw %d", n)
	}
}

func TestCaloriesEditAndSave(t *testing.T) {
	h := newHarness(t, "secret")

	code, raw := h.do(t, http.MethodPut, "/api/calories/edit", FieldEditRequest{Field: "usualBeCalories", Value: "110"})
	testutil.CheckResponseCode(t, http.StatusOK, code)
	var view CaloriesView
	json.Unmarshal(raw, &view)
	if !view.Dirty || view.Stored || view.Working.UsualBeCalories != 110 {
		t.Fatalf("unexpected calories view %+v", view)
	}

	code, raw = h.do(t, http.MethodPost, "/api/calories/save", nil)
	testutil.CheckResponseCode(t, http.StatusOK, code)
	json.Unmarshal(raw, &view)
	if view.Dirty || !view.Stored {
		t.Fatalf("expected clean stored view, got %+v", view)
	}

	usual, covering, ok := h.backend.Calories()
	if !ok || usual != 110 || covering != 200 {
		t.Fatalf("unexpected backend calories %v %v %v", usual, covering, ok)
	}

	code, raw = h.do(t, http.MethodGet, "/api/calculator", nil)
	testutil.CheckResponseCode(t, http.StatusOK, code)
	var calc CalculatorView
	json.Unmarshal(raw, &calc)
	if calc.UsingFallback || calc.Working.UsualBeCalories == nil || *calc.Working.UsualBeCalories != 110 {
		t.Fatalf("expected calculator to use the saved factors, got %+v", calc)
	}

	code, raw = h.do(t, http.MethodPut, "/api/calories/edit", FieldEditRequest{Field: "bogus", Value: "1"})
	testutil.CheckResponseCode(t, http.StatusBadRequest, code)
	if body := decodeError(t, raw); body.Code != "invalid_key" {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestSubmitPassesResultThrough(t *testing.T) {
	h := newHarness(t, "")

	code, raw := h.do(t, http.MethodPost, "/api/calculator/submit", map[string]any{
		"mealCarbs": 60, "mealCalories": 500, "currentHour": 8, "currentMinute": 15, "movementFactor": 1,
	})
	testutil.CheckResponseCode(t, http.StatusOK, code)

	var result map[string]any
	json.Unmarshal(raw, &result)
	if result["backendOnlyField"] != "passthrough" {
		t.Fatalf("expected backend fields passed through, got %s", raw)
	}
	if result["dbStatus"] != "not stored" {
		t.Fatalf("expected not stored, got %v", result["dbStatus"])
	}

	code, raw = h.do(t, http.MethodGet, "/api/calculator", nil)
	testutil.CheckResponseCode(t, http.StatusOK, code)
	var view CalculatorView
	json.Unmarshal(raw, &view)
	if len(view.LastResult) == 0 {
		t.Fatal("expected last result in the calculator view")
	}
}

func TestSubmitPersistNeedsCredential(t *testing.T) {
	h := newHarness(t, "")

	code, raw := h.do(t, http.MethodPost, "/api/calculator/submit", map[string]any{
		"mealCarbs": 60, "mealCalories": 500, "currentHour": 8, "currentMinute": 15, "movementFactor": 1, "persist": true,
	})
	testutil.CheckResponseCode(t, http.StatusUnauthorized, code)
	if body := decodeError(t, raw); body.Code != "persistence_needs_credential" || !body.PromptCredential {
		t.Fatalf("unexpected error body %+v", body)
	}
	if n := h.backend.CountRequests(http.MethodPost, "/api/calculate"); n != 0 {
		t.Fatalf("expected no calculate call, saw %d", n)
	}
}

func TestCalculatorUnavailableUntilReload(t *testing.T) {
	h := newHarness(t, "secret")
	h.backend.FailDefaults(testutil.Failure{Status: http.StatusServiceUnavailable, Message: "maintenance"})

	code, raw := h.do(t, http.MethodPost, "/api/calculator/reload", nil)
	testutil.CheckResponseCode(t, http.StatusBadGateway, code)
	if body := decodeError(t, raw); body.Error != "maintenance" {
		t.Fatalf("expected server message, got %+v", body)
	}

	code, _ = h.do(t, http.MethodPost, "/api/calculator/submit", map[string]any{"mealCarbs": 10, "movementFactor": 1})
	testutil.CheckResponseCode(t, http.StatusConflict, code)

	h.backend.ClearFailures()
	h.backend.SetCalories(90, 180)

	code, raw = h.do(t, http.MethodPost, "/api/calculator/reload", nil)
	testutil.CheckResponseCode(t, http.StatusOK, code)
	var view CalculatorView
	json.Unmarshal(raw, &view)
	if view.State != "ready" || view.UsingFallback || *view.Working.UsualBeCalories != 90 {
		t.Fatalf("unexpected calculator view %+v", view)
	}
}

func TestEditWorkingReportsUnparsableAsNull(t *testing.T) {
	h := newHarness(t, "secret")

	code, raw := h.do(t, http.MethodPut, "/api/calculator/working", FieldEditRequest{Field: "insulinTypeCalorieCovering", Value: "abc"})
	testutil.CheckResponseCode(t, http.StatusOK, code)

	var view CalculatorView
	json.Unmarshal(raw, &view)
	if view.Working.InsulinTypeCalorieCovering != nil {
		t.Fatalf("expected null covering, got %v", *view.Working.InsulinTypeCalorieCovering)
	}

	code, raw = h.do(t, http.MethodPost, "/api/calculator/submit", map[string]any{"mealCarbs": 10, "movementFactor": 1})
	testutil.CheckResponseCode(t, http.StatusBadRequest, code)
	if body := decodeError(t, raw); body.Code != "invalid_input" {
		t.Fatalf("unexpected error body %+v", body)
	}
}
