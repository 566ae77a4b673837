package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lazycarbs-console/internal/console"
	"lazycarbs-console/internal/credstore"
	"lazycarbs-console/internal/handlers"
	"lazycarbs-console/internal/observability"
	"lazycarbs-console/internal/remote"
	"lazycarbs-console/internal/testutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) (http.Handler, *testutil.Backend) {
	t.Helper()
	backend := testutil.NewBackend(t, "secret")
	session := console.NewSession(context.Background(), remote.NewWithClient(backend.URL(), nil), credstore.NewMemoryStore("secret"), testutil.APIKeyHeader)
	session.Start(context.Background())
	return NewRouter(console.NewHandler(session)), backend
}

func TestNewRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	if body := w.Body.String(); body != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
}

func TestNewRouterSetsRequestIDAndOmitsItInBody(t *testing.T) {
	observability.Logger = zap.NewNop()
	if err := console.InitMetrics(); err != nil {
		t.Fatalf("initializing console metrics: %v", err)
	}

	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/credential", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	requestID := w.Result().Header.Get("X-Request-ID")
	if requestID == "" {
		t.Fatal("expected X-Request-ID header to be set")
	}
	if _, err := uuid.Parse(requestID); err != nil {
		t.Fatalf("expected valid UUID in X-Request-ID, got %q: %v", requestID, err)
	}

	var payload map[string]any
	if err := json.NewDecoder(w.Result().Body).Decode(&payload); err != nil {
		t.Fatalf("decoding JSON response: %v", err)
	}

	if _, ok := payload["request_id"]; ok {
		t.Fatal("did not expect request_id field in success JSON body")
	}
	if got, ok := payload["valid"].(bool); !ok || !got {
		t.Fatalf("expected valid credential, got %#v", payload["valid"])
	}
}

func TestNewRouterUnknownRoute(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := testutil.ExecuteRequest(httptest.NewRequest(http.MethodGet, "/api/nope", nil), router)
	testutil.CheckResponseCode(t, http.StatusNotFound, rr.Code)

	var body handlers.ErrorBody
	testutil.DecodeJSONBody(t, rr.Body, &body)
	if body.Error != "no such endpoint: /api/nope" {
		t.Fatalf("expected JSON error body, got %+v", body)
	}
}

func TestNewRouterWrongMethod(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := testutil.ExecuteRequest(httptest.NewRequest(http.MethodDelete, "/api/factors/3/save", nil), router)
	testutil.CheckResponseCode(t, http.StatusMethodNotAllowed, rr.Code)

	var body handlers.ErrorBody
	testutil.DecodeJSONBody(t, rr.Body, &body)
	if body.Error != "DELETE not allowed on /api/factors/3/save" || body.PromptCredential {
		t.Fatalf("unexpected error body %+v", body)
	}
}
