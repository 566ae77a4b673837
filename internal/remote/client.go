// Package remote is the HTTP client for the LazyCarbs backend. It only knows
// how to send a request and classify the response; credential policy lives
// with the caller, which passes a RequestEditor when a call must be
// authenticated.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"lazycarbs-console/internal/observability"
)

const (
	pathCalorieFactors = "/api/calorie-factors"
	pathBolusFactors   = "/api/bolus-factors"
	pathCalculate      = "/api/calculate"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 64 * 1024
)

// RequestEditor mutates an outgoing request before it is sent.
type RequestEditor func(*http.Request)

type Client struct {
	baseURL string
	client  *http.Client
}

// New builds a client whose transport is traced with otelhttp.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewWithClient(baseURL, &http.Client{
		Transport: observability.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	})
}

func NewWithClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// BaseURL returns the backend root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ErrNotFound is returned for a 404 response.
var ErrNotFound = errors.New("not found")

// StatusError is any non-2xx response. Message is the server-supplied text.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

// CalorieFactors calls GET /api/calorie-factors. A 404 means no factors have
// been persisted yet and yields an error matching ErrNotFound.
func (c *Client) CalorieFactors(ctx context.Context) (CalorieFactors, error) {
	var out CalorieFactors
	body, err := c.do(ctx, http.MethodGet, pathCalorieFactors, nil)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode calorie factors: %w", err)
	}
	return out, nil
}

// PutCalorieFactors calls PUT /api/calorie-factors.
func (c *Client) PutCalorieFactors(ctx context.Context, f CalorieFactors, editors ...RequestEditor) error {
	_, err := c.do(ctx, http.MethodPut, pathCalorieFactors, f, editors...)
	return err
}

// HourlyFactors calls GET /api/bolus-factors and returns the list ordered by hour.
func (c *Client) HourlyFactors(ctx context.Context) ([]HourlyFactor, error) {
	body, err := c.do(ctx, http.MethodGet, pathBolusFactors, nil)
	if err != nil {
		return nil, err
	}
	var out []HourlyFactor
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode bolus factors: %w", err)
	}
	sortByHour(out)
	return out, nil
}

// PutHourlyFactor calls PUT /api/bolus-factors/{hour}. When the backend
// answers without a body the submitted record is returned.
func (c *Client) PutHourlyFactor(ctx context.Context, f HourlyFactor, editors ...RequestEditor) (HourlyFactor, error) {
	body, err := c.do(ctx, http.MethodPut, pathBolusFactors+"/"+strconv.Itoa(f.Hour), f, editors...)
	if err != nil {
		return HourlyFactor{}, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return f, nil
	}
	var out HourlyFactor
	if err := json.Unmarshal(body, &out); err != nil {
		return HourlyFactor{}, fmt.Errorf("decode bolus factor: %w", err)
	}
	return out, nil
}

// Calculate calls POST /api/calculate.
func (c *Client) Calculate(ctx context.Context, req CalculationRequest, editors ...RequestEditor) (CalculationResult, error) {
	var out CalculationResult
	body, err := c.do(ctx, http.MethodPost, pathCalculate, req, editors...)
	if err != nil {
		return out, err
	}
	if !json.Valid(body) {
		return out, fmt.Errorf("decode calculation result: invalid JSON body")
	}
	// The backend owns the result shape; a field of another type only leaves
	// the typed view incomplete.
	var typeErr *json.UnmarshalTypeError
	if err := json.Unmarshal(body, &out); err != nil && !errors.As(err, &typeErr) {
		return out, fmt.Errorf("decode calculation result: %w", err)
	}
	out.Raw = json.RawMessage(body)
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, editors ...RequestEditor) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := observability.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(observability.RequestIDHeader, id)
	}
	for _, edit := range editors {
		if edit != nil {
			edit(req)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw, resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// errorMessage extracts the server text from an error body: a JSON
// statusMessage, message or error field when present, the plain text
// otherwise, and the HTTP status text for an empty body.
func errorMessage(raw []byte, status int) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var fields map[string]any
		if err := json.Unmarshal(trimmed, &fields); err == nil {
			for _, key := range []string{"statusMessage", "message", "error"} {
				if s, ok := fields[key].(string); ok && strings.TrimSpace(s) != "" {
					return s
				}
			}
		}
	}
	if len(trimmed) > 0 {
		return string(trimmed)
	}
	return http.StatusText(status)
}

func sortByHour(factors []HourlyFactor) {
	sort.SliceStable(factors, func(i, j int) bool { return factors[i].Hour < factors[j].Hour })
}
