package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-genai-backend/internal/config"
	"github.com/tbourn/go-genai-backend/internal/provider/gemini"
	"github.com/tbourn/go-genai-backend/internal/repo"
)

// stubProvider returns a fixed completion and counts invocations.
type stubProvider struct {
	calls int
	text  string
}

func (s *stubProvider) ValidateParams(prompt string, p gemini.Params) error {
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("%w: prompt is empty", gemini.ErrInvalidParameters)
	}
	return nil
}

func (s *stubProvider) Generate(ctx context.Context, prompt string, p gemini.Params) (string, error) {
	s.calls++
	return s.text, nil
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     1000,
		RateBurst:   1000,
		Generation: config.GenerationConfig{
			MaxAttempts:    2,
			BackoffBase:    time.Millisecond,
			BackoffCap:     5 * time.Millisecond,
			Deadline:       5 * time.Second,
			MaxPromptRunes: 8000,
			MaxTokensLimit: 8192,
		},
		Security: config.SecurityConfig{},
		OTEL:     config.OTELConfig{ServiceName: "router-test"},
	}
}

func newTestServer(t *testing.T) (*gin.Engine, *gorm.DB, *stubProvider) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repo.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	provider := &stubProvider{text: "stubbed completion"}
	r := gin.New()
	RegisterRoutes(r, db, provider, testConfig())
	return r, db, provider
}

func TestHealthEndpoints(t *testing.T) {
	r, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health -> %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health/ready -> %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["database"] != "connected" {
		t.Fatalf("expected connected database, got %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics -> %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("expected prometheus exposition output")
	}
}

func TestNoRouteAndNoMethodEnvelopes(t *testing.T) {
	r, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"not_found"`) {
		t.Fatalf("expected not_found code, got %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/generations", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"method_not_allowed"`) {
		t.Fatalf("expected method_not_allowed code, got %s", w.Body.String())
	}
}

func TestSecurityAndCorrelationHeaders(t *testing.T) {
	r, _, _ := newTestServer(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	h := w.Header()
	if h.Get("X-Content-Type-Options") != "nosniff" || h.Get("X-Frame-Options") != "DENY" {
		t.Fatalf("security headers missing: %#v", h)
	}
	if h.Get("X-Request-ID") == "" {
		t.Fatalf("expected generated X-Request-ID")
	}
	if h.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected permissive CORS when no origins configured")
	}
}

func TestCreateGeneration_EndToEnd_FreshThenReplay(t *testing.T) {
	r, _, provider := newTestServer(t)

	post := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/generations",
			strings.NewReader(`{"prompt":"Summarize the lecture."}`))
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	// Fresh request completes against the stub provider.
	w1 := post("replay-key-1")
	if w1.Code != http.StatusCreated {
		t.Fatalf("fresh request -> %d: %s", w1.Code, w1.Body.String())
	}
	if provider.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", provider.calls)
	}
	var first struct {
		Generation struct {
			ID     string  `json:"id"`
			Status string  `json:"status"`
			Text   *string `json:"text"`
		} `json:"generation"`
	}
	if err := json.Unmarshal(w1.Body.Bytes(), &first); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if first.Generation.Status != "succeeded" || first.Generation.Text == nil {
		t.Fatalf("unexpected record: %s", w1.Body.String())
	}

	// Same key replays the stored record without touching the provider.
	w2 := post("replay-key-1")
	if w2.Code != http.StatusOK {
		t.Fatalf("replay request -> %d: %s", w2.Code, w2.Body.String())
	}
	if w2.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected Idempotency-Replayed header on replay")
	}
	if provider.calls != 1 {
		t.Fatalf("replay must not call the provider, got %d calls", provider.calls)
	}

	var second struct {
		Generation struct {
			ID string `json:"id"`
		} `json:"generation"`
	}
	if err := json.Unmarshal(w2.Body.Bytes(), &second); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if second.Generation.ID != first.Generation.ID {
		t.Fatalf("replay returned a different record: %s vs %s", second.Generation.ID, first.Generation.ID)
	}

	// The record is retrievable by ID.
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, httptest.NewRequest(http.MethodGet, "/api/v1/generations/"+first.Generation.ID, nil))
	if w3.Code != http.StatusOK {
		t.Fatalf("GET by id -> %d", w3.Code)
	}
}

func TestCreateGeneration_BadIdempotencyKeyRejected(t *testing.T) {
	r, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/generations",
		strings.NewReader(`{"prompt":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "bad key with spaces")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed key, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "bad_idempotency_key") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestListGenerations_ETagRoundTrip(t *testing.T) {
	r, _, _ := newTestServer(t)

	// Create one record so the stats query has content.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/generations",
		strings.NewReader(`{"prompt":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("seed generation -> %d", w.Code)
	}

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/api/v1/generations", nil))
	if w1.Code != http.StatusOK {
		t.Fatalf("list -> %d", w1.Code)
	}
	etag := w1.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag on list response")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/generations", nil)
	req2.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusNotModified {
		t.Fatalf("expected 304 with matching ETag, got %d", w2.Code)
	}
}

func TestGroupWithPrefix_RootVariants(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, prefix := range []string{"", "/"} {
		r := gin.New()
		g := groupWithPrefix(r, prefix)
		g.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("prefix %q: /ping -> %d", prefix, w.Code)
		}
	}
}
