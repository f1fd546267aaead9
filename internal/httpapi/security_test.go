package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercadinho/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	h := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	h.ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected configured CORS origin, got %q", got)
	}
}

func TestRequestIDIsEchoedOrGenerated(t *testing.T) {
	h := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "caixa-01-req-7")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if got := res.Header().Get(requestIDHeader); got != "caixa-01-req-7" {
		t.Fatalf("expected caller request id to be echoed, got %q", got)
	}

	res = httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := res.Header().Get(requestIDHeader); len(got) != 36 {
		t.Fatalf("expected a generated uuid request id, got %q", got)
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	h := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sales", nil)
	res := httptest.NewRecorder()

	h.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", res.Code)
	}
	if !strings.Contains(res.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key") {
		t.Fatalf("expected Idempotency-Key to be an allowed header")
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	h := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		h.ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestAttemptLimiterWindowSlides(t *testing.T) {
	limiter := newAttemptLimiter(2, time.Minute)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("10.0.0.1") || !limiter.Allow("10.0.0.1") {
		t.Fatalf("expected the first two attempts to pass")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatalf("expected the third attempt inside the window to be refused")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Fatalf("expected other clients to be unaffected")
	}

	now = now.Add(61 * time.Second)
	if !limiter.Allow("10.0.0.1") {
		t.Fatalf("expected attempts to be allowed once the window has passed")
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	h := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	h.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestCashierTokenCannotReachAdminRoutes(t *testing.T) {
	h := newTestAPI(t)
	token := loginAsCashier(t, h)

	for _, tc := range []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/v1/users", nil},
		{http.MethodPost, "/api/v1/users", map[string]string{"username": "intruso", "password": "123456", "role": "admin"}},
		{http.MethodPatch, "/api/v1/products/arroz-5kg", map[string]any{"stock": 9999}},
	} {
		rec := doJSON(t, h, tc.method, tc.path, token, tc.body)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s %s: expected 403, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestServerErrorsAreNotLeaked(t *testing.T) {
	api := &API{log: nil}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	res := httptest.NewRecorder()

	api.writeServiceError(res, req, fmt.Errorf("pq: relation \"sales\" does not exist"))

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "relation") {
		t.Fatalf("expected generic message, got %s", res.Body.String())
	}
}
