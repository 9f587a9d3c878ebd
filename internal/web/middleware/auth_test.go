package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type staticGate string

func (g staticGate) Admit(token string) bool {
	return token != "" && token == string(g)
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{"none", nil, ""},
		{"admin header", map[string]string{AdminTokenHeader: " s3cret "}, "s3cret"},
		{"bearer", map[string]string{"Authorization": "Bearer s3cret"}, "s3cret"},
		{"basic ignored", map[string]string{"Authorization": "Basic abc"}, ""},
		{"header wins", map[string]string{AdminTokenHeader: "a", "Authorization": "Bearer b"}, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			if got := tokenFromRequest(req); got != tt.want {
				t.Errorf("tokenFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAdminToken_StoresToken(t *testing.T) {
	var got string
	handler := AdminToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetAdminToken(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/mode", nil)
	req.Header.Set(AdminTokenHeader, "s3cret")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "s3cret" {
		t.Errorf("expected token in context, got %q", got)
	}
}

func TestRequireAdmin(t *testing.T) {
	called := false
	handler := RequireAdmin(staticGate("s3cret"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || called {
		t.Errorf("expected 403 without token, got %d (called=%v)", rec.Code, called)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AdminTokenHeader, "s3cret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !called {
		t.Errorf("expected 200 with token, got %d (called=%v)", rec.Code, called)
	}
}

func TestGetAdminToken_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetAdminToken(req.Context()); got != "" {
		t.Errorf("expected empty token, got %q", got)
	}
	ctx := SetAdminTokenInContext(req.Context(), "x")
	if got := GetAdminToken(ctx); got != "x" {
		t.Errorf("expected x, got %q", got)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS("https://kiosk.example.com")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://kiosk.example.com", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1", true},
		{"http://localhost.evil.com", false},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/live/state", nil)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		got := rec.Header().Get("Access-Control-Allow-Origin")
		if tt.allowed && got != tt.origin {
			t.Errorf("origin %s: expected allowed, got %q", tt.origin, got)
		}
		if !tt.allowed && got != "" {
			t.Errorf("origin %s: expected no CORS header, got %q", tt.origin, got)
		}
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	handler := CORS("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/mode", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent || called {
		t.Errorf("expected 204 preflight without calling next, got %d (called=%v)", rec.Code, called)
	}
	if h := rec.Header().Get("Access-Control-Allow-Headers"); h == "" || !strings.Contains(h, AdminTokenHeader) {
		t.Errorf("expected %s in allowed headers, got %q", AdminTokenHeader, h)
	}
}
