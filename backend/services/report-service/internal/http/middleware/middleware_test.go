package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func signed(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return token
}

func subjectEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, _ := SubjectFromContext(r.Context())
		_, _ = w.Write([]byte(sub))
	})
}

func TestAuthMiddleware(t *testing.T) {
	valid := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "ops-7", "exp": time.Now().Add(time.Hour).Unix()})
	legacy := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"user_id": float64(42)})
	expired := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "ops-7", "exp": time.Now().Add(-time.Hour).Unix()})
	wrongKey := signed(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "ops-7"})
	noSubject := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"scope": "x"})

	cases := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid", "Bearer " + valid, http.StatusOK, "ops-7"},
		{"user id claim", "bearer " + legacy, http.StatusOK, "42"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"wrong key", "Bearer " + wrongKey, http.StatusUnauthorized, ""},
		{"no subject", "Bearer " + noSubject, http.StatusUnauthorized, ""},
	}
	handler := AuthMiddleware(testSecret)(subjectEcho())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/sessions/report", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusOK && rec.Body.String() != tc.wantBody {
				t.Errorf("subject = %q, want %q", rec.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestAuthMiddlewareDisabledWithoutSecret(t *testing.T) {
	rec := httptest.NewRecorder()
	AuthMiddleware("")(subjectEcho()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

type stubLimiter struct {
	allow    bool
	err      error
	subjects []string
}

func (l *stubLimiter) Allow(_ context.Context, subject string) (bool, error) {
	l.subjects = append(l.subjects, subject)
	return l.allow, l.err
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	cases := []struct {
		name       string
		limiter    *stubLimiter
		wantStatus int
	}{
		{"allowed", &stubLimiter{allow: true}, http.StatusNoContent},
		{"limited", &stubLimiter{allow: false}, http.StatusTooManyRequests},
		{"limiter down", &stubLimiter{err: errors.New("redis down")}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/sessions/report", nil)
			req.RemoteAddr = "10.0.0.9:5555"
			rec := httptest.NewRecorder()
			RateLimitMiddleware(tc.limiter, zap.NewNop())(ok).ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if len(tc.limiter.subjects) != 1 || tc.limiter.subjects[0] != "10.0.0.9" {
				t.Errorf("subjects = %v", tc.limiter.subjects)
			}
		})
	}
}

func TestRateLimitUsesAuthenticatedSubject(t *testing.T) {
	limiter := &stubLimiter{allow: true}
	token := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "ops-7"})
	handler := Chain(subjectEcho(), AuthMiddleware(testSecret), RateLimitMiddleware(limiter, zap.NewNop()))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(limiter.subjects) != 1 || limiter.subjects[0] != "ops-7" {
		t.Errorf("subjects = %v, want [ops-7]", limiter.subjects)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if got := ClientIP(req); got != "192.0.2.1" {
		t.Errorf("ClientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.5 , 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.5" {
		t.Errorf("ClientIP = %q", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	rec := httptest.NewRecorder()
	Chain(boom, RecoveryMiddleware(zap.NewNop()), LoggingMiddleware(zap.NewNop())).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
