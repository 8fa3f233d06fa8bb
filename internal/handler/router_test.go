package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/focustrack/internal/metrics"
	"github.com/hitoshi/focustrack/internal/middleware"
	"github.com/hitoshi/focustrack/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const validTestToken = "valid-token"

// createTestRouter はスタブサービスを使ったテスト用ルーターを構築する。
func createTestRouter(t *testing.T, services *stubServices, limiterCfg middleware.RateLimiterConfig) http.Handler {
	t.Helper()

	services.auth.verifyTokenFn = func(ctx context.Context, token string) (string, bool) {
		if token == validTestToken {
			return "account-1", true
		}
		return "", false
	}

	rl := middleware.NewRateLimiter(limiterCfg)
	t.Cleanup(rl.Stop)

	return NewRouter(&RouterDeps{
		Services:          services,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Version:           "test",
	})
}

func doRequest(router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestNewRouter_AllEndpointsAreRouted(t *testing.T) {
	services := newStubServices()
	services.users.findByIDFn = func(ctx context.Context, id string) (*model.User, error) { return sampleUser(id), nil }
	services.users.findByEmailFn = func(ctx context.Context, email string) (*model.User, error) { return sampleUser("user-1"), nil }
	services.users.updateFn = func(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
		return sampleUser(id), nil
	}
	services.users.createFn = func(ctx context.Context, in model.NewUser) (*model.User, error) { return sampleUser("user-1"), nil }
	services.users.deleteFn = func(ctx context.Context, id string) (bool, error) { return true, nil }
	services.sessions.createFn = func(ctx context.Context, in model.NewSession) (*model.Session, error) {
		return sampleSession("session-1"), nil
	}
	services.sessions.findByIDFn = func(ctx context.Context, id string) (*model.Session, error) { return sampleSession(id), nil }
	services.sessions.updateFn = func(ctx context.Context, id string, upd model.SessionUpdate) (*model.Session, error) {
		return sampleSession(id), nil
	}
	services.sessions.completeFn = func(ctx context.Context, id string, endTime time.Time) (*model.Session, error) {
		return sampleSession(id), nil
	}
	services.sessions.deleteFn = func(ctx context.Context, id string) (bool, error) { return true, nil }
	services.auth.createAccountFn = func(ctx context.Context, email, password string) (string, error) { return "account-1", nil }
	services.auth.verifyCredentialsFn = func(ctx context.Context, email, password string) (string, error) { return "account-1", nil }
	services.auth.updatePasswordFn = func(ctx context.Context, id, newPassword string) (bool, error) { return true, nil }
	services.auth.deleteAccountFn = func(ctx context.Context, id string) (bool, error) { return true, nil }

	router := createTestRouter(t, services, middleware.DefaultRateLimiterConfig())

	tests := []struct {
		method string
		path   string
		body   string
		token  string
		want   int
	}{
		{http.MethodGet, "/health", "", "", http.StatusOK},
		{http.MethodGet, "/health/detailed", "", "", http.StatusOK},

		{http.MethodPost, "/api/v1/users", `{"email":"a@example.com"}`, "", http.StatusCreated},
		{http.MethodGet, "/api/v1/users", "", "", http.StatusOK},
		{http.MethodGet, "/api/v1/users/count", "", "", http.StatusOK},
		{http.MethodGet, "/api/v1/users/by-email?email=a@example.com", "", "", http.StatusOK},
		{http.MethodGet, "/api/v1/users/user-1", "", "", http.StatusOK},
		{http.MethodPut, "/api/v1/users/user-1", `{}`, "", http.StatusOK},
		{http.MethodDelete, "/api/v1/users/user-1", "", "", http.StatusNoContent},
		{http.MethodGet, "/api/v1/users/user-1/exists", "", "", http.StatusOK},

		{http.MethodPost, "/api/v1/sessions", `{"user_id":"user-1"}`, "", http.StatusCreated},
		{http.MethodGet, "/api/v1/sessions/session-1", "", "", http.StatusOK},
		{http.MethodPut, "/api/v1/sessions/session-1", `{"title":"x"}`, "", http.StatusOK},
		{http.MethodDelete, "/api/v1/sessions/session-1", "", "", http.StatusNoContent},
		{http.MethodPost, "/api/v1/sessions/session-1/complete", "", "", http.StatusOK},
		{http.MethodPost, "/api/v1/sessions/session-1/pause", "", "", http.StatusOK},
		{http.MethodPost, "/api/v1/sessions/session-1/resume", "", "", http.StatusOK},
		{http.MethodPost, "/api/v1/sessions/session-1/cancel", "", "", http.StatusOK},
		{http.MethodGet, "/api/v1/sessions/user/user-1", "", "", http.StatusOK},
		{http.MethodGet, "/api/v1/sessions/user/user-1/active", "", "", http.StatusOK},
		{http.MethodGet, "/api/v1/sessions/user/user-1/count", "", "", http.StatusOK},

		{http.MethodPost, "/api/v1/auth/register", `{"email":"a@example.com","password":"password-1"}`, "", http.StatusCreated},
		{http.MethodPost, "/api/v1/auth/login", `{"email":"a@example.com","password":"password-1"}`, "", http.StatusOK},
		{http.MethodGet, "/api/v1/auth/me", "", validTestToken, http.StatusOK},
		{http.MethodPut, "/api/v1/auth/password", `{"password":"password-2"}`, validTestToken, http.StatusOK},
		{http.MethodDelete, "/api/v1/auth/account", "", validTestToken, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := doRequest(router, tt.method, tt.path, tt.body, tt.token)
			assertStatus(t, w, tt.want)
		})
	}
}

func TestNewRouter_ProtectedAuthRoutes_RequireToken(t *testing.T) {
	router := createTestRouter(t, newStubServices(), middleware.DefaultRateLimiterConfig())

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/auth/me"},
		{http.MethodPut, "/api/v1/auth/password"},
		{http.MethodDelete, "/api/v1/auth/account"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := doRequest(router, tt.method, tt.path, "", "")
			assertStatus(t, w, http.StatusUnauthorized)
			assertErrorCode(t, w, model.ErrCodeUnauthorized)
		})
	}
}

func TestNewRouter_InvalidToken_RejectedOnAnyRoute(t *testing.T) {
	router := createTestRouter(t, newStubServices(), middleware.DefaultRateLimiterConfig())

	// トークンは任意だが、提示された場合は検証に通る必要がある
	w := doRequest(router, http.MethodGet, "/api/v1/users/count", "", "forged-token")

	assertStatus(t, w, http.StatusUnauthorized)
}

func TestNewRouter_SecurityHeadersAndCORS(t *testing.T) {
	router := createTestRouter(t, newStubServices(), middleware.DefaultRateLimiterConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assertStatus(t, w, http.StatusOK)
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestNewRouter_CORSPreflight(t *testing.T) {
	router := createTestRouter(t, newStubServices(), middleware.DefaultRateLimiterConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assertStatus(t, w, http.StatusNoContent)
}

func TestNewRouter_NotInitialized_Returns503(t *testing.T) {
	services := newStubServices()
	services.err = model.NewNotInitializedError("ServiceContainer")
	services.health = model.NewHealthStatus(false, "not initialized")
	router := createTestRouter(t, services, middleware.DefaultRateLimiterConfig())

	w := doRequest(router, http.MethodGet, "/api/v1/users/count", "", "")
	assertStatus(t, w, http.StatusServiceUnavailable)

	w = doRequest(router, http.MethodGet, "/health/detailed", "", "")
	assertStatus(t, w, http.StatusServiceUnavailable)

	// livenessはコンテナの状態に依存しない
	w = doRequest(router, http.MethodGet, "/health", "", "")
	assertStatus(t, w, http.StatusOK)
}

func TestNewRouter_CredentialRateLimit(t *testing.T) {
	services := newStubServices()
	cfg := middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(100),
		GeneralBurst:    100,
		CredentialRate:  rate.Limit(0.01),
		CredentialBurst: 2,
		CleanupInterval: time.Minute,
	}
	router := createTestRouter(t, services, cfg)

	body := `{"email":"a@example.com","password":"wrong-password"}`
	for i := 0; i < 2; i++ {
		w := doRequest(router, http.MethodPost, "/api/v1/auth/login", body, "")
		assertStatus(t, w, http.StatusUnauthorized)
	}

	w := doRequest(router, http.MethodPost, "/api/v1/auth/login", body, "")
	assertStatus(t, w, http.StatusTooManyRequests)
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}

	// 一般APIは資格情報用の制限を受けない
	w = doRequest(router, http.MethodGet, "/api/v1/users/count", "", "")
	assertStatus(t, w, http.StatusOK)
}

func TestNewRouter_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	services := newStubServices()
	services.auth.verifyCredentialsFn = func(ctx context.Context, email, password string) (string, error) {
		return "account-1", nil
	}
	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	router := NewRouter(&RouterDeps{
		Services:        services,
		RateLimiter:     rl,
		Logger:          slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Metrics:         collector,
		MetricsGatherer: reg,
	})

	w := doRequest(router, http.MethodPost, "/api/v1/auth/login", `{"email":"a@example.com","password":"password-1"}`, "")
	assertStatus(t, w, http.StatusOK)

	w = doRequest(router, http.MethodGet, "/metrics", "", "")
	assertStatus(t, w, http.StatusOK)

	body := w.Body.String()
	for _, name := range []string{"focustrack_http_status_total", "focustrack_auth_attempts_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output should contain %s", name)
		}
	}
}
