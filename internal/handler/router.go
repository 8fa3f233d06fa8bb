package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/focustrack/internal/metrics"
	"github.com/hitoshi/focustrack/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterRecorder はルーターが記録するメトリクスのインターフェース。
// metrics.Collectorが満たす。
type RouterRecorder interface {
	middleware.StatusRecorder
	DomainRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// サービス解決
	Services ServiceProvider

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// メトリクス（nil可）
	Metrics         RouterRecorder
	MetricsGatherer prometheus.Gatherer

	Version string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → SecurityHeaders → CORS → Logging → Token → RateLimit(General)
//
// トークンは任意で、/auth/me・/auth/password・/auth/accountのみ必須とする。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var statusRecorder middleware.StatusRecorder
	var domainRecorder DomainRecorder
	if deps.Metrics != nil {
		statusRecorder = deps.Metrics
		domainRecorder = deps.Metrics
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger, statusRecorder))
	r.Use(middleware.NewTokenMiddleware(tokenVerifier{services: deps.Services}))

	healthHandler := NewHealthHandler(deps.Services, deps.Version)
	userHandler := NewUserHandler(deps.Services)
	sessionHandler := NewSessionHandler(deps.Services, domainRecorder)
	authHandler := NewAuthHandler(deps.Services, domainRecorder)

	// --- レートリミット対象外のルート ---
	r.Get("/health", healthHandler.Liveness)
	r.Get("/health/detailed", healthHandler.Detailed)
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- API ---
	r.Route("/api/v1", func(r chi.Router) {
		var credential func(http.Handler) http.Handler
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
			credential = deps.RateLimiter.CredentialMiddleware()
		}

		r.Mount("/users", userHandler.Routes())
		r.Mount("/sessions", sessionHandler.Routes())
		r.Mount("/auth", authHandler.Routes(credential))
	})

	return r
}
