package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/focustrack/internal/config"
	"github.com/hitoshi/focustrack/internal/container"
	"github.com/hitoshi/focustrack/internal/database"
	"github.com/hitoshi/focustrack/internal/handler"
	"github.com/hitoshi/focustrack/internal/logger"
	"github.com/hitoshi/focustrack/internal/metrics"
	"github.com/hitoshi/focustrack/internal/middleware"
	"github.com/hitoshi/focustrack/internal/repository"
	"github.com/hitoshi/focustrack/internal/worker/sweep"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Version はビルド時に -ldflags "-X .../internal/app.Version=..." で設定する。
var Version = "dev"

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映する
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Warn("invalid LOG_LEVEL, falling back to info", slog.String("log_level", cfg.LogLevel))
	}
	logger.SetupDefault(w, level)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("version", Version),
		slog.String("storage_provider", cfg.StorageProvider),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// settingsFromConfig はConfigからコンテナの設定値を組み立てる。
func settingsFromConfig(cfg *config.Config) (container.Settings, error) {
	provider, err := container.ParseProvider(cfg.StorageProvider)
	if err != nil {
		return container.Settings{}, err
	}
	return container.Settings{
		Provider:         provider,
		DatabaseURL:      cfg.DatabaseURL,
		MigrateOnConnect: cfg.MigrateOnConnect,
		Dynamo: repository.DynamoSettings{
			Region:            cfg.AWSRegion,
			Endpoint:          cfg.DynamoDBEndpoint,
			CredentialsFile:   cfg.AWSCredentialsFile,
			AccessKeyID:       cfg.DynamoDBAccessKeyID,
			SecretAccessKey:   cfg.DynamoDBSecretAccessKey,
			UsersTable:        cfg.DynamoDBUsersTable,
			SessionsTable:     cfg.DynamoDBSessionsTable,
			AccountsTable:     cfg.DynamoDBAccountsTable,
			EmailsTable:       cfg.DynamoDBEmailsTable,
			SessionsUserIndex: cfg.DynamoDBSessionsUserIndex,
		},
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		TokenSecret:   cfg.AuthTokenSecret,
		TokenTTL:      cfg.AuthTokenTTL,
	}, nil
}

// newScope は設定済みのContainerを生成するScopeを返す。
// recorderがnilの場合はリポジトリ操作を計測しない。
func newScope(cfg *config.Config, recorder repository.OperationRecorder) (*container.Scope, error) {
	settings, err := settingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	opts := []container.Option{container.WithLogger(slog.Default())}
	if recorder != nil {
		opts = append(opts, container.WithMetrics(recorder))
	}
	return container.NewScope(func() *container.Container {
		return container.New(settings, opts...)
	}), nil
}

// newRegistry はGo・プロセスのメトリクスを登録したレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// Containerを初期化し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. メトリクス
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 2. サービスコンテナ
	scope, err := newScope(cfg, collector)
	if err != nil {
		return fmt.Errorf("invalid storage settings: %w", err)
	}
	defer scope.Shutdown(context.Background())

	if _, err := scope.Get(ctx); err != nil {
		return fmt.Errorf("failed to initialize service container: %w", err)
	}

	// 3. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Services:          handler.NewScopeServices(scope),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Metrics:           collector,
		MetricsGatherer:   reg,
		Version:           Version,
	})

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// Containerを初期化し、放置セッションの掃除ジョブを実行する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	collector := metrics.NewCollector(newRegistry())

	scope, err := newScope(cfg, collector)
	if err != nil {
		return fmt.Errorf("invalid storage settings: %w", err)
	}
	defer scope.Shutdown(context.Background())

	c, err := scope.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize service container: %w", err)
	}
	sessions, err := c.SessionRepository()
	if err != nil {
		return err
	}

	sweeper := sweep.NewSweeper(sessions, slog.Default(), collector, sweep.Config{
		MaxSessionAge: cfg.SweepMaxSessionAge,
		BatchSize:     cfg.SweepBatchSize,
	})

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.SweepInterval),
		slog.Duration("max_session_age", cfg.SweepMaxSessionAge),
	)

	// 掃除ジョブをメインgoroutineで実行（ブロッキング）
	sweeper.Start(ctx, cfg.SweepInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// PostgreSQL以外のプロバイダではスキーマを持たないため何もしない。
func runMigrate(cfg *config.Config) error {
	settings, err := settingsFromConfig(cfg)
	if err != nil {
		return err
	}
	if settings.Provider != container.ProviderPostgres {
		slog.Info("no migrations for storage provider",
			slog.String("storage_provider", settings.Provider.String()),
		)
		return nil
	}
	if settings.DatabaseURL == "" {
		return fmt.Errorf("migration failed: DATABASE_URL is required")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(settings.DatabaseURL)),
	)

	version, err := database.RunMigrations(settings.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
