package container

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/focustrack/internal/auth"
	"github.com/hitoshi/focustrack/internal/model"
	"github.com/hitoshi/focustrack/internal/repository"
)

// servicesCount は初期化済みコンテナが保持するサービス数（接続・ユーザー・セッション・認証）。
const servicesCount = 4

// Container はプロバイダに応じたリポジトリと認証サービスを生成し、
// 接続のライフサイクルを管理する。
// InitializeとShutdownは同じミューテックスで直列化される。
type Container struct {
	settings  Settings
	logger    *slog.Logger
	recorder  repository.OperationRecorder
	factories map[Provider]Factory

	mu          sync.RWMutex
	initialized bool
	backend     *Backend
	issuer      *auth.Issuer
}

// Option はContainerの生成オプション。
type Option func(*Container)

// WithLogger はコンテナが使用するロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics はリポジトリ操作の計測先を設定する。
// 設定した場合、生成したリポジトリと認証サービスは計測用のデコレータでラップされる。
func WithMetrics(recorder repository.OperationRecorder) Option {
	return func(c *Container) {
		c.recorder = recorder
	}
}

// WithFactory は指定プロバイダのBackend生成関数を差し替える。
func WithFactory(provider Provider, factory Factory) Option {
	return func(c *Container) {
		c.factories[provider] = factory
	}
}

// New はContainerを生成する。接続はInitializeで行う。
func New(settings Settings, opts ...Option) *Container {
	c := &Container{
		settings:  settings,
		logger:    slog.Default(),
		factories: defaultFactories(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize は設定を検証し、バックエンドを生成して接続する。
// 初期化済みの場合は何もしない。失敗した場合はConfigurationErrorを返し、
// 途中まで確保したリソースは解放する。
func (c *Container) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	if err := c.settings.Validate(); err != nil {
		return err
	}

	provider := c.settings.Provider
	factory, ok := c.factories[provider]
	if !ok {
		return model.NewConfigurationError(fmt.Sprintf("no factory registered for provider %q", provider))
	}

	issuer, err := newIssuer(ctx, c.settings, c.logger)
	if err != nil {
		return model.WrapConfigurationError("failed to initialize token issuer", err)
	}

	backend, err := factory(ctx, c.settings, issuer)
	if err != nil {
		c.closeIssuer(issuer)
		return model.WrapConfigurationError(fmt.Sprintf("failed to create %s backend", provider), err)
	}

	if err := backend.Connection.Connect(ctx); err != nil {
		c.closeIssuer(issuer)
		return model.WrapConfigurationError(fmt.Sprintf("failed to connect to %s backend", provider), err)
	}

	if c.recorder != nil {
		name := backend.Connection.Name()
		backend.Users = repository.NewInstrumentedUserRepo(backend.Users, name, c.recorder)
		backend.Sessions = repository.NewInstrumentedSessionRepo(backend.Sessions, name, c.recorder)
		backend.Auth = repository.NewInstrumentedAuthService(backend.Auth, name, c.recorder)
	}

	c.backend = backend
	c.issuer = issuer
	c.initialized = true

	c.logger.Info("service container initialized",
		slog.String("provider", provider.String()),
		slog.Bool("metrics", c.recorder != nil),
		slog.Bool("redis_revocation", c.settings.RedisAddr != ""),
	)
	return nil
}

// Shutdown は接続を閉じ、保持しているサービスを破棄する。
// 個々の失敗はログに記録するのみで、処理は最後まで続行する。
func (c *Container) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return
	}

	if err := c.backend.Connection.Disconnect(ctx); err != nil {
		c.logger.Error("failed to disconnect backend",
			slog.String("provider", c.settings.Provider.String()),
			slog.String("error", err.Error()),
		)
	}
	c.closeIssuer(c.issuer)

	c.backend = nil
	c.issuer = nil
	c.initialized = false

	c.logger.Info("service container shut down",
		slog.String("provider", c.settings.Provider.String()),
	)
}

func (c *Container) closeIssuer(issuer *auth.Issuer) {
	if err := issuer.Close(); err != nil {
		c.logger.Error("failed to close token revocation store",
			slog.String("error", err.Error()),
		)
	}
}

// IsInitialized は初期化済みかを返す。
func (c *Container) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// Provider は設定されたプロバイダを返す。
func (c *Container) Provider() Provider {
	return c.settings.Provider
}

func (c *Container) current(component string) (*Backend, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return nil, model.NewNotInitializedError(component)
	}
	return c.backend, nil
}

// UserRepository はユーザーリポジトリを返す。
func (c *Container) UserRepository() (repository.UserRepository, error) {
	b, err := c.current("UserRepository")
	if err != nil {
		return nil, err
	}
	return b.Users, nil
}

// SessionRepository はセッションリポジトリを返す。
func (c *Container) SessionRepository() (repository.SessionRepository, error) {
	b, err := c.current("SessionRepository")
	if err != nil {
		return nil, err
	}
	return b.Sessions, nil
}

// AuthService は認証サービスを返す。
func (c *Container) AuthService() (repository.AuthService, error) {
	b, err := c.current("AuthService")
	if err != nil {
		return nil, err
	}
	return b.Auth, nil
}

// Connection はバックエンド接続を返す。
func (c *Container) Connection() (repository.DatabaseConnection, error) {
	b, err := c.current("DatabaseConnection")
	if err != nil {
		return nil, err
	}
	return b.Connection, nil
}

// HealthCheck はコンテナとバックエンド接続の状態を返す。
// 未初期化の場合やバックエンドが異常な場合はunhealthyを返す。エラーは返さない。
func (c *Container) HealthCheck(ctx context.Context) model.HealthStatus {
	c.mu.RLock()
	initialized := c.initialized
	backend := c.backend
	c.mu.RUnlock()

	info := map[string]any{
		"initialized":    initialized,
		"provider":       c.settings.Provider.String(),
		"services_count": 0,
	}

	if !initialized {
		info["status"] = model.HealthStatusUnhealthy
		return model.NewHealthStatus(false, map[string]any{
			"container": info,
			"database":  "not initialized",
		})
	}

	db := backend.Connection.HealthCheck(ctx)
	info["status"] = model.HealthStatusHealthy
	info["services_count"] = servicesCount

	return model.NewHealthStatus(db.IsHealthy(), map[string]any{
		"container": info,
		"database":  db,
	})
}

// ResetData は保存済みデータを全削除する。memoryプロバイダのみ対応する。
func (c *Container) ResetData(ctx context.Context) error {
	b, err := c.current("DatabaseConnection")
	if err != nil {
		return err
	}
	if b.ClearData == nil {
		return model.NewValidationError("provider",
			fmt.Sprintf("data reset is not supported by the %s provider", c.settings.Provider))
	}
	if err := b.ClearData(ctx); err != nil {
		return fmt.Errorf("failed to reset data: %w", err)
	}
	c.logger.Warn("all stored data was cleared",
		slog.String("provider", c.settings.Provider.String()),
	)
	return nil
}
