package handler

import (
	"context"

	"github.com/hitoshi/focustrack/internal/container"
	"github.com/hitoshi/focustrack/internal/model"
	"github.com/hitoshi/focustrack/internal/repository"
)

// ServiceProvider はハンドラーが使用するリポジトリと認証サービスをリクエストごとに解決する。
// 解決できない場合はNotInitializedエラーを返す。
type ServiceProvider interface {
	Users(ctx context.Context) (repository.UserRepository, error)
	Sessions(ctx context.Context) (repository.SessionRepository, error)
	Auth(ctx context.Context) (repository.AuthService, error)
	HealthCheck(ctx context.Context) model.HealthStatus
}

// ScopeServices はcontainer.Scopeが保持するContainerからサービスを解決するアダプタ。
// Scopeがリセットされた場合も、次のリクエストから新しいContainerのサービスを使用する。
type ScopeServices struct {
	scope *container.Scope
}

// compile-time interface check
var _ ServiceProvider = (*ScopeServices)(nil)

// NewScopeServices はScopeServicesを生成する。
func NewScopeServices(scope *container.Scope) *ScopeServices {
	return &ScopeServices{scope: scope}
}

// Users はユーザーリポジトリを返す。
func (s *ScopeServices) Users(ctx context.Context) (repository.UserRepository, error) {
	c, err := s.scope.Get(ctx)
	if err != nil {
		return nil, err
	}
	return c.UserRepository()
}

// Sessions はセッションリポジトリを返す。
func (s *ScopeServices) Sessions(ctx context.Context) (repository.SessionRepository, error) {
	c, err := s.scope.Get(ctx)
	if err != nil {
		return nil, err
	}
	return c.SessionRepository()
}

// Auth は認証サービスを返す。
func (s *ScopeServices) Auth(ctx context.Context) (repository.AuthService, error) {
	c, err := s.scope.Get(ctx)
	if err != nil {
		return nil, err
	}
	return c.AuthService()
}

// HealthCheck はContainerの状態を返す。Containerを取得できない場合はunhealthyを返す。
func (s *ScopeServices) HealthCheck(ctx context.Context) model.HealthStatus {
	c, err := s.scope.Get(ctx)
	if err != nil {
		return model.NewHealthStatus(false, map[string]any{
			"container": map[string]any{
				"status":      model.HealthStatusUnhealthy,
				"initialized": false,
				"error":       err.Error(),
			},
		})
	}
	return c.HealthCheck(ctx)
}

// tokenVerifier はServiceProviderの認証サービスでトークンを検証するmiddleware.TokenVerifier。
type tokenVerifier struct {
	services ServiceProvider
}

// VerifyToken は認証サービスを解決してトークンを検証する。解決できない場合は無効として扱う。
func (v tokenVerifier) VerifyToken(ctx context.Context, token string) (string, bool) {
	svc, err := v.services.Auth(ctx)
	if err != nil {
		return "", false
	}
	return svc.VerifyToken(ctx, token)
}
