package container

import (
	"context"
	"sync"

	"github.com/hitoshi/focustrack/internal/model"
)

// Scope はプロセス内で共有するContainerを保持する。
// 最初のGetでContainerを生成・初期化し、以降は同じContainerを返す。
type Scope struct {
	newContainer func() *Container

	mu      sync.Mutex
	current *Container
	closed  bool
}

// NewScope はScopeを生成する。newContainerはGetで初めてContainerが必要になった時に呼ばれる。
func NewScope(newContainer func() *Container) *Scope {
	return &Scope{newContainer: newContainer}
}

// Get は初期化済みのContainerを返す。
// 初期化に失敗したContainerは保持せず、次回のGetで再度生成する。
// Shutdown後はNotInitializedエラーを返す。
func (s *Scope) Get(ctx context.Context) (*Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, model.NewNotInitializedError("ServiceContainer")
	}
	if s.current != nil {
		return s.current, nil
	}

	c := s.newContainer()
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	s.current = c
	return c, nil
}

// Current は生成済みのContainerを返す。未生成の場合はnilを返す。
func (s *Scope) Current() *Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Shutdown は保持しているContainerを破棄し、以降のGetを拒否する。
func (s *Scope) Shutdown(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked(ctx)
	s.closed = true
}

// Reset は保持しているContainerを破棄する。次回のGetで新しいContainerを生成する。
func (s *Scope) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked(ctx)
	s.closed = false
}

func (s *Scope) teardownLocked(ctx context.Context) {
	if s.current != nil {
		s.current.Shutdown(ctx)
		s.current = nil
	}
}

// HealthCheck は保持しているContainerの状態を返す。
// Containerが未生成の場合はunhealthyを返す。
func (s *Scope) HealthCheck(ctx context.Context) model.HealthStatus {
	c := s.Current()
	if c == nil {
		return model.NewHealthStatus(false, map[string]any{
			"container": map[string]any{
				"status":         model.HealthStatusUnhealthy,
				"initialized":    false,
				"services_count": 0,
			},
			"database": "not initialized",
		})
	}
	return c.HealthCheck(ctx)
}
