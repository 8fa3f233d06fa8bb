package auth

import (
	"context"
	"sync"
)

// RevocationStore はアカウントごとのトークン失効世代を管理する。
// 世代はアカウントのパスワード変更・削除のたびに進み、
// 発行時の世代と現在の世代が異なるトークンは無効として扱う。
type RevocationStore interface {
	// Generation は現在の世代を返す。未記録のアカウントは0を返す。
	Generation(ctx context.Context, accountID string) (int64, error)
	// Bump は世代を1進め、新しい世代を返す。
	Bump(ctx context.Context, accountID string) (int64, error)
	// Close はストアが保持するリソースを解放する。
	Close() error
}

// MemoryRevocationStore はプロセス内で世代を保持するRevocationStore。
type MemoryRevocationStore struct {
	mu          sync.Mutex
	generations map[string]int64
}

// compile-time interface check
var _ RevocationStore = (*MemoryRevocationStore)(nil)

// NewMemoryRevocationStore はMemoryRevocationStoreを生成する。
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{generations: make(map[string]int64)}
}

// Generation は現在の世代を返す。
func (s *MemoryRevocationStore) Generation(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[accountID], nil
}

// Bump は世代を1進める。
func (s *MemoryRevocationStore) Bump(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[accountID]++
	return s.generations[accountID], nil
}

// Close は保持している世代をすべて破棄する。
func (s *MemoryRevocationStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations = make(map[string]int64)
	return nil
}
