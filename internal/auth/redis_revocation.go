package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revocationKeyPrefix = "focustrack:token-gen:"
	redisPingTimeout    = 2 * time.Second
)

// RedisRevocationStore はRedisのカウンタで世代を保持するRevocationStore。
// 複数プロセス間で失効状態を共有する場合に使用する。
type RedisRevocationStore struct {
	client *redis.Client
}

// compile-time interface check
var _ RevocationStore = (*RedisRevocationStore)(nil)

// NewRedisRevocationStore はRedisに接続し、疎通確認のうえでストアを生成する。
func NewRedisRevocationStore(ctx context.Context, addr, password string, db int) (*RedisRevocationStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisRevocationStore{client: client}, nil
}

func (s *RedisRevocationStore) key(accountID string) string {
	return revocationKeyPrefix + accountID
}

// Generation は現在の世代を返す。キーが存在しない場合は0を返す。
func (s *RedisRevocationStore) Generation(ctx context.Context, accountID string) (int64, error) {
	gen, err := s.client.Get(ctx, s.key(accountID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get token generation: %w", err)
	}
	return gen, nil
}

// Bump はINCRで世代を1進める。
func (s *RedisRevocationStore) Bump(ctx context.Context, accountID string) (int64, error) {
	gen, err := s.client.Incr(ctx, s.key(accountID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to bump token generation: %w", err)
	}
	return gen, nil
}

// Close はRedis接続を閉じる。
func (s *RedisRevocationStore) Close() error {
	return s.client.Close()
}
