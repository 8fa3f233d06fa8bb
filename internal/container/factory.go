package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/focustrack/internal/auth"
	"github.com/hitoshi/focustrack/internal/repository"
)

// Backend はプロバイダごとに生成される接続と、それを共有するサービス群。
type Backend struct {
	Connection repository.DatabaseConnection
	Users      repository.UserRepository
	Sessions   repository.SessionRepository
	Auth       repository.AuthService

	// ClearData は保存済みデータを全削除する。対応しないプロバイダではnil。
	ClearData func(ctx context.Context) error
}

// Factory はSettingsからBackendを組み立てる。接続はコンテナが行う。
type Factory func(ctx context.Context, settings Settings, issuer *auth.Issuer) (*Backend, error)

func defaultFactories() map[Provider]Factory {
	return map[Provider]Factory{
		ProviderMemory:   newMemoryBackend,
		ProviderPostgres: newPostgresBackend,
		ProviderDynamoDB: newDynamoBackend,
	}
}

func newMemoryBackend(_ context.Context, _ Settings, issuer *auth.Issuer) (*Backend, error) {
	conn := repository.NewMemoryConnection()
	return &Backend{
		Connection: conn,
		Users:      repository.NewMemoryUserRepo(conn),
		Sessions:   repository.NewMemorySessionRepo(conn),
		Auth:       repository.NewMemoryAuthService(conn, issuer),
		ClearData: func(context.Context) error {
			conn.ClearAllData()
			return nil
		},
	}, nil
}

func newPostgresBackend(_ context.Context, s Settings, issuer *auth.Issuer) (*Backend, error) {
	conn := repository.NewPostgresConnection(s.DatabaseURL, s.MigrateOnConnect)
	return &Backend{
		Connection: conn,
		Users:      repository.NewPostgresUserRepo(conn),
		Sessions:   repository.NewPostgresSessionRepo(conn),
		Auth:       repository.NewPostgresAuthService(conn, issuer),
	}, nil
}

func newDynamoBackend(_ context.Context, s Settings, issuer *auth.Issuer) (*Backend, error) {
	conn := repository.NewDynamoConnection(s.Dynamo)
	return &Backend{
		Connection: conn,
		Users:      repository.NewDynamoUserRepo(conn),
		Sessions:   repository.NewDynamoSessionRepo(conn),
		Auth:       repository.NewDynamoAuthService(conn, issuer),
	}, nil
}

// newIssuer はトークン発行器を生成する。RedisAddrが設定されていればRedisに失効世代を保存する。
func newIssuer(ctx context.Context, s Settings, logger *slog.Logger) (*auth.Issuer, error) {
	tokens, err := auth.NewTokenManager(s.TokenSecret, s.TokenTTL)
	if err != nil {
		return nil, err
	}

	var revoked auth.RevocationStore
	if s.RedisAddr != "" {
		store, err := auth.NewRedisRevocationStore(ctx, s.RedisAddr, s.RedisPassword, s.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		revoked = store
	} else {
		revoked = auth.NewMemoryRevocationStore()
	}

	return auth.NewIssuer(tokens, revoked, logger), nil
}
