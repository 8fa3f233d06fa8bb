package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hitoshi/focustrack/internal/database"
	"github.com/hitoshi/focustrack/internal/model"
	"github.com/lib/pq"
)

// ProviderPostgres はPostgreSQLバックエンドのプロバイダ名。
const ProviderPostgres = "postgres"

// pqUniqueViolation は一意制約違反のSQLSTATE。
const pqUniqueViolation = "23505"

var errNotConnected = errors.New("database is not connected")

// PostgresConnection はPostgreSQLへの接続を管理するDatabaseConnection。
type PostgresConnection struct {
	databaseURL string
	migrate     bool

	mu sync.RWMutex
	db *sql.DB
}

// compile-time interface check
var _ DatabaseConnection = (*PostgresConnection)(nil)

// NewPostgresConnection はPostgresConnectionを生成する。
// migrateがtrueの場合、Connect時にスキーママイグレーションを適用する。
func NewPostgresConnection(databaseURL string, migrate bool) *PostgresConnection {
	return &PostgresConnection{databaseURL: databaseURL, migrate: migrate}
}

// Connect は接続を開き疎通を確認する。接続済みの場合は何もしない。
func (c *PostgresConnection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	db, err := database.Open(c.databaseURL)
	if err != nil {
		return err
	}
	if err := database.Ping(ctx, db); err != nil {
		db.Close()
		return err
	}
	if c.migrate {
		if _, err := database.RunMigrations(c.databaseURL); err != nil {
			db.Close()
			return err
		}
	}

	c.db = db
	return nil
}

// Disconnect は接続を閉じる。
func (c *PostgresConnection) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// IsConnected は接続済みかを返す。
func (c *PostgresConnection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db != nil
}

// HealthCheck はPingの結果とプールの統計を返す。
func (c *PostgresConnection) HealthCheck(ctx context.Context) model.HealthStatus {
	db, err := c.handle()
	if err != nil {
		return model.NewHealthStatus(false, err.Error())
	}
	if err := database.Ping(ctx, db); err != nil {
		return model.NewHealthStatus(false, err.Error())
	}

	stats := db.Stats()
	return model.NewHealthStatus(true, map[string]any{
		"provider":         ProviderPostgres,
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
	})
}

// Name はプロバイダ名を返す。
func (c *PostgresConnection) Name() string {
	return ProviderPostgres
}

func (c *PostgresConnection) handle() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, errNotConnected
	}
	return c.db, nil
}

// isUniqueViolation はerrが一意制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// isUUID はidがUUID列と比較可能な形式かを判定する。
// UUIDでないIDは該当レコードなしとして扱う。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// nullString は空文字列をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
