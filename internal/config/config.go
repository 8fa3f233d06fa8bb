package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// バックエンド固有の値の整合性はcontainer.Settings.Validateで検証する。
type Config struct {
	// Storage
	StorageProvider  string
	DatabaseURL      string
	MigrateOnConnect bool

	// DynamoDB
	AWSRegion                 string
	DynamoDBEndpoint          string
	DynamoDBUsersTable        string
	DynamoDBSessionsTable     string
	DynamoDBAccountsTable     string
	DynamoDBEmailsTable       string
	DynamoDBSessionsUserIndex string
	AWSCredentialsFile        string
	DynamoDBAccessKeyID       string
	DynamoDBSecretAccessKey   string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Auth
	AuthTokenSecret string
	AuthTokenTTL    time.Duration

	// Rate Limit
	RateLimitGeneral int

	// Sweep
	SweepInterval      time.Duration
	SweepMaxSessionAge time.Duration
	SweepBatchSize     int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.AuthTokenSecret = os.Getenv("AUTH_TOKEN_SECRET")
	if cfg.AuthTokenSecret == "" {
		missing = append(missing, "AUTH_TOKEN_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.StorageProvider = getEnvString("STORAGE_PROVIDER", "memory")
	cfg.DatabaseURL = getEnvString("DATABASE_URL", "")
	cfg.MigrateOnConnect = getEnvBool("DATABASE_MIGRATE_ON_CONNECT", false)

	cfg.AWSRegion = getEnvString("AWS_REGION", "")
	cfg.DynamoDBEndpoint = getEnvString("DYNAMODB_ENDPOINT", "")
	cfg.DynamoDBUsersTable = getEnvString("DYNAMODB_USERS_TABLE", "focustrack-users")
	cfg.DynamoDBSessionsTable = getEnvString("DYNAMODB_SESSIONS_TABLE", "focustrack-sessions")
	cfg.DynamoDBAccountsTable = getEnvString("DYNAMODB_ACCOUNTS_TABLE", "focustrack-auth-accounts")
	cfg.DynamoDBEmailsTable = getEnvString("DYNAMODB_EMAILS_TABLE", "focustrack-email-guards")
	cfg.DynamoDBSessionsUserIndex = getEnvString("DYNAMODB_SESSIONS_USER_INDEX", "user_id-start_time-index")
	cfg.AWSCredentialsFile = getEnvString("AWS_CREDENTIALS_FILE", "")
	cfg.DynamoDBAccessKeyID = getEnvString("DYNAMODB_ACCESS_KEY_ID", "")
	cfg.DynamoDBSecretAccessKey = getEnvString("DYNAMODB_SECRET_ACCESS_KEY", "")

	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)

	cfg.AuthTokenTTL = getEnvDuration("AUTH_TOKEN_TTL", 24*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 10*time.Minute)
	cfg.SweepMaxSessionAge = getEnvDuration("SWEEP_MAX_SESSION_AGE", 12*time.Hour)
	cfg.SweepBatchSize = getEnvInt("SWEEP_BATCH_SIZE", 100)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
