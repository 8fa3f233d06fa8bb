package container

import (
	"fmt"
	"os"
	"time"

	"github.com/hitoshi/focustrack/internal/auth"
	"github.com/hitoshi/focustrack/internal/model"
	"github.com/hitoshi/focustrack/internal/repository"
)

// Settings はコンテナの初期化に必要な設定値。
type Settings struct {
	Provider Provider

	// PostgreSQL
	DatabaseURL      string
	MigrateOnConnect bool

	// DynamoDB
	Dynamo repository.DynamoSettings

	// トークン失効世代の保存先。RedisAddrが空の場合はメモリに保持する。
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TokenSecret string
	TokenTTL    time.Duration
}

// Validate は接続を試みる前に設定値を検証する。
// 不足・不正がある場合は最初に見つかった問題をConfigurationErrorで返す。
func (s Settings) Validate() error {
	if _, err := ParseProvider(string(s.Provider)); err != nil {
		return err
	}
	if len(s.TokenSecret) < auth.MinSecretLength {
		return model.NewConfigurationError(
			fmt.Sprintf("AUTH_TOKEN_SECRET must be at least %d bytes", auth.MinSecretLength),
		)
	}
	if s.TokenTTL < 0 {
		return model.NewConfigurationError("AUTH_TOKEN_TTL must not be negative")
	}
	if s.RedisDB < 0 {
		return model.NewConfigurationError("REDIS_DB must not be negative")
	}

	switch s.Provider {
	case ProviderPostgres:
		if s.DatabaseURL == "" {
			return model.NewConfigurationError("DATABASE_URL is required for the postgres provider")
		}
	case ProviderDynamoDB:
		return validateDynamo(s.Dynamo)
	}
	return nil
}

func validateDynamo(d repository.DynamoSettings) error {
	if d.Region == "" {
		return model.NewConfigurationError("AWS_REGION is required for the dynamodb provider")
	}

	tables := []struct {
		env   string
		value string
	}{
		{"DYNAMODB_USERS_TABLE", d.UsersTable},
		{"DYNAMODB_SESSIONS_TABLE", d.SessionsTable},
		{"DYNAMODB_ACCOUNTS_TABLE", d.AccountsTable},
		{"DYNAMODB_EMAILS_TABLE", d.EmailsTable},
		{"DYNAMODB_SESSIONS_USER_INDEX", d.SessionsUserIndex},
	}
	for _, t := range tables {
		if t.value == "" {
			return model.NewConfigurationError(t.env + " must not be empty")
		}
	}

	if d.CredentialsFile != "" {
		if _, err := os.Stat(d.CredentialsFile); err != nil {
			return model.WrapConfigurationError(
				fmt.Sprintf("AWS_CREDENTIALS_FILE %q is not readable", d.CredentialsFile), err,
			)
		}
	}
	if (d.AccessKeyID == "") != (d.SecretAccessKey == "") {
		return model.NewConfigurationError(
			"DYNAMODB_ACCESS_KEY_ID and DYNAMODB_SECRET_ACCESS_KEY must be set together",
		)
	}
	return nil
}
