package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/focustrack/internal/auth"
	"github.com/hitoshi/focustrack/internal/model"
)

// PostgresAuthService はauth_accountsテーブルにアカウントを保持するAuthService。
type PostgresAuthService struct {
	conn   *PostgresConnection
	issuer *auth.Issuer
}

// compile-time interface check
var _ AuthService = (*PostgresAuthService)(nil)

// NewPostgresAuthService はPostgresAuthServiceを生成する。
func NewPostgresAuthService(conn *PostgresConnection, issuer *auth.Issuer) *PostgresAuthService {
	return &PostgresAuthService{conn: conn, issuer: issuer}
}

// CreateAccount はアカウントを作成する。
func (s *PostgresAuthService) CreateAccount(ctx context.Context, email, password string) (string, error) {
	account, err := newAuthAccount(email, password)
	if err != nil {
		return "", err
	}
	db, err := s.conn.handle()
	if err != nil {
		return "", model.NewRepositoryError("CreateAccount", "", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO auth_accounts (id, email, password_hash, email_verified, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		account.ID, account.Email, account.PasswordHash, account.EmailVerified, account.CreatedAt, account.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return "", model.NewAlreadyExistsError("アカウント", account.Email)
	}
	if err != nil {
		return "", model.NewRepositoryError("CreateAccount", account.ID, fmt.Errorf("failed to insert account: %w", err))
	}
	return account.ID, nil
}

// VerifyCredentials は資格情報を検証する。
func (s *PostgresAuthService) VerifyCredentials(ctx context.Context, email, password string) (string, error) {
	db, err := s.conn.handle()
	if err != nil {
		return "", model.NewRepositoryError("VerifyCredentials", "", err)
	}

	account := &authAccount{}
	err = db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM auth_accounts WHERE LOWER(email) = $1`,
		model.NormalizeEmail(email),
	).Scan(&account.ID, &account.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return credentialCheck(nil, password)
	}
	if err != nil {
		return "", model.NewRepositoryError("VerifyCredentials", "", fmt.Errorf("failed to find account: %w", err))
	}
	return credentialCheck(account, password)
}

// DeleteAccount はアカウントを削除し、発行済みトークンを失効させる。
func (s *PostgresAuthService) DeleteAccount(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	db, err := s.conn.handle()
	if err != nil {
		return false, model.NewRepositoryError("DeleteAccount", id, err)
	}

	result, err := db.ExecContext(ctx, `DELETE FROM auth_accounts WHERE id = $1`, id)
	if err != nil {
		return false, model.NewRepositoryError("DeleteAccount", id, fmt.Errorf("failed to delete account: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, model.NewRepositoryError("DeleteAccount", id, fmt.Errorf("failed to get rows affected: %w", err))
	}
	if n == 0 {
		return false, nil
	}
	if err := revokeAfter(ctx, s.issuer, "DeleteAccount", id); err != nil {
		return false, err
	}
	return true, nil
}

// UpdatePassword はパスワードを更新し、発行済みトークンを失効させる。
func (s *PostgresAuthService) UpdatePassword(ctx context.Context, id, newPassword string) (bool, error) {
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return false, err
	}
	if !isUUID(id) {
		return false, nil
	}
	db, err := s.conn.handle()
	if err != nil {
		return false, model.NewRepositoryError("UpdatePassword", id, err)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE auth_accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hash, model.Now(),
	)
	if err != nil {
		return false, model.NewRepositoryError("UpdatePassword", id, fmt.Errorf("failed to update password: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, model.NewRepositoryError("UpdatePassword", id, fmt.Errorf("failed to get rows affected: %w", err))
	}
	if n == 0 {
		return false, nil
	}
	if err := revokeAfter(ctx, s.issuer, "UpdatePassword", id); err != nil {
		return false, err
	}
	return true, nil
}

// IssueToken はアカウントのアクセストークンを発行する。
func (s *PostgresAuthService) IssueToken(ctx context.Context, accountID string) (string, error) {
	exists, err := s.accountExists(ctx, accountID)
	if err != nil {
		return "", model.NewRepositoryError("IssueToken", accountID, err)
	}
	if !exists {
		return "", model.NewAccountNotFoundError()
	}
	token, err := s.issuer.Issue(ctx, accountID)
	if err != nil {
		return "", model.NewRepositoryError("IssueToken", accountID, err)
	}
	return token, nil
}

// VerifyToken はトークンを検証しアカウントIDを返す。
func (s *PostgresAuthService) VerifyToken(ctx context.Context, token string) (string, bool) {
	return s.issuer.Verify(ctx, token, s.accountExists)
}

func (s *PostgresAuthService) accountExists(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	db, err := s.conn.handle()
	if err != nil {
		return false, err
	}
	var exists bool
	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM auth_accounts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check account: %w", err)
	}
	return exists, nil
}
