package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/focustrack/internal/auth"
	"github.com/hitoshi/focustrack/internal/model"
)

// authAccount はバックエンド内部で保持する認証アカウント。
// ユーザーレコードとは独立して管理する。
type authAccount struct {
	ID            string
	Email         string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// newAuthAccount は入力値を検証し、パスワードをハッシュ化したアカウントを組み立てる。
func newAuthAccount(email, password string) (*authAccount, error) {
	email = model.NormalizeEmail(email)
	if err := model.ValidateEmail(email); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := model.Now()
	return &authAccount{
		ID:           newID(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (a *authAccount) toDocument() map[string]any {
	return map[string]any{
		"id":             a.ID,
		"email":          a.Email,
		"password_hash":  a.PasswordHash,
		"email_verified": a.EmailVerified,
		"created_at":     model.FormatTime(a.CreatedAt),
		"updated_at":     model.FormatTime(a.UpdatedAt),
	}
}

func accountFromDocument(doc map[string]any) (*authAccount, error) {
	a := &authAccount{}
	var ok bool
	if a.ID, ok = doc["id"].(string); !ok {
		return nil, fmt.Errorf("account document has no id")
	}
	if a.Email, ok = doc["email"].(string); !ok {
		return nil, fmt.Errorf("account document has no email")
	}
	if a.PasswordHash, ok = doc["password_hash"].(string); !ok {
		return nil, fmt.Errorf("account document has no password_hash")
	}
	a.EmailVerified, _ = doc["email_verified"].(bool)

	var err error
	created, _ := doc["created_at"].(string)
	if a.CreatedAt, err = model.ParseTime(created); err != nil {
		return nil, fmt.Errorf("account created_at: %w", err)
	}
	updated, _ := doc["updated_at"].(string)
	if a.UpdatedAt, err = model.ParseTime(updated); err != nil {
		return nil, fmt.Errorf("account updated_at: %w", err)
	}
	return a, nil
}

// credentialCheck はVerifyCredentialsの共通処理。
// アカウントが見つからない場合とパスワード不一致を区別せずAuthenticationFailedを返す。
func credentialCheck(account *authAccount, password string) (string, error) {
	if account == nil || !auth.VerifyPassword(account.PasswordHash, password) {
		return "", model.NewAuthenticationFailedError()
	}
	return account.ID, nil
}

// revokeAfter は資格情報の変更が成功した後に発行済みトークンを失効させる。
func revokeAfter(ctx context.Context, issuer *auth.Issuer, op, id string) error {
	if err := issuer.Revoke(ctx, id); err != nil {
		return model.NewRepositoryError(op, id, err)
	}
	return nil
}
