package repository

import (
	"context"

	"github.com/hitoshi/focustrack/internal/auth"
	"github.com/hitoshi/focustrack/internal/model"
)

// MemoryAuthService はMemoryConnectionにアカウントを保持するAuthService。
type MemoryAuthService struct {
	conn   *MemoryConnection
	issuer *auth.Issuer
}

// compile-time interface check
var _ AuthService = (*MemoryAuthService)(nil)

// NewMemoryAuthService はMemoryAuthServiceを生成する。
func NewMemoryAuthService(conn *MemoryConnection, issuer *auth.Issuer) *MemoryAuthService {
	return &MemoryAuthService{conn: conn, issuer: issuer}
}

// CreateAccount はアカウントを作成する。
func (s *MemoryAuthService) CreateAccount(_ context.Context, email, password string) (string, error) {
	account, err := newAuthAccount(email, password)
	if err != nil {
		return "", err
	}

	s.conn.withLock(func() {
		if s.findByEmailLocked(account.Email) != nil {
			err = model.NewAlreadyExistsError("アカウント", account.Email)
			return
		}
		s.conn.accounts.put(account.ID, account.toDocument())
	})
	if err != nil {
		return "", err
	}
	return account.ID, nil
}

// VerifyCredentials は資格情報を検証する。
func (s *MemoryAuthService) VerifyCredentials(_ context.Context, email, password string) (string, error) {
	var doc map[string]any
	s.conn.withLock(func() {
		doc = s.findByEmailLocked(model.NormalizeEmail(email))
	})
	account, err := decodeMemoryAccount("VerifyCredentials", "", doc)
	if err != nil {
		return "", err
	}
	return credentialCheck(account, password)
}

// DeleteAccount はアカウントを削除し、発行済みトークンを失効させる。
func (s *MemoryAuthService) DeleteAccount(ctx context.Context, id string) (bool, error) {
	var removed bool
	s.conn.withLock(func() {
		removed = s.conn.accounts.remove(id)
	})
	if !removed {
		return false, nil
	}
	if err := revokeAfter(ctx, s.issuer, "DeleteAccount", id); err != nil {
		return false, err
	}
	return true, nil
}

// UpdatePassword はパスワードを更新し、発行済みトークンを失効させる。
func (s *MemoryAuthService) UpdatePassword(ctx context.Context, id, newPassword string) (bool, error) {
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return false, err
	}

	var updated bool
	s.conn.withLock(func() {
		doc, ok := s.conn.accounts.docs[id]
		if !ok {
			return
		}
		var account *authAccount
		account, err = decodeMemoryAccount("UpdatePassword", id, doc)
		if err != nil {
			return
		}
		account.PasswordHash = hash
		account.UpdatedAt = model.Now()
		s.conn.accounts.put(id, account.toDocument())
		updated = true
	})
	if err != nil || !updated {
		return false, err
	}
	if err := revokeAfter(ctx, s.issuer, "UpdatePassword", id); err != nil {
		return false, err
	}
	return true, nil
}

// IssueToken はアカウントのアクセストークンを発行する。
func (s *MemoryAuthService) IssueToken(ctx context.Context, accountID string) (string, error) {
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
func (s *MemoryAuthService) VerifyToken(ctx context.Context, token string) (string, bool) {
	return s.issuer.Verify(ctx, token, s.accountExists)
}

func (s *MemoryAuthService) accountExists(_ context.Context, id string) (bool, error) {
	var ok, connected bool
	s.conn.withLock(func() {
		connected = s.conn.connected
		_, ok = s.conn.accounts.docs[id]
	})
	if !connected {
		return false, errNotConnected
	}
	return ok, nil
}

func (s *MemoryAuthService) findByEmailLocked(email string) map[string]any {
	var found map[string]any
	s.conn.accounts.each(func(doc map[string]any) bool {
		if doc["email"] == email {
			found = doc
			return false
		}
		return true
	})
	return found
}

func decodeMemoryAccount(op, id string, doc map[string]any) (*authAccount, error) {
	if doc == nil {
		return nil, nil
	}
	a, err := accountFromDocument(doc)
	if err != nil {
		return nil, model.NewRepositoryError(op, id, err)
	}
	return a, nil
}
