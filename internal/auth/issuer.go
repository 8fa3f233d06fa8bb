package auth

import (
	"context"
	"fmt"
	"log/slog"
)

// AccountLookup はアカウントの存在確認に使用する関数。
type AccountLookup func(ctx context.Context, accountID string) (bool, error)

// Issuer はTokenManagerとRevocationStoreを組み合わせ、
// 失効世代を考慮したトークンの発行・検証・失効を行う。
// 各バックエンドのAuthService実装が共通で使用する。
type Issuer struct {
	tokens  *TokenManager
	revoked RevocationStore
	logger  *slog.Logger
}

// NewIssuer はIssuerを生成する。
func NewIssuer(tokens *TokenManager, revoked RevocationStore, logger *slog.Logger) *Issuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Issuer{tokens: tokens, revoked: revoked, logger: logger}
}

// Issue はアカウントの現在の世代でトークンを発行する。
func (i *Issuer) Issue(ctx context.Context, accountID string) (string, error) {
	gen, err := i.revoked.Generation(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("failed to read token generation: %w", err)
	}
	return i.tokens.Issue(accountID, gen)
}

// Verify はトークンを検証しアカウントIDを返す。
// 署名・有効期限・アカウントの存在・失効世代のいずれかが不正な場合はokがfalseになる。
// 内部エラーもログに記録したうえで無効として扱う。
func (i *Issuer) Verify(ctx context.Context, token string, exists AccountLookup) (string, bool) {
	claims, err := i.tokens.Parse(token)
	if err != nil {
		return "", false
	}

	found, err := exists(ctx, claims.Subject)
	if err != nil {
		i.logger.Warn("failed to look up account for token",
			slog.String("account_id", claims.Subject),
			slog.String("error", err.Error()),
		)
		return "", false
	}
	if !found {
		return "", false
	}

	gen, err := i.revoked.Generation(ctx, claims.Subject)
	if err != nil {
		i.logger.Warn("failed to read token generation",
			slog.String("account_id", claims.Subject),
			slog.String("error", err.Error()),
		)
		return "", false
	}
	if gen != claims.Generation {
		return "", false
	}
	return claims.Subject, true
}

// Revoke はアカウントの世代を進め、発行済みトークンを無効にする。
func (i *Issuer) Revoke(ctx context.Context, accountID string) error {
	if _, err := i.revoked.Bump(ctx, accountID); err != nil {
		return fmt.Errorf("failed to revoke tokens: %w", err)
	}
	return nil
}

// Close はRevocationStoreを閉じる。
func (i *Issuer) Close() error {
	return i.revoked.Close()
}
