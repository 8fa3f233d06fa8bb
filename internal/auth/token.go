package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength はトークン署名鍵の最小バイト数。
const MinSecretLength = 32

// DefaultTokenTTL はトークン有効期間のデフォルト値。
const DefaultTokenTTL = 24 * time.Hour

const tokenIssuer = "focustrack"

// ErrInvalidToken はトークンの署名・形式・有効期限のいずれかが不正な場合に返す。
var ErrInvalidToken = errors.New("invalid token")

// Claims はアカウントトークンのクレーム。
// Generationは発行時点のアカウントの失効世代で、世代が進むと過去のトークンは無効になる。
type Claims struct {
	Generation int64 `json:"gen"`
	jwt.RegisteredClaims
}

// TokenManager はHS256署名のアカウントトークンを発行・検証する。
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager はTokenManagerを生成する。ttlが0以下の場合はDefaultTokenTTLを使用する。
func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue はアカウントIDと失効世代を埋め込んだトークンを発行する。
func (m *TokenManager) Issue(accountID string, generation int64) (string, error) {
	now := m.now()
	claims := Claims{
		Generation: generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse はトークンの署名と有効期限を検証し、クレームを返す。
// 失効世代の照合は呼び出し側が行う。
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
