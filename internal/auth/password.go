// Package auth はパスワードのハッシュ化、アカウントトークンの発行・検証、
// トークン失効世代の管理を提供する。
package auth

import (
	"unicode/utf8"

	"github.com/hitoshi/focustrack/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 8

// bcryptは72バイトを超える入力を扱えない。
const maxPasswordBytes = 72

// ValidatePassword はパスワードの長さを検証する。
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return model.NewValidationError("password", "パスワードは8文字以上で入力してください")
	}
	if len(password) > maxPasswordBytes {
		return model.NewValidationError("password", "パスワードが長すぎます")
	}
	return nil
}

// HashPassword はパスワードを検証したうえでbcryptハッシュを返す。
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword はパスワードがハッシュと一致するかを返す。
// ハッシュが壊れている場合も不一致として扱う。
func VerifyPassword(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

