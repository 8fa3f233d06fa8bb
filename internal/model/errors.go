// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, session, user, system
	Action   string // ユーザー向け対処方法
	Field    string // バリデーションエラーの対象フィールド（該当する場合のみ）
	Cause    error  // 原因となったエラー（ログ用。レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Cause
}

// 定義済みエラーコード
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeAlreadyExists        = "ALREADY_EXISTS"
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeNotInitialized       = "NOT_INITIALIZED"
	ErrCodeConfiguration        = "CONFIGURATION_ERROR"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeSessionNotFound      = "SESSION_NOT_FOUND"
	ErrCodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
)

// HasCode はerrのチェーン中に指定コードのAPIErrorが含まれるかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewValidationError は入力値が不正な場合のエラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です（%s）: %s", field, reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
		Field:    field,
	}
}

// NewAlreadyExistsError は一意キーが重複している場合のエラーを生成する。
func NewAlreadyExistsError(resource, key string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyExists,
		Message:  fmt.Sprintf("%sは既に存在します: %s", resource, key),
		Category: "validation",
		Action:   "別の値を指定してください。",
	}
}

// NewAuthenticationFailedError は認証情報が一致しない場合のエラーを生成する。
// 未登録のメールアドレスとパスワード不一致は区別しない。
func NewAuthenticationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationFailed,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewNotInitializedError は初期化前のコンポーネントにアクセスした場合のエラーを生成する。
func NewNotInitializedError(component string) *APIError {
	return &APIError{
		Code:     ErrCodeNotInitialized,
		Message:  fmt.Sprintf("%sが初期化されていません。", component),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewConfigurationError は設定値が不足または不正な場合のエラーを生成する。
func NewConfigurationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeConfiguration,
		Message:  fmt.Sprintf("設定が不正です: %s", reason),
		Category: "system",
		Action:   "環境変数の設定を確認してください。",
	}
}

// WrapConfigurationError は原因エラーを保持した設定エラーを生成する。
func WrapConfigurationError(reason string, cause error) *APIError {
	e := NewConfigurationError(reason)
	e.Cause = cause
	return e
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", userID),
		Category: "user",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewSessionNotFoundError はセッションが見つからない場合のエラーを生成する。
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("指定されたセッションが見つかりません: %s", sessionID),
		Category: "session",
		Action:   "セッションIDを確認してください。",
	}
}

// NewAccountNotFoundError は認証アカウントが見つからない場合のエラーを生成する。
func NewAccountNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  "アカウントが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUnauthorizedError は有効なアクセストークンが提示されなかった場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// RepositoryError はバックエンドの予期しない失敗をラップする。
// バックエンド固有のエラー型を上位層に漏らさず、診断用に操作名とIDを保持する。
type RepositoryError struct {
	Operation string
	ID        string
	Err       error
}

// NewRepositoryError はRepositoryErrorを生成する。
func NewRepositoryError(operation, id string, err error) *RepositoryError {
	return &RepositoryError{Operation: operation, ID: id, Err: err}
}

// Error はerrorインターフェースを実装する。
func (e *RepositoryError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("repository operation %s failed (id=%s): %v", e.Operation, e.ID, e.Err)
	}
	return fmt.Sprintf("repository operation %s failed: %v", e.Operation, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *RepositoryError) Unwrap() error {
	return e.Err
}
