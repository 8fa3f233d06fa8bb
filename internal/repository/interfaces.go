// Package repository はデータ永続化のインターフェースと、
// インメモリ・DynamoDB・PostgreSQLの各バックエンド実装を提供する。
//
// どのバックエンドも同じ契約を満たす。見つからない場合はエラーではなく
// nil・false・空文字列で表現し、予期しない失敗のみを*model.RepositoryErrorで返す。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/focustrack/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	// 正規化後のメールアドレスが既に存在する場合はAlreadyExistsエラーを返す。
	Create(ctx context.Context, in model.NewUser) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	// 検索語は保存時と同じ規則で正規化する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Update は指定されたフィールドのみを更新する。見つからない場合はnilを返す。
	Update(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error)

	// Delete は指定IDのユーザーを削除する。削除した場合はtrueを返す。
	// セッションは連鎖削除しない。
	Delete(ctx context.Context, id string) (bool, error)

	// List はユーザー一覧をoffset/limitでページングして返す。
	List(ctx context.Context, limit, offset int) ([]*model.User, error)

	// Count はユーザー数を返す。
	Count(ctx context.Context) (int, error)

	// Exists は指定IDのユーザーが存在するかを返す。
	Exists(ctx context.Context, id string) (bool, error)
}

// SessionListOptions はユーザー別セッション一覧の取得条件。
// StartDate/EndDateはstart_timeに対する両端を含む範囲条件で、nilの場合は制限しない。
type SessionListOptions struct {
	Limit     int
	Offset    int
	StartDate *time.Time
	EndDate   *time.Time
}

// SessionRepository はフォーカスセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はactive状態のセッションを作成する。重複チェックは行わない。
	Create(ctx context.Context, in model.NewSession) (*model.Session, error)

	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// FindByUserID はユーザーのセッションをstart_time降順で返す。
	// 日付範囲で絞り込んだ後にoffset/limitを適用する。
	FindByUserID(ctx context.Context, userID string, opts SessionListOptions) ([]*model.Session, error)

	// Update は指定されたフィールドのみを更新する。見つからない場合はnilを返す。
	Update(ctx context.Context, id string, upd model.SessionUpdate) (*model.Session, error)

	// Delete は指定IDのセッションを削除する。削除した場合はtrueを返す。
	Delete(ctx context.Context, id string) (bool, error)

	// CompleteSession はセッションを完了状態にして保存する。見つからない場合はnilを返す。
	// endTimeがゼロ値の場合は現在時刻を終了時刻とする。
	CompleteSession(ctx context.Context, id string, endTime time.Time) (*model.Session, error)

	// GetActiveSessions はユーザーのactive状態のセッションを返す。
	GetActiveSessions(ctx context.Context, userID string) ([]*model.Session, error)

	// CountSessions はユーザーのセッション数を返す。
	CountSessions(ctx context.Context, userID string) (int, error)

	// ListOpenStartedBefore はbeforeより前に開始したactive/pausedのセッションを
	// start_time昇順（古い順）で最大limit件返す。
	// 放置セッションの掃除ジョブで使用する。
	ListOpenStartedBefore(ctx context.Context, before time.Time, limit int) ([]*model.Session, error)
}

// AuthService は認証アカウントの資格情報ライフサイクルを管理するインターフェース。
type AuthService interface {
	// CreateAccount はアカウントを作成しアカウントIDを返す。
	// メールアドレスが重複する場合はAlreadyExistsエラーを返す。
	CreateAccount(ctx context.Context, email, password string) (string, error)

	// VerifyCredentials は資格情報を検証しアカウントIDを返す。
	// 不一致または未登録の場合はAuthenticationFailedエラーを返す。
	VerifyCredentials(ctx context.Context, email, password string) (string, error)

	// DeleteAccount はアカウントを削除する。削除した場合はtrueを返す。
	// 発行済みトークンは無効になる。
	DeleteAccount(ctx context.Context, id string) (bool, error)

	// UpdatePassword はパスワードを更新する。更新した場合はtrueを返す。
	// 発行済みトークンは無効になる。
	UpdatePassword(ctx context.Context, id, newPassword string) (bool, error)

	// IssueToken はアカウントのアクセストークンを発行する。
	IssueToken(ctx context.Context, accountID string) (string, error)

	// VerifyToken はトークンを検証しアカウントIDを返す。
	// 無効なトークンの場合はokがfalseになる。エラーは返さない。
	VerifyToken(ctx context.Context, token string) (accountID string, ok bool)
}

// DatabaseConnection はバックエンド接続のライフサイクルを管理するインターフェース。
type DatabaseConnection interface {
	// Connect は接続を確立する。接続済みの場合は何もしない。
	Connect(ctx context.Context) error

	// Disconnect は接続を閉じる。
	Disconnect(ctx context.Context) error

	// IsConnected は接続済みかを返す。
	IsConnected() bool

	// HealthCheck は接続の状態を返す。内部で失敗してもunhealthyとして報告し、パニックやエラーを返さない。
	HealthCheck(ctx context.Context) model.HealthStatus

	// Name はバックエンドのプロバイダ名を返す。
	Name() string
}
