package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/focustrack/internal/model"
)

const userColumns = `id, email, display_name, timezone, daily_goal_minutes, reminder_enabled, is_active, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
// メールアドレスの一意性はLOWER(email)の一意インデックスで保証する。
type PostgresUserRepo struct {
	conn *PostgresConnection
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(conn *PostgresConnection) *PostgresUserRepo {
	return &PostgresUserRepo{conn: conn}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	u := &model.User{}
	var displayName sql.NullString
	err := row.Scan(&u.ID, &u.Email, &displayName, &u.Timezone, &u.DailyGoalMinutes,
		&u.ReminderEnabled, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.DisplayName = displayName.String
	u.CreatedAt = model.Normalize(u.CreatedAt)
	u.UpdatedAt = model.Normalize(u.UpdatedAt)
	return u, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, in model.NewUser) (*model.User, error) {
	user, err := model.BuildUser(in, newID(), model.Now())
	if err != nil {
		return nil, err
	}
	db, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError("Create", "", err)
	}

	// 事前確認で通常の重複を検出し、同時作成の競合は一意インデックスで検出する
	existing, err := r.FindByEmail(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, model.NewAlreadyExistsError("ユーザー", user.Email)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Email, nullString(user.DisplayName), user.Timezone, user.DailyGoalMinutes,
		user.ReminderEnabled, user.IsActive, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, model.NewAlreadyExistsError("ユーザー", user.Email)
	}
	if err != nil {
		return nil, model.NewRepositoryError("Create", user.ID, fmt.Errorf("failed to insert user: %w", err))
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return r.findOne(ctx, "FindByID", id, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, "FindByEmail", "",
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = $1`, model.NormalizeEmail(email))
}

func (r *PostgresUserRepo) findOne(ctx context.Context, op, id, query string, args ...any) (*model.User, error) {
	db, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError(op, id, err)
	}
	user, err := scanUser(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewRepositoryError(op, id, fmt.Errorf("failed to find user: %w", err))
	}
	return user, nil
}

// Update は行ロックを取得したうえで部分更新を適用する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) Update(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	if !isUUID(id) {
		return nil, nil
	}
	db, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError("Update", id, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, model.NewRepositoryError("Update", id, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	user, err := scanUser(tx.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewRepositoryError("Update", id, fmt.Errorf("failed to lock user: %w", err))
	}

	if err := user.Apply(upd, model.Now()); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users
		 SET display_name = $2, timezone = $3, daily_goal_minutes = $4,
		     reminder_enabled = $5, is_active = $6, updated_at = $7
		 WHERE id = $1`,
		user.ID, nullString(user.DisplayName), user.Timezone, user.DailyGoalMinutes,
		user.ReminderEnabled, user.IsActive, user.UpdatedAt,
	)
	if err != nil {
		return nil, model.NewRepositoryError("Update", id, fmt.Errorf("failed to update user: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, model.NewRepositoryError("Update", id, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return user, nil
}

// Delete は指定IDのユーザーを削除する。セッションは連鎖削除しない。
func (r *PostgresUserRepo) Delete(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	db, err := r.conn.handle()
	if err != nil {
		return false, model.NewRepositoryError("Delete", id, err)
	}

	result, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, model.NewRepositoryError("Delete", id, fmt.Errorf("failed to delete user: %w", err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, model.NewRepositoryError("Delete", id, fmt.Errorf("failed to get rows affected: %w", err))
	}
	return rowsAffected > 0, nil
}

// List はユーザーを作成日時順でページングして返す。
func (r *PostgresUserRepo) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	if err := model.ValidatePage(limit, offset); err != nil {
		return nil, err
	}
	db, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError("List", "", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, model.NewRepositoryError("List", "", fmt.Errorf("failed to list users: %w", err))
	}
	defer rows.Close()

	users := make([]*model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, model.NewRepositoryError("List", "", fmt.Errorf("failed to scan user: %w", err))
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewRepositoryError("List", "", fmt.Errorf("failed to iterate users: %w", err))
	}
	return users, nil
}

// Count はユーザー数を返す。
func (r *PostgresUserRepo) Count(ctx context.Context) (int, error) {
	db, err := r.conn.handle()
	if err != nil {
		return 0, model.NewRepositoryError("Count", "", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, model.NewRepositoryError("Count", "", fmt.Errorf("failed to count users: %w", err))
	}
	return n, nil
}

// Exists は指定IDのユーザーが存在するかを返す。
func (r *PostgresUserRepo) Exists(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	db, err := r.conn.handle()
	if err != nil {
		return false, model.NewRepositoryError("Exists", id, err)
	}
	var exists bool
	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, model.NewRepositoryError("Exists", id, fmt.Errorf("failed to check user: %w", err))
	}
	return exists, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
