package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/focustrack/internal/model"
	"github.com/lib/pq"
)

const sessionColumns = `id, user_id, title, notes, tags, start_time, end_time, duration_minutes, status, created_at, updated_at`

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	conn *PostgresConnection
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(conn *PostgresConnection) *PostgresSessionRepo {
	return &PostgresSessionRepo{conn: conn}
}

func scanSession(row rowScanner) (*model.Session, error) {
	s := &model.Session{}
	var (
		title, notes sql.NullString
		endTime      sql.NullTime
		duration     sql.NullInt64
		status       string
	)
	err := row.Scan(&s.ID, &s.UserID, &title, &notes, pq.Array(&s.Tags), &s.StartTime,
		&endTime, &duration, &status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}

	st, err := model.ParseSessionStatus(status)
	if err != nil {
		return nil, fmt.Errorf("unexpected session status %q: %w", status, err)
	}
	s.Status = st
	s.Title = title.String
	s.Notes = notes.String
	if s.Tags == nil {
		s.Tags = []string{}
	}
	s.StartTime = model.Normalize(s.StartTime)
	s.CreatedAt = model.Normalize(s.CreatedAt)
	s.UpdatedAt = model.Normalize(s.UpdatedAt)
	if endTime.Valid {
		end := model.Normalize(endTime.Time)
		s.EndTime = &end
	}
	if duration.Valid {
		d := int(duration.Int64)
		s.DurationMinutes = &d
	}
	return s, nil
}

// sessionArgs はUPDATE/INSERTで共通の列値を返す。先頭はid。
func sessionArgs(s *model.Session) []any {
	var endTime sql.NullTime
	if s.EndTime != nil {
		endTime = sql.NullTime{Time: *s.EndTime, Valid: true}
	}
	var duration sql.NullInt64
	if s.DurationMinutes != nil {
		duration = sql.NullInt64{Int64: int64(*s.DurationMinutes), Valid: true}
	}
	return []any{
		s.ID, s.UserID, nullString(s.Title), nullString(s.Notes), pq.Array(s.Tags), s.StartTime,
		endTime, duration, string(s.Status), s.CreatedAt, s.UpdatedAt,
	}
}

// Create はactive状態のセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, in model.NewSession) (*model.Session, error) {
	session, err := model.BuildSession(in, newID(), model.Now())
	if err != nil {
		return nil, err
	}
	db, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError("Create", "", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sessionArgs(session)...,
	)
	if err != nil {
		return nil, model.NewRepositoryError("Create", session.ID, fmt.Errorf("failed to insert session: %w", err))
	}
	return session, nil
}

// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if !isUUID(id) {
		return nil, nil
	}
	db, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError("FindByID", id, err)
	}
	session, err := scanSession(db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewRepositoryError("FindByID", id, fmt.Errorf("failed to find session: %w", err))
	}
	return session, nil
}

// FindByUserID はユーザーのセッションをstart_time降順で返す。
func (r *PostgresSessionRepo) FindByUserID(ctx context.Context, userID string, opts SessionListOptions) ([]*model.Session, error) {
	limit, err := sessionListLimit(opts)
	if err != nil {
		return nil, err
	}

	conds := []string{"user_id = $1"}
	args := []any{userID}
	if opts.StartDate != nil {
		args = append(args, model.Normalize(*opts.StartDate))
		conds = append(conds, fmt.Sprintf("start_time >= $%d", len(args)))
	}
	if opts.EndDate != nil {
		args = append(args, model.Normalize(*opts.EndDate))
		conds = append(conds, fmt.Sprintf("start_time <= $%d", len(args)))
	}
	args = append(args, limit, opts.Offset)

	query := fmt.Sprintf(
		`SELECT `+sessionColumns+` FROM sessions WHERE %s
		 ORDER BY start_time DESC, created_at LIMIT $%d OFFSET $%d`,
		strings.Join(conds, " AND "), len(args)-1, len(args),
	)
	return r.query(ctx, "FindByUserID", query, args...)
}

// Update は行ロックを取得したうえで部分更新を適用する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) Update(ctx context.Context, id string, upd model.SessionUpdate) (*model.Session, error) {
	return r.mutate(ctx, "Update", id, func(s *model.Session) error {
		return s.Apply(upd, model.Now())
	})
}

// Delete は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) Delete(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	db, err := r.conn.handle()
	if err != nil {
		return false, model.NewRepositoryError("Delete", id, err)
	}
	result, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, model.NewRepositoryError("Delete", id, fmt.Errorf("failed to delete session: %w", err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, model.NewRepositoryError("Delete", id, fmt.Errorf("failed to get rows affected: %w", err))
	}
	return rowsAffected > 0, nil
}

// CompleteSession はセッションを完了状態にして保存する。
func (r *PostgresSessionRepo) CompleteSession(ctx context.Context, id string, endTime time.Time) (*model.Session, error) {
	return r.mutate(ctx, "CompleteSession", id, func(s *model.Session) error {
		s.Complete(endTime)
		return nil
	})
}

// GetActiveSessions はユーザーのactive状態のセッションを返す。
func (r *PostgresSessionRepo) GetActiveSessions(ctx context.Context, userID string) ([]*model.Session, error) {
	return r.query(ctx, "GetActiveSessions",
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND status = $2 ORDER BY start_time DESC`,
		userID, string(model.SessionStatusActive),
	)
}

// CountSessions はユーザーのセッション数を返す。
func (r *PostgresSessionRepo) CountSessions(ctx context.Context, userID string) (int, error) {
	db, err := r.conn.handle()
	if err != nil {
		return 0, model.NewRepositoryError("CountSessions", userID, err)
	}
	var n int
	err = db.QueryRowContext(ctx, `SELECT count(*) FROM sessions WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, model.NewRepositoryError("CountSessions", userID, fmt.Errorf("failed to count sessions: %w", err))
	}
	return n, nil
}

// ListOpenStartedBefore はbeforeより前に開始したactive/pausedのセッションを古い順に返す。
func (r *PostgresSessionRepo) ListOpenStartedBefore(ctx context.Context, before time.Time, limit int) ([]*model.Session, error) {
	limit, err := sessionListLimit(SessionListOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	return r.query(ctx, "ListOpenStartedBefore",
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE status IN ('active', 'paused') AND start_time < $1
		 ORDER BY start_time LIMIT $2`,
		model.Normalize(before), limit,
	)
}

func (r *PostgresSessionRepo) query(ctx context.Context, op, query string, args ...any) ([]*model.Session, error) {
	db, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError(op, "", err)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.NewRepositoryError(op, "", fmt.Errorf("failed to query sessions: %w", err))
	}
	defer rows.Close()

	sessions := make([]*model.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, model.NewRepositoryError(op, "", fmt.Errorf("failed to scan session: %w", err))
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewRepositoryError(op, "", fmt.Errorf("failed to iterate sessions: %w", err))
	}
	return sessions, nil
}

// mutate はトランザクション内でセッションをロックし、fnを適用して保存する。
func (r *PostgresSessionRepo) mutate(ctx context.Context, op, id string, fn func(*model.Session) error) (*model.Session, error) {
	if !isUUID(id) {
		return nil, nil
	}
	db, err := r.conn.handle()
	if err != nil {
		return nil, model.NewRepositoryError(op, id, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, model.NewRepositoryError(op, id, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	session, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewRepositoryError(op, id, fmt.Errorf("failed to lock session: %w", err))
	}

	if err := fn(session); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions
		 SET user_id = $2, title = $3, notes = $4, tags = $5, start_time = $6,
		     end_time = $7, duration_minutes = $8, status = $9, created_at = $10, updated_at = $11
		 WHERE id = $1`,
		sessionArgs(session)...,
	)
	if err != nil {
		return nil, model.NewRepositoryError(op, id, fmt.Errorf("failed to update session: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return nil, model.NewRepositoryError(op, id, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return session, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
