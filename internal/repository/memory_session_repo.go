package repository

import (
	"context"
	"sort"
	"time"

	"github.com/hitoshi/focustrack/internal/model"
)

// MemorySessionRepo はMemoryConnectionを使用したセッションリポジトリ。
type MemorySessionRepo struct {
	conn *MemoryConnection
}

// compile-time interface check
var _ SessionRepository = (*MemorySessionRepo)(nil)

// NewMemorySessionRepo はMemorySessionRepoを生成する。
func NewMemorySessionRepo(conn *MemoryConnection) *MemorySessionRepo {
	return &MemorySessionRepo{conn: conn}
}

// Create はactive状態のセッションを作成する。
func (r *MemorySessionRepo) Create(_ context.Context, in model.NewSession) (*model.Session, error) {
	session, err := model.BuildSession(in, newID(), model.Now())
	if err != nil {
		return nil, err
	}
	r.conn.withLock(func() {
		r.conn.sessions.put(session.ID, session.ToDocument())
	})
	return session, nil
}

// FindByID は指定IDのセッションを取得する。
func (r *MemorySessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	var doc map[string]any
	r.conn.withLock(func() {
		doc = r.conn.sessions.docs[id]
	})
	return decodeMemorySession("FindByID", id, doc)
}

// FindByUserID はユーザーのセッションをstart_time降順で返す。
func (r *MemorySessionRepo) FindByUserID(_ context.Context, userID string, opts SessionListOptions) ([]*model.Session, error) {
	limit, err := sessionListLimit(opts)
	if err != nil {
		return nil, err
	}

	sessions, err := r.filter("FindByUserID", func(s *model.Session) bool {
		return s.UserID == userID && inStartRange(s.StartTime, opts.StartDate, opts.EndDate)
	})
	if err != nil {
		return nil, err
	}

	sortByStartDesc(sessions)
	return model.Paginate(sessions, limit, opts.Offset), nil
}

// Update は指定されたフィールドのみを更新する。
func (r *MemorySessionRepo) Update(_ context.Context, id string, upd model.SessionUpdate) (*model.Session, error) {
	return r.mutate("Update", id, func(s *model.Session) error {
		return s.Apply(upd, model.Now())
	})
}

// Delete は指定IDのセッションを削除する。
func (r *MemorySessionRepo) Delete(_ context.Context, id string) (bool, error) {
	var removed bool
	r.conn.withLock(func() {
		removed = r.conn.sessions.remove(id)
	})
	return removed, nil
}

// CompleteSession はセッションを完了状態にして保存する。
func (r *MemorySessionRepo) CompleteSession(_ context.Context, id string, endTime time.Time) (*model.Session, error) {
	return r.mutate("CompleteSession", id, func(s *model.Session) error {
		s.Complete(endTime)
		return nil
	})
}

// GetActiveSessions はユーザーのactive状態のセッションを返す。
func (r *MemorySessionRepo) GetActiveSessions(_ context.Context, userID string) ([]*model.Session, error) {
	return r.filter("GetActiveSessions", func(s *model.Session) bool {
		return s.UserID == userID && s.IsActive()
	})
}

// CountSessions はユーザーのセッション数を返す。
func (r *MemorySessionRepo) CountSessions(_ context.Context, userID string) (int, error) {
	var n int
	r.conn.withLock(func() {
		r.conn.sessions.each(func(doc map[string]any) bool {
			if doc["user_id"] == userID {
				n++
			}
			return true
		})
	})
	return n, nil
}

// ListOpenStartedBefore はbeforeより前に開始したactive/pausedのセッションを開始時刻の古い順に返す。
func (r *MemorySessionRepo) ListOpenStartedBefore(_ context.Context, before time.Time, limit int) ([]*model.Session, error) {
	limit, err := sessionListLimit(SessionListOptions{Limit: limit})
	if err != nil {
		return nil, err
	}
	sessions, err := r.filter("ListOpenStartedBefore", func(s *model.Session) bool {
		return isOpen(s.Status) && s.StartTime.Before(before)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
	return model.Paginate(sessions, limit, 0), nil
}

// filter は挿入順にセッションを復元し、matchを満たすものを返す。
func (r *MemorySessionRepo) filter(op string, match func(*model.Session) bool) ([]*model.Session, error) {
	var docs []map[string]any
	r.conn.withLock(func() {
		r.conn.sessions.each(func(doc map[string]any) bool {
			docs = append(docs, doc)
			return true
		})
	})

	out := make([]*model.Session, 0)
	for _, doc := range docs {
		s, err := decodeMemorySession(op, "", doc)
		if err != nil {
			return nil, err
		}
		if match(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// mutate はロック内でセッションを読み出し、fnを適用して保存する。
func (r *MemorySessionRepo) mutate(op, id string, fn func(*model.Session) error) (*model.Session, error) {
	var (
		session *model.Session
		err     error
	)
	r.conn.withLock(func() {
		doc, ok := r.conn.sessions.docs[id]
		if !ok {
			return
		}
		session, err = decodeMemorySession(op, id, doc)
		if err != nil {
			return
		}
		if err = fn(session); err != nil {
			session = nil
			return
		}
		r.conn.sessions.put(id, session.ToDocument())
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func decodeMemorySession(op, id string, doc map[string]any) (*model.Session, error) {
	if doc == nil {
		return nil, nil
	}
	s, err := model.SessionFromDocument(doc)
	if err != nil {
		return nil, model.NewRepositoryError(op, id, err)
	}
	return s, nil
}

// inStartRange は開始時刻が両端を含む範囲内にあるかを返す。
func inStartRange(start time.Time, from, to *time.Time) bool {
	if from != nil && start.Before(*from) {
		return false
	}
	if to != nil && start.After(*to) {
		return false
	}
	return true
}

// sortByStartDesc はセッションを開始時刻の新しい順に並べる。同時刻の場合は挿入順を保つ。
func sortByStartDesc(sessions []*model.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
}

func isOpen(status model.SessionStatus) bool {
	return status == model.SessionStatusActive || status == model.SessionStatusPaused
}
