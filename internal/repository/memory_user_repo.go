package repository

import (
	"context"

	"github.com/hitoshi/focustrack/internal/model"
)

// MemoryUserRepo はMemoryConnectionを使用したユーザーリポジトリ。
type MemoryUserRepo struct {
	conn *MemoryConnection
}

// compile-time interface check
var _ UserRepository = (*MemoryUserRepo)(nil)

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo(conn *MemoryConnection) *MemoryUserRepo {
	return &MemoryUserRepo{conn: conn}
}

// Create はユーザーを作成する。
func (r *MemoryUserRepo) Create(_ context.Context, in model.NewUser) (*model.User, error) {
	user, err := model.BuildUser(in, newID(), model.Now())
	if err != nil {
		return nil, err
	}

	r.conn.withLock(func() {
		if r.findByEmailLocked(user.Email) != nil {
			err = model.NewAlreadyExistsError("ユーザー", user.Email)
			return
		}
		r.conn.users.put(user.ID, user.ToDocument())
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。
func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	var doc map[string]any
	r.conn.withLock(func() {
		doc = r.conn.users.docs[id]
	})
	return decodeMemoryUser("FindByID", id, doc)
}

// FindByEmail はメールアドレスでユーザーを検索する。
func (r *MemoryUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	var doc map[string]any
	r.conn.withLock(func() {
		doc = r.findByEmailLocked(email)
	})
	return decodeMemoryUser("FindByEmail", "", doc)
}

func (r *MemoryUserRepo) findByEmailLocked(email string) map[string]any {
	var found map[string]any
	r.conn.users.each(func(doc map[string]any) bool {
		if doc["email"] == email {
			found = doc
			return false
		}
		return true
	})
	return found
}

// Update は指定されたフィールドのみを更新する。
func (r *MemoryUserRepo) Update(_ context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	var (
		user *model.User
		err  error
	)
	r.conn.withLock(func() {
		doc, ok := r.conn.users.docs[id]
		if !ok {
			return
		}
		user, err = decodeMemoryUser("Update", id, doc)
		if err != nil {
			return
		}
		if err = user.Apply(upd, model.Now()); err != nil {
			user = nil
			return
		}
		r.conn.users.put(id, user.ToDocument())
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Delete は指定IDのユーザーを削除する。
func (r *MemoryUserRepo) Delete(_ context.Context, id string) (bool, error) {
	var removed bool
	r.conn.withLock(func() {
		removed = r.conn.users.remove(id)
	})
	return removed, nil
}

// List はユーザーを挿入順でページングして返す。
func (r *MemoryUserRepo) List(_ context.Context, limit, offset int) ([]*model.User, error) {
	if err := model.ValidatePage(limit, offset); err != nil {
		return nil, err
	}

	var docs []map[string]any
	r.conn.withLock(func() {
		r.conn.users.each(func(doc map[string]any) bool {
			docs = append(docs, doc)
			return true
		})
	})

	page := model.Paginate(docs, limit, offset)
	users := make([]*model.User, 0, len(page))
	for _, doc := range page {
		u, err := decodeMemoryUser("List", "", doc)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// Count はユーザー数を返す。
func (r *MemoryUserRepo) Count(_ context.Context) (int, error) {
	var n int
	r.conn.withLock(func() {
		n = len(r.conn.users.docs)
	})
	return n, nil
}

// Exists は指定IDのユーザーが存在するかを返す。
func (r *MemoryUserRepo) Exists(_ context.Context, id string) (bool, error) {
	var ok bool
	r.conn.withLock(func() {
		_, ok = r.conn.users.docs[id]
	})
	return ok, nil
}

func decodeMemoryUser(op, id string, doc map[string]any) (*model.User, error) {
	if doc == nil {
		return nil, nil
	}
	u, err := model.UserFromDocument(doc)
	if err != nil {
		return nil, model.NewRepositoryError(op, id, err)
	}
	return u, nil
}
