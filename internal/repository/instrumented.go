package repository

import (
	"context"
	"time"

	"github.com/hitoshi/focustrack/internal/model"
)

// OperationRecorder はリポジトリ操作の計測結果を受け取る。
// metrics.Collectorが実装する。
type OperationRecorder interface {
	RecordRepositoryOperation(backend, operation string, duration time.Duration, err error)
}

type instrumented struct {
	backend  string
	recorder OperationRecorder
	now      func() time.Time
}

func newInstrumented(backend string, recorder OperationRecorder) instrumented {
	return instrumented{backend: backend, recorder: recorder, now: time.Now}
}

func (i instrumented) observe(operation string, start time.Time, err error) {
	i.recorder.RecordRepositoryOperation(i.backend, operation, i.now().Sub(start), err)
}

// InstrumentedUserRepo はUserRepositoryの各操作の件数とレイテンシを記録するデコレーター。
type InstrumentedUserRepo struct {
	instrumented
	next UserRepository
}

// compile-time interface check
var _ UserRepository = (*InstrumentedUserRepo)(nil)

// NewInstrumentedUserRepo はnextをラップした計測付きUserRepositoryを生成する。
func NewInstrumentedUserRepo(next UserRepository, backend string, recorder OperationRecorder) *InstrumentedUserRepo {
	return &InstrumentedUserRepo{instrumented: newInstrumented(backend, recorder), next: next}
}

func (r *InstrumentedUserRepo) Create(ctx context.Context, in model.NewUser) (*model.User, error) {
	start := r.now()
	u, err := r.next.Create(ctx, in)
	r.observe("user.create", start, err)
	return u, err
}

func (r *InstrumentedUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	start := r.now()
	u, err := r.next.FindByID(ctx, id)
	r.observe("user.find_by_id", start, err)
	return u, err
}

func (r *InstrumentedUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	start := r.now()
	u, err := r.next.FindByEmail(ctx, email)
	r.observe("user.find_by_email", start, err)
	return u, err
}

func (r *InstrumentedUserRepo) Update(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	start := r.now()
	u, err := r.next.Update(ctx, id, upd)
	r.observe("user.update", start, err)
	return u, err
}

func (r *InstrumentedUserRepo) Delete(ctx context.Context, id string) (bool, error) {
	start := r.now()
	ok, err := r.next.Delete(ctx, id)
	r.observe("user.delete", start, err)
	return ok, err
}

func (r *InstrumentedUserRepo) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	start := r.now()
	users, err := r.next.List(ctx, limit, offset)
	r.observe("user.list", start, err)
	return users, err
}

func (r *InstrumentedUserRepo) Count(ctx context.Context) (int, error) {
	start := r.now()
	n, err := r.next.Count(ctx)
	r.observe("user.count", start, err)
	return n, err
}

func (r *InstrumentedUserRepo) Exists(ctx context.Context, id string) (bool, error) {
	start := r.now()
	ok, err := r.next.Exists(ctx, id)
	r.observe("user.exists", start, err)
	return ok, err
}

// InstrumentedSessionRepo はSessionRepositoryの計測付きデコレーター。
type InstrumentedSessionRepo struct {
	instrumented
	next SessionRepository
}

// compile-time interface check
var _ SessionRepository = (*InstrumentedSessionRepo)(nil)

// NewInstrumentedSessionRepo はnextをラップした計測付きSessionRepositoryを生成する。
func NewInstrumentedSessionRepo(next SessionRepository, backend string, recorder OperationRecorder) *InstrumentedSessionRepo {
	return &InstrumentedSessionRepo{instrumented: newInstrumented(backend, recorder), next: next}
}

func (r *InstrumentedSessionRepo) Create(ctx context.Context, in model.NewSession) (*model.Session, error) {
	start := r.now()
	s, err := r.next.Create(ctx, in)
	r.observe("session.create", start, err)
	return s, err
}

func (r *InstrumentedSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	start := r.now()
	s, err := r.next.FindByID(ctx, id)
	r.observe("session.find_by_id", start, err)
	return s, err
}

func (r *InstrumentedSessionRepo) FindByUserID(ctx context.Context, userID string, opts SessionListOptions) ([]*model.Session, error) {
	start := r.now()
	sessions, err := r.next.FindByUserID(ctx, userID, opts)
	r.observe("session.find_by_user_id", start, err)
	return sessions, err
}

func (r *InstrumentedSessionRepo) Update(ctx context.Context, id string, upd model.SessionUpdate) (*model.Session, error) {
	start := r.now()
	s, err := r.next.Update(ctx, id, upd)
	r.observe("session.update", start, err)
	return s, err
}

func (r *InstrumentedSessionRepo) Delete(ctx context.Context, id string) (bool, error) {
	start := r.now()
	ok, err := r.next.Delete(ctx, id)
	r.observe("session.delete", start, err)
	return ok, err
}

func (r *InstrumentedSessionRepo) CompleteSession(ctx context.Context, id string, endTime time.Time) (*model.Session, error) {
	start := r.now()
	s, err := r.next.CompleteSession(ctx, id, endTime)
	r.observe("session.complete", start, err)
	return s, err
}

func (r *InstrumentedSessionRepo) GetActiveSessions(ctx context.Context, userID string) ([]*model.Session, error) {
	start := r.now()
	sessions, err := r.next.GetActiveSessions(ctx, userID)
	r.observe("session.get_active", start, err)
	return sessions, err
}

func (r *InstrumentedSessionRepo) CountSessions(ctx context.Context, userID string) (int, error) {
	start := r.now()
	n, err := r.next.CountSessions(ctx, userID)
	r.observe("session.count", start, err)
	return n, err
}

func (r *InstrumentedSessionRepo) ListOpenStartedBefore(ctx context.Context, before time.Time, limit int) ([]*model.Session, error) {
	start := r.now()
	sessions, err := r.next.ListOpenStartedBefore(ctx, before, limit)
	r.observe("session.list_open_started_before", start, err)
	return sessions, err
}

// InstrumentedAuthService はAuthServiceの計測付きデコレーター。
// VerifyTokenはエラーを返さないため、無効なトークンは記録しない。
type InstrumentedAuthService struct {
	instrumented
	next AuthService
}

// compile-time interface check
var _ AuthService = (*InstrumentedAuthService)(nil)

// NewInstrumentedAuthService はnextをラップした計測付きAuthServiceを生成する。
func NewInstrumentedAuthService(next AuthService, backend string, recorder OperationRecorder) *InstrumentedAuthService {
	return &InstrumentedAuthService{instrumented: newInstrumented(backend, recorder), next: next}
}

func (s *InstrumentedAuthService) CreateAccount(ctx context.Context, email, password string) (string, error) {
	start := s.now()
	id, err := s.next.CreateAccount(ctx, email, password)
	s.observe("auth.create_account", start, err)
	return id, err
}

func (s *InstrumentedAuthService) VerifyCredentials(ctx context.Context, email, password string) (string, error) {
	start := s.now()
	id, err := s.next.VerifyCredentials(ctx, email, password)
	s.observe("auth.verify_credentials", start, err)
	return id, err
}

func (s *InstrumentedAuthService) DeleteAccount(ctx context.Context, id string) (bool, error) {
	start := s.now()
	ok, err := s.next.DeleteAccount(ctx, id)
	s.observe("auth.delete_account", start, err)
	return ok, err
}

func (s *InstrumentedAuthService) UpdatePassword(ctx context.Context, id, newPassword string) (bool, error) {
	start := s.now()
	ok, err := s.next.UpdatePassword(ctx, id, newPassword)
	s.observe("auth.update_password", start, err)
	return ok, err
}

func (s *InstrumentedAuthService) IssueToken(ctx context.Context, accountID string) (string, error) {
	start := s.now()
	token, err := s.next.IssueToken(ctx, accountID)
	s.observe("auth.issue_token", start, err)
	return token, err
}

func (s *InstrumentedAuthService) VerifyToken(ctx context.Context, token string) (string, bool) {
	start := s.now()
	id, ok := s.next.VerifyToken(ctx, token)
	s.observe("auth.verify_token", start, nil)
	return id, ok
}
