package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/focustrack/internal/middleware"
	"github.com/hitoshi/focustrack/internal/model"
	"github.com/hitoshi/focustrack/internal/repository"
)

// --- モック定義 ---

// mockUserRepo はrepository.UserRepositoryのモック実装。
type mockUserRepo struct {
	createFn      func(ctx context.Context, in model.NewUser) (*model.User, error)
	findByIDFn    func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	updateFn      func(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error)
	deleteFn      func(ctx context.Context, id string) (bool, error)
	listFn        func(ctx context.Context, limit, offset int) ([]*model.User, error)
	countFn       func(ctx context.Context) (int, error)
	existsFn      func(ctx context.Context, id string) (bool, error)
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

func (m *mockUserRepo) Create(ctx context.Context, in model.NewUser) (*model.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Update(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, upd)
	}
	return nil, nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return false, nil
}

func (m *mockUserRepo) List(ctx context.Context, limit, offset int) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, offset)
	}
	return []*model.User{}, nil
}

func (m *mockUserRepo) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

func (m *mockUserRepo) Exists(ctx context.Context, id string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, id)
	}
	return false, nil
}

// mockSessionRepo はrepository.SessionRepositoryのモック実装。
type mockSessionRepo struct {
	createFn          func(ctx context.Context, in model.NewSession) (*model.Session, error)
	findByIDFn        func(ctx context.Context, id string) (*model.Session, error)
	findByUserIDFn    func(ctx context.Context, userID string, opts repository.SessionListOptions) ([]*model.Session, error)
	updateFn          func(ctx context.Context, id string, upd model.SessionUpdate) (*model.Session, error)
	deleteFn          func(ctx context.Context, id string) (bool, error)
	completeFn        func(ctx context.Context, id string, endTime time.Time) (*model.Session, error)
	activeFn          func(ctx context.Context, userID string) ([]*model.Session, error)
	countFn           func(ctx context.Context, userID string) (int, error)
	openStartedBefore func(ctx context.Context, before time.Time, limit int) ([]*model.Session, error)
}

var _ repository.SessionRepository = (*mockSessionRepo)(nil)

func (m *mockSessionRepo) Create(ctx context.Context, in model.NewSession) (*model.Session, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return nil, nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) FindByUserID(ctx context.Context, userID string, opts repository.SessionListOptions) ([]*model.Session, error) {
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID, opts)
	}
	return []*model.Session{}, nil
}

func (m *mockSessionRepo) Update(ctx context.Context, id string, upd model.SessionUpdate) (*model.Session, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, upd)
	}
	return nil, nil
}

func (m *mockSessionRepo) Delete(ctx context.Context, id string) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return false, nil
}

func (m *mockSessionRepo) CompleteSession(ctx context.Context, id string, endTime time.Time) (*model.Session, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, id, endTime)
	}
	return nil, nil
}

func (m *mockSessionRepo) GetActiveSessions(ctx context.Context, userID string) ([]*model.Session, error) {
	if m.activeFn != nil {
		return m.activeFn(ctx, userID)
	}
	return []*model.Session{}, nil
}

func (m *mockSessionRepo) CountSessions(ctx context.Context, userID string) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, userID)
	}
	return 0, nil
}

func (m *mockSessionRepo) ListOpenStartedBefore(ctx context.Context, before time.Time, limit int) ([]*model.Session, error) {
	if m.openStartedBefore != nil {
		return m.openStartedBefore(ctx, before, limit)
	}
	return []*model.Session{}, nil
}

// mockAuthService はrepository.AuthServiceのモック実装。
type mockAuthService struct {
	createAccountFn     func(ctx context.Context, email, password string) (string, error)
	verifyCredentialsFn func(ctx context.Context, email, password string) (string, error)
	deleteAccountFn     func(ctx context.Context, id string) (bool, error)
	updatePasswordFn    func(ctx context.Context, id, newPassword string) (bool, error)
	issueTokenFn        func(ctx context.Context, accountID string) (string, error)
	verifyTokenFn       func(ctx context.Context, token string) (string, bool)
}

var _ repository.AuthService = (*mockAuthService)(nil)

func (m *mockAuthService) CreateAccount(ctx context.Context, email, password string) (string, error) {
	if m.createAccountFn != nil {
		return m.createAccountFn(ctx, email, password)
	}
	return "", nil
}

func (m *mockAuthService) VerifyCredentials(ctx context.Context, email, password string) (string, error) {
	if m.verifyCredentialsFn != nil {
		return m.verifyCredentialsFn(ctx, email, password)
	}
	return "", model.NewAuthenticationFailedError()
}

func (m *mockAuthService) DeleteAccount(ctx context.Context, id string) (bool, error) {
	if m.deleteAccountFn != nil {
		return m.deleteAccountFn(ctx, id)
	}
	return false, nil
}

func (m *mockAuthService) UpdatePassword(ctx context.Context, id, newPassword string) (bool, error) {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, id, newPassword)
	}
	return false, nil
}

func (m *mockAuthService) IssueToken(ctx context.Context, accountID string) (string, error) {
	if m.issueTokenFn != nil {
		return m.issueTokenFn(ctx, accountID)
	}
	return "token-" + accountID, nil
}

func (m *mockAuthService) VerifyToken(ctx context.Context, token string) (string, bool) {
	if m.verifyTokenFn != nil {
		return m.verifyTokenFn(ctx, token)
	}
	return "", false
}

// stubServices はServiceProviderのスタブ実装。errが設定されている場合は全サービスの解決に失敗する。
type stubServices struct {
	users    *mockUserRepo
	sessions *mockSessionRepo
	auth     *mockAuthService
	health   model.HealthStatus
	err      error
}

var _ ServiceProvider = (*stubServices)(nil)

func newStubServices() *stubServices {
	return &stubServices{
		users:    &mockUserRepo{},
		sessions: &mockSessionRepo{},
		auth:     &mockAuthService{},
		health:   model.NewHealthStatus(true, map[string]any{}),
	}
}

func (s *stubServices) Users(context.Context) (repository.UserRepository, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.users, nil
}

func (s *stubServices) Sessions(context.Context) (repository.SessionRepository, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.sessions, nil
}

func (s *stubServices) Auth(context.Context) (repository.AuthService, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.auth, nil
}

func (s *stubServices) HealthCheck(context.Context) model.HealthStatus {
	return s.health
}

// mockRecorder はRouterRecorderのモック実装。
type mockRecorder struct {
	mu          sync.Mutex
	statuses    []int
	transitions []string
	attempts    []bool
}

func (m *mockRecorder) RecordHTTPStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, code)
}

func (m *mockRecorder) RecordSessionTransition(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, status)
}

func (m *mockRecorder) RecordAuthAttempt(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, success)
}

// --- テストヘルパー ---

var testTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleUser(id string) *model.User {
	return &model.User{
		ID:               id,
		Email:            "alice@example.com",
		DisplayName:      "Alice",
		Timezone:         "Asia/Tokyo",
		DailyGoalMinutes: 25,
		ReminderEnabled:  true,
		IsActive:         true,
		CreatedAt:        testTime,
		UpdatedAt:        testTime,
	}
}

func sampleSession(id string) *model.Session {
	return &model.Session{
		ID:        id,
		UserID:    "user-1",
		Title:     "Deep work",
		Tags:      []string{"writing"},
		StartTime: testTime,
		Status:    model.SessionStatusActive,
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
}

// withURLParams はchiのURLパラメータをリクエストに設定する。
func withURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// withAccountID は認証済みアカウントIDをリクエストコンテキストに設定する。
func withAccountID(r *http.Request, accountID string) *http.Request {
	return r.WithContext(middleware.ContextWithAccountID(r.Context(), accountID))
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return v
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, want, w.Body.String())
	}
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	body := decodeBody[middleware.ErrorResponseBody](t, w)
	if body.Code != want {
		t.Errorf("error code = %q, want %q", body.Code, want)
	}
}

func intPtr(v int) *int { return &v }
