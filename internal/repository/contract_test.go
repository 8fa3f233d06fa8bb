package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/focustrack/internal/auth"
	"github.com/hitoshi/focustrack/internal/model"
)

const testTokenSecret = "0123456789abcdef0123456789abcdef"

// testBackend は契約テストの対象となる1バックエンド分のリポジトリ。
type testBackend struct {
	users    UserRepository
	sessions SessionRepository
	accounts AuthService
}

func newTestIssuer(t *testing.T) *auth.Issuer {
	t.Helper()
	tokens, err := auth.NewTokenManager(testTokenSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	return auth.NewIssuer(tokens, auth.NewMemoryRevocationStore(), nil)
}

func ptr[T any](v T) *T { return &v }

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if !model.HasCode(err, code) {
		t.Fatalf("error = %v, want code %s", err, code)
	}
}

// runContractSuite はどのバックエンドでも同じ振る舞いになるべき契約を検証する。
// newBackendはサブテストごとに空のバックエンドを返す。
func runContractSuite(t *testing.T, newBackend func(t *testing.T) testBackend) {
	t.Run("FocusScenario", func(t *testing.T) { testFocusScenario(t, newBackend(t)) })

	t.Run("User/CreateDefaults", func(t *testing.T) { testUserCreateDefaults(t, newBackend(t).users) })
	t.Run("User/DuplicateEmail", func(t *testing.T) { testUserDuplicateEmail(t, newBackend(t).users) })
	t.Run("User/InvalidInput", func(t *testing.T) { testUserInvalidInput(t, newBackend(t).users) })
	t.Run("User/NotFound", func(t *testing.T) { testUserNotFound(t, newBackend(t).users) })
	t.Run("User/UpdateAndDelete", func(t *testing.T) { testUserUpdateAndDelete(t, newBackend(t).users) })
	t.Run("User/ListPagination", func(t *testing.T) { testUserListPagination(t, newBackend(t).users) })

	t.Run("Session/CreateDefaults", func(t *testing.T) { testSessionCreateDefaults(t, newBackend(t).sessions) })
	t.Run("Session/DateBounds", func(t *testing.T) { testSessionDateBounds(t, newBackend(t).sessions) })
	t.Run("Session/OrderAndPagination", func(t *testing.T) { testSessionOrderAndPagination(t, newBackend(t).sessions) })
	t.Run("Session/Lifecycle", func(t *testing.T) { testSessionLifecycle(t, newBackend(t).sessions) })
	t.Run("Session/NotFound", func(t *testing.T) { testSessionNotFound(t, newBackend(t).sessions) })
	t.Run("Session/ActiveAndCount", func(t *testing.T) { testSessionActiveAndCount(t, newBackend(t).sessions) })
	t.Run("Session/ListOpenStartedBefore", func(t *testing.T) { testSessionListOpen(t, newBackend(t).sessions) })

	t.Run("Auth/Credentials", func(t *testing.T) { testAuthCredentials(t, newBackend(t).accounts) })
	t.Run("Auth/Tokens", func(t *testing.T) { testAuthTokens(t, newBackend(t).accounts) })
	t.Run("Auth/UpdatePasswordRevokes", func(t *testing.T) { testAuthUpdatePassword(t, newBackend(t).accounts) })
	t.Run("Auth/DeleteAccountRevokes", func(t *testing.T) { testAuthDeleteAccount(t, newBackend(t).accounts) })
}

func testFocusScenario(t *testing.T, b testBackend) {
	ctx := context.Background()

	user, err := b.users.Create(ctx, model.NewUser{Email: "john@example.com", DailyGoalMinutes: ptr(120)})
	if err != nil {
		t.Fatalf("Create user error = %v", err)
	}
	if user.ID == "" {
		t.Error("expected generated id")
	}
	if user.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", user.Timezone)
	}
	if !user.IsActive {
		t.Error("expected IsActive = true")
	}
	if user.DailyGoalMinutes != 120 {
		t.Errorf("DailyGoalMinutes = %d, want 120", user.DailyGoalMinutes)
	}

	session, err := b.sessions.Create(ctx, model.NewSession{UserID: user.ID, Title: "Focus"})
	if err != nil {
		t.Fatalf("Create session error = %v", err)
	}
	if session.Status != model.SessionStatusActive {
		t.Errorf("Status = %q, want active", session.Status)
	}
	if session.DurationMinutes != nil {
		t.Errorf("DurationMinutes = %v, want nil", *session.DurationMinutes)
	}

	completed, err := b.sessions.CompleteSession(ctx, session.ID, session.StartTime.Add(25*time.Minute))
	if err != nil {
		t.Fatalf("CompleteSession error = %v", err)
	}
	if completed == nil {
		t.Fatal("CompleteSession returned nil")
	}
	if completed.Status != model.SessionStatusCompleted {
		t.Errorf("Status = %q, want completed", completed.Status)
	}
	if completed.DurationMinutes == nil || *completed.DurationMinutes != 25 {
		t.Errorf("DurationMinutes = %v, want 25", completed.DurationMinutes)
	}

	stored, err := b.sessions.FindByID(ctx, session.ID)
	if err != nil || stored == nil {
		t.Fatalf("FindByID = %v, %v", stored, err)
	}
	if stored.DurationMinutes == nil || *stored.DurationMinutes != 25 {
		t.Errorf("stored DurationMinutes = %v, want 25", stored.DurationMinutes)
	}
}

func testUserCreateDefaults(t *testing.T, users UserRepository) {
	ctx := context.Background()
	u, err := users.Create(ctx, model.NewUser{Email: "  Alice@Example.COM ", DisplayName: "  Alice  "})
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("Email = %q, want alice@example.com", u.Email)
	}
	if u.DisplayName != "Alice" {
		t.Errorf("DisplayName = %q, want Alice", u.DisplayName)
	}
	if u.DailyGoalMinutes != model.DefaultDailyGoalMinutes {
		t.Errorf("DailyGoalMinutes = %d, want %d", u.DailyGoalMinutes, model.DefaultDailyGoalMinutes)
	}
	if !u.ReminderEnabled || !u.IsActive {
		t.Errorf("ReminderEnabled = %v, IsActive = %v, want both true", u.ReminderEnabled, u.IsActive)
	}

	got, err := users.FindByID(ctx, u.ID)
	if err != nil || got == nil {
		t.Fatalf("FindByID = %v, %v", got, err)
	}
	if got.Email != u.Email || !got.CreatedAt.Equal(u.CreatedAt) {
		t.Errorf("FindByID = %+v, want %+v", got, u)
	}

	byEmail, err := users.FindByEmail(ctx, " ALICE@example.com")
	if err != nil || byEmail == nil {
		t.Fatalf("FindByEmail = %v, %v", byEmail, err)
	}
	if byEmail.ID != u.ID {
		t.Errorf("FindByEmail id = %q, want %q", byEmail.ID, u.ID)
	}
}

func testUserDuplicateEmail(t *testing.T, users UserRepository) {
	ctx := context.Background()
	if _, err := users.Create(ctx, model.NewUser{Email: "A@B.com"}); err != nil {
		t.Fatalf("Create error = %v", err)
	}
	_, err := users.Create(ctx, model.NewUser{Email: " a@b.com "})
	assertCode(t, err, model.ErrCodeAlreadyExists)

	n, err := users.Count(ctx)
	if err != nil {
		t.Fatalf("Count error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func testUserInvalidInput(t *testing.T, users UserRepository) {
	ctx := context.Background()
	tests := []struct {
		name string
		in   model.NewUser
	}{
		{"empty email", model.NewUser{Email: "  "}},
		{"malformed email", model.NewUser{Email: "not-an-email"}},
		{"short display name", model.NewUser{Email: "x@example.com", DisplayName: "a"}},
		{"goal too small", model.NewUser{Email: "x@example.com", DailyGoalMinutes: ptr(4)}},
		{"goal too large", model.NewUser{Email: "x@example.com", DailyGoalMinutes: ptr(481)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := users.Create(ctx, tt.in)
			assertCode(t, err, model.ErrCodeValidation)
		})
	}
}

func testUserNotFound(t *testing.T, users UserRepository) {
	ctx := context.Background()
	missing := uuid.New().String()

	if u, err := users.FindByID(ctx, missing); err != nil || u != nil {
		t.Errorf("FindByID = %v, %v, want nil, nil", u, err)
	}
	if u, err := users.FindByEmail(ctx, "nobody@example.com"); err != nil || u != nil {
		t.Errorf("FindByEmail = %v, %v, want nil, nil", u, err)
	}
	if u, err := users.Update(ctx, missing, model.UserUpdate{Timezone: ptr("Asia/Tokyo")}); err != nil || u != nil {
		t.Errorf("Update = %v, %v, want nil, nil", u, err)
	}
	if ok, err := users.Delete(ctx, missing); err != nil || ok {
		t.Errorf("Delete = %v, %v, want false, nil", ok, err)
	}
	if ok, err := users.Exists(ctx, missing); err != nil || ok {
		t.Errorf("Exists = %v, %v, want false, nil", ok, err)
	}
}

func testUserUpdateAndDelete(t *testing.T, users UserRepository) {
	ctx := context.Background()
	u, err := users.Create(ctx, model.NewUser{Email: "bob@example.com", DisplayName: "Bob"})
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	updated, err := users.Update(ctx, u.ID, model.UserUpdate{
		DisplayName:      ptr(""),
		DailyGoalMinutes: ptr(60),
		ReminderEnabled:  ptr(false),
	})
	if err != nil || updated == nil {
		t.Fatalf("Update = %v, %v", updated, err)
	}
	if updated.DisplayName != "" || updated.DailyGoalMinutes != 60 || updated.ReminderEnabled {
		t.Errorf("Update result = %+v", updated)
	}
	if updated.Timezone != u.Timezone {
		t.Errorf("Timezone changed to %q", updated.Timezone)
	}
	if !updated.UpdatedAt.After(u.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want after %v", updated.UpdatedAt, u.UpdatedAt)
	}

	_, err = users.Update(ctx, u.ID, model.UserUpdate{DailyGoalMinutes: ptr(1)})
	assertCode(t, err, model.ErrCodeValidation)

	stored, err := users.FindByID(ctx, u.ID)
	if err != nil || stored == nil {
		t.Fatalf("FindByID = %v, %v", stored, err)
	}
	if stored.DailyGoalMinutes != 60 {
		t.Errorf("stored DailyGoalMinutes = %d, want 60", stored.DailyGoalMinutes)
	}

	if ok, err := users.Exists(ctx, u.ID); err != nil || !ok {
		t.Errorf("Exists = %v, %v, want true", ok, err)
	}
	if ok, err := users.Delete(ctx, u.ID); err != nil || !ok {
		t.Fatalf("Delete = %v, %v, want true", ok, err)
	}
	if ok, err := users.Delete(ctx, u.ID); err != nil || ok {
		t.Errorf("second Delete = %v, %v, want false", ok, err)
	}
	if got, err := users.FindByID(ctx, u.ID); err != nil || got != nil {
		t.Errorf("FindByID after delete = %v, %v", got, err)
	}

	// 削除後は同じメールアドレスで再登録できる
	if _, err := users.Create(ctx, model.NewUser{Email: "bob@example.com"}); err != nil {
		t.Errorf("re-create after delete error = %v", err)
	}
}

func testUserListPagination(t *testing.T, users UserRepository) {
	ctx := context.Background()
	for _, email := range []string{"u1@example.com", "u2@example.com", "u3@example.com", "u4@example.com", "u5@example.com"} {
		if _, err := users.Create(ctx, model.NewUser{Email: email}); err != nil {
			t.Fatalf("Create(%s) error = %v", email, err)
		}
	}

	seen := map[string]bool{}
	for _, page := range []struct{ offset, want int }{{0, 2}, {2, 2}, {4, 1}, {6, 0}} {
		got, err := users.List(ctx, 2, page.offset)
		if err != nil {
			t.Fatalf("List(2, %d) error = %v", page.offset, err)
		}
		if len(got) != page.want {
			t.Fatalf("List(2, %d) len = %d, want %d", page.offset, len(got), page.want)
		}
		for _, u := range got {
			if seen[u.ID] {
				t.Errorf("user %s returned on more than one page", u.ID)
			}
			seen[u.ID] = true
		}
	}
	if len(seen) != 5 {
		t.Errorf("pages covered %d users, want 5", len(seen))
	}

	first, _ := users.List(ctx, 5, 0)
	again, _ := users.List(ctx, 5, 0)
	for i := range first {
		if first[i].ID != again[i].ID {
			t.Errorf("List order is not stable at %d", i)
		}
	}

	for _, tt := range []struct{ limit, offset int }{{0, 0}, {1001, 0}, {10, -1}} {
		_, err := users.List(ctx, tt.limit, tt.offset)
		assertCode(t, err, model.ErrCodeValidation)
	}
}

func testSessionCreateDefaults(t *testing.T, sessions SessionRepository) {
	ctx := context.Background()
	s, err := sessions.Create(ctx, model.NewSession{
		UserID: "user-1",
		Title:  "  Deep work ",
		Tags:   []string{" Go ", "", "WRITING"},
	})
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}
	if s.Title != "Deep work" {
		t.Errorf("Title = %q", s.Title)
	}
	if len(s.Tags) != 2 || s.Tags[0] != "go" || s.Tags[1] != "writing" {
		t.Errorf("Tags = %v, want [go writing]", s.Tags)
	}
	if s.EndTime != nil || s.DurationMinutes != nil {
		t.Errorf("EndTime = %v, DurationMinutes = %v, want nil", s.EndTime, s.DurationMinutes)
	}
	if !s.StartTime.Equal(s.CreatedAt) {
		t.Errorf("StartTime = %v, want CreatedAt %v", s.StartTime, s.CreatedAt)
	}

	got, err := sessions.FindByID(ctx, s.ID)
	if err != nil || got == nil {
		t.Fatalf("FindByID = %v, %v", got, err)
	}
	if len(got.Tags) != 2 || got.Notes != "" || got.Title != "Deep work" {
		t.Errorf("FindByID = %+v", got)
	}

	_, err = sessions.Create(ctx, model.NewSession{UserID: "   "})
	assertCode(t, err, model.ErrCodeValidation)
}

func testSessionDateBounds(t *testing.T, sessions SessionRepository) {
	ctx := context.Background()
	start := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	s, err := sessions.Create(ctx, model.NewSession{UserID: "user-bounds", StartTime: start})
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}

	contains := func(opts SessionListOptions) bool {
		t.Helper()
		got, err := sessions.FindByUserID(ctx, "user-bounds", opts)
		if err != nil {
			t.Fatalf("FindByUserID error = %v", err)
		}
		for _, g := range got {
			if g.ID == s.ID {
				return true
			}
		}
		return false
	}

	day := func(d int) *time.Time { v := time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC); return &v }

	if contains(SessionListOptions{StartDate: day(11), EndDate: day(12)}) {
		t.Error("session should be excluded by bounds after its start")
	}
	if contains(SessionListOptions{StartDate: day(1), EndDate: day(9)}) {
		t.Error("session should be excluded by bounds before its start")
	}
	if !contains(SessionListOptions{StartDate: day(10), EndDate: day(11)}) {
		t.Error("session should be included by bounds around its start")
	}
	if !contains(SessionListOptions{StartDate: &start, EndDate: &start}) {
		t.Error("bounds are inclusive")
	}
	if !contains(SessionListOptions{StartDate: day(10)}) {
		t.Error("open-ended start bound should include session")
	}
	if contains(SessionListOptions{EndDate: day(9)}) {
		t.Error("end bound before start should exclude session")
	}
}

func testSessionOrderAndPagination(t *testing.T, sessions SessionRepository) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		s, err := sessions.Create(ctx, model.NewSession{UserID: "user-order", StartTime: base.Add(time.Duration(i) * time.Hour)})
		if err != nil {
			t.Fatalf("Create error = %v", err)
		}
		ids = append(ids, s.ID)
	}
	if _, err := sessions.Create(ctx, model.NewSession{UserID: "someone-else", StartTime: base}); err != nil {
		t.Fatalf("Create error = %v", err)
	}

	page1, err := sessions.FindByUserID(ctx, "user-order", SessionListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("FindByUserID error = %v", err)
	}
	if len(page1) != 2 || page1[0].ID != ids[2] || page1[1].ID != ids[1] {
		t.Fatalf("page1 = %v, want newest first", sessionIDs(page1))
	}
	page2, err := sessions.FindByUserID(ctx, "user-order", SessionListOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("FindByUserID error = %v", err)
	}
	if len(page2) != 1 || page2[0].ID != ids[0] {
		t.Fatalf("page2 = %v, want [%s]", sessionIDs(page2), ids[0])
	}

	all, err := sessions.FindByUserID(ctx, "user-order", SessionListOptions{})
	if err != nil {
		t.Fatalf("FindByUserID default limit error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("default limit len = %d, want 3", len(all))
	}

	_, err = sessions.FindByUserID(ctx, "user-order", SessionListOptions{Limit: 1001})
	assertCode(t, err, model.ErrCodeValidation)
	_, err = sessions.FindByUserID(ctx, "user-order", SessionListOptions{Limit: 10, Offset: -1})
	assertCode(t, err, model.ErrCodeValidation)

	none, err := sessions.FindByUserID(ctx, "nobody", SessionListOptions{})
	if err != nil || len(none) != 0 {
		t.Errorf("FindByUserID(nobody) = %v, %v, want empty", none, err)
	}
}

func testSessionLifecycle(t *testing.T, sessions SessionRepository) {
	ctx := context.Background()
	s, err := sessions.Create(ctx, model.NewSession{UserID: "user-life", StartTime: time.Now().Add(-30 * time.Minute)})
	if err != nil {
		t.Fatalf("Create error = %v", err)
	}

	resumed, err := sessions.Update(ctx, s.ID, model.SessionUpdate{Status: ptr(model.SessionStatusActive)})
	if err != nil || resumed.Status != model.SessionStatusActive {
		t.Fatalf("resume from active = %v, %v, want no-op", resumed, err)
	}

	paused, err := sessions.Update(ctx, s.ID, model.SessionUpdate{
		Status: ptr(model.SessionStatusPaused),
		Notes:  ptr("interrupted"),
		Tags:   &[]string{"Meeting"},
	})
	if err != nil || paused == nil {
		t.Fatalf("Update = %v, %v", paused, err)
	}
	if paused.Status != model.SessionStatusPaused || paused.Notes != "interrupted" || paused.Tags[0] != "meeting" {
		t.Errorf("paused = %+v", paused)
	}
	if paused.DurationMinutes != nil {
		t.Error("pausing must not set a duration")
	}

	_, err = sessions.Update(ctx, s.ID, model.SessionUpdate{Status: ptr(model.SessionStatus("archived"))})
	assertCode(t, err, model.ErrCodeValidation)

	end := s.StartTime.Add(30 * time.Minute)
	completed, err := sessions.CompleteSession(ctx, s.ID, end)
	if err != nil || completed == nil {
		t.Fatalf("CompleteSession = %v, %v", completed, err)
	}
	if *completed.DurationMinutes != 30 || !completed.EndTime.Equal(end) {
		t.Errorf("completed = %+v", completed)
	}

	again, err := sessions.CompleteSession(ctx, s.ID, end.Add(time.Hour))
	if err != nil || again == nil {
		t.Fatalf("second CompleteSession = %v, %v", again, err)
	}
	if !again.EndTime.Equal(end) || *again.DurationMinutes != 30 {
		t.Errorf("completion is not idempotent: %+v", again)
	}

	stillCompleted, err := sessions.Update(ctx, s.ID, model.SessionUpdate{Status: ptr(model.SessionStatusPaused)})
	if err != nil || stillCompleted.Status != model.SessionStatusCompleted {
		t.Errorf("pause from completed = %v, %v, want no-op", stillCompleted, err)
	}

	cancelled, err := sessions.Update(ctx, s.ID, model.SessionUpdate{Status: ptr(model.SessionStatusCancelled)})
	if err != nil || cancelled.Status != model.SessionStatusCancelled {
		t.Errorf("cancel from completed = %v, %v, want cancelled", cancelled, err)
	}

	if ok, err := sessions.Delete(ctx, s.ID); err != nil || !ok {
		t.Fatalf("Delete = %v, %v, want true", ok, err)
	}
	if ok, err := sessions.Delete(ctx, s.ID); err != nil || ok {
		t.Errorf("second Delete = %v, %v, want false", ok, err)
	}
}

func testSessionNotFound(t *testing.T, sessions SessionRepository) {
	ctx := context.Background()
	missing := uuid.New().String()

	if s, err := sessions.FindByID(ctx, missing); err != nil || s != nil {
		t.Errorf("FindByID = %v, %v", s, err)
	}
	if s, err := sessions.Update(ctx, missing, model.SessionUpdate{Title: ptr("x")}); err != nil || s != nil {
		t.Errorf("Update = %v, %v", s, err)
	}
	if s, err := sessions.CompleteSession(ctx, missing, time.Time{}); err != nil || s != nil {
		t.Errorf("CompleteSession = %v, %v", s, err)
	}
	if ok, err := sessions.Delete(ctx, missing); err != nil || ok {
		t.Errorf("Delete = %v, %v", ok, err)
	}
}

func testSessionActiveAndCount(t *testing.T, sessions SessionRepository) {
	ctx := context.Background()
	a, _ := sessions.Create(ctx, model.NewSession{UserID: "user-act"})
	b, _ := sessions.Create(ctx, model.NewSession{UserID: "user-act"})
	if a == nil || b == nil {
		t.Fatal("Create failed")
	}
	if _, err := sessions.Update(ctx, b.ID, model.SessionUpdate{Status: ptr(model.SessionStatusPaused)}); err != nil {
		t.Fatalf("Update error = %v", err)
	}

	active, err := sessions.GetActiveSessions(ctx, "user-act")
	if err != nil {
		t.Fatalf("GetActiveSessions error = %v", err)
	}
	if len(active) != 1 || active[0].ID != a.ID {
		t.Errorf("GetActiveSessions = %v, want [%s]", sessionIDs(active), a.ID)
	}

	n, err := sessions.CountSessions(ctx, "user-act")
	if err != nil || n != 2 {
		t.Errorf("CountSessions = %d, %v, want 2", n, err)
	}
	n, err = sessions.CountSessions(ctx, "nobody")
	if err != nil || n != 0 {
		t.Errorf("CountSessions(nobody) = %d, %v, want 0", n, err)
	}
}

func testSessionListOpen(t *testing.T, sessions SessionRepository) {
	ctx := context.Background()
	now := time.Now().UTC()

	// 開始時刻の順序と作成順序をずらす
	oldPaused, _ := sessions.Create(ctx, model.NewSession{UserID: "u", StartTime: now.Add(-2 * time.Hour)})
	oldActive, _ := sessions.Create(ctx, model.NewSession{UserID: "u", StartTime: now.Add(-3 * time.Hour)})
	oldDone, _ := sessions.Create(ctx, model.NewSession{UserID: "u", StartTime: now.Add(-time.Hour)})
	if _, err := sessions.Create(ctx, model.NewSession{UserID: "u", StartTime: now}); err != nil {
		t.Fatalf("Create error = %v", err)
	}
	if oldActive == nil || oldPaused == nil || oldDone == nil {
		t.Fatal("Create failed")
	}
	if _, err := sessions.Update(ctx, oldPaused.ID, model.SessionUpdate{Status: ptr(model.SessionStatusPaused)}); err != nil {
		t.Fatalf("pause error = %v", err)
	}
	if _, err := sessions.CompleteSession(ctx, oldDone.ID, time.Time{}); err != nil {
		t.Fatalf("complete error = %v", err)
	}

	got, err := sessions.ListOpenStartedBefore(ctx, now.Add(-30*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListOpenStartedBefore error = %v", err)
	}
	if len(got) != 2 || got[0].ID != oldActive.ID || got[1].ID != oldPaused.ID {
		t.Errorf("ListOpenStartedBefore = %v, want [%s %s]", sessionIDs(got), oldActive.ID, oldPaused.ID)
	}

	capped, err := sessions.ListOpenStartedBefore(ctx, now.Add(-30*time.Minute), 1)
	if err != nil || len(capped) != 1 || capped[0].ID != oldActive.ID {
		t.Errorf("ListOpenStartedBefore limit 1 = %v, %v, want [%s]", sessionIDs(capped), err, oldActive.ID)
	}
}

func testAuthCredentials(t *testing.T, accounts AuthService) {
	ctx := context.Background()
	id, err := accounts.CreateAccount(ctx, "Carol@Example.com", "correct-horse")
	if err != nil {
		t.Fatalf("CreateAccount error = %v", err)
	}
	if id == "" {
		t.Fatal("expected account id")
	}

	got, err := accounts.VerifyCredentials(ctx, " carol@example.COM", "correct-horse")
	if err != nil || got != id {
		t.Errorf("VerifyCredentials = %q, %v, want %q", got, err, id)
	}

	_, err = accounts.VerifyCredentials(ctx, "carol@example.com", "wrong-password")
	assertCode(t, err, model.ErrCodeAuthenticationFailed)
	_, err = accounts.VerifyCredentials(ctx, "nobody@example.com", "correct-horse")
	assertCode(t, err, model.ErrCodeAuthenticationFailed)

	_, err = accounts.CreateAccount(ctx, "carol@example.com", "another-password")
	assertCode(t, err, model.ErrCodeAlreadyExists)
	_, err = accounts.CreateAccount(ctx, "dave@example.com", "short")
	assertCode(t, err, model.ErrCodeValidation)
	_, err = accounts.CreateAccount(ctx, "not-an-email", "long-enough-password")
	assertCode(t, err, model.ErrCodeValidation)
}

func testAuthTokens(t *testing.T, accounts AuthService) {
	ctx := context.Background()
	id, err := accounts.CreateAccount(ctx, "erin@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("CreateAccount error = %v", err)
	}
	token, err := accounts.IssueToken(ctx, id)
	if err != nil {
		t.Fatalf("IssueToken error = %v", err)
	}
	if got, ok := accounts.VerifyToken(ctx, token); !ok || got != id {
		t.Errorf("VerifyToken = %q, %v, want %q, true", got, ok, id)
	}
	if _, ok := accounts.VerifyToken(ctx, "not-a-token"); ok {
		t.Error("VerifyToken accepted garbage")
	}
	if _, ok := accounts.VerifyToken(ctx, ""); ok {
		t.Error("VerifyToken accepted empty token")
	}

	_, err = accounts.IssueToken(ctx, uuid.New().String())
	assertCode(t, err, model.ErrCodeAccountNotFound)
}

func testAuthUpdatePassword(t *testing.T, accounts AuthService) {
	ctx := context.Background()
	id, err := accounts.CreateAccount(ctx, "frank@example.com", "old-password")
	if err != nil {
		t.Fatalf("CreateAccount error = %v", err)
	}
	oldToken, err := accounts.IssueToken(ctx, id)
	if err != nil {
		t.Fatalf("IssueToken error = %v", err)
	}

	_, err = accounts.UpdatePassword(ctx, id, "short")
	assertCode(t, err, model.ErrCodeValidation)

	ok, err := accounts.UpdatePassword(ctx, id, "new-password")
	if err != nil || !ok {
		t.Fatalf("UpdatePassword = %v, %v, want true", ok, err)
	}
	if _, valid := accounts.VerifyToken(ctx, oldToken); valid {
		t.Error("token issued before password change should be revoked")
	}
	if _, err := accounts.VerifyCredentials(ctx, "frank@example.com", "old-password"); err == nil {
		t.Error("old password should no longer verify")
	}
	if got, err := accounts.VerifyCredentials(ctx, "frank@example.com", "new-password"); err != nil || got != id {
		t.Errorf("VerifyCredentials(new) = %q, %v", got, err)
	}

	newToken, err := accounts.IssueToken(ctx, id)
	if err != nil {
		t.Fatalf("IssueToken error = %v", err)
	}
	if _, valid := accounts.VerifyToken(ctx, newToken); !valid {
		t.Error("token issued after password change should be valid")
	}

	ok, err = accounts.UpdatePassword(ctx, uuid.New().String(), "new-password")
	if err != nil || ok {
		t.Errorf("UpdatePassword(unknown) = %v, %v, want false", ok, err)
	}
}

func testAuthDeleteAccount(t *testing.T, accounts AuthService) {
	ctx := context.Background()
	id, err := accounts.CreateAccount(ctx, "grace@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("CreateAccount error = %v", err)
	}
	token, err := accounts.IssueToken(ctx, id)
	if err != nil {
		t.Fatalf("IssueToken error = %v", err)
	}

	ok, err := accounts.DeleteAccount(ctx, id)
	if err != nil || !ok {
		t.Fatalf("DeleteAccount = %v, %v, want true", ok, err)
	}
	if _, valid := accounts.VerifyToken(ctx, token); valid {
		t.Error("token should be invalid after account deletion")
	}
	if ok, err := accounts.DeleteAccount(ctx, id); err != nil || ok {
		t.Errorf("second DeleteAccount = %v, %v, want false", ok, err)
	}
	_, err = accounts.VerifyCredentials(ctx, "grace@example.com", "correct-horse")
	assertCode(t, err, model.ErrCodeAuthenticationFailed)

	// 削除後は同じメールアドレスで再登録できる
	if _, err := accounts.CreateAccount(ctx, "grace@example.com", "correct-horse"); err != nil {
		t.Errorf("re-create after delete error = %v", err)
	}
}

func sessionIDs(sessions []*model.Session) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}
