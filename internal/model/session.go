package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// セッション属性の制約値
const (
	MaxSessionTags = 10
	maxTitleLength = 200
	maxNotesLength = 1000
)

// SessionStatus はフォーカスセッションの状態を表す。
type SessionStatus string

const (
	// SessionStatusActive は計測中の状態。
	SessionStatusActive SessionStatus = "active"
	// SessionStatusPaused は一時停止中の状態。
	SessionStatusPaused SessionStatus = "paused"
	// SessionStatusCompleted は完了した状態（終端）。
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusCancelled は中止された状態（終端）。
	SessionStatusCancelled SessionStatus = "cancelled"
)

// ParseSessionStatus は文字列をSessionStatusに変換する。
func ParseSessionStatus(s string) (SessionStatus, error) {
	switch st := SessionStatus(s); st {
	case SessionStatusActive, SessionStatusPaused, SessionStatusCompleted, SessionStatusCancelled:
		return st, nil
	default:
		return "", NewValidationError("status", "statusには active、paused、completed、cancelled のいずれかを指定してください")
	}
}

// Session はユーザーのフォーカスセッションを表す。
//
// DurationMinutesとEndTimeはStatusがcompletedの場合のみ設定される。
// TitleとNotesは空文字列の場合に未設定として扱う。
type Session struct {
	ID              string
	UserID          string
	Title           string
	Notes           string
	Tags            []string
	StartTime       time.Time
	EndTime         *time.Time
	DurationMinutes *int
	Status          SessionStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewSession はセッション作成リクエストの入力値。
// StartTimeがゼロ値の場合は作成時刻を開始時刻とする。
type NewSession struct {
	UserID    string
	Title     string
	Notes     string
	Tags      []string
	StartTime time.Time
}

// SessionUpdate はセッションの部分更新の入力値。nilのフィールドは変更しない。
// Statusの変更は状態遷移（Pause/Resume/Complete/Cancel）として適用する。
type SessionUpdate struct {
	Title  *string
	Notes  *string
	Tags   *[]string
	Status *SessionStatus
}

// NormalizeTags はタグを前後空白除去・小文字化し、空要素を除いて先頭10件に切り詰める。
// 入力順は維持する。
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		out = append(out, tag)
		if len(out) == MaxSessionTags {
			break
		}
	}
	return out
}

// BuildSession は入力値を検証・正規化し、active状態の新しいSessionを組み立てる。
func BuildSession(in NewSession, id string, now time.Time) (*Session, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, NewValidationError("user_id", "ユーザーIDは必須です")
	}

	title, err := normalizeText("title", in.Title, maxTitleLength)
	if err != nil {
		return nil, err
	}
	notes, err := normalizeText("notes", in.Notes, maxNotesLength)
	if err != nil {
		return nil, err
	}

	now = Normalize(now)
	start := now
	if !in.StartTime.IsZero() {
		start = Normalize(in.StartTime)
	}

	return &Session{
		ID:        id,
		UserID:    userID,
		Title:     title,
		Notes:     notes,
		Tags:      NormalizeTags(in.Tags),
		StartTime: start,
		Status:    SessionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateEndTime は終了時刻が開始時刻より後であることを検証する。
func (s *Session) ValidateEndTime(end time.Time) error {
	if !end.After(s.StartTime) {
		return NewValidationError("end_time", "終了時刻は開始時刻より後である必要があります")
	}
	return nil
}

// Pause はactive状態のセッションを一時停止する。それ以外の状態では何もしない。
func (s *Session) Pause(now time.Time) {
	if s.Status == SessionStatusActive {
		s.Status = SessionStatusPaused
		s.UpdatedAt = Normalize(now)
	}
}

// Resume はpaused状態のセッションを再開する。それ以外の状態では何もしない。
func (s *Session) Resume(now time.Time) {
	if s.Status == SessionStatusPaused {
		s.Status = SessionStatusActive
		s.UpdatedAt = Normalize(now)
	}
}

// Complete はセッションを完了し、経過分数を確定する。
// endTimeがゼロ値の場合は現在時刻を終了時刻とする。
// 既にcompletedの場合は何もしない（冪等）。
func (s *Session) Complete(endTime time.Time) {
	if s.Status == SessionStatusCompleted {
		return
	}

	now := Now()
	end := now
	if !endTime.IsZero() {
		end = Normalize(endTime)
	}

	minutes := elapsedMinutes(s.StartTime, end)
	s.EndTime = &end
	s.DurationMinutes = &minutes
	s.Status = SessionStatusCompleted
	s.UpdatedAt = now
}

// Cancel はセッションを中止する。
// 終端状態を含むどの状態からでも常にcancelledへ遷移する。
func (s *Session) Cancel(now time.Time) {
	s.Status = SessionStatusCancelled
	s.UpdatedAt = Normalize(now)
}

// Transition は要求された状態への遷移を状態機械に沿って適用する。
// completedへの遷移ではatを終了時刻として扱う。
func (s *Session) Transition(target SessionStatus, at time.Time) error {
	switch target {
	case SessionStatusActive:
		s.Resume(at)
	case SessionStatusPaused:
		s.Pause(at)
	case SessionStatusCompleted:
		s.Complete(at)
	case SessionStatusCancelled:
		s.Cancel(at)
	default:
		_, err := ParseSessionStatus(string(target))
		return err
	}
	return nil
}

// Apply は部分更新をセッションに適用し、UpdatedAtを更新する。
// 検証に失敗した場合はセッションを変更せずにValidationErrorを返す。
func (s *Session) Apply(upd SessionUpdate, now time.Time) error {
	next := s.Clone()

	if upd.Title != nil {
		title, err := normalizeText("title", *upd.Title, maxTitleLength)
		if err != nil {
			return err
		}
		next.Title = title
	}
	if upd.Notes != nil {
		notes, err := normalizeText("notes", *upd.Notes, maxNotesLength)
		if err != nil {
			return err
		}
		next.Notes = notes
	}
	if upd.Tags != nil {
		next.Tags = NormalizeTags(*upd.Tags)
	}
	if upd.Status != nil {
		if err := next.Transition(*upd.Status, now); err != nil {
			return err
		}
	}

	next.UpdatedAt = Normalize(now)
	*s = *next
	return nil
}

// IsActive はセッションが計測中かを返す。
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// IsCompleted はセッションが完了しているかを返す。
func (s *Session) IsCompleted() bool {
	return s.Status == SessionStatusCompleted
}

// CurrentDurationMinutes は現在時点でのセッション経過分数を返す。
func (s *Session) CurrentDurationMinutes() int {
	return s.CurrentDurationMinutesAt(time.Now())
}

// CurrentDurationMinutesAt は指定時刻時点でのセッション経過分数を返す。
// 確定済みの分数があればそれを、active状態なら開始からの経過分数を、それ以外は0を返す。
func (s *Session) CurrentDurationMinutesAt(now time.Time) int {
	if s.DurationMinutes != nil {
		return *s.DurationMinutes
	}
	if s.Status == SessionStatusActive {
		return elapsedMinutes(s.StartTime, now)
	}
	return 0
}

// Clone はセッションのディープコピーを返す。
func (s *Session) Clone() *Session {
	c := *s
	c.Tags = append([]string(nil), s.Tags...)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	if s.DurationMinutes != nil {
		d := *s.DurationMinutes
		c.DurationMinutes = &d
	}
	return &c
}

func elapsedMinutes(start, end time.Time) int {
	minutes := int(end.Sub(start) / time.Minute)
	if minutes < 0 {
		return 0
	}
	return minutes
}

func normalizeText(field, v string, maxLen int) (string, error) {
	v = strings.TrimSpace(v)
	if utf8.RuneCountInString(v) > maxLen {
		return "", NewValidationError(field, "文字数が上限を超えています")
	}
	return v, nil
}
