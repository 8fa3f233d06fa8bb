package model

import (
	"strings"
	"time"
	"unicode/utf8"

	emailaddress "github.com/mcnijman/go-emailaddress"
)

// ユーザー属性の制約値
const (
	DefaultDailyGoalMinutes = 25
	MinDailyGoalMinutes     = 5
	MaxDailyGoalMinutes     = 480
	DefaultTimezone         = "UTC"

	minDisplayNameLength = 2
	maxDisplayNameLength = 100
)

// User はフォーカス記録サービスの利用ユーザーを表す。
// DisplayNameが空文字列の場合は未設定として扱う。
type User struct {
	ID               string
	Email            string
	DisplayName      string
	Timezone         string
	DailyGoalMinutes int
	ReminderEnabled  bool
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewUser はユーザー作成リクエストの入力値。
// DailyGoalMinutesがnilの場合はデフォルト値（25分）を使用する。
type NewUser struct {
	Email            string
	DisplayName      string
	Timezone         string
	DailyGoalMinutes *int
}

// UserUpdate はユーザーの部分更新の入力値。nilのフィールドは変更しない。
// メールアドレスは一意キーのため更新対象に含めない。
type UserUpdate struct {
	DisplayName      *string
	Timezone         *string
	DailyGoalMinutes *int
	ReminderEnabled  *bool
	IsActive         *bool
}

// NormalizeEmail はメールアドレスを比較用に正規化する（前後空白除去・小文字化）。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail は正規化済みメールアドレスの形式を検証する。
func ValidateEmail(email string) error {
	if email == "" {
		return NewValidationError("email", "メールアドレスは必須です")
	}
	if _, err := emailaddress.Parse(email); err != nil {
		return NewValidationError("email", "メールアドレスの形式が不正です")
	}
	return nil
}

// BuildUser は入力値を検証・正規化し、新しいUserを組み立てる。
// IDには採番済みのidを、作成日時・更新日時にはnowを設定する。
func BuildUser(in NewUser, id string, now time.Time) (*User, error) {
	email := NormalizeEmail(in.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}

	displayName, err := normalizeDisplayName(in.DisplayName)
	if err != nil {
		return nil, err
	}

	goal := DefaultDailyGoalMinutes
	if in.DailyGoalMinutes != nil {
		goal = *in.DailyGoalMinutes
	}
	if err := validateDailyGoal(goal); err != nil {
		return nil, err
	}

	now = Normalize(now)
	return &User{
		ID:               id,
		Email:            email,
		DisplayName:      displayName,
		Timezone:         normalizeTimezone(in.Timezone),
		DailyGoalMinutes: goal,
		ReminderEnabled:  true,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Apply は部分更新をユーザーに適用し、UpdatedAtを更新する。
// 検証に失敗した場合はユーザーを変更せずにValidationErrorを返す。
func (u *User) Apply(upd UserUpdate, now time.Time) error {
	next := *u

	if upd.DisplayName != nil {
		name, err := normalizeDisplayName(*upd.DisplayName)
		if err != nil {
			return err
		}
		next.DisplayName = name
	}
	if upd.Timezone != nil {
		next.Timezone = normalizeTimezone(*upd.Timezone)
	}
	if upd.DailyGoalMinutes != nil {
		if err := validateDailyGoal(*upd.DailyGoalMinutes); err != nil {
			return err
		}
		next.DailyGoalMinutes = *upd.DailyGoalMinutes
	}
	if upd.ReminderEnabled != nil {
		next.ReminderEnabled = *upd.ReminderEnabled
	}
	if upd.IsActive != nil {
		next.IsActive = *upd.IsActive
	}

	next.UpdatedAt = Normalize(now)
	*u = next
	return nil
}

// Clone はユーザーのコピーを返す。
func (u *User) Clone() *User {
	c := *u
	return &c
}

func normalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	n := utf8.RuneCountInString(name)
	if n < minDisplayNameLength {
		return "", NewValidationError("display_name", "表示名は2文字以上で入力してください")
	}
	if n > maxDisplayNameLength {
		return "", NewValidationError("display_name", "表示名は100文字以内で入力してください")
	}
	return name, nil
}

func normalizeTimezone(tz string) string {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return DefaultTimezone
	}
	return tz
}

func validateDailyGoal(minutes int) error {
	if minutes < MinDailyGoalMinutes || minutes > MaxDailyGoalMinutes {
		return NewValidationError("daily_goal_minutes", "1日の目標時間は5分から480分の範囲で指定してください")
	}
	return nil
}
