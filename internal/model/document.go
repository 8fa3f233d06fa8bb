package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// ToDocument はユーザーをドキュメントストア保存用のフラットなマップに変換する。
// 時刻はTimeLayoutの文字列、未設定の任意項目はnilで表現する。
func (u *User) ToDocument() map[string]any {
	return map[string]any{
		"id":                 u.ID,
		"email":              u.Email,
		"display_name":       optionalString(u.DisplayName),
		"timezone":           u.Timezone,
		"daily_goal_minutes": u.DailyGoalMinutes,
		"reminder_enabled":   u.ReminderEnabled,
		"is_active":          u.IsActive,
		"created_at":         FormatTime(u.CreatedAt),
		"updated_at":         FormatTime(u.UpdatedAt),
	}
}

// UserFromDocument はToDocumentの出力形式のマップからユーザーを復元する。
func UserFromDocument(doc map[string]any) (*User, error) {
	d := docReader{doc: doc}
	u := &User{
		ID:               d.requiredString("id"),
		Email:            d.requiredString("email"),
		DisplayName:      d.optionalString("display_name"),
		Timezone:         d.optionalString("timezone"),
		DailyGoalMinutes: d.intOr("daily_goal_minutes", DefaultDailyGoalMinutes),
		ReminderEnabled:  d.boolOr("reminder_enabled", true),
		IsActive:         d.boolOr("is_active", true),
		CreatedAt:        d.requiredTime("created_at"),
		UpdatedAt:        d.requiredTime("updated_at"),
	}
	if d.err != nil {
		return nil, fmt.Errorf("failed to decode user document: %w", d.err)
	}
	if u.Timezone == "" {
		u.Timezone = DefaultTimezone
	}
	return u, nil
}

// ToDocument はセッションをドキュメントストア保存用のフラットなマップに変換する。
func (s *Session) ToDocument() map[string]any {
	tags := make([]string, len(s.Tags))
	copy(tags, s.Tags)

	var endTime any
	if s.EndTime != nil {
		endTime = FormatTime(*s.EndTime)
	}
	var duration any
	if s.DurationMinutes != nil {
		duration = *s.DurationMinutes
	}

	return map[string]any{
		"id":               s.ID,
		"user_id":          s.UserID,
		"title":            optionalString(s.Title),
		"notes":            optionalString(s.Notes),
		"tags":             tags,
		"start_time":       FormatTime(s.StartTime),
		"end_time":         endTime,
		"duration_minutes": duration,
		"status":           string(s.Status),
		"created_at":       FormatTime(s.CreatedAt),
		"updated_at":       FormatTime(s.UpdatedAt),
	}
}

// SessionFromDocument はToDocumentの出力形式のマップからセッションを復元する。
func SessionFromDocument(doc map[string]any) (*Session, error) {
	d := docReader{doc: doc}
	s := &Session{
		ID:              d.requiredString("id"),
		UserID:          d.requiredString("user_id"),
		Title:           d.optionalString("title"),
		Notes:           d.optionalString("notes"),
		Tags:            d.stringList("tags"),
		StartTime:       d.requiredTime("start_time"),
		EndTime:         d.optionalTime("end_time"),
		DurationMinutes: d.optionalInt("duration_minutes"),
		CreatedAt:       d.requiredTime("created_at"),
		UpdatedAt:       d.requiredTime("updated_at"),
	}
	status := d.requiredString("status")
	if d.err != nil {
		return nil, fmt.Errorf("failed to decode session document: %w", d.err)
	}
	st, err := ParseSessionStatus(status)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session document: %w", err)
	}
	s.Status = st
	return s, nil
}

func optionalString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// docReader はマップから型付きで値を読み出す。最初に発生したエラーを保持する。
// JSONやDynamoDBから復元した値は数値がfloat64、リストが[]anyになるため両方を受け付ける。
type docReader struct {
	doc map[string]any
	err error
}

func (d *docReader) fail(key string, v any) {
	if d.err == nil {
		d.err = fmt.Errorf("field %q has unexpected value %v (%T)", key, v, v)
	}
}

func (d *docReader) requiredString(key string) string {
	v, ok := d.doc[key]
	if !ok || v == nil {
		if d.err == nil {
			d.err = fmt.Errorf("field %q is required", key)
		}
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(key, v)
	}
	return s
}

func (d *docReader) optionalString(key string) string {
	v, ok := d.doc[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(key, v)
	}
	return s
}

func (d *docReader) optionalInt(key string) *int {
	v, ok := d.doc[key]
	if !ok || v == nil {
		return nil
	}
	n, ok := toInt(v)
	if !ok {
		d.fail(key, v)
		return nil
	}
	return &n
}

func (d *docReader) intOr(key string, def int) int {
	if n := d.optionalInt(key); n != nil {
		return *n
	}
	return def
}

func (d *docReader) boolOr(key string, def bool) bool {
	v, ok := d.doc[key]
	if !ok || v == nil {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		d.fail(key, v)
		return def
	}
	return b
}

func (d *docReader) requiredTime(key string) time.Time {
	s := d.requiredString(key)
	if s == "" {
		return time.Time{}
	}
	t, err := ParseTime(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("field %q: %w", key, err)
	}
	return t
}

func (d *docReader) optionalTime(key string) *time.Time {
	s := d.optionalString(key)
	if s == "" {
		return nil
	}
	t, err := ParseTime(s)
	if err != nil {
		if d.err == nil {
			d.err = fmt.Errorf("field %q: %w", key, err)
		}
		return nil
	}
	return &t
}

func (d *docReader) stringList(key string) []string {
	v, ok := d.doc[key]
	if !ok || v == nil {
		return []string{}
	}
	switch list := v.(type) {
	case []string:
		return append([]string{}, list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				d.fail(key, v)
				return []string{}
			}
			out = append(out, s)
		}
		return out
	default:
		d.fail(key, v)
		return []string{}
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
