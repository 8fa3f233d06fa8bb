package model

import (
	"fmt"
	"time"
)

// TimeLayout は永続化・API表現で使用するISO-8601形式。
// 常にUTC・マイクロ秒固定幅で出力するため、文字列の辞書順と時刻順が一致する。
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// parseLayouts はParseTimeが受け付ける入力形式。タイムゾーン省略時はUTCとみなす。
var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// Now は永続化精度（UTC・マイクロ秒）に丸めた現在時刻を返す。
func Now() time.Time {
	return Normalize(time.Now())
}

// Normalize は時刻をUTC・マイクロ秒精度に揃える。
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// FormatTime は時刻をTimeLayoutの文字列に変換する。
func FormatTime(t time.Time) string {
	return Normalize(t).Format(TimeLayout)
}

// ParseTime はISO-8601文字列を時刻に変換する。
func ParseTime(s string) (time.Time, error) {
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Normalize(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp: %q", s)
}
