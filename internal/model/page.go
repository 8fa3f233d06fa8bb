package model

// ページネーションの制約値
const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// ValidatePage はlimitが1〜1000、offsetが0以上であることを検証する。
func ValidatePage(limit, offset int) error {
	if limit < 1 || limit > MaxPageLimit {
		return NewValidationError("limit", "limitは1から1000の範囲で指定してください")
	}
	if offset < 0 {
		return NewValidationError("offset", "offsetは0以上で指定してください")
	}
	return nil
}

// Paginate はスライスにoffset/limitを適用した部分スライスを返す。
func Paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
