package repository

import (
	"github.com/google/uuid"
	"github.com/hitoshi/focustrack/internal/model"
)

// newID はエンティティ・アカウントのIDを採番する。
func newID() string {
	return uuid.New().String()
}

// sessionListLimit はSessionListOptionsのLimitを検証する。0の場合はデフォルト値を使用する。
func sessionListLimit(opts SessionListOptions) (int, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = model.DefaultPageLimit
	}
	if err := model.ValidatePage(limit, opts.Offset); err != nil {
		return 0, err
	}
	return limit, nil
}
