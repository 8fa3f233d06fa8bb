package model

// ヘルスチェックの状態値
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
)

// HealthStatus はヘルスチェック結果の共通ペイロード。
// Detailsにはマップまたはエラーメッセージの文字列を格納する。
type HealthStatus struct {
	Status    string `json:"status"`
	Details   any    `json:"details"`
	Timestamp string `json:"timestamp"`
}

// NewHealthStatus は現在時刻のタイムスタンプ付きでHealthStatusを生成する。
func NewHealthStatus(healthy bool, details any) HealthStatus {
	status := HealthStatusUnhealthy
	if healthy {
		status = HealthStatusHealthy
	}
	return HealthStatus{
		Status:    status,
		Details:   details,
		Timestamp: FormatTime(Now()),
	}
}

// IsHealthy は状態がhealthyかを返す。
func (h HealthStatus) IsHealthy() bool {
	return h.Status == HealthStatusHealthy
}
