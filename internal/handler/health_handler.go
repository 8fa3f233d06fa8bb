package handler

import (
	"net/http"

	"github.com/hitoshi/focustrack/internal/model"
)

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	services ServiceProvider
	version  string
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(services ServiceProvider, version string) *HealthHandler {
	return &HealthHandler{services: services, version: version}
}

// Liveness はプロセスが稼働していることを返す。バックエンドには問い合わせない。
// GET /health
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	status := model.NewHealthStatus(true, nil)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    status.Status,
		"timestamp": status.Timestamp,
		"version":   h.version,
	})
}

// Detailed はコンテナとバックエンドの状態を返す。unhealthyの場合は503を返す。
// GET /health/detailed
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	status := h.services.HealthCheck(r.Context())
	code := http.StatusOK
	if !status.IsHealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
