// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/focustrack/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// リポジトリ操作の結果ラベル
const (
	ResultOK       = "ok"
	ResultRejected = "rejected" // 入力不正・重複・認証失敗など呼び出し側起因の失敗
	ResultError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// リポジトリ層・ハンドラー・ワーカーから利用する。
type MetricsCollector interface {
	RecordRepositoryOperation(backend, operation string, duration time.Duration, err error)
	RecordHTTPStatus(statusCode int)
	RecordSessionTransition(status string)
	RecordAuthAttempt(success bool)
	RecordSessionsSwept(count int)
	RecordSweepFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	repoOps           *prometheus.CounterVec
	repoLatency       *prometheus.HistogramVec
	httpStatus        *prometheus.CounterVec
	sessionTransition *prometheus.CounterVec
	authAttempts      *prometheus.CounterVec
	sessionsSwept     prometheus.Counter
	sweepFail         prometheus.Counter
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		repoOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focustrack_repository_operations_total",
			Help: "バックエンド・操作・結果別のリポジトリ操作数",
		}, []string{"backend", "operation", "result"}),
		repoLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "focustrack_repository_operation_duration_seconds",
			Help:    "リポジトリ操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focustrack_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focustrack_session_transitions_total",
			Help: "遷移先の状態別のセッション状態遷移数",
		}, []string{"status"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focustrack_auth_attempts_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "focustrack_sessions_swept_total",
			Help: "放置により中止されたセッションの合計数",
		}),
		sweepFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "focustrack_sweep_failures_total",
			Help: "放置セッション掃除の失敗回数",
		}),
	}

	reg.MustRegister(
		c.repoOps,
		c.repoLatency,
		c.httpStatus,
		c.sessionTransition,
		c.authAttempts,
		c.sessionsSwept,
		c.sweepFail,
	)

	return c
}

// ClassifyResult はリポジトリ操作のエラーを結果ラベルに分類する。
func ClassifyResult(err error) string {
	if err == nil {
		return ResultOK
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return ResultRejected
	}
	return ResultError
}

// RecordRepositoryOperation はリポジトリ操作の結果とレイテンシを記録する。
func (c *Collector) RecordRepositoryOperation(backend, operation string, duration time.Duration, err error) {
	c.repoOps.WithLabelValues(backend, operation, ClassifyResult(err)).Inc()
	c.repoLatency.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionTransition はセッションの状態遷移を記録する。
func (c *Collector) RecordSessionTransition(status string) {
	c.sessionTransition.WithLabelValues(status).Inc()
}

// RecordAuthAttempt はログイン試行の結果を記録する。
func (c *Collector) RecordAuthAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.authAttempts.WithLabelValues(result).Inc()
}

// RecordSessionsSwept は放置により中止したセッション数を記録する。
func (c *Collector) RecordSessionsSwept(count int) {
	c.sessionsSwept.Add(float64(count))
}

// RecordSweepFailure は掃除の失敗を記録する。
func (c *Collector) RecordSweepFailure() {
	c.sweepFail.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
