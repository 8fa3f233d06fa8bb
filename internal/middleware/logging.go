package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// StatusRecorder はレスポンスステータスの計測先。metrics.Collectorが満たす。
type StatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// Unwrap はhttp.ResponseControllerが元のResponseWriterに到達できるようにする。
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// logEntryContextKey はアクセスログに載せる値の格納先をコンテキストに保持するためのキー。
var logEntryContextKey = contextKey("log_entry")

// logEntry はハンドラー実行中に判明した、アクセスログに載せる値。
type logEntry struct {
	accountID string
}

// recordAccountID はアクセスログにアカウントIDを記録する。ロギングミドルウェアの外では何もしない。
func recordAccountID(ctx context.Context, accountID string) {
	if entry, ok := ctx.Value(logEntryContextKey).(*logEntry); ok {
		entry.accountID = accountID
	}
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、request_id（設定されている場合）、
// account_id（認証済みの場合）を含む。
// recorderがnilでない場合はレスポンスステータスを計測する。
func NewLoggingMiddleware(logger *slog.Logger, recorder StatusRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// アカウントIDは後続のトークンミドルウェアが記録する
			entry := &logEntry{}
			served := r.WithContext(context.WithValue(r.Context(), logEntryContextKey, entry))
			next.ServeHTTP(rec, served)

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			if recorder != nil {
				recorder.RecordHTTPStatus(rec.statusCode)
			}

			attrs := []slog.Attr{
				slog.String("method", served.Method),
				slog.String("path", served.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
			}

			if reqID := chimw.GetReqID(served.Context()); reqID != "" {
				attrs = append(attrs, slog.String("request_id", reqID))
			}
			if entry.accountID != "" {
				attrs = append(attrs, slog.String("account_id", entry.accountID))
			}

			// slogのログレベルをステータスコードに応じて変更
			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.LogAttrs(served.Context(), level, "http_request", attrs...)
		})
	}
}
