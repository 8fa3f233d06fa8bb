package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラーのpanicをINTERNAL_ERRORの500レスポンスに変換する。
// 認証済みリクエストの場合はアカウントIDもログに残す。
// http.ErrAbortHandler は接続中断の合図なので再送出する。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					attrs := []any{
						slog.Any("panic", rec),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					}
					if accountID, err := AccountIDFromContext(r.Context()); err == nil {
						attrs = append(attrs, slog.String("account_id", accountID))
					}
					attrs = append(attrs, slog.String("stack", string(debug.Stack())))
					slog.Error("panic recovered", attrs...)
					WriteInternalServerError(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
