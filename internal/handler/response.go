package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/focustrack/internal/middleware"
	"github.com/hitoshi/focustrack/internal/model"
)

// errCodeInvalidRequest はリクエストボディやクエリの形式が不正な場合のエラーコード。
const errCodeInvalidRequest = "INVALID_REQUEST"

// newInvalidRequestError はリクエストボディの解析に失敗した場合のエラーを生成する。
func newInvalidRequestError() *model.APIError {
	return &model.APIError{
		Code:     errCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをvにデコードする。
// allowEmptyがtrueの場合、空のボディはvを変更せずに受け付ける。
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return nil
	}
	return newInvalidRequestError()
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はリポジトリ・サービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if statusCode >= http.StatusInternalServerError {
			slog.Error("service error",
				slog.String("code", apiErr.Code),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
		}
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	attrs := []any{
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	}
	var repoErr *model.RepositoryError
	if errors.As(err, &repoErr) {
		attrs = append(attrs, slog.String("operation", repoErr.Operation))
	}
	slog.Error("internal server error", attrs...)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, errCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeAlreadyExists:
		return http.StatusConflict
	case model.ErrCodeAuthenticationFailed, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeUserNotFound, model.ErrCodeSessionNotFound, model.ErrCodeAccountNotFound:
		return http.StatusNotFound
	case model.ErrCodeNotInitialized:
		return http.StatusServiceUnavailable
	case model.ErrCodeConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// parsePage はクエリパラメータのlimit/offsetを解析する。
// 省略時はlimit=100、offset=0とし、範囲外の場合はValidationErrorを返す。
func parsePage(r *http.Request) (limit, offset int, err error) {
	limit, err = queryInt(r, "limit", model.DefaultPageLimit)
	if err != nil {
		return 0, 0, err
	}
	offset, err = queryInt(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	if err := model.ValidatePage(limit, offset); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewValidationError(name, "整数で指定してください")
	}
	return n, nil
}

// parseOptionalTime はISO-8601形式の時刻文字列を解析する。空文字列の場合はnilを返す。
func parseOptionalTime(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := model.ParseTime(raw)
	if err != nil {
		return nil, model.NewValidationError(field, "ISO-8601形式（YYYY-MM-DDTHH:MM:SS）で指定してください")
	}
	return &t, nil
}

// optionalString は空文字列をnilとして表現する。
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
