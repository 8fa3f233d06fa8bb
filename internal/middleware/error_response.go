package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/focustrack/internal/model"
)

// ErrorResponseBody は /api/v1 のエラーレスポンス本文。
// CodeはVALIDATION_ERRORやSESSION_NOT_FOUNDなどmodel.APIErrorのコードをそのまま返し、
// Fieldは入力検証エラーの対象フィールド（daily_goal_minutes等）を示す。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Field    string `json:"field,omitempty"`
}

// WriteErrorResponse はAPIErrorをJSONで書き込む。
// リポジトリ層の原因エラー（Cause）はログ専用でありレスポンスには含めない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Field:    apiErr.Field,
	})
}

// WriteInternalServerError はpanicや想定外のストレージ障害に対するINTERNAL_ERRORを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
