// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/focustrack/internal/middleware"
	"github.com/hitoshi/focustrack/internal/model"
)

// AuthHandler はアカウント登録・ログイン・資格情報管理のHTTPハンドラー。
type AuthHandler struct {
	services ServiceProvider
	recorder DomainRecorder
}

// NewAuthHandler はAuthHandlerを生成する。recorderがnilの場合はメトリクスを記録しない。
func NewAuthHandler(services ServiceProvider, recorder DomainRecorder) *AuthHandler {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &AuthHandler{services: services, recorder: recorder}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updatePasswordRequest struct {
	Password string `json:"password"`
}

// tokenResponse はアカウントIDとアクセストークンのレスポンス。
type tokenResponse struct {
	AccountID string `json:"account_id"`
	Token     string `json:"token"`
}

// Register はアカウントを作成し、アクセストークンを発行する。
// POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}

	svc, err := h.services.Auth(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	accountID, err := svc.CreateAccount(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	token, err := svc.IssueToken(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{AccountID: accountID, Token: token})
}

// Login は資格情報を検証し、アクセストークンを発行する。
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}

	svc, err := h.services.Auth(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	accountID, err := svc.VerifyCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		if model.HasCode(err, model.ErrCodeAuthenticationFailed) {
			h.recorder.RecordAuthAttempt(false)
		}
		handleServiceError(w, r, err)
		return
	}
	h.recorder.RecordAuthAttempt(true)

	token, err := svc.IssueToken(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccountID: accountID, Token: token})
}

// Me は認証済みアカウントのIDを返す。
// GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account_id": accountID})
}

// UpdatePassword はパスワードを更新する。
// 既存のトークンは無効になるため、新しいトークンを発行して返す。
// PUT /api/v1/auth/password
func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updatePasswordRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}

	svc, err := h.services.Auth(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	updated, err := svc.UpdatePassword(r.Context(), accountID, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !updated {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewAccountNotFoundError())
		return
	}

	token, err := svc.IssueToken(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccountID: accountID, Token: token})
}

// DeleteAccount は認証済みアカウントを削除する。
// DELETE /api/v1/auth/account
func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	svc, err := h.services.Auth(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	deleted, err := svc.DeleteAccount(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !deleted {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewAccountNotFoundError())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Routes は認証のルーティングを設定したchi.Routerを返す。
// credentialは登録・ログインにのみ適用するレートリミットミドルウェア（nil可）。
func (h *AuthHandler) Routes(credential func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		if credential != nil {
			r.Use(credential)
		}
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAccount)
		r.Get("/me", h.Me)
		r.Put("/password", h.UpdatePassword)
		r.Delete("/account", h.DeleteAccount)
	})
	return r
}
