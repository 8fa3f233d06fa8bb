package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/focustrack/internal/model"
)

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	services ServiceProvider
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(services ServiceProvider) *UserHandler {
	return &UserHandler{services: services}
}

type createUserRequest struct {
	Email            string `json:"email"`
	DisplayName      string `json:"display_name"`
	Timezone         string `json:"timezone"`
	DailyGoalMinutes *int   `json:"daily_goal_minutes"`
}

type updateUserRequest struct {
	DisplayName      *string `json:"display_name"`
	Timezone         *string `json:"timezone"`
	DailyGoalMinutes *int    `json:"daily_goal_minutes"`
	ReminderEnabled  *bool   `json:"reminder_enabled"`
	IsActive         *bool   `json:"is_active"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	DisplayName      *string `json:"display_name"`
	Timezone         string  `json:"timezone"`
	DailyGoalMinutes int     `json:"daily_goal_minutes"`
	ReminderEnabled  bool    `json:"reminder_enabled"`
	IsActive         bool    `json:"is_active"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Email:            u.Email,
		DisplayName:      optionalString(u.DisplayName),
		Timezone:         u.Timezone,
		DailyGoalMinutes: u.DailyGoalMinutes,
		ReminderEnabled:  u.ReminderEnabled,
		IsActive:         u.IsActive,
		CreatedAt:        model.FormatTime(u.CreatedAt),
		UpdatedAt:        model.FormatTime(u.UpdatedAt),
	}
}

// Create はユーザーを作成する。
// POST /api/v1/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}

	users, err := h.services.Users(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	user, err := users.Create(r.Context(), model.NewUser{
		Email:            req.Email,
		DisplayName:      req.DisplayName,
		Timezone:         req.Timezone,
		DailyGoalMinutes: req.DailyGoalMinutes,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// List はユーザー一覧を返す。
// GET /api/v1/users?limit=&offset=
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	users, err := h.services.Users(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	list, err := users.List(r.Context(), limit, offset)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]userResponse, len(list))
	for i, u := range list {
		resp[i] = toUserResponse(u)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Count はユーザー数を返す。
// GET /api/v1/users/count
func (h *UserHandler) Count(w http.ResponseWriter, r *http.Request) {
	users, err := h.services.Users(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	n, err := users.Count(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// GetByEmail はメールアドレスでユーザーを検索する。
// GET /api/v1/users/by-email?email=
func (h *UserHandler) GetByEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("email", "メールアドレスは必須です"))
		return
	}

	users, err := h.services.Users(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	user, err := users.FindByEmail(r.Context(), email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(email))
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Get は指定IDのユーザーを返す。
// GET /api/v1/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	users, err := h.services.Users(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	user, err := users.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Update はユーザーを部分更新する。
// PUT /api/v1/users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateUserRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}

	users, err := h.services.Users(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	user, err := users.Update(r.Context(), id, model.UserUpdate{
		DisplayName:      req.DisplayName,
		Timezone:         req.Timezone,
		DailyGoalMinutes: req.DailyGoalMinutes,
		ReminderEnabled:  req.ReminderEnabled,
		IsActive:         req.IsActive,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Delete はユーザーを削除する。セッションは削除しない。
// DELETE /api/v1/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	users, err := h.services.Users(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	deleted, err := users.Delete(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !deleted {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Exists はユーザーが存在するかを返す。
// GET /api/v1/users/{id}/exists
func (h *UserHandler) Exists(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	users, err := h.services.Users(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	exists, err := users.Exists(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// Routes はユーザー管理のルーティングを設定したchi.Routerを返す。
func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/count", h.Count)
	r.Get("/by-email", h.GetByEmail)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Get("/exists", h.Exists)
	})
	return r
}
