package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/focustrack/internal/model"
	"github.com/hitoshi/focustrack/internal/repository"
)

// SessionHandler はフォーカスセッションのHTTPハンドラー。
type SessionHandler struct {
	services ServiceProvider
	recorder DomainRecorder
}

// NewSessionHandler はSessionHandlerを生成する。recorderがnilの場合はメトリクスを記録しない。
func NewSessionHandler(services ServiceProvider, recorder DomainRecorder) *SessionHandler {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &SessionHandler{services: services, recorder: recorder}
}

type createSessionRequest struct {
	UserID    string   `json:"user_id"`
	Title     string   `json:"title"`
	Notes     string   `json:"notes"`
	Tags      []string `json:"tags"`
	StartTime string   `json:"start_time"`
}

type updateSessionRequest struct {
	Title  *string   `json:"title"`
	Notes  *string   `json:"notes"`
	Tags   *[]string `json:"tags"`
	Status *string   `json:"status"`
}

type completeSessionRequest struct {
	EndTime string `json:"end_time"`
}

// sessionResponse はセッション情報のAPIレスポンス。
type sessionResponse struct {
	ID              string   `json:"id"`
	UserID          string   `json:"user_id"`
	Title           *string  `json:"title"`
	Notes           *string  `json:"notes"`
	Tags            []string `json:"tags"`
	StartTime       string   `json:"start_time"`
	EndTime         *string  `json:"end_time"`
	DurationMinutes *int     `json:"duration_minutes"`
	CurrentMinutes  int      `json:"current_duration_minutes"`
	Status          string   `json:"status"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

func toSessionResponse(s *model.Session) sessionResponse {
	resp := sessionResponse{
		ID:              s.ID,
		UserID:          s.UserID,
		Title:           optionalString(s.Title),
		Notes:           optionalString(s.Notes),
		Tags:            s.Tags,
		StartTime:       model.FormatTime(s.StartTime),
		DurationMinutes: s.DurationMinutes,
		CurrentMinutes:  s.CurrentDurationMinutes(),
		Status:          string(s.Status),
		CreatedAt:       model.FormatTime(s.CreatedAt),
		UpdatedAt:       model.FormatTime(s.UpdatedAt),
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if s.EndTime != nil {
		end := model.FormatTime(*s.EndTime)
		resp.EndTime = &end
	}
	return resp
}

func toSessionResponses(list []*model.Session) []sessionResponse {
	resp := make([]sessionResponse, len(list))
	for i, s := range list {
		resp[i] = toSessionResponse(s)
	}
	return resp
}

// Create はactive状態のセッションを作成する。
// POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}

	start, err := parseOptionalTime("start_time", req.StartTime)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	sessions, err := h.services.Sessions(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	in := model.NewSession{
		UserID: req.UserID,
		Title:  req.Title,
		Notes:  req.Notes,
		Tags:   req.Tags,
	}
	if start != nil {
		in.StartTime = *start
	}

	session, err := sessions.Create(r.Context(), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.recorder.RecordSessionTransition(string(session.Status))
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// Get は指定IDのセッションを返す。
// GET /api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sessions, err := h.services.Sessions(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	session, err := sessions.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if session == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewSessionNotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Update はセッションを部分更新する。statusは状態遷移として適用される。
// PUT /api/v1/sessions/{id}
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateSessionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleServiceError(w, r, err)
		return
	}

	upd := model.SessionUpdate{
		Title: req.Title,
		Notes: req.Notes,
		Tags:  req.Tags,
	}
	if req.Status != nil {
		status, err := model.ParseSessionStatus(*req.Status)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		upd.Status = &status
	}

	h.update(w, r, upd)
}

// Pause はセッションを一時停止する。
// POST /api/v1/sessions/{id}/pause
func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.SessionStatusPaused)
}

// Resume は一時停止中のセッションを再開する。
// POST /api/v1/sessions/{id}/resume
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.SessionStatusActive)
}

// Cancel はセッションを中止する。
// POST /api/v1/sessions/{id}/cancel
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.SessionStatusCancelled)
}

func (h *SessionHandler) transition(w http.ResponseWriter, r *http.Request, status model.SessionStatus) {
	h.update(w, r, model.SessionUpdate{Status: &status})
}

func (h *SessionHandler) update(w http.ResponseWriter, r *http.Request, upd model.SessionUpdate) {
	id := chi.URLParam(r, "id")

	sessions, err := h.services.Sessions(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	session, err := sessions.Update(r.Context(), id, upd)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if session == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewSessionNotFoundError(id))
		return
	}

	if upd.Status != nil {
		h.recorder.RecordSessionTransition(string(session.Status))
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Complete はセッションを完了する。end_timeを省略した場合は現在時刻で完了する。
// POST /api/v1/sessions/{id}/complete
func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req completeSessionRequest
	if err := decodeJSON(r, &req, true); err != nil {
		handleServiceError(w, r, err)
		return
	}

	end, err := parseOptionalTime("end_time", req.EndTime)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	sessions, err := h.services.Sessions(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	var endTime time.Time
	if end != nil {
		// 終了時刻の指定がある場合のみ開始時刻との前後関係を検証する
		current, err := sessions.FindByID(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if current == nil {
			writeAPIErrorResponse(w, http.StatusNotFound, model.NewSessionNotFoundError(id))
			return
		}
		if err := current.ValidateEndTime(*end); err != nil {
			handleServiceError(w, r, err)
			return
		}
		endTime = *end
	}

	session, err := sessions.CompleteSession(r.Context(), id, endTime)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if session == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewSessionNotFoundError(id))
		return
	}

	h.recorder.RecordSessionTransition(string(session.Status))
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Delete はセッションを削除する。
// DELETE /api/v1/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sessions, err := h.services.Sessions(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	deleted, err := sessions.Delete(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !deleted {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewSessionNotFoundError(id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListByUser はユーザーのセッションをstart_time降順で返す。
// GET /api/v1/sessions/user/{user_id}?limit=&offset=&start_date=&end_date=
func (h *SessionHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	limit, offset, err := parsePage(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	query := r.URL.Query()
	startDate, err := parseOptionalTime("start_date", query.Get("start_date"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	endDate, err := parseOptionalTime("end_date", query.Get("end_date"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	sessions, err := h.services.Sessions(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	list, err := sessions.FindByUserID(r.Context(), userID, repository.SessionListOptions{
		Limit:     limit,
		Offset:    offset,
		StartDate: startDate,
		EndDate:   endDate,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponses(list))
}

// Active はユーザーのactive状態のセッションを返す。
// GET /api/v1/sessions/user/{user_id}/active
func (h *SessionHandler) Active(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	sessions, err := h.services.Sessions(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	list, err := sessions.GetActiveSessions(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponses(list))
}

// Count はユーザーのセッション数を返す。
// GET /api/v1/sessions/user/{user_id}/count
func (h *SessionHandler) Count(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	sessions, err := h.services.Sessions(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	n, err := sessions.CountSessions(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// Routes はセッションのルーティングを設定したchi.Routerを返す。
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Route("/user/{user_id}", func(r chi.Router) {
		r.Get("/", h.ListByUser)
		r.Get("/active", h.Active)
		r.Get("/count", h.Count)
	})
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Post("/complete", h.Complete)
		r.Post("/pause", h.Pause)
		r.Post("/resume", h.Resume)
		r.Post("/cancel", h.Cancel)
	})
	return r
}
