package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/twoao/selfie-server-go/internal/errors"
	"github.com/twoao/selfie-server-go/internal/model"
	"github.com/twoao/selfie-server-go/internal/service"
)

// TasksHandler serves the legacy agent routes. Agents authenticate with the
// record secret, accepted from the X-Account-Secret header, a `secret` body
// field, or a `secret` query parameter, in that order.
type TasksHandler struct {
	lifecycle *service.Lifecycle
}

func NewTasksHandler(lifecycle *service.Lifecycle) *TasksHandler {
	return &TasksHandler{lifecycle: lifecycle}
}

// Register attaches the legacy routes. They live at the server root rather
// than under /api, so the handler attaches to the caller's router instead of
// returning a subrouter.
func (h *TasksHandler) Register(r chi.Router) {
	r.Post("/task/{code}", h.PutTask)
	r.Get("/task/{code}", h.GetTask)
	r.Post("/result/{code}", h.PostResult)
	r.Get("/result/{code}", h.GetResult)
	r.Delete("/clear/{code}", h.Clear)
}

// POST /task/{code}
func (h *TasksHandler) PutTask(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req struct {
		Secret string `json:"secret"`
		model.TaskInfo
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	secret := agentSecret(r, req.Secret)
	if err := h.lifecycle.PutTask(r.Context(), code, secret, req.TaskInfo); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// GET /task/{code}
//
// A record without a task is not an error for the polling agent; it gets
// {ok:false, task:null} and keeps polling.
func (h *TasksHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	task, err := h.lifecycle.GetTask(r.Context(), code, agentSecret(r, ""))
	if err != nil {
		writeError(w, err)
		return
	}

	if task == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "task": nil})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "task": task})
}

// POST /result/{code}
func (h *TasksHandler) PostResult(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req struct {
		Secret         string `json:"secret"`
		EventSessionID string `json:"event_session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	secret := agentSecret(r, req.Secret)
	if err := h.lifecycle.ReportResult(r.Context(), code, secret, req.EventSessionID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// GET /result/{code}
//
// The result is only handed out once the record reaches a terminal status;
// before that the agent sees {ok:false, result:null}.
func (h *TasksHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	summary, err := h.lifecycle.GetResult(r.Context(), code, agentSecret(r, ""))
	if err != nil {
		writeError(w, err)
		return
	}

	if !summary.Status.Terminal() {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "result": nil})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": summary})
}

// DELETE /clear/{code}
func (h *TasksHandler) Clear(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if err := h.lifecycle.ClearRecord(r.Context(), code, agentSecret(r, "")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func agentSecret(r *http.Request, bodySecret string) string {
	if s := r.Header.Get("X-Account-Secret"); s != "" {
		return s
	}
	if bodySecret != "" {
		return bodySecret
	}
	return r.URL.Query().Get("secret")
}
