package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/twoao/selfie-server-go/internal/audit"
	apperrors "github.com/twoao/selfie-server-go/internal/errors"
	"github.com/twoao/selfie-server-go/internal/model"
	"github.com/twoao/selfie-server-go/internal/service"
)

// AccountsHandler is the operator-facing account API: the dashboard's
// rendering layer consumes these endpoints and nothing else.
type AccountsHandler struct {
	lifecycle *service.Lifecycle
}

func NewAccountsHandler(lifecycle *service.Lifecycle) *AccountsHandler {
	return &AccountsHandler{lifecycle: lifecycle}
}

func (h *AccountsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/bulk-delete", h.BulkDelete)
	r.Post("/check-all", h.CheckAll)
	r.Put("/{username}", h.Update)
	r.Delete("/{username}", h.Delete)
	r.Post("/{username}/generate-link", h.GenerateLink)

	return r
}

// GET /api/accounts
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.lifecycle.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list accounts")
		writeError(w, err)
		return
	}

	accounts := make([]map[string]any, len(records))
	for i := range records {
		accounts[i] = formatRecord(&records[i])
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"total":    len(accounts),
		"accounts": accounts,
	})
}

// POST /api/accounts
func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Profile  string `json:"profile"`
		Photo    string `json:"photo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	rec, err := h.lifecycle.CreateAccount(r.Context(), model.CreateRecordParams{
		Username: req.Username,
		Secret:   req.Password,
		Profile:  req.Profile,
		Photo:    req.Photo,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventAccountCreate,
		Username: rec.Username,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"account": formatRecord(rec),
	})
}

// PUT /api/accounts/{username}
func (h *AccountsHandler) Update(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req struct {
		Password *string `json:"password"`
		Profile  *string `json:"profile"`
		Photo    *string `json:"photo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	rec, err := h.lifecycle.UpdateAccount(r.Context(), username, model.UpdateAccountParams{
		Secret:  req.Password,
		Profile: req.Profile,
		Photo:   req.Photo,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"account": formatRecord(rec),
	})
}

// DELETE /api/accounts/{username}
func (h *AccountsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if err := h.lifecycle.DeleteAccount(r.Context(), username); err != nil {
		log.Error().Err(err).Str("username", username).Msg("failed to delete account")
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventAccountDelete,
		Username: username,
	})

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// POST /api/accounts/bulk-delete
func (h *AccountsHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Usernames []string `json:"usernames"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	deleted, err := h.lifecycle.BulkDelete(r.Context(), req.Usernames)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventAccountBulkDelete,
		Details: map[string]interface{}{"requested": len(req.Usernames), "deleted": deleted},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"deleted": deleted,
	})
}

// POST /api/accounts/check-all
func (h *AccountsHandler) CheckAll(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.lifecycle.CheckAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"accounts": summaries,
	})
}

// POST /api/accounts/{username}/generate-link
func (h *AccountsHandler) GenerateLink(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	link, err := h.lifecycle.IssueLink(r.Context(), username, requestBase(r))
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventLinkGenerate,
		Username: username,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"selfieLink": link.CaptureLink,
		"selfieCode": link.CaptureCode,
	})
}

// GET /api/selfie-result/{username}
func (h *AccountsHandler) SelfieResult(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	summary, err := h.lifecycle.CheckStatus(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"username":         summary.Username,
		"status":           summary.Status,
		"event_session_id": summary.ExternalSessionID,
	})
}
