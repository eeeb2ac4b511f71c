package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/twoao/selfie-server-go/internal/audit"
	apperrors "github.com/twoao/selfie-server-go/internal/errors"
	"github.com/twoao/selfie-server-go/internal/middleware"
	"github.com/twoao/selfie-server-go/internal/service"
)

type AuthHandler struct {
	operator *service.Operator
}

func NewAuthHandler(operator *service.Operator) *AuthHandler {
	return &AuthHandler{operator: operator}
}

// POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	token, err := h.operator.Login(req.Username, req.Password)
	if err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:     audit.EventLoginFailure,
			Username: req.Username,
		})
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventLoginSuccess,
		Username: req.Username,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"token": token,
	})
}

// POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.ExtractToken(r)
	if token != "" {
		h.operator.Logout(token)
	}

	session := middleware.GetOperator(r.Context())
	if session != nil {
		audit.LogFromRequest(r, audit.Event{
			Type:     audit.EventLogout,
			Username: session.Username,
		})
	} else {
		log.Debug().Msg("logout without active session")
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
