package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/twoao/selfie-server-go/internal/audit"
	"github.com/twoao/selfie-server-go/internal/config"
	apperrors "github.com/twoao/selfie-server-go/internal/errors"
	"github.com/twoao/selfie-server-go/internal/model"
	"github.com/twoao/selfie-server-go/internal/service"
)

// CaptureHandler is the public, code-authorized surface consumed by the
// capture page on the end user's phone. Resolution failures stay generic:
// the page only ever learns "link invalid or expired".
type CaptureHandler struct {
	lifecycle *service.Lifecycle
}

func NewCaptureHandler(lifecycle *service.Lifecycle) *CaptureHandler {
	return &CaptureHandler{lifecycle: lifecycle}
}

func (h *CaptureHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/capture/{code}", h.Resolve)
	r.Post("/capture/{code}/evidence", h.SubmitEvidence)
	r.Post("/selfie-complete/{code}", h.Complete)

	return r
}

// GET /api/capture/{code}
//
// Pure read for the capture page. A record that is already accepted tells
// the page to short-circuit to its "already completed" view instead of
// opening the camera again.
func (h *CaptureHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	rec, err := h.lifecycle.ResolveByCode(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"status":    rec.Status,
		"completed": rec.Status == model.StatusAccepted && rec.ExternalSessionID != "",
	})
}

// POST /api/capture/{code}/evidence
//
// Multipart upload of the captured artifact; field name "video". When a
// synchronous verifier is configured the response already carries the
// outcome, otherwise the record stays submitted until a callback arrives.
func (h *CaptureHandler) SubmitEvidence(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxEvidenceBytes)

	if err := r.ParseMultipartForm(config.MaxEvidenceBytes); err != nil {
		writeError(w, apperrors.InvalidInput("body", "expected multipart form upload"))
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, apperrors.MissingRequired("video"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apperrors.InvalidInput("video", "unreadable upload"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	rec, err := h.lifecycle.SubmitEvidence(r.Context(), code, data, contentType)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventEvidenceSubmit,
		Username: rec.Username,
		Details:  map[string]interface{}{"bytes": len(data)},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"status":           rec.Status,
		"event_session_id": rec.ExternalSessionID,
	})
}

// POST /api/selfie-complete/{code}
//
// Asynchronous verification callback: the browser-hosted SDK performed the
// liveness check directly with the vendor and reports the session id here.
func (h *CaptureHandler) Complete(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	// This route sits outside the router-level JSON body cap, so it carries
	// its own.
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxBodyBytes)

	var req struct {
		EventSessionID string `json:"event_session_id"`
		Timestamp      int64  `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.EventSessionID == "" {
		writeError(w, apperrors.MissingRequired("event_session_id"))
		return
	}

	// The callback addresses the record by capture code only; an unknown
	// code gets the same generic failure as the capture page.
	if _, err := h.lifecycle.ResolveByCode(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.lifecycle.ApplyVerificationResult(r.Context(), code, model.AcceptedOutcome(req.EventSessionID))
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:     audit.EventVerificationResult,
		Username: rec.Username,
		Details:  map[string]interface{}{"status": string(rec.Status)},
	})

	log.Info().
		Str("username", rec.Username).
		Msg("selfie completed via SDK callback")

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
