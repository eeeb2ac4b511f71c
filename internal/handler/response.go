package handler

import (
	"net/http"
	"time"

	"github.com/twoao/selfie-server-go/internal/httputil"
	"github.com/twoao/selfie-server-go/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// formatRecord is the operator-facing account view. The secret is included:
// the operator set it and the dashboard displays it next to the capture
// link it hands to the end user.
func formatRecord(rec *model.Record) map[string]any {
	return map[string]any{
		"username":         rec.Username,
		"password":         rec.Secret,
		"profile":          rec.Profile,
		"photo":            rec.Photo,
		"selfieCode":       rec.CaptureCode,
		"selfieLink":       rec.CaptureLink,
		"status":           rec.Status,
		"event_session_id": rec.ExternalSessionID,
		"createdAt":        rec.CreatedAt.Format(time.RFC3339),
		"updatedAt":        rec.UpdatedAt.Format(time.RFC3339),
	}
}

// requestBase rebuilds the externally visible base URL from the request,
// used when no BASE_URL is configured.
func requestBase(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
