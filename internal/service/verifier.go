package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/twoao/selfie-server-go/internal/model"
)

// Vendor responses are loosely structured; across API revisions the session
// identifier has shown up under several names. Candidates are tried in
// priority order and the first non-empty match wins.
var sessionIDCandidates = []string{
	"event_session_id",
	"session_id",
	"folder_id",
	"id",
}

const maxUpstreamBodyBytes = 1 << 20

// Verifier proxies captured evidence to the external liveness endpoint and
// maps the response into a VerificationOutcome. It never returns an error:
// every upstream failure resolves to a rejected outcome with the raw payload
// retained, so a flaky vendor cannot leave a record stuck or crash the
// caller.
type Verifier struct {
	client *http.Client
	url    string
}

func NewVerifier(url string, timeout time.Duration) *Verifier {
	return &Verifier{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

func (v *Verifier) Verify(ctx context.Context, data []byte, contentType, filename string) model.VerificationOutcome {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return model.RejectedOutcome(fmt.Sprintf("build multipart request: %v", err))
	}
	if _, err := part.Write(data); err != nil {
		return model.RejectedOutcome(fmt.Sprintf("build multipart request: %v", err))
	}
	if err := writer.Close(); err != nil {
		return model.RejectedOutcome(fmt.Sprintf("build multipart request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, body)
	if err != nil {
		return model.RejectedOutcome(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := v.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("verifier request failed")
		return model.RejectedOutcome(fmt.Sprintf("verifier request failed: %v", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBodyBytes))
	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("verifier response read failed")
		return model.RejectedOutcome(fmt.Sprintf("verifier response read failed: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("verifier returned non-success status")
		return model.RejectedOutcome(string(raw))
	}

	sessionID, ok := ExtractSessionID(raw)
	if !ok {
		log.Warn().Dur("elapsed", elapsed).Msg("verifier response carried no session id")
		return model.RejectedOutcome(string(raw))
	}

	log.Info().Dur("elapsed", elapsed).Msg("verifier accepted evidence")
	return model.AcceptedOutcome(sessionID)
}

// ExtractSessionID pulls the session identifier out of a loose vendor
// response body. Absence of an id means rejection.
func ExtractSessionID(raw []byte) (string, bool) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", false
	}

	for _, field := range sessionIDCandidates {
		switch v := payload[field].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			return fmt.Sprintf("%.0f", v), true
		}
	}
	return "", false
}
