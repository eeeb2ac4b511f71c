package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/twoao/selfie-server-go/internal/config"
	apperrors "github.com/twoao/selfie-server-go/internal/errors"
	"github.com/twoao/selfie-server-go/internal/evidence"
	"github.com/twoao/selfie-server-go/internal/model"
	"github.com/twoao/selfie-server-go/internal/store"
	"github.com/twoao/selfie-server-go/internal/util"
)

const (
	codeGenAttempts = 10
	capturePagePath = "/selfie/"
)

// LinkResult is what link generation hands back to the operator.
type LinkResult struct {
	CaptureCode string `json:"selfieCode"`
	CaptureLink string `json:"selfieLink"`
}

// Lifecycle enforces the one legal path through record states:
// pending -> submitted -> accepted|rejected, with link regeneration as the
// single unconditional reset back to pending. Every transition goes through
// here; handlers never mutate the store directly.
type Lifecycle struct {
	records  store.RecordStore
	evidence evidence.Store
	verifier *Verifier // nil when only the asynchronous flow is configured
	baseURL  string
}

func NewLifecycle(records store.RecordStore, ev evidence.Store, verifier *Verifier, baseURL string) *Lifecycle {
	return &Lifecycle{
		records:  records,
		evidence: ev,
		verifier: verifier,
		baseURL:  baseURL,
	}
}

// CreateAccount inserts a pending record with a fresh unique capture code.
func (s *Lifecycle) CreateAccount(ctx context.Context, params model.CreateRecordParams) (*model.Record, error) {
	if params.Username == "" {
		return nil, apperrors.MissingRequired("username")
	}
	if params.Secret == "" {
		return nil, apperrors.MissingRequired("password")
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := s.records.Create(ctx, &model.Record{
		Username:    params.Username,
		Secret:      params.Secret,
		CaptureCode: code,
		Status:      model.StatusPending,
		Profile:     params.Profile,
		Photo:       params.Photo,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperrors.AlreadyExists("Account")
		}
		return nil, apperrors.Storage(err)
	}

	log.Info().
		Str("username", rec.Username).
		Str("code", util.MaskCode(rec.CaptureCode)).
		Msg("account created")

	return rec, nil
}

// UpdateAccount applies operator edits; nil fields stay untouched.
func (s *Lifecycle) UpdateAccount(ctx context.Context, username string, params model.UpdateAccountParams) (*model.Record, error) {
	rec, err := s.get(ctx, username)
	if err != nil {
		return nil, err
	}

	if params.Secret != nil && *params.Secret != "" {
		rec.Secret = *params.Secret
	}
	if params.Profile != nil {
		rec.Profile = *params.Profile
	}
	if params.Photo != nil {
		rec.Photo = *params.Photo
	}

	updated, err := s.records.Update(ctx, rec)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if updated == nil {
		return nil, apperrors.NotFound("Account")
	}
	return updated, nil
}

func (s *Lifecycle) List(ctx context.Context) ([]model.Record, error) {
	records, err := s.records.List(ctx)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	return records, nil
}

func (s *Lifecycle) Count(ctx context.Context) (int, error) {
	count, err := s.records.Count(ctx)
	if err != nil {
		return 0, apperrors.Storage(err)
	}
	return count, nil
}

// DeleteAccount removes a record and releases its evidence. Idempotent.
func (s *Lifecycle) DeleteAccount(ctx context.Context, username string) error {
	removed, err := s.records.Delete(ctx, username)
	if err != nil {
		return apperrors.Storage(err)
	}
	if removed != nil {
		s.releaseEvidence(ctx, removed)
		log.Info().Str("username", username).Msg("account deleted")
	}
	return nil
}

// BulkDelete removes each present username and returns the count actually
// removed; missing usernames never fail the call.
func (s *Lifecycle) BulkDelete(ctx context.Context, usernames []string) (int, error) {
	removed, err := s.records.BulkDelete(ctx, usernames)
	if err != nil {
		return 0, apperrors.Storage(err)
	}
	for i := range removed {
		s.releaseEvidence(ctx, &removed[i])
	}
	if len(removed) > 0 {
		log.Info().Int("count", len(removed)).Msg("accounts bulk deleted")
	}
	return len(removed), nil
}

// IssueLink regenerates the capture code unconditionally: the previous code
// becomes unresolvable, in-flight evidence is discarded, and the record is
// reset to pending. Links are single-purpose and never replayable across
// regenerations.
func (s *Lifecycle) IssueLink(ctx context.Context, username, requestBase string) (*LinkResult, error) {
	rec, err := s.get(ctx, username)
	if err != nil {
		return nil, err
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	s.releaseEvidence(ctx, rec)

	rec.CaptureCode = code
	rec.CaptureLink = s.captureURL(requestBase, code)
	rec.Status = model.StatusPending
	rec.ExternalSessionID = ""
	rec.EvidenceRef = ""
	rec.UpstreamError = ""
	rec.Task = nil

	updated, err := s.records.Update(ctx, rec)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if updated == nil {
		return nil, apperrors.NotFound("Account")
	}

	log.Info().
		Str("username", username).
		Str("code", util.MaskCode(code)).
		Msg("capture link issued")

	return &LinkResult{CaptureCode: updated.CaptureCode, CaptureLink: updated.CaptureLink}, nil
}

// ResolveByCode is the pure read used by the capture page. The caller is
// expected to short-circuit to an "already completed" view when the record
// is accepted.
func (s *Lifecycle) ResolveByCode(ctx context.Context, code string) (*model.Record, error) {
	rec, err := s.records.FindByCode(ctx, code)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if rec == nil {
		return nil, apperrors.LinkInvalid()
	}
	return rec, nil
}

// SubmitEvidence stores the captured artifact and moves the record to
// submitted. Late and duplicate submissions are accepted as resubmissions;
// the one exception is an already-accepted record, which is acknowledged
// without mutation so the accepted<->session-id invariant cannot break.
// When a synchronous verifier is configured, the outcome is merged
// immediately.
func (s *Lifecycle) SubmitEvidence(ctx context.Context, code string, data []byte, contentType string) (*model.Record, error) {
	if len(data) == 0 {
		return nil, apperrors.MissingRequired("evidence")
	}

	rec, err := s.ResolveByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if rec.Status == model.StatusAccepted {
		return rec, nil
	}

	ref, err := s.evidence.Put(ctx, data, contentType)
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	if rec.EvidenceRef != "" && rec.EvidenceRef != ref {
		s.releaseEvidence(ctx, rec)
	}

	rec.EvidenceRef = ref
	rec.Status = model.StatusSubmitted
	rec.UpstreamError = ""

	updated, err := s.records.Update(ctx, rec)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if updated == nil {
		return nil, apperrors.LinkInvalid()
	}

	log.Info().
		Str("username", updated.Username).
		Msg("evidence submitted")

	if s.verifier == nil {
		return updated, nil
	}

	outcome := s.verifier.Verify(ctx, data, contentType, "evidence"+extensionHint(contentType))
	return s.applyOutcome(ctx, updated, outcome)
}

// ApplyVerificationResult merges an external outcome into the record
// addressed by username or capture code. Both the synchronous proxy and the
// asynchronous SDK callback funnel through here, so the state machine is
// agnostic to which flow produced the outcome.
func (s *Lifecycle) ApplyVerificationResult(ctx context.Context, usernameOrCode string, outcome model.VerificationOutcome) (*model.Record, error) {
	rec, err := s.records.Get(ctx, usernameOrCode)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if rec == nil {
		rec, err = s.records.FindByCode(ctx, usernameOrCode)
		if err != nil {
			return nil, apperrors.Storage(err)
		}
	}
	if rec == nil {
		return nil, apperrors.NotFound("Account")
	}
	return s.applyOutcome(ctx, rec, outcome)
}

func (s *Lifecycle) applyOutcome(ctx context.Context, rec *model.Record, outcome model.VerificationOutcome) (*model.Record, error) {
	switch outcome.Status {
	case model.StatusAccepted:
		if outcome.ExternalSessionID == "" {
			return nil, apperrors.MissingRequired("event_session_id")
		}
		if rec.Status == model.StatusAccepted && rec.ExternalSessionID == outcome.ExternalSessionID {
			return rec, nil
		}
		// Evidence is no longer needed once verified; releasing it here
		// bounds storage growth.
		s.releaseEvidence(ctx, rec)
		rec.Status = model.StatusAccepted
		rec.ExternalSessionID = outcome.ExternalSessionID
		rec.EvidenceRef = ""
		rec.UpstreamError = ""
		rec.Task = nil
	case model.StatusRejected:
		// Evidence is kept on rejection so an operator can inspect the
		// failed artifact before regenerating the link.
		rec.Status = model.StatusRejected
		rec.ExternalSessionID = ""
		rec.UpstreamError = outcome.RawPayload
	default:
		return nil, apperrors.InvalidInput("outcome", fmt.Sprintf("unsupported status %q", outcome.Status))
	}

	updated, err := s.records.Update(ctx, rec)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if updated == nil {
		return nil, apperrors.NotFound("Account")
	}

	log.Info().
		Str("username", updated.Username).
		Str("status", string(updated.Status)).
		Msg("verification result applied")

	return updated, nil
}

// CheckStatus is the pure read used by polling agents and the dashboard.
func (s *Lifecycle) CheckStatus(ctx context.Context, username string) (*model.StatusSummary, error) {
	rec, err := s.get(ctx, username)
	if err != nil {
		return nil, err
	}
	return summarize(rec), nil
}

// CheckAll returns the condensed status list for every record.
func (s *Lifecycle) CheckAll(ctx context.Context) ([]model.StatusSummary, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.StatusSummary, len(records))
	for i := range records {
		out[i] = *summarize(&records[i])
	}
	return out, nil
}

// Agent-facing operations, keyed by capture code and gated by possession of
// the record secret.

// PutTask attaches a capture task to the record for the code, creating the
// record implicitly when none exists yet (legacy behavior: the first task
// submission brings the record into being, with the submitted secret as its
// credential).
func (s *Lifecycle) PutTask(ctx context.Context, code, secret string, task model.TaskInfo) error {
	if secret == "" {
		return apperrors.MissingRequired("secret")
	}
	if task.UserID == "" {
		return apperrors.MissingRequired("userId")
	}
	if task.TransactionID == "" {
		return apperrors.MissingRequired("transactionId")
	}
	if task.Timestamp == 0 {
		task.Timestamp = time.Now().UnixMilli()
	}

	rec, err := s.records.FindByCode(ctx, code)
	if err != nil {
		return apperrors.Storage(err)
	}

	if rec == nil {
		_, err := s.records.Create(ctx, &model.Record{
			Username:    code,
			Secret:      secret,
			CaptureCode: code,
			Status:      model.StatusPending,
			Task:        &task,
		})
		if errors.Is(err, store.ErrDuplicate) {
			return apperrors.New(apperrors.ErrCodeConflict, "Code collides with an existing account")
		}
		if err != nil {
			return apperrors.Storage(err)
		}
		log.Info().Str("code", util.MaskCode(code)).Msg("task record implicitly created")
		return nil
	}

	if !util.ConstantTimeEqual(rec.Secret, secret) {
		return apperrors.Unauthorized("Invalid secret")
	}

	rec.Task = &task
	if _, err := s.records.Update(ctx, rec); err != nil {
		return apperrors.Storage(err)
	}
	return nil
}

func (s *Lifecycle) GetTask(ctx context.Context, code, secret string) (*model.TaskInfo, error) {
	rec, err := s.authAgent(ctx, code, secret)
	if err != nil {
		return nil, err
	}
	return rec.Task, nil
}

// ReportResult is the agent-facing verification outcome report: a non-empty
// session id means accepted.
func (s *Lifecycle) ReportResult(ctx context.Context, code, secret, sessionID string) error {
	rec, err := s.authAgent(ctx, code, secret)
	if err != nil {
		return err
	}
	if sessionID == "" {
		return apperrors.MissingRequired("event_session_id")
	}
	_, err = s.applyOutcome(ctx, rec, model.AcceptedOutcome(sessionID))
	return err
}

func (s *Lifecycle) GetResult(ctx context.Context, code, secret string) (*model.StatusSummary, error) {
	rec, err := s.authAgent(ctx, code, secret)
	if err != nil {
		return nil, err
	}
	return summarize(rec), nil
}

// ClearRecord is the agent-facing explicit deletion.
func (s *Lifecycle) ClearRecord(ctx context.Context, code, secret string) error {
	rec, err := s.authAgent(ctx, code, secret)
	if err != nil {
		return err
	}
	return s.DeleteAccount(ctx, rec.Username)
}

// Sweep removes expired records through the same delete path as explicit
// deletes, releasing their evidence. Returns the number removed.
func (s *Lifecycle) Sweep(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	removed, err := s.records.SweepExpired(ctx, maxAge, now)
	if err != nil {
		return 0, apperrors.Storage(err)
	}
	for i := range removed {
		s.releaseEvidence(ctx, &removed[i])
	}
	return len(removed), nil
}

func (s *Lifecycle) get(ctx context.Context, username string) (*model.Record, error) {
	rec, err := s.records.Get(ctx, username)
	if err != nil {
		return nil, apperrors.Storage(err)
	}
	if rec == nil {
		return nil, apperrors.NotFound("Account")
	}
	return rec, nil
}

func (s *Lifecycle) authAgent(ctx context.Context, code, secret string) (*model.Record, error) {
	if secret == "" {
		return nil, apperrors.MissingRequired("secret")
	}
	rec, err := s.ResolveByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !util.ConstantTimeEqual(rec.Secret, secret) {
		return nil, apperrors.Unauthorized("Invalid secret")
	}
	return rec, nil
}

func (s *Lifecycle) uniqueCode(ctx context.Context) (string, error) {
	for attempts := 0; attempts < codeGenAttempts; attempts++ {
		code := util.GenerateCaptureCode(config.CaptureCodeLength)
		existing, err := s.records.FindByCode(ctx, code)
		if err != nil {
			return "", apperrors.Storage(err)
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", apperrors.Internal("could not generate a unique capture code")
}

func (s *Lifecycle) captureURL(requestBase, code string) string {
	base := s.baseURL
	if base == "" {
		base = requestBase
	}
	return strings.TrimSuffix(base, "/") + capturePagePath + code
}

// releaseEvidence drops the blob behind rec.EvidenceRef, if any. Failures
// are logged and skipped: a stranded blob is preferable to a failed delete.
func (s *Lifecycle) releaseEvidence(ctx context.Context, rec *model.Record) {
	if rec.EvidenceRef == "" {
		return
	}
	if err := s.evidence.Delete(ctx, rec.EvidenceRef); err != nil {
		log.Warn().
			Err(err).
			Str("username", rec.Username).
			Str("ref", rec.EvidenceRef).
			Msg("evidence release failed")
	}
}

func summarize(rec *model.Record) *model.StatusSummary {
	return &model.StatusSummary{
		Username:          rec.Username,
		Status:            rec.Status,
		ExternalSessionID: rec.ExternalSessionID,
	}
}

func extensionHint(contentType string) string {
	if strings.HasPrefix(contentType, "video/mp4") {
		return ".mp4"
	}
	return ".webm"
}
