package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Record is the account/task entity tracked by the store. One record per
// username; the capture code addresses the same record from the public
// capture page.
type Record struct {
	Username          string    `db:"username" json:"username"`
	Secret            string    `db:"secret" json:"-"`
	CaptureCode       string    `db:"capture_code" json:"captureCode"`
	CaptureLink       string    `db:"capture_link" json:"captureLink,omitempty"`
	Status            Status    `db:"status" json:"status"`
	ExternalSessionID string    `db:"external_session_id" json:"externalSessionId,omitempty"`
	EvidenceRef       string    `db:"evidence_ref" json:"evidenceRef,omitempty"`
	Profile           string    `db:"profile" json:"profile,omitempty"`
	Photo             string    `db:"photo" json:"photo,omitempty"`
	UpstreamError     string    `db:"upstream_error" json:"-"`
	Task              *TaskInfo `db:"task" json:"task,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

// Clone returns a deep copy so callers never alias store-owned state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Task != nil {
		task := *r.Task
		out.Task = &task
	}
	return &out
}

// TaskInfo is the capture task payload submitted by an agent on the legacy
// task routes. Stored as JSON in the Postgres store.
type TaskInfo struct {
	UserID            string `json:"userId"`
	TransactionID     string `json:"transactionId"`
	RealIP            string `json:"realIp,omitempty"`
	Proxy             string `json:"proxy,omitempty"`
	Cookies           string `json:"cookies,omitempty"`
	UserAgent         string `json:"userAgent,omitempty"`
	PageURL           string `json:"pageUrl,omitempty"`
	VerificationToken string `json:"verificationToken,omitempty"`
	Timestamp         int64  `json:"timestamp,omitempty"`
}

func (t *TaskInfo) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

func (t *TaskInfo) Scan(src any) error {
	if src == nil {
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported task column type %T", src)
	}
	return json.Unmarshal(data, t)
}

type CreateRecordParams struct {
	Username string
	Secret   string
	Profile  string
	Photo    string
}

// UpdateAccountParams carries operator edits; nil fields are left unchanged.
type UpdateAccountParams struct {
	Secret  *string
	Profile *string
	Photo   *string
}

// VerificationOutcome is the result of a liveness check, regardless of
// whether it arrived via the synchronous proxy, the SDK callback, or an
// agent result report.
type VerificationOutcome struct {
	Status            Status
	ExternalSessionID string
	// RawPayload keeps the upstream response body on rejection so an
	// operator can diagnose the failure.
	RawPayload string
}

func AcceptedOutcome(sessionID string) VerificationOutcome {
	return VerificationOutcome{Status: StatusAccepted, ExternalSessionID: sessionID}
}

func RejectedOutcome(rawPayload string) VerificationOutcome {
	return VerificationOutcome{Status: StatusRejected, RawPayload: rawPayload}
}

// StatusSummary is the condensed view returned to polling agents.
type StatusSummary struct {
	Username          string `json:"username"`
	Status            Status `json:"status"`
	ExternalSessionID string `json:"event_session_id"`
}
