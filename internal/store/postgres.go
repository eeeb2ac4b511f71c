package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/twoao/selfie-server-go/internal/model"
)

const uniqueViolation = "23505"

// PostgresStore implements RecordStore on a records table. Semantics match
// the in-memory store; the capture code uniqueness is enforced by a unique
// index instead of a secondary map.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the records table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			username            TEXT PRIMARY KEY,
			secret              TEXT NOT NULL,
			capture_code        TEXT NOT NULL UNIQUE,
			capture_link        TEXT NOT NULL DEFAULT '',
			status              TEXT NOT NULL DEFAULT 'pending',
			external_session_id TEXT NOT NULL DEFAULT '',
			evidence_ref        TEXT NOT NULL DEFAULT '',
			profile             TEXT NOT NULL DEFAULT '',
			photo               TEXT NOT NULL DEFAULT '',
			upstream_error      TEXT NOT NULL DEFAULT '',
			task                JSONB,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, rec *model.Record) (*model.Record, error) {
	var out model.Record
	err := s.db.GetContext(ctx, &out, `
		INSERT INTO records (
			username, secret, capture_code, capture_link, status,
			external_session_id, evidence_ref, profile, photo, upstream_error, task
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING *
	`, rec.Username, rec.Secret, rec.CaptureCode, rec.CaptureLink, rec.Status,
		rec.ExternalSessionID, rec.EvidenceRef, rec.Profile, rec.Photo, rec.UpstreamError, rec.Task)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &out, nil
}

func (s *PostgresStore) Update(ctx context.Context, rec *model.Record) (*model.Record, error) {
	var out model.Record
	err := s.db.GetContext(ctx, &out, `
		UPDATE records SET
			secret = $2,
			capture_code = $3,
			capture_link = $4,
			status = $5,
			external_session_id = $6,
			evidence_ref = $7,
			profile = $8,
			photo = $9,
			upstream_error = $10,
			task = $11,
			updated_at = $12
		WHERE username = $1
		RETURNING *
	`, rec.Username, rec.Secret, rec.CaptureCode, rec.CaptureLink, rec.Status,
		rec.ExternalSessionID, rec.EvidenceRef, rec.Profile, rec.Photo,
		rec.UpstreamError, rec.Task, time.Now())
	return handleNotFound(&out, err)
}

func (s *PostgresStore) Get(ctx context.Context, username string) (*model.Record, error) {
	var rec model.Record
	err := s.db.GetContext(ctx, &rec, `
		SELECT * FROM records WHERE username = $1
	`, username)
	return handleNotFound(&rec, err)
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*model.Record, error) {
	var rec model.Record
	err := s.db.GetContext(ctx, &rec, `
		SELECT * FROM records WHERE capture_code = $1
	`, code)
	return handleNotFound(&rec, err)
}

func (s *PostgresStore) List(ctx context.Context) ([]model.Record, error) {
	var records []model.Record
	err := s.db.SelectContext(ctx, &records, `
		SELECT * FROM records ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM records`)
	return count, err
}

func (s *PostgresStore) Delete(ctx context.Context, username string) (*model.Record, error) {
	var rec model.Record
	err := s.db.GetContext(ctx, &rec, `
		DELETE FROM records WHERE username = $1 RETURNING *
	`, username)
	return handleNotFound(&rec, err)
}

func (s *PostgresStore) BulkDelete(ctx context.Context, usernames []string) ([]model.Record, error) {
	var removed []model.Record
	err := s.db.SelectContext(ctx, &removed, `
		DELETE FROM records WHERE username = ANY($1) RETURNING *
	`, pq.Array(usernames))
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *PostgresStore) SweepExpired(ctx context.Context, maxAge time.Duration, now time.Time) ([]model.Record, error) {
	var removed []model.Record
	err := s.db.SelectContext(ctx, &removed, `
		DELETE FROM records WHERE updated_at < $1 RETURNING *
	`, now.Add(-maxAge))
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// handleNotFound converts sql.ErrNoRows to a nil record without error:
// a missing row is not an error condition on read or delete paths.
func handleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

var _ RecordStore = (*PostgresStore)(nil)
