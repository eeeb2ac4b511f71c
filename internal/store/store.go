package store

import (
	"context"
	"errors"
	"time"

	"github.com/twoao/selfie-server-go/internal/model"
)

// ErrDuplicate is returned by Create when the username is already taken.
var ErrDuplicate = errors.New("record already exists")

// RecordStore is the keyed persistence layer for verification records.
//
// Read paths report absence as a nil record, never as an error; only real
// storage failures surface as errors. Delete-shaped operations return the
// removed records so callers can release associated evidence blobs — no
// orphaned evidence may outlive its owning record.
type RecordStore interface {
	// Create inserts a new record. Returns ErrDuplicate if the username
	// is already present.
	Create(ctx context.Context, rec *model.Record) (*model.Record, error)

	// Update replaces an existing record and bumps UpdatedAt. The capture
	// code index follows any code change atomically.
	Update(ctx context.Context, rec *model.Record) (*model.Record, error)

	Get(ctx context.Context, username string) (*model.Record, error)
	FindByCode(ctx context.Context, code string) (*model.Record, error)
	List(ctx context.Context) ([]model.Record, error)
	Count(ctx context.Context) (int, error)

	// Delete removes a record, returning it, or nil if absent. Idempotent.
	Delete(ctx context.Context, username string) (*model.Record, error)

	// BulkDelete removes each present username and returns the removed
	// records. Missing usernames are skipped, never an error.
	BulkDelete(ctx context.Context, usernames []string) ([]model.Record, error)

	// SweepExpired removes every record whose UpdatedAt age exceeds maxAge
	// relative to now, returning the removed records.
	SweepExpired(ctx context.Context, maxAge time.Duration, now time.Time) ([]model.Record, error)
}
