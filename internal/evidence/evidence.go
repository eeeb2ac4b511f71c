package evidence

import "context"

// Store holds captured artifacts out-of-band from the record store. A
// record only carries the opaque ref returned by Put; deleting a record
// must be followed by a Delete of its ref so no blob outlives its owner.
type Store interface {
	// Put stores a blob and returns an opaque ref for it.
	Put(ctx context.Context, data []byte, contentType string) (string, error)

	// Get returns the blob for ref, or nil if it no longer exists.
	Get(ctx context.Context, ref string) ([]byte, error)

	// Delete removes the blob. Idempotent: deleting an unknown ref is not
	// an error.
	Delete(ctx context.Context, ref string) error
}
