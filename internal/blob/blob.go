// Package blob defines the source-of-truth object store the knowledge
// pipeline reads from. The pipeline never writes here; uploads and deletions
// are driven by the admin layer, which then triggers re-indexing through the
// event adapter or a manual sync.
package blob

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested key does not exist in the store.
var ErrNotFound = errors.New("object not found")

// Object describes a stored document without its content.
type Object struct {
	// Key is the stable identifier of the object, e.g. "village-history.md".
	Key string

	// Size is the content length in bytes.
	Size int64

	// ETag identifies the content version.
	ETag string

	// LastModified is the upload time.
	LastModified time.Time
}

// Store is the read-only view of the document bucket used by the ingestion
// pipeline. Implementations must return ErrNotFound (possibly wrapped) from
// Get for missing keys.
type Store interface {
	// List returns all objects in the store.
	List(ctx context.Context) ([]Object, error)

	// Get returns the text content of the object at key.
	Get(ctx context.Context, key string) (string, error)
}
