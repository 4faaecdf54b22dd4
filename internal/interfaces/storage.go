package interfaces

import (
	"context"
	"errors"

	"github.com/bobmcallan/marketsift/internal/models"
)

// ErrNotFound is returned by store lookups that match nothing.
var ErrNotFound = errors.New("not found")

// SnapshotStore persists the exported index document between runs, plus a
// small system key-value area for schema/build metadata. Implementations:
// SurrealDB (shared server) and BadgerHold (embedded).
type SnapshotStore interface {
	// SaveIndexDocument replaces the stored document with doc.
	SaveIndexDocument(ctx context.Context, doc *models.IndexDocument) error

	// GetIndexDocument returns the stored document, or an error satisfying
	// errors.Is(err, ErrNotFound) when none has been saved.
	GetIndexDocument(ctx context.Context) (*models.IndexDocument, error)

	// GetSystemKV / SetSystemKV manage system-level metadata entries.
	GetSystemKV(ctx context.Context, key string) (string, error)
	SetSystemKV(ctx context.Context, key, value string) error

	Close() error
}
