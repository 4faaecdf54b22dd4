// Package badger implements the snapshot store on BadgerHold for embedded,
// single-binary deployments.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/marketsift/internal/common"
	"github.com/bobmcallan/marketsift/internal/interfaces"
	"github.com/bobmcallan/marketsift/internal/models"
)

// currentDocKey is the fixed key for the single live index document.
const currentDocKey = "index_document:current"

// kvPrefix namespaces system metadata keys away from the document key.
const kvPrefix = "system_kv:"

// Store implements interfaces.SnapshotStore using BadgerHold.
type Store struct {
	db     *badgerhold.Store
	logger *common.Logger
}

// NewStore opens (creating if needed) the embedded store at path.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot store path %s: %w", path, err)
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil

	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store at %s: %w", path, err)
	}

	logger.Info().Str("path", path).Msg("Badger snapshot store opened")
	return &Store{db: db, logger: logger}, nil
}

// SaveIndexDocument replaces the live index document.
func (s *Store) SaveIndexDocument(_ context.Context, doc *models.IndexDocument) error {
	if err := s.db.Upsert(currentDocKey, doc); err != nil {
		return fmt.Errorf("failed to save index document: %w", err)
	}
	s.logger.Debug().Int("markets", len(doc.Markets)).Msg("Index document saved")
	return nil
}

// GetIndexDocument returns the live index document.
func (s *Store) GetIndexDocument(_ context.Context) (*models.IndexDocument, error) {
	var doc models.IndexDocument
	if err := s.db.Get(currentDocKey, &doc); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("index document: %w", interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get index document: %w", err)
	}
	return &doc, nil
}

// systemKV is one metadata row keyed by its name.
type systemKV struct {
	Key        string
	Value      string
	ModifiedAt time.Time
}

// GetSystemKV returns a system metadata value.
func (s *Store) GetSystemKV(_ context.Context, key string) (string, error) {
	var kv systemKV
	if err := s.db.Get(kvPrefix+key, &kv); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return "", fmt.Errorf("system kv %s: %w", key, interfaces.ErrNotFound)
		}
		return "", fmt.Errorf("failed to get system kv %s: %w", key, err)
	}
	return kv.Value, nil
}

// SetSystemKV stores a system metadata value.
func (s *Store) SetSystemKV(_ context.Context, key, value string) error {
	kv := systemKV{Key: key, Value: value, ModifiedAt: time.Now()}
	if err := s.db.Upsert(kvPrefix+key, &kv); err != nil {
		return fmt.Errorf("failed to save system kv %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying Badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Compile-time check
var _ interfaces.SnapshotStore = (*Store)(nil)
