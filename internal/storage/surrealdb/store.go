// Package surrealdb implements the snapshot store on SurrealDB for shared
// server deployments.
package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/marketsift/internal/common"
	"github.com/bobmcallan/marketsift/internal/interfaces"
	"github.com/bobmcallan/marketsift/internal/models"
)

// currentDocID is the fixed record id for the single live index document.
const currentDocID = "current"

// Store implements interfaces.SnapshotStore using SurrealDB.
type Store struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewStore connects to SurrealDB, signs in and ensures the tables exist.
func NewStore(logger *common.Logger, cfg *common.StorageConfig) (*Store, error) {
	ctx := context.Background()

	db, err := surrealdb.New(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": cfg.Username,
		"pass": cfg.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	// SurrealDB v3 errors on querying tables that don't exist yet.
	for _, table := range []string{"index_document", "system_kv"} {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	logger.Info().
		Str("address", cfg.Address).
		Str("namespace", cfg.Namespace).
		Str("database", cfg.Database).
		Msg("SurrealDB snapshot store initialized")

	return &Store{db: db, logger: logger}, nil
}

// SaveIndexDocument replaces the live index document.
func (s *Store) SaveIndexDocument(ctx context.Context, doc *models.IndexDocument) error {
	sql := "UPSERT $rid CONTENT $doc"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("index_document", currentDocID),
		"doc": doc,
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		_, err := surrealdb.Query[[]models.IndexDocument](ctx, s.db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to save index document after retries: %w", lastErr)
}

// GetIndexDocument returns the live index document.
func (s *Store) GetIndexDocument(ctx context.Context) (*models.IndexDocument, error) {
	doc, err := surrealdb.Select[models.IndexDocument](ctx, s.db, surrealmodels.NewRecordID("index_document", currentDocID))
	if err != nil {
		return nil, fmt.Errorf("failed to select index document: %w", err)
	}
	if doc == nil || doc.Version == 0 {
		return nil, fmt.Errorf("index document: %w", interfaces.ErrNotFound)
	}
	return doc, nil
}

// systemKV is one metadata row keyed by its name.
type systemKV struct {
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	ModifiedAt time.Time `json:"modified_at"`
}

// GetSystemKV returns a system metadata value.
func (s *Store) GetSystemKV(ctx context.Context, key string) (string, error) {
	kv, err := surrealdb.Select[systemKV](ctx, s.db, surrealmodels.NewRecordID("system_kv", key))
	if err != nil {
		return "", fmt.Errorf("failed to select system kv %s: %w", key, err)
	}
	if kv == nil || kv.Key == "" {
		return "", fmt.Errorf("system kv %s: %w", key, interfaces.ErrNotFound)
	}
	return kv.Value, nil
}

// SetSystemKV stores a system metadata value.
func (s *Store) SetSystemKV(ctx context.Context, key, value string) error {
	sql := "UPSERT $rid CONTENT $kv"
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID("system_kv", key),
		"kv":  systemKV{Key: key, Value: value, ModifiedAt: time.Now()},
	}
	if _, err := surrealdb.Query[[]systemKV](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save system kv %s: %w", key, err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	s.db.Close(context.Background())
	return nil
}

// Compile-time check
var _ interfaces.SnapshotStore = (*Store)(nil)
