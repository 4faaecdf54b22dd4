// Package storage selects and constructs the snapshot store backend
package storage

import (
	"fmt"
	"strings"

	"github.com/bobmcallan/marketsift/internal/common"
	"github.com/bobmcallan/marketsift/internal/interfaces"
	"github.com/bobmcallan/marketsift/internal/storage/badger"
	"github.com/bobmcallan/marketsift/internal/storage/surrealdb"
)

// NewSnapshotStore creates the store named by config.Storage.Backend.
// Backend "none" (or empty) returns a nil store: the engine then runs
// without persistence and always starts Empty.
func NewSnapshotStore(logger *common.Logger, config *common.Config) (interfaces.SnapshotStore, error) {
	backend := strings.ToLower(strings.TrimSpace(config.Storage.Backend))
	switch backend {
	case "surrealdb":
		return surrealdb.NewStore(logger, &config.Storage)
	case "badger":
		return badger.NewStore(logger, config.Storage.Path)
	case "", "none":
		logger.Info().Msg("Snapshot persistence disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (supported: surrealdb, badger, none)", config.Storage.Backend)
	}
}
