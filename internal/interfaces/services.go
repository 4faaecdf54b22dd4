package interfaces

import (
	"context"

	"github.com/bobmcallan/marketsift/internal/models"
)

// MatchService is the relevance matching engine consumed by the presentation
// layer. Analyze, retrieval and scoring are pure and non-blocking; operations
// taking a context may trigger or wait on an ingestion build.
type MatchService interface {
	// Analyze reports the vocabulary keywords contained in text.
	Analyze(text string) models.MatchResult

	// GetRankedMatches returns the top-k markets relevant to text, ranked by
	// score descending with deterministic tie-breaking. A nil error with an
	// empty slice means nothing matched; use Status to tell that apart from
	// an unbuilt or broken index.
	GetRankedMatches(ctx context.Context, text string, k int) ([]models.ScoredMarket, error)

	// GetTopByPopularity returns the k highest-volume markets in the current
	// snapshot. No text analysis involved.
	GetTopByPopularity(ctx context.Context, k int) ([]*models.Market, error)

	// ForceRefresh rebuilds the snapshot immediately, coalescing with any
	// in-flight build, and returns the resulting snapshot.
	ForceRefresh(ctx context.Context) (*models.Snapshot, error)

	// Status exposes the controller state: empty, building or ready, plus
	// the last ingestion error if any.
	Status() models.EngineStatus

	// ExportIndex flattens the current snapshot into its persistable form.
	ExportIndex(ctx context.Context) (*models.IndexDocument, error)

	// LoadIndexDocument installs a previously exported snapshot, refusing
	// unrecognised document versions.
	LoadIndexDocument(doc *models.IndexDocument) error

	// Stale reports whether the current snapshot is missing or past its TTL.
	Stale() bool
}
