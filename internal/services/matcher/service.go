// Package matcher implements the keyword-indexed relevance matching engine:
// corpus ingestion, inverted index, candidate retrieval, scoring and the
// snapshot cache that keeps it all current.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bobmcallan/marketsift/internal/common"
	"github.com/bobmcallan/marketsift/internal/interfaces"
	"github.com/bobmcallan/marketsift/internal/models"
	"github.com/bobmcallan/marketsift/internal/vocab"
)

var (
	// ErrIngestion wraps any failure raised by an explicit refresh.
	ErrIngestion = errors.New("ingestion failed")

	// ErrNoFeed is returned when a build is required but no feed client was
	// configured.
	ErrNoFeed = errors.New("no market feed configured")
)

// Refresh policies for analysis calls that arrive while a rebuild is in
// flight and a previous snapshot exists.
const (
	RefreshServeStale = "stale"
	RefreshWait       = "wait"
)

// Service implements interfaces.MatchService. One Service owns its
// vocabulary, its current snapshot and the refresh state; it is constructed
// once and shared by reference.
type Service struct {
	vocabulary *vocab.Vocabulary
	feed       interfaces.MarketFeedClient
	store      interfaces.SnapshotStore
	logger     *common.Logger

	quality   common.QualityConfig
	retrieval common.RetrievalConfig
	weights   common.WeightsConfig
	ttl       time.Duration
	policy    string
	pageSize  int

	mu       sync.Mutex
	snapshot *models.Snapshot
	flight   *inflight
	lastErr  error
}

// inflight is the shared deferred result of the single build allowed at a
// time. Waiters block on done and then read snap/err.
type inflight struct {
	done chan struct{}
	snap *models.Snapshot
	err  error
}

// NewService creates the matching engine. store may be nil to disable
// write-through persistence.
func NewService(
	vocabulary *vocab.Vocabulary,
	feed interfaces.MarketFeedClient,
	store interfaces.SnapshotStore,
	logger *common.Logger,
	cfg common.MatcherConfig,
	pageSize int,
) *Service {
	if pageSize <= 0 {
		pageSize = 500
	}
	policy := cfg.RefreshPolicy
	if policy != RefreshWait {
		policy = RefreshServeStale
	}
	return &Service{
		vocabulary: vocabulary,
		feed:       feed,
		store:      store,
		logger:     logger,
		quality:    cfg.Quality,
		retrieval:  cfg.Retrieval,
		weights:    cfg.Weights,
		ttl:        cfg.GetTTL(),
		policy:     policy,
		pageSize:   pageSize,
	}
}

// Analyze reports which vocabulary keywords the text contains.
func (s *Service) Analyze(text string) models.MatchResult {
	return s.vocabulary.Analyze(text)
}

// GetRankedMatches analyzes text, retrieves candidates from the current
// snapshot and returns the top-k by relevance score. Unmatched or empty text
// yields an empty slice, not an error.
func (s *Service) GetRankedMatches(ctx context.Context, text string, k int) ([]models.ScoredMarket, error) {
	match := s.vocabulary.Analyze(text)
	if match.IsEmpty() {
		return []models.ScoredMarket{}, nil
	}

	snap, err := s.getSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	candidates := retrieve(match, snap.Index, s.retrieval)
	return selectTopK(candidates, match, s.weights, k), nil
}

// GetTopByPopularity returns the k highest-volume markets in the current
// snapshot, no text required. Ties break by id ascending.
func (s *Service) GetTopByPopularity(ctx context.Context, k int) ([]*models.Market, error) {
	snap, err := s.getSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	top := make([]*models.Market, len(snap.Markets))
	copy(top, snap.Markets)
	sort.Slice(top, func(i, j int) bool {
		if top[i].Volume != top[j].Volume {
			return top[i].Volume > top[j].Volume
		}
		return top[i].ID < top[j].ID
	})

	if k >= 0 && len(top) > k {
		top = top[:k]
	}
	return top, nil
}

// ForceRefresh rebuilds the snapshot regardless of TTL, coalescing with any
// in-flight build. Failures are wrapped in ErrIngestion; a previous good
// snapshot is never discarded by a failed refresh.
func (s *Service) ForceRefresh(ctx context.Context) (*models.Snapshot, error) {
	snap, err := s.refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIngestion, err)
	}
	return snap, nil
}

// Status exposes the controller state machine to callers.
func (s *Service) Status() models.EngineStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := models.EngineStatus{
		State:           models.StateEmpty,
		EntityKeywords:  len(s.vocabulary.Entities()),
		GenericKeywords: len(s.vocabulary.Generic()),
	}

	if s.flight != nil {
		status.State = models.StateBuilding
	} else if s.snapshot != nil {
		status.State = models.StateReady
	}

	if s.snapshot != nil {
		status.BuiltAt = s.snapshot.BuiltAt
		status.Partial = s.snapshot.Partial
		status.MarketCount = len(s.snapshot.Markets)
	}

	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}

	return status
}

// ExportIndex flattens the current snapshot into its persistable document
// form, building one first if necessary.
func (s *Service) ExportIndex(ctx context.Context) (*models.IndexDocument, error) {
	snap, err := s.getSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return models.NewIndexDocument(snap), nil
}

// LoadIndexDocument installs a previously exported snapshot as the current
// one, e.g. to start Ready from persisted data when the feed is unreachable.
// It refuses documents with an unrecognised version.
func (s *Service) LoadIndexDocument(doc *models.IndexDocument) error {
	snap, err := doc.ToSnapshot()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.snapshot = snap
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Info().
		Int("markets", len(snap.Markets)).
		Time("built_at", snap.BuiltAt).
		Bool("partial", snap.Partial).
		Msg("Snapshot loaded from index document")
	return nil
}

// Stale reports whether the current snapshot is missing or older than the
// TTL. Used by the background scheduler.
func (s *Service) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot == nil || time.Since(s.snapshot.BuiltAt) >= s.ttl
}

// getSnapshot returns a consistent snapshot to analyse against, building one
// when none exists or the TTL has lapsed. Exactly one build runs at a time;
// concurrent callers either attach to it or, under the serve-stale policy,
// get the previous snapshot immediately.
func (s *Service) getSnapshot(ctx context.Context) (*models.Snapshot, error) {
	s.mu.Lock()
	if s.snapshot != nil && time.Since(s.snapshot.BuiltAt) < s.ttl {
		snap := s.snapshot
		s.mu.Unlock()
		return snap, nil
	}

	if fl := s.flight; fl != nil {
		prev := s.snapshot
		s.mu.Unlock()
		if prev != nil && s.policy == RefreshServeStale {
			return prev, nil
		}
		snap, err := s.await(ctx, fl)
		if err != nil && prev != nil && ctx.Err() == nil {
			return prev, nil
		}
		return snap, err
	}
	s.mu.Unlock()

	snap, err := s.refresh(ctx)
	if err != nil {
		s.mu.Lock()
		prev := s.snapshot
		s.mu.Unlock()
		if prev != nil {
			s.logger.Warn().Err(err).Msg("Snapshot refresh failed - serving previous snapshot")
			return prev, nil
		}
		return nil, err
	}
	return snap, nil
}

// refresh runs or joins a build and reports the build's own outcome; serving
// a stale snapshot past a failure is the caller's call, not refresh's.
func (s *Service) refresh(ctx context.Context) (*models.Snapshot, error) {
	s.mu.Lock()
	if fl := s.flight; fl != nil {
		s.mu.Unlock()
		return s.await(ctx, fl)
	}

	fl := &inflight{done: make(chan struct{})}
	s.flight = fl
	s.mu.Unlock()

	// The build itself is never cancelled: callers may stop waiting, but the
	// work runs to completion so its result can serve everyone attached.
	snap, err := s.buildSnapshot(context.WithoutCancel(ctx))

	s.mu.Lock()
	fl.snap, fl.err = snap, err
	if err != nil {
		s.lastErr = err
	} else {
		s.snapshot = snap
		s.lastErr = nil
	}
	s.flight = nil
	s.mu.Unlock()
	close(fl.done)

	if err != nil {
		return nil, err
	}

	s.persist(ctx, snap)
	return snap, nil
}

// await blocks on an in-flight build and returns its deferred result as-is.
func (s *Service) await(ctx context.Context, fl *inflight) (*models.Snapshot, error) {
	select {
	case <-fl.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return fl.snap, fl.err
}

// persist writes the snapshot through to the configured store, best effort,
// along with the build metadata read back at warm start.
func (s *Service) persist(ctx context.Context, snap *models.Snapshot) {
	if s.store == nil {
		return
	}
	doc := models.NewIndexDocument(snap)
	if err := s.store.SaveIndexDocument(ctx, doc); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist index document")
		return
	}

	meta := map[string]string{
		"schema_version":     strconv.Itoa(doc.Version),
		"last_build":         snap.BuiltAt.Format(time.RFC3339),
		"last_build_markets": strconv.Itoa(len(doc.Markets)),
	}
	for key, value := range meta {
		if err := s.store.SetSystemKV(ctx, key, value); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to record build metadata")
		}
	}

	s.logger.Debug().Int("markets", len(doc.Markets)).Msg("Index document persisted")
}

// Ensure Service implements MatchService
var _ interfaces.MatchService = (*Service)(nil)
