package matcher

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/marketsift/internal/common"
	"github.com/bobmcallan/marketsift/internal/models"
)

// buildSnapshot fetches the full corpus page by page, applies the quality
// filter, tags each surviving market with the vocabulary keywords its text
// blob contains, and inverts the tags into the keyword index.
//
// A feed failure before any page was fetched is an error. A failure after at
// least one page yields a snapshot from the pages obtained so far, flagged
// Partial.
func (s *Service) buildSnapshot(ctx context.Context) (*models.Snapshot, error) {
	if s.feed == nil {
		return nil, ErrNoFeed
	}

	start := time.Now()

	var fetched []*models.Market
	partial := false
	for offset := 0; ; {
		page, err := s.feed.FetchMarkets(ctx, s.pageSize, offset)
		if err != nil {
			if offset == 0 {
				return nil, fmt.Errorf("market feed failed: %w", err)
			}
			s.logger.Warn().Err(err).Int("offset", offset).
				Msg("Market feed failed mid-pagination - building partial snapshot")
			partial = true
			break
		}

		fetched = append(fetched, page...)
		if len(page) < s.pageSize {
			break
		}
		offset += len(page)
	}

	now := time.Now()
	kept := make([]*models.Market, 0, len(fetched))
	index := make(map[string][]*models.Market)

	dropped := 0
	untagged := 0
	for _, m := range fetched {
		if !passesQuality(m, s.quality, now) {
			dropped++
			continue
		}

		entities, generic := s.vocabulary.Tag(m.Blob())
		if len(entities) == 0 && len(generic) == 0 {
			// Untaggable markets can never be retrieved; drop before indexing.
			untagged++
			continue
		}
		m.EntityTags = entities
		m.GenericTags = generic

		kept = append(kept, m)
		for _, kw := range entities {
			index[kw] = append(index[kw], m)
		}
		for _, kw := range generic {
			index[kw] = append(index[kw], m)
		}
	}

	s.logger.Info().
		Int("fetched", len(fetched)).
		Int("kept", len(kept)).
		Int("filtered", dropped).
		Int("untagged", untagged).
		Int("keywords", len(index)).
		Bool("partial", partial).
		Dur("elapsed", time.Since(start)).
		Msg("Snapshot built")

	return &models.Snapshot{
		Markets: kept,
		Index:   index,
		BuiltAt: now,
		Partial: partial,
	}, nil
}

// passesQuality applies the corpus quality policy. All conditions must hold:
// active, not closed, not resolved, volume and liquidity at or above their
// floors, and, only when an end date is present, at least MinDaysUntilEnd
// away from ending. A market without an end date is never rejected on that
// ground.
func passesQuality(m *models.Market, q common.QualityConfig, now time.Time) bool {
	if !m.Active || m.Closed || m.Resolved {
		return false
	}
	if m.Volume < q.MinVolume {
		return false
	}
	if m.Liquidity < q.MinLiquidity {
		return false
	}
	if days, ok := m.DaysUntilEnd(now); ok && days < q.MinDaysUntilEnd {
		return false
	}
	return true
}
