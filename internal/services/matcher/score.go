package matcher

import (
	"math"
	"sort"

	"github.com/bobmcallan/marketsift/internal/common"
	"github.com/bobmcallan/marketsift/internal/models"
)

// score computes a market's relevance to one match result:
//
//	sharedEntities*Entity + sharedGeneric*Generic
//	+ log10(1+liquidity)*Liquidity + log10(1+volume)*Volume
//	+ CoOccurrence when both classes matched
//
// A market sharing no keyword with the match scores exactly 0, which
// excludes it from results.
func score(m *models.Market, match models.MatchResult, w common.WeightsConfig) float64 {
	sharedEntities := countShared(m.EntityTags, match.Entities)
	sharedGeneric := countShared(m.GenericTags, match.Generic)

	if sharedEntities+sharedGeneric == 0 {
		return 0
	}

	total := float64(sharedEntities)*w.Entity +
		float64(sharedGeneric)*w.Generic +
		math.Log10(1+m.Liquidity)*w.Liquidity +
		math.Log10(1+m.Volume)*w.Volume

	if sharedEntities > 0 && sharedGeneric > 0 {
		total += w.CoOccurrence
	}

	return total
}

// countShared counts how many of the market's tags appear in the matched set.
func countShared(tags, matched []string) int {
	if len(tags) == 0 || len(matched) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(matched))
	for _, kw := range matched {
		set[kw] = struct{}{}
	}
	shared := 0
	for _, tag := range tags {
		if _, ok := set[tag]; ok {
			shared++
		}
	}
	return shared
}

// selectTopK scores the candidates, drops zero scores, and returns the first
// k ordered by score descending. Ties break by volume descending then id
// ascending so the ordering is deterministic rather than an accident of sort
// stability.
func selectTopK(candidates []*models.Market, match models.MatchResult, w common.WeightsConfig, k int) []models.ScoredMarket {
	scored := make([]models.ScoredMarket, 0, len(candidates))
	for _, m := range candidates {
		if sc := score(m, match, w); sc > 0 {
			scored = append(scored, models.ScoredMarket{Market: m, Score: sc})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Market.Volume != scored[j].Market.Volume {
			return scored[i].Market.Volume > scored[j].Market.Volume
		}
		return scored[i].Market.ID < scored[j].Market.ID
	})

	if k >= 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
