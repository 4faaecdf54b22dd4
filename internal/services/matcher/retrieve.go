package matcher

import (
	"github.com/bobmcallan/marketsift/internal/common"
	"github.com/bobmcallan/marketsift/internal/models"
)

// retrieve unions the index lists for the matched keywords into a candidate
// list, deduplicated by market id in first-seen order.
//
// Entity keywords are always unioned first, in matched-keyword order. Generic
// keywords join in one of two supported modes:
//   - WidenWithGeneric=true: only when the entity-only candidate count is
//     below MinCandidatesBeforeWidening (0 disables widening entirely);
//   - WidenWithGeneric=false: unconditionally.
//
// An empty match yields an empty list, never a corpus scan.
func retrieve(match models.MatchResult, index map[string][]*models.Market, cfg common.RetrievalConfig) []*models.Market {
	if match.IsEmpty() {
		return nil
	}

	seen := make(map[string]struct{})
	var candidates []*models.Market

	union := func(keywords []string) {
		for _, kw := range keywords {
			for _, m := range index[kw] {
				if _, ok := seen[m.ID]; ok {
					continue
				}
				seen[m.ID] = struct{}{}
				candidates = append(candidates, m)
			}
		}
	}

	union(match.Entities)

	if cfg.WidenWithGeneric {
		if cfg.MinCandidatesBeforeWidening > 0 && len(candidates) < cfg.MinCandidatesBeforeWidening {
			union(match.Generic)
		}
	} else {
		union(match.Generic)
	}

	return candidates
}
