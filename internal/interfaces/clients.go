// Package interfaces defines the contracts between marketsift components
package interfaces

import (
	"context"

	"github.com/bobmcallan/marketsift/internal/models"
)

// MarketFeedClient fetches raw candidate markets from the upstream feed.
// FetchMarkets returns one page of up to limit markets starting at offset;
// a short page signals end-of-data. Implementations own rate limiting and
// transport concerns; callers own pagination.
type MarketFeedClient interface {
	FetchMarkets(ctx context.Context, limit, offset int) ([]*models.Market, error)
}
