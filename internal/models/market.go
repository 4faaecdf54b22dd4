// Package models defines the domain types shared across marketsift
package models

import (
	"strings"
	"time"
)

// Market is a corpus item: one two-outcome market with its text fields,
// popularity signals and the keyword tags derived during ingestion.
type Market struct {
	ID            string     `json:"id"`
	Question      string     `json:"question"`
	Description   string     `json:"description,omitempty"`
	EventTitle    string     `json:"event_title,omitempty"`
	OutcomePrices [2]float64 `json:"outcome_prices"`
	Volume        float64    `json:"volume"`
	Liquidity     float64    `json:"liquidity"`
	Active        bool       `json:"active"`
	Closed        bool       `json:"closed"`
	Resolved      bool       `json:"resolved"`
	EndDate       *time.Time `json:"end_date,omitempty"`

	// Derived once during ingestion; vocabulary iteration order.
	EntityTags  []string `json:"entity_tags,omitempty"`
	GenericTags []string `json:"generic_tags,omitempty"`
}

// Blob returns the lowercased match text for this market: question,
// description and event title concatenated, missing fields treated as empty.
func (m *Market) Blob() string {
	var b strings.Builder
	b.Grow(len(m.Question) + len(m.Description) + len(m.EventTitle) + 2)
	b.WriteString(m.Question)
	b.WriteByte(' ')
	b.WriteString(m.Description)
	b.WriteByte(' ')
	b.WriteString(m.EventTitle)
	return strings.ToLower(b.String())
}

// DaysUntilEnd returns the fractional days between now and the market's end
// date, and whether an end date is present at all.
func (m *Market) DaysUntilEnd(now time.Time) (float64, bool) {
	if m.EndDate == nil {
		return 0, false
	}
	return m.EndDate.Sub(now).Hours() / 24, true
}

// Tagged reports whether ingestion attached at least one keyword to the market.
func (m *Market) Tagged() bool {
	return len(m.EntityTags) > 0 || len(m.GenericTags) > 0
}

// MatchResult reports which vocabulary keywords an input text contains.
// Both lists follow vocabulary iteration order, which is stable within a
// process run so scoring and logs are reproducible.
type MatchResult struct {
	Entities []string `json:"entities"`
	Generic  []string `json:"generic"`
}

// IsEmpty reports whether no keyword of either class matched.
func (r MatchResult) IsEmpty() bool {
	return len(r.Entities) == 0 && len(r.Generic) == 0
}

// ScoredMarket pairs a market with its relevance score for one query.
type ScoredMarket struct {
	Market *Market `json:"market"`
	Score  float64 `json:"score"`
}
