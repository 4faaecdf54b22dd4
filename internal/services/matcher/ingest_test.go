package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bobmcallan/marketsift/internal/common"
	"github.com/bobmcallan/marketsift/internal/models"
)

func TestPassesQuality(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	strict := common.QualityConfig{MinVolume: 1000, MinLiquidity: 100, MinDaysUntilEnd: 1}
	loose := common.QualityConfig{MinVolume: 500, MinLiquidity: 10, MinDaysUntilEnd: 0.5}

	soon := now.Add(12 * time.Hour)
	far := now.Add(30 * 24 * time.Hour)

	base := func() models.Market {
		return models.Market{Active: true, Volume: 5000, Liquidity: 500, EndDate: &far}
	}

	tests := []struct {
		name   string
		mutate func(*models.Market)
		cfg    common.QualityConfig
		want   bool
	}{
		{"healthy market", func(m *models.Market) {}, strict, true},
		{"inactive", func(m *models.Market) { m.Active = false }, strict, false},
		{"closed", func(m *models.Market) { m.Closed = true }, strict, false},
		{"resolved", func(m *models.Market) { m.Resolved = true }, strict, false},
		{"volume below floor", func(m *models.Market) { m.Volume = 999 }, strict, false},
		{"volume at floor", func(m *models.Market) { m.Volume = 1000 }, strict, true},
		{"liquidity below floor", func(m *models.Market) { m.Liquidity = 99 }, strict, false},
		{"ending too soon", func(m *models.Market) { m.EndDate = &soon }, strict, false},
		{"no end date passes", func(m *models.Market) { m.EndDate = nil }, strict, true},
		{"loose admits soon-ending", func(m *models.Market) { m.EndDate = &soon }, loose, true},
		{"loose admits low volume", func(m *models.Market) { m.Volume = 600 }, loose, true},
		{"loose still rejects closed", func(m *models.Market) { m.Closed = true }, loose, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.mutate(&m)
			if got := passesQuality(&m, tt.cfg, now); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestBuildSnapshot_FilterTagIndex(t *testing.T) {
	far := time.Now().Add(30 * 24 * time.Hour)
	feed := &mockFeed{pages: [][]*models.Market{{
		{ID: "1", Question: "Will Bitcoin hit $100k?", Active: true, Volume: 50000, Liquidity: 5000, EndDate: &far},
		{ID: "2", Question: "Fed rate cut and Bitcoin rally?", Active: true, Volume: 20000, Liquidity: 2000, EndDate: &far},
		{ID: "3", Question: "Will it rain in Paris?", Active: true, Volume: 30000, Liquidity: 3000, EndDate: &far},
		{ID: "4", Question: "Bitcoin above $90k?", Active: true, Volume: 100, Liquidity: 10, EndDate: &far},
	}}}

	s := newTestService(t, feed, "")
	snap, err := s.buildSnapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Market 4 drops on quality, the Paris market as untaggable.
	if len(snap.Markets) != 2 {
		t.Fatalf("expected 2 kept markets, got %d", len(snap.Markets))
	}
	if snap.Partial {
		t.Error("complete pagination must not be flagged partial")
	}

	if len(snap.Index["bitcoin"]) != 2 {
		t.Errorf("expected 2 markets under bitcoin, got %d", len(snap.Index["bitcoin"]))
	}
	if len(snap.Index["fed"]) != 1 {
		t.Errorf("expected 1 market under fed, got %d", len(snap.Index["fed"]))
	}

	for _, m := range snap.Markets {
		if !m.Tagged() {
			t.Errorf("kept market %s has no tags", m.ID)
		}
	}
}

func TestBuildSnapshot_Pagination(t *testing.T) {
	far := time.Now().Add(30 * 24 * time.Hour)
	page1 := []*models.Market{
		{ID: "1", Question: "bitcoin 1", Active: true, Volume: 5000, Liquidity: 500, EndDate: &far},
		{ID: "2", Question: "bitcoin 2", Active: true, Volume: 5000, Liquidity: 500, EndDate: &far},
	}
	page2 := []*models.Market{
		{ID: "3", Question: "bitcoin 3", Active: true, Volume: 5000, Liquidity: 500, EndDate: &far},
	}
	feed := &mockFeed{pages: [][]*models.Market{page1, page2}}

	s := newTestService(t, feed, "")
	s.pageSize = 2

	snap, err := s.buildSnapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if feed.callCount() != 2 {
		t.Errorf("expected 2 feed calls, got %d", feed.callCount())
	}
	if len(snap.Markets) != 3 {
		t.Errorf("expected 3 markets across pages, got %d", len(snap.Markets))
	}
	if got := feed.offsets(); len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("expected offsets [0 2], got %v", got)
	}
}

func TestBuildSnapshot_FirstPageFailure(t *testing.T) {
	feed := &mockFeed{errOnCall: 0, err: errors.New("feed down")}

	s := newTestService(t, feed, "")
	if _, err := s.buildSnapshot(context.Background()); err == nil {
		t.Fatal("expected error when the first page fails")
	}
}

func TestBuildSnapshot_MidPaginationFailureIsPartial(t *testing.T) {
	far := time.Now().Add(30 * 24 * time.Hour)
	page1 := []*models.Market{
		{ID: "1", Question: "bitcoin 1", Active: true, Volume: 5000, Liquidity: 500, EndDate: &far},
		{ID: "2", Question: "bitcoin 2", Active: true, Volume: 5000, Liquidity: 500, EndDate: &far},
	}
	feed := &mockFeed{pages: [][]*models.Market{page1}, errOnCall: 1, err: errors.New("feed down")}

	s := newTestService(t, feed, "")
	s.pageSize = 2

	snap, err := s.buildSnapshot(context.Background())
	if err != nil {
		t.Fatalf("mid-pagination failure must not be an error: %v", err)
	}
	if !snap.Partial {
		t.Error("expected snapshot flagged partial")
	}
	if len(snap.Markets) != 2 {
		t.Errorf("expected the fetched page retained, got %d markets", len(snap.Markets))
	}
}

func TestBuildSnapshot_NoFeed(t *testing.T) {
	s := newTestService(t, nil, "")
	if _, err := s.buildSnapshot(context.Background()); !errors.Is(err, ErrNoFeed) {
		t.Fatalf("expected ErrNoFeed, got %v", err)
	}
}
