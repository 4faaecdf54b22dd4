package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bobmcallan/marketsift/internal/app"
	"github.com/bobmcallan/marketsift/internal/common"
	"github.com/bobmcallan/marketsift/internal/models"
	"github.com/bobmcallan/marketsift/internal/services/matcher"
	"github.com/bobmcallan/marketsift/internal/vocab"
)

// --- Mock match service ---

type mockMatchService struct {
	analyzeResult models.MatchResult
	matches       []models.ScoredMarket
	matchesErr    error
	top           []*models.Market
	topErr        error
	snapshot      *models.Snapshot
	refreshErr    error
	status        models.EngineStatus
	doc           *models.IndexDocument
	exportErr     error
}

func (m *mockMatchService) Analyze(_ string) models.MatchResult { return m.analyzeResult }

func (m *mockMatchService) GetRankedMatches(_ context.Context, _ string, _ int) ([]models.ScoredMarket, error) {
	return m.matches, m.matchesErr
}

func (m *mockMatchService) GetTopByPopularity(_ context.Context, _ int) ([]*models.Market, error) {
	return m.top, m.topErr
}

func (m *mockMatchService) ForceRefresh(_ context.Context) (*models.Snapshot, error) {
	return m.snapshot, m.refreshErr
}

func (m *mockMatchService) Status() models.EngineStatus { return m.status }

func (m *mockMatchService) ExportIndex(_ context.Context) (*models.IndexDocument, error) {
	return m.doc, m.exportErr
}

func (m *mockMatchService) LoadIndexDocument(_ *models.IndexDocument) error { return nil }
func (m *mockMatchService) Stale() bool                                     { return false }

// --- Helpers ---

func newTestServer(t *testing.T, svc *mockMatchService) *Server {
	t.Helper()

	v, err := vocab.LoadFromReaders(
		strings.NewReader("bitcoin\n"),
		strings.NewReader("price\n"),
	)
	if err != nil {
		t.Fatalf("vocabulary: %v", err)
	}

	a := &app.App{
		Config:       common.NewDefaultConfig(),
		Logger:       common.NewSilentLogger(),
		Vocabulary:   v,
		MatchService: svc,
		StartupTime:  time.Now(),
	}
	return NewServer(a)
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// --- Tests ---

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, &mockMatchService{})

	rec := doRequest(t, srv, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestHandleHealth_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &mockMatchService{})

	rec := doRequest(t, srv, http.MethodPost, "/api/health", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "GET" {
		t.Errorf("expected Allow: GET, got %q", allow)
	}
}

func TestHandleStatus(t *testing.T) {
	svc := &mockMatchService{status: models.EngineStatus{
		State:       models.StateReady,
		MarketCount: 42,
	}}
	srv := newTestServer(t, svc)

	rec := doRequest(t, srv, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var status models.EngineStatus
	decodeBody(t, rec, &status)
	if status.State != models.StateReady || status.MarketCount != 42 {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestHandleAnalyze(t *testing.T) {
	svc := &mockMatchService{analyzeResult: models.MatchResult{
		Entities: []string{"bitcoin"},
		Generic:  []string{"price"},
	}}
	srv := newTestServer(t, svc)

	rec := doRequest(t, srv, http.MethodPost, "/api/analyze", AnalyzeRequest{Text: "bitcoin price"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Entities []string `json:"entities"`
		Generic  []string `json:"generic"`
		Empty    bool     `json:"empty"`
	}
	decodeBody(t, rec, &body)
	if len(body.Entities) != 1 || body.Entities[0] != "bitcoin" {
		t.Errorf("unexpected entities: %v", body.Entities)
	}
	if body.Empty {
		t.Error("expected empty=false")
	}
}

func TestHandleAnalyze_InvalidJSON(t *testing.T) {
	srv := newTestServer(t, &mockMatchService{})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleMatches(t *testing.T) {
	svc := &mockMatchService{
		analyzeResult: models.MatchResult{Entities: []string{"bitcoin"}},
		matches: []models.ScoredMarket{
			{Market: &models.Market{ID: "1", Question: "Will Bitcoin hit $100k?"}, Score: 57.4},
		},
		status: models.EngineStatus{State: models.StateReady},
	}
	srv := newTestServer(t, svc)

	rec := doRequest(t, srv, http.MethodPost, "/api/matches", AnalyzeRequest{Text: "bitcoin", K: 5})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body MatchesResponse
	decodeBody(t, rec, &body)
	if len(body.Matches) != 1 || body.Matches[0].Market.ID != "1" {
		t.Errorf("unexpected matches: %+v", body.Matches)
	}
	if body.Status.State != models.StateReady {
		t.Errorf("expected engine state in response, got %+v", body.Status)
	}
}

func TestHandleMatches_MissingText(t *testing.T) {
	srv := newTestServer(t, &mockMatchService{})

	rec := doRequest(t, srv, http.MethodPost, "/api/matches", AnalyzeRequest{Text: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleMatches_IngestionError(t *testing.T) {
	svc := &mockMatchService{matchesErr: matcher.ErrIngestion}
	srv := newTestServer(t, svc)

	rec := doRequest(t, srv, http.MethodPost, "/api/matches", AnalyzeRequest{Text: "bitcoin"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	var body ErrorResponse
	decodeBody(t, rec, &body)
	if body.Code != "INGESTION_FAILED" {
		t.Errorf("expected error code INGESTION_FAILED, got %q", body.Code)
	}
}

func TestHandleTopMarkets(t *testing.T) {
	svc := &mockMatchService{top: []*models.Market{
		{ID: "3", Volume: 80000},
		{ID: "1", Volume: 50000},
	}}
	srv := newTestServer(t, svc)

	rec := doRequest(t, srv, http.MethodGet, "/api/markets/top?k=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Markets []*models.Market `json:"markets"`
		Count   int              `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 2 || body.Markets[0].ID != "3" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestHandleTopMarkets_InvalidK(t *testing.T) {
	srv := newTestServer(t, &mockMatchService{})

	for _, k := range []string{"abc", "-1", "0"} {
		rec := doRequest(t, srv, http.MethodGet, "/api/markets/top?k="+k, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("k=%s: expected 400, got %d", k, rec.Code)
		}
	}
}

func TestHandleRefresh(t *testing.T) {
	svc := &mockMatchService{snapshot: &models.Snapshot{
		Markets: []*models.Market{{ID: "1"}},
		Index:   map[string][]*models.Market{"bitcoin": {{ID: "1"}}},
		BuiltAt: time.Now(),
	}}
	srv := newTestServer(t, svc)

	rec := doRequest(t, srv, http.MethodPost, "/api/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["markets"] != float64(1) {
		t.Errorf("expected 1 market, got %v", body["markets"])
	}
}

func TestHandleRefresh_Failure(t *testing.T) {
	svc := &mockMatchService{refreshErr: matcher.ErrIngestion}
	srv := newTestServer(t, svc)

	rec := doRequest(t, srv, http.MethodPost, "/api/refresh", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestHandleExportIndex(t *testing.T) {
	svc := &mockMatchService{doc: &models.IndexDocument{
		Version: models.IndexDocumentVersion,
		Markets: []*models.Market{{ID: "1"}},
		Index:   map[string][]int{"bitcoin": {0}},
	}}
	srv := newTestServer(t, svc)

	rec := doRequest(t, srv, http.MethodGet, "/api/index/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var doc models.IndexDocument
	decodeBody(t, rec, &doc)
	if doc.Version != models.IndexDocumentVersion || len(doc.Markets) != 1 {
		t.Errorf("unexpected document: %+v", doc)
	}
}

func TestHandleConfig(t *testing.T) {
	srv := newTestServer(t, &mockMatchService{})

	rec := doRequest(t, srv, http.MethodGet, "/api/config", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["environment"] != "development" {
		t.Errorf("expected environment, got %v", body["environment"])
	}
	// Credentials must never leak through this endpoint.
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("config response leaks credentials")
	}
}

func TestHandleShutdown_ProductionForbidden(t *testing.T) {
	srv := newTestServer(t, &mockMatchService{})
	srv.app.Config.Environment = "production"

	rec := doRequest(t, srv, http.MethodPost, "/api/shutdown", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 in production, got %d", rec.Code)
	}
}

func TestHandleShutdown_SignalsChannel(t *testing.T) {
	srv := newTestServer(t, &mockMatchService{})
	ch := make(chan struct{}, 1)
	srv.SetShutdownChannel(ch)

	rec := doRequest(t, srv, http.MethodPost, "/api/shutdown", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("shutdown channel never signaled")
	}
}
