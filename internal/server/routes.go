package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/marketsift/internal/common"
	"github.com/bobmcallan/marketsift/internal/models"
	"github.com/bobmcallan/marketsift/internal/services/matcher"
)

const defaultTopK = 10

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/matches", s.handleMatches)
	mux.HandleFunc("/api/markets/top", s.handleTopMarkets)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/api/index/export", s.handleExportIndex)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": common.Version,
		"uptime":  time.Since(s.app.StartupTime).Round(time.Second).String(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.Version,
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

// handleConfig reports the non-secret effective configuration.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	cfg := s.app.Config
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"environment": cfg.Environment,
		"storage": map[string]string{
			"backend": cfg.Storage.Backend,
		},
		"matcher": map[string]interface{}{
			"quality":        cfg.Matcher.Quality,
			"retrieval":      cfg.Matcher.Retrieval,
			"weights":        cfg.Matcher.Weights,
			"ttl":            cfg.Matcher.GetTTL().String(),
			"refresh_policy": cfg.Matcher.RefreshPolicy,
		},
		"vocabulary": map[string]int{
			"entity_keywords":  len(s.app.Vocabulary.Entities()),
			"generic_keywords": len(s.app.Vocabulary.Generic()),
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, s.app.MatchService.Status())
}

// AnalyzeRequest is the body for POST /api/analyze and /api/matches.
type AnalyzeRequest struct {
	Text string `json:"text"`
	K    int    `json:"k,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req AnalyzeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result := s.app.MatchService.Analyze(req.Text)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entities": result.Entities,
		"generic":  result.Generic,
		"empty":    result.IsEmpty(),
	})
}

// MatchesResponse carries ranked matches plus the engine state so callers can
// tell "nothing matched" apart from "index not built".
type MatchesResponse struct {
	Matches []models.ScoredMarket `json:"matches"`
	Query   models.MatchResult    `json:"query"`
	Status  models.EngineStatus   `json:"status"`
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req AnalyzeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		WriteError(w, http.StatusBadRequest, "Field 'text' is required")
		return
	}

	k := req.K
	if k <= 0 {
		k = defaultTopK
	}

	matches, err := s.app.MatchService.GetRankedMatches(r.Context(), req.Text, k)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, MatchesResponse{
		Matches: matches,
		Query:   s.app.MatchService.Analyze(req.Text),
		Status:  s.app.MatchService.Status(),
	})
}

func (s *Server) handleTopMarkets(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	k := defaultTopK
	if v := r.URL.Query().Get("k"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			WriteError(w, http.StatusBadRequest, "Parameter 'k' must be a positive integer")
			return
		}
		k = parsed
	}

	markets, err := s.app.MatchService.GetTopByPopularity(r.Context(), k)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"markets": markets,
		"count":   len(markets),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	snap, err := s.app.MatchService.ForceRefresh(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"markets":  len(snap.Markets),
		"keywords": len(snap.Index),
		"built_at": snap.BuiltAt,
		"partial":  snap.Partial,
	})
}

func (s *Server) handleExportIndex(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	doc, err := s.app.MatchService.ExportIndex(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, doc)
}

// handleShutdown triggers a graceful shutdown. Disabled in production.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	if s.shutdownChan == nil {
		WriteError(w, http.StatusServiceUnavailable, "Shutdown channel not configured")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})

	go func() {
		s.shutdownChan <- struct{}{}
	}()
}

// writeEngineError maps engine errors to HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, matcher.ErrIngestion):
		WriteErrorWithCode(w, http.StatusBadGateway, err.Error(), "INGESTION_FAILED")
	case errors.Is(err, matcher.ErrNoFeed):
		WriteErrorWithCode(w, http.StatusServiceUnavailable, err.Error(), "NO_FEED")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
