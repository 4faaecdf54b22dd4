// Package app wires configuration, clients, storage and the matching engine
// into a running application.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/marketsift/internal/clients/gamma"
	"github.com/bobmcallan/marketsift/internal/common"
	"github.com/bobmcallan/marketsift/internal/interfaces"
	"github.com/bobmcallan/marketsift/internal/services/matcher"
	"github.com/bobmcallan/marketsift/internal/storage"
	"github.com/bobmcallan/marketsift/internal/vocab"
)

// App holds all initialized services and clients. It is the shared core used
// by cmd/marketsift-server.
type App struct {
	Config       *common.Config
	Logger       *common.Logger
	Store        interfaces.SnapshotStore
	FeedClient   interfaces.MarketFeedClient
	Vocabulary   *vocab.Vocabulary
	MatchService interfaces.MatchService
	StartupTime  time.Time

	schedulerCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes the vocabulary, feed client, storage and engine.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	// Load configuration - check provided path, MARKETSIFT_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("MARKETSIFT_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "marketsift.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/marketsift.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	// The vocabulary is fatal at startup: the engine cannot tag anything
	// without it.
	vocabulary, err := vocab.Load(config.Vocabulary.EntityPath, config.Vocabulary.GenericPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load vocabulary: %w", err)
	}

	// Snapshot persistence is auxiliary: a store failure degrades to an
	// in-memory engine rather than blocking startup.
	store, err := storage.NewSnapshotStore(logger, config)
	if err != nil {
		logger.Warn().Err(err).Msg("Snapshot store unavailable - running without persistence")
		store = nil
	}

	feedClient := gamma.NewClient(
		gamma.WithBaseURL(config.Clients.Gamma.BaseURL),
		gamma.WithLogger(logger),
		gamma.WithRateLimit(config.Clients.Gamma.RateLimit),
		gamma.WithTimeout(config.Clients.Gamma.GetTimeout()),
	)

	matchService := matcher.NewService(
		vocabulary,
		feedClient,
		store,
		logger,
		config.Matcher,
		config.Clients.Gamma.PageSize,
	)

	a := &App{
		Config:       config,
		Logger:       logger,
		Store:        store,
		FeedClient:   feedClient,
		Vocabulary:   vocabulary,
		MatchService: matchService,
		StartupTime:  startupStart,
	}

	a.warmStart()

	logger.Info().
		Int("entity_keywords", len(vocabulary.Entities())).
		Int("generic_keywords", len(vocabulary.Generic())).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// warmStart loads the persisted index document, if any, so the engine serves
// a (stale) snapshot immediately instead of blocking first callers on a full
// ingestion. The TTL refresh replaces it shortly after.
func (a *App) warmStart() {
	if a.Store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	doc, err := a.Store.GetIndexDocument(ctx)
	if err != nil {
		a.Logger.Debug().Err(err).Msg("No persisted index document for warm start")
		return
	}

	if err := a.MatchService.LoadIndexDocument(doc); err != nil {
		a.Logger.Warn().Err(err).Msg("Persisted index document rejected")
		return
	}

	lastBuild, err := a.Store.GetSystemKV(ctx, "last_build")
	if err != nil {
		lastBuild = doc.BuiltAt.Format(time.RFC3339)
	}
	a.Logger.Info().
		Str("last_build", lastBuild).
		Int("markets", len(doc.Markets)).
		Msg("Warm start from persisted snapshot")
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.schedulerCancel != nil {
		a.schedulerCancel()
		a.schedulerCancel = nil
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Snapshot store close failed")
		}
		a.Store = nil
	}
}

// StartRefreshScheduler launches the background snapshot refresh goroutine.
func (a *App) StartRefreshScheduler() {
	ctx, cancel := context.WithCancel(context.Background())
	a.schedulerCancel = cancel
	go startRefreshScheduler(ctx, a.MatchService, a.Logger, schedulerInterval)
}
