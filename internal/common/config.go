// Package common provides shared utilities for marketsift
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for marketsift
type Config struct {
	Environment string           `toml:"environment"`
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Clients     ClientsConfig    `toml:"clients"`
	Vocabulary  VocabularyConfig `toml:"vocabulary"`
	Matcher     MatcherConfig    `toml:"matcher"`
	Logging     LoggingConfig    `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds snapshot persistence configuration.
// Backend selects the store implementation: "surrealdb" for a shared server
// deployment, "badger" for a self-contained embedded store, "none" to disable
// persistence entirely (the engine then always starts Empty).
type StorageConfig struct {
	Backend   string `toml:"backend"`
	Address   string `toml:"address"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Path      string `toml:"path"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Gamma GammaConfig `toml:"gamma"`
}

// GammaConfig holds the market feed API configuration
type GammaConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
	PageSize  int    `toml:"page_size"`
}

// GetTimeout parses and returns the timeout duration
func (c *GammaConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// VocabularyConfig points at the two newline-delimited keyword lists.
type VocabularyConfig struct {
	EntityPath  string `toml:"entity_path"`
	GenericPath string `toml:"generic_path"`
}

// MatcherConfig holds the engine's policy knobs. The quality, retrieval and
// weight values are policies, not constants: deployments tune them.
type MatcherConfig struct {
	Quality   QualityConfig   `toml:"quality"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Weights   WeightsConfig   `toml:"weights"`
	TTL       string          `toml:"ttl"`
	// RefreshPolicy controls what analysis calls do while a rebuild is in
	// flight and a previous snapshot exists: "stale" serves the old snapshot,
	// "wait" blocks until the rebuild completes. Startup always waits since
	// there is nothing to serve yet.
	RefreshPolicy string `toml:"refresh_policy"`
}

// QualityConfig is the corpus quality filter.
type QualityConfig struct {
	MinVolume       float64 `toml:"min_volume"`
	MinLiquidity    float64 `toml:"min_liquidity"`
	MinDaysUntilEnd float64 `toml:"min_days_until_end"`
}

// RetrievalConfig controls generic-keyword widening during retrieval.
type RetrievalConfig struct {
	WidenWithGeneric            bool `toml:"widen_with_generic"`
	MinCandidatesBeforeWidening int  `toml:"min_candidates_before_widening"`
}

// WeightsConfig parameterises the scoring formula.
type WeightsConfig struct {
	Entity       float64 `toml:"entity"`
	Generic      float64 `toml:"generic"`
	Liquidity    float64 `toml:"liquidity"`
	Volume       float64 `toml:"volume"`
	CoOccurrence float64 `toml:"co_occurrence"`
}

// GetTTL parses and returns the snapshot time-to-live.
func (c *MatcherConfig) GetTTL() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Backend:   "badger",
			Address:   "ws://localhost:8000/rpc",
			Username:  "root",
			Password:  "root",
			Namespace: "marketsift",
			Database:  "marketsift",
			Path:      "data/snapshots",
		},
		Clients: ClientsConfig{
			Gamma: GammaConfig{
				BaseURL:   "https://gamma-api.polymarket.com",
				RateLimit: 5,
				Timeout:   "30s",
				PageSize:  500,
			},
		},
		Vocabulary: VocabularyConfig{
			EntityPath:  "config/entities.txt",
			GenericPath: "config/generic.txt",
		},
		Matcher: MatcherConfig{
			Quality: QualityConfig{
				MinVolume:       1000,
				MinLiquidity:    100,
				MinDaysUntilEnd: 1,
			},
			Retrieval: RetrievalConfig{
				WidenWithGeneric:            true,
				MinCandidatesBeforeWidening: 5,
			},
			Weights: WeightsConfig{
				Entity:       15,
				Generic:      8,
				Liquidity:    2,
				Volume:       3,
				CoOccurrence: 15,
			},
			TTL:           "5m",
			RefreshPolicy: "stale",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	validateRefreshPolicy(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("MARKETSIFT_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("MARKETSIFT_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("MARKETSIFT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("MARKETSIFT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if backend := os.Getenv("MARKETSIFT_STORAGE_BACKEND"); backend != "" {
		config.Storage.Backend = backend
	}

	if addr := os.Getenv("MARKETSIFT_STORAGE_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}

	if path := os.Getenv("MARKETSIFT_DATA_PATH"); path != "" {
		config.Storage.Path = path
	}

	if url := os.Getenv("MARKETSIFT_GAMMA_BASE_URL"); url != "" {
		config.Clients.Gamma.BaseURL = url
	}

	if p := os.Getenv("MARKETSIFT_VOCAB_ENTITIES"); p != "" {
		config.Vocabulary.EntityPath = p
	}

	if p := os.Getenv("MARKETSIFT_VOCAB_GENERIC"); p != "" {
		config.Vocabulary.GenericPath = p
	}

	if ttl := os.Getenv("MARKETSIFT_TTL"); ttl != "" {
		config.Matcher.TTL = ttl
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// validateRefreshPolicy ensures RefreshPolicy is "stale" or "wait", defaulting to "stale".
func validateRefreshPolicy(config *Config) {
	rp := strings.ToLower(strings.TrimSpace(config.Matcher.RefreshPolicy))
	if rp != "stale" && rp != "wait" {
		rp = "stale"
	}
	config.Matcher.RefreshPolicy = rp
}
