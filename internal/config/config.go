package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.refbox/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	// RetentionDays is how long archived inbox items are kept before the
	// janitor purges them.
	RetentionDays int `toml:"retention_days"`

	// PurgeIntervalMinutes is how often the daemon runs the retention purge.
	PurgeIntervalMinutes int `toml:"purge_interval_minutes"`

	// PubMedBaseURL is the NCBI E-utilities endpoint used for PMID lookups.
	PubMedBaseURL string `toml:"pubmed_base_url"`

	// CrossrefBaseURL is the Crossref REST endpoint used for DOI lookups.
	CrossrefBaseURL string `toml:"crossref_base_url"`

	// ProbeURL is polled to derive the reachability signal. Empty disables
	// probing and the tracker stays at its default "online".
	ProbeURL string `toml:"probe_url"`

	// ProbeIntervalSeconds is how often the reachability probe runs.
	ProbeIntervalSeconds int `toml:"probe_interval_seconds"`

	// FetchTimeoutSeconds bounds each metadata fetch request.
	FetchTimeoutSeconds int `toml:"fetch_timeout_seconds"`
}

// Default returns a config with all defaults applied.
func Default() *Config {
	return &Config{
		DefaultProfile:       "main",
		RetentionDays:        30,
		PurgeIntervalMinutes: 60,
		PubMedBaseURL:        "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
		CrossrefBaseURL:      "https://api.crossref.org",
		ProbeURL:             "",
		ProbeIntervalSeconds: 30,
		FetchTimeoutSeconds:  15,
	}
}

// Load reads config from the given path, filling unset fields with defaults.
// Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadOrDefault reads config from path, falling back to Default() when the
// file does not exist.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.DefaultProfile == "" {
		cfg.DefaultProfile = def.DefaultProfile
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = def.RetentionDays
	}
	if cfg.PurgeIntervalMinutes <= 0 {
		cfg.PurgeIntervalMinutes = def.PurgeIntervalMinutes
	}
	if cfg.PubMedBaseURL == "" {
		cfg.PubMedBaseURL = def.PubMedBaseURL
	}
	if cfg.CrossrefBaseURL == "" {
		cfg.CrossrefBaseURL = def.CrossrefBaseURL
	}
	if cfg.ProbeIntervalSeconds <= 0 {
		cfg.ProbeIntervalSeconds = def.ProbeIntervalSeconds
	}
	if cfg.FetchTimeoutSeconds <= 0 {
		cfg.FetchTimeoutSeconds = def.FetchTimeoutSeconds
	}
}
