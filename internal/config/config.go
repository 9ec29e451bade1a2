package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the full runtime configuration loaded at startup.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Search      SearchConfig              `json:"search"`
	Pipeline    PipelineConfig            `json:"pipeline"`
}

type BasicConfig struct {
	ServerAddress      string `json:"server_address"`
	MinWorkers         int    `json:"min_workers"`
	MaxWorkers         int    `json:"max_workers"`
	WorkerIdleTimeout  int    `json:"worker_idle_timeout"`  // minutes
	NewsRefreshMinutes int    `json:"news_refresh_minutes"` // monitor poll cadence
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// SearchConfig selects the web-search provider chain. Provider is the
// preferred provider name ("duckduckgo" or "google"); any other configured
// provider serves as fallback.
type SearchConfig struct {
	Provider   string `json:"provider"`
	MaxResults int    `json:"max_results"`
}

// PipelineConfig controls the chat turn. Provider names an entry in
// Providers. PersistApologyReply decides whether an AI failure leaves the
// turn unanswered (false) or stores a fixed apology reply (true).
type PipelineConfig struct {
	Provider            string `json:"provider"`
	Model               string `json:"model"`
	PersistApologyReply bool   `json:"persist_apology_reply"`
}

// Load parses the config file at path, falling back to config.json, and
// resolves relative DSNs against the config file's directory.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}
	for name, db := range cfg.Databases {
		if db.DSN != "" && db.DSN != ":memory:" && !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}
	if cfg.Pipeline.Provider == "" {
		return nil, fmt.Errorf("pipeline provider must be configured")
	}
	if _, ok := cfg.Providers[cfg.Pipeline.Provider]; !ok {
		return nil, fmt.Errorf("pipeline provider %s not found in providers", cfg.Pipeline.Provider)
	}

	return &cfg, nil
}
