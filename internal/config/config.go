package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Agent    AgentConfig    `toml:"agent"`
	Research ResearchConfig `toml:"research"`
	Engine   EngineConfig   `toml:"engine"`
	Observer ObserverConfig `toml:"observer"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DatabaseConfig struct {
	Driver      string `toml:"driver"`
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
}

type AgentConfig struct {
	Command          string   `toml:"command"`
	Args             []string `toml:"args"`
	SystemPromptPath string   `toml:"system_prompt_path"`
	WorkspacePath    string   `toml:"workspace_path"`
	ImportPath       string   `toml:"import_path"`
}

type ResearchConfig struct {
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

type EngineConfig struct {
	MaxRounds     int `toml:"max_rounds"`
	FixBudget     int `toml:"fix_budget"`
	SettleDelayMS int `toml:"settle_delay_ms"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		Server:   ServerConfig{Addr: ":8420"},
		Database: DatabaseConfig{Path: "mica.db"},
		Agent:    AgentConfig{Command: "claude", WorkspacePath: filepath.Join(home, "mica-workspace")},
		Research: ResearchConfig{TimeoutSeconds: 30},
		Engine:   EngineConfig{MaxRounds: 32, FixBudget: 3, SettleDelayMS: 1500},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "mica.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("MICA_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("MICA_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("MICA_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("MICA_POSTGRES_URL"); v != "" {
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("MICA_AGENT_COMMAND"); v != "" {
		cfg.Agent.Command = v
	}
	if v := os.Getenv("MICA_WORKSPACE_PATH"); v != "" {
		cfg.Agent.WorkspacePath = v
	}
	if v := os.Getenv("MICA_RESEARCH_COMMAND"); v != "" {
		cfg.Research.Command = v
	}
	if os.Getenv("MICA_OBSERVER_ENABLED") == "true" || os.Getenv("MICA_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Database.Driver == "" {
		if cfg.Database.PostgresURL != "" {
			cfg.Database.Driver = "postgres"
		} else {
			cfg.Database.Driver = "sqlite"
		}
	}
	if cfg.Agent.ImportPath == "" {
		cfg.Agent.ImportPath = filepath.Join(cfg.Agent.WorkspacePath, "imports")
	}

	return cfg
}
