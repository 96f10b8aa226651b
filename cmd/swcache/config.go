package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/revittco/swcache/internal/network"
)

// memoryDB selects the in-process store instead of sqlite.
const memoryDB = "memory"

// Config holds process configuration loaded from environment variables.
// The route table lives in the YAML file named by ConfigFile.
type Config struct {
	HTTPAddr string `env:"SWCACHE_HTTP_ADDR" envDefault:"127.0.0.1:8080"`
	// DBPath is a sqlite file, or "memory" for an ephemeral store.
	DBPath     string `env:"SWCACHE_DB_PATH"`
	ConfigFile string `env:"SWCACHE_CONFIG"`
	// Origin overrides the origin named in the config file.
	Origin   string `env:"SWCACHE_ORIGIN"`
	LogLevel string `env:"SWCACHE_LOG_LEVEL" envDefault:"info"`
	// Bodies are sealed with the age identity at AgeKeyPath. Encrypt without
	// a key path generates one next to the database.
	AgeKeyPath      string        `env:"SWCACHE_AGE_KEY"`
	Encrypt         bool          `env:"SWCACHE_ENCRYPT"`
	Compress        bool          `env:"SWCACHE_COMPRESS" envDefault:"true"`
	FetchTimeout    time.Duration `env:"SWCACHE_FETCH_TIMEOUT" envDefault:"60s"`
	MaxBodyBytes    int64         `env:"SWCACHE_MAX_BODY_BYTES"`
	ShutdownTimeout time.Duration `env:"SWCACHE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RedactParams    []string      `env:"SWCACHE_REDACT_PARAMS" envSeparator:","`
}

// defaultDataPath returns ~/.swcache/<filename>, falling back to
// a CWD-relative path if the home directory can't be resolved.
func defaultDataPath(filename string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filename
	}
	return filepath.Join(home, ".swcache", filename)
}

func loadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDataPath("swcache.db")
	}
	if cfg.ConfigFile == "" {
		cfg.ConfigFile = defaultDataPath("swcache.yaml")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = network.DefaultMaxBodyBytes
	}
	return cfg, nil
}

// applyFlags parses --name=value overrides from the args list and returns
// the remaining positional arguments.
func applyFlags(cfg *Config, args []string) []string {
	var rest []string
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || !strings.HasPrefix(name, "--") {
			rest = append(rest, arg)
			continue
		}
		switch name {
		case "--addr":
			cfg.HTTPAddr = value
		case "--config":
			cfg.ConfigFile = value
		case "--db":
			cfg.DBPath = value
		case "--origin":
			cfg.Origin = value
		case "--log-level":
			cfg.LogLevel = value
		default:
			rest = append(rest, arg)
		}
	}
	return rest
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
