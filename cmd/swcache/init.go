package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/revittco/swcache/internal/config"
)

const configHeader = `# swcache configuration
# Routes are evaluated in order; the first match wins. Requests matching
# no route pass through to the network without being cached.
#
# match: one of exact, prefix, pattern, glob or script
# strategy: cache-first, stale-while-revalidate, network-first,
#           network-only or cache-only

`

func cmdInit(args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cfg, args)

	if cfg.DBPath != memoryDB {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		st, err := openStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		_ = st.Close()
		fmt.Printf("Database created: %s\n", cfg.DBPath)
	}

	// Create default config if not exists
	if _, err := os.Stat(cfg.ConfigFile); os.IsNotExist(err) {
		data, err := defaultConfigYAML(cfg.Origin)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(cfg.ConfigFile), 0o700); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err := os.WriteFile(cfg.ConfigFile, data, 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Config file created: %s\n", cfg.ConfigFile)
	} else {
		fmt.Printf("Config file already exists: %s\n", cfg.ConfigFile)
	}

	return nil
}

// defaultConfigYAML renders the built-in config so it can be edited.
func defaultConfigYAML(origin string) ([]byte, error) {
	fc := config.Default()
	if origin == "" {
		origin = "http://localhost:8081"
	}
	fc.Origin = origin
	body, err := yaml.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return append([]byte(configHeader), body...), nil
}
