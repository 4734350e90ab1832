// Package config locates and parses fluxgen configuration. The config
// file is TOML; the backend endpoint can also arrive through the
// environment (or a .env file), which wins over the file because tunnel
// URLs change every backend restart.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config captures the fields fluxgen needs to reach the backend and
// store local state.
type Config struct {
	Endpoint  string
	HistoryDB string
	PrefsPath string
}

const (
	defaultConfigPath = "~/.config/fluxgen/config.toml"
	defaultHistoryDB  = "~/.local/share/fluxgen/history.db"

	envEndpoint  = "FLUXGEN_ENDPOINT"
	envHistoryDB = "FLUXGEN_HISTORY_DB"
)

// Load locates and parses the config, falling back to defaults when
// missing, then applies .env/environment overrides.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{HistoryDB: defaultHistoryDB}

	file, err := os.Open(resolved)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
	} else {
		defer func() { _ = file.Close() }()

		bytes, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}

		var raw struct {
			Endpoint  string `toml:"endpoint"`
			HistoryDB string `toml:"history_db"`
			PrefsPath string `toml:"prefs_path"`
		}
		if err := toml.Unmarshal(bytes, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}

		cfg.Endpoint = strings.TrimSpace(raw.Endpoint)
		cfg.PrefsPath = strings.TrimSpace(raw.PrefsPath)
		cfg.HistoryDB = strings.TrimSpace(raw.HistoryDB)
		if cfg.HistoryDB == "" {
			cfg.HistoryDB = defaultHistoryDB
		}
	}

	applyEnv(&cfg)
	cfg.HistoryDB = mustExpand(cfg.HistoryDB)
	return cfg, nil
}

// applyEnv layers .env and process environment over the file config.
func applyEnv(cfg *Config) {
	// Best effort; a missing .env file is the normal case.
	_ = godotenv.Load()

	if v := strings.TrimSpace(os.Getenv(envEndpoint)); v != "" {
		cfg.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(envHistoryDB)); v != "" {
		cfg.HistoryDB = v
	}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
