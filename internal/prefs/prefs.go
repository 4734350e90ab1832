// Package prefs handles fluxgen user preferences persistence.
// Preferences are stored in ~/.config/fluxgen/prefs.toml.
package prefs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/gstredny/flux-image-generator/internal/generate"
)

// Defaults captures the generation parameters applied to new prompts.
type Defaults struct {
	Steps    int     `toml:"steps"`
	CFGScale float64 `toml:"cfg_scale"`
	Seed     int64   `toml:"seed"`
	Width    int     `toml:"width"`
	Height   int     `toml:"height"`
}

// Prefs holds user preferences for fluxgen.
type Prefs struct {
	Theme            string   `toml:"theme"`
	ShortcutsEnabled bool     `toml:"shortcuts_enabled"`
	Defaults         Defaults `toml:"defaults"`
}

const (
	defaultPrefsPath = "~/.config/fluxgen/prefs.toml"
	defaultTheme     = "Dracula"
)

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

func defaults() Prefs {
	p := generate.DefaultParams()
	return Prefs{
		Theme:            defaultTheme,
		ShortcutsEnabled: true,
		Defaults: Defaults{
			Steps:    p.Steps,
			CFGScale: p.CFGScale,
			Seed:     p.Seed,
			Width:    p.Width,
			Height:   p.Height,
		},
	}
}

// Params converts the stored defaults into generation parameters.
func (p Prefs) Params() generate.Params {
	return generate.Params{
		Steps:    p.Defaults.Steps,
		CFGScale: p.Defaults.CFGScale,
		Seed:     p.Defaults.Seed,
		Width:    p.Defaults.Width,
		Height:   p.Defaults.Height,
	}
}

// Load reads preferences from the given path, falling back to defaults if missing.
func Load(path string) (Prefs, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return defaults(), nil
	}

	prefs := defaults()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return prefs, nil
		}
		return prefs, nil // Graceful degradation
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return prefs, nil // Graceful degradation
	}

	if err := toml.Unmarshal(bytes, &prefs); err != nil {
		return defaults(), nil // Graceful degradation
	}

	if strings.TrimSpace(prefs.Theme) == "" {
		prefs.Theme = defaultTheme
	}
	if prefs.Defaults.Steps == 0 {
		prefs.Defaults = defaults().Defaults
	}

	return prefs, nil
}

// Save writes preferences to the given path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}

	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultPrefsPath)
	}
	return expandPath(path)
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
