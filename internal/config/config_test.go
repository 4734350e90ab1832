package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("FLUXGEN_ENDPOINT", "")
	t.Setenv("FLUXGEN_HISTORY_DB", "")

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Endpoint != "" {
		t.Fatalf("Endpoint = %q, want empty when unconfigured", cfg.Endpoint)
	}

	wantDB, err := expandPath(defaultHistoryDB)
	if err != nil {
		t.Fatalf("expandPath(defaultHistoryDB) returned error: %v", err)
	}
	if cfg.HistoryDB != wantDB {
		t.Fatalf("HistoryDB = %q, want %q", cfg.HistoryDB, wantDB)
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("FLUXGEN_ENDPOINT", "")
	t.Setenv("FLUXGEN_HISTORY_DB", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
endpoint = "  https://abc.ngrok.io  "
history_db = "  ~/.fluxgen/history.db  "
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Endpoint != "https://abc.ngrok.io" {
		t.Fatalf("Endpoint = %q, want trimmed URL", cfg.Endpoint)
	}
	if !strings.HasPrefix(cfg.HistoryDB, home) {
		t.Fatalf("HistoryDB = %q, want it under HOME %q", cfg.HistoryDB, home)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("FLUXGEN_ENDPOINT", "https://fresh.ngrok.io")
	t.Setenv("FLUXGEN_HISTORY_DB", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`endpoint = "https://stale.ngrok.io"`+"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Endpoint != "https://fresh.ngrok.io" {
		t.Fatalf("Endpoint = %q, want environment value to win", cfg.Endpoint)
	}
}

func TestLoad_EmptyValuesUseDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FLUXGEN_ENDPOINT", "")
	t.Setenv("FLUXGEN_HISTORY_DB", "")

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
endpoint = "   "
history_db = ""
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Endpoint != "" {
		t.Fatalf("Endpoint = %q, want empty", cfg.Endpoint)
	}
	wantDB, err := expandPath(defaultHistoryDB)
	if err != nil {
		t.Fatalf("expandPath(defaultHistoryDB) returned error: %v", err)
	}
	if cfg.HistoryDB != wantDB {
		t.Fatalf("HistoryDB = %q, want %q", cfg.HistoryDB, wantDB)
	}
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`endpoint = [`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatalf("Load returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("Load error = %q, want it to mention parse config", err.Error())
	}
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/a/b")
	if err != nil {
		t.Fatalf("expandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("expandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := expandPath("   "); err == nil {
		t.Fatalf("expandPath returned nil error, want error")
	}
}
