// Package config handles loading and parsing fluxgen configuration files.
//
// # Overview
//
// This package reads fluxgen's TOML configuration to discover the backend
// endpoint and the locations of local state files. Because the backend
// usually lives behind a short-lived tunnel URL, the endpoint can also be
// supplied through the environment, which always wins over the file.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/fluxgen/config.toml (default)
//  3. If the config file doesn't exist, fall back to hardcoded defaults
//  4. Apply overrides from a .env file and the process environment
//
// # Default Values
//
//   - Config file: ~/.config/fluxgen/config.toml
//   - History database: ~/.local/share/fluxgen/history.db
//   - Endpoint: unset (the application starts disconnected)
//
// # Environment Overrides
//
//   - FLUXGEN_ENDPOINT: backend base URL
//   - FLUXGEN_HISTORY_DB: history database path
//
// # Configuration Fields
//
// The Config struct contains only the fields fluxgen needs:
//
//   - Endpoint: backend base URL (http or https)
//   - HistoryDB: path to the sqlite history database
//   - PrefsPath: optional override for the preferences file
package config
