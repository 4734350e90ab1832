// Package history stores completed generations in a local sqlite file
// for the history/replay surface. Writes come through fire-and-forget
// from the orchestrator; retention keeps the newest entries under a cap.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	cron "github.com/robfig/cron/v3"
	_ "modernc.org/sqlite"

	"github.com/gstredny/flux-image-generator/internal/generate"
)

// DefaultCap is the retention limit; oldest entries beyond it are pruned.
const DefaultCap = 100

// Record is one stored generation.
type Record struct {
	ID        string
	Prompt    string
	Steps     int
	CFGScale  float64
	Seed      int64
	Width     int
	Height    int
	Image     string
	Duration  float64
	CreatedAt time.Time
}

// migrations returns the schema statements. Each string is a single SQL
// statement (sqlite executes one at a time).
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS generations (
			id         TEXT PRIMARY KEY,
			prompt     TEXT NOT NULL,
			steps      INTEGER NOT NULL,
			cfg_scale  REAL NOT NULL,
			seed       INTEGER NOT NULL,
			width      INTEGER NOT NULL,
			height     INTEGER NOT NULL,
			image      TEXT NOT NULL,
			duration   REAL NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_generations_created ON generations(created_at)`,
	}
}

// Store is the sqlite-backed persistence adapter.
type Store struct {
	db      *sql.DB
	cap     int
	sweeper *cron.Cron
}

// Open creates or opens the history database at path, applying the
// schema and starting the hourly retention sweep.
func Open(path string) (*Store, error) {
	return OpenWithCap(path, DefaultCap)
}

// OpenWithCap is Open with an explicit retention cap (used by tests).
func OpenWithCap(path string, retain int) (*Store, error) {
	if retain <= 0 {
		retain = DefaultCap
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	for _, stmt := range migrations() {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply history schema: %w", err)
		}
	}

	s := &Store{db: db, cap: retain, sweeper: cron.New()}
	if _, err := s.sweeper.AddFunc("@every 1h", func() {
		if err := s.prune(); err != nil {
			log.Printf("[history] retention sweep failed: %v", err)
		}
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schedule retention sweep: %w", err)
	}
	s.sweeper.Start()
	return s, nil
}

// Close stops the retention sweep and closes the database.
func (s *Store) Close() error {
	s.sweeper.Stop()
	return s.db.Close()
}

// Put stores a completed generation and prunes past the retention cap.
// Implements generate.Recorder.
func (s *Store) Put(res generate.Result) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO generations
			(id, prompt, steps, cfg_scale, seed, width, height, image, duration, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.Prompt, res.Params.Steps, res.Params.CFGScale, res.Params.Seed,
		res.Params.Width, res.Params.Height, res.Image, res.Duration, res.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	return s.prune()
}

// List returns up to limit records, most recent first. limit <= 0 means
// everything up to the retention cap.
func (s *Store) List(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = s.cap
	}
	rows, err := s.db.Query(
		`SELECT id, prompt, steps, cfg_scale, seed, width, height, image, duration, created_at
		 FROM generations ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var rec Record
		var createdNanos int64
		if err := rows.Scan(&rec.ID, &rec.Prompt, &rec.Steps, &rec.CFGScale, &rec.Seed,
			&rec.Width, &rec.Height, &rec.Image, &rec.Duration, &createdNanos); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		rec.CreatedAt = time.Unix(0, createdNanos)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (*Record, error) {
	row := s.db.QueryRow(
		`SELECT id, prompt, steps, cfg_scale, seed, width, height, image, duration, created_at
		 FROM generations WHERE id = ?`, id)
	var rec Record
	var createdNanos int64
	err := row.Scan(&rec.ID, &rec.Prompt, &rec.Steps, &rec.CFGScale, &rec.Seed,
		&rec.Width, &rec.Height, &rec.Image, &rec.Duration, &createdNanos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get generation: %w", err)
	}
	rec.CreatedAt = time.Unix(0, createdNanos)
	return &rec, nil
}

// Delete removes one record by id.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM generations WHERE id = ?`, id)
	return err
}

// Clear removes all records.
func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM generations`)
	return err
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM generations`).Scan(&n)
	return n, err
}

func (s *Store) prune() error {
	_, err := s.db.Exec(
		`DELETE FROM generations WHERE id NOT IN
			(SELECT id FROM generations ORDER BY created_at DESC LIMIT ?)`, s.cap)
	if err != nil {
		return fmt.Errorf("prune generations: %w", err)
	}
	return nil
}
