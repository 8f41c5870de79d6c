// Package regiondb persists dimensions and generated regions in SQLite.
package regiondb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"terrastream.ai/internal/persistence/regionblob"
	"terrastream.ai/internal/sim/terrain/region"
)

type Store struct {
	db  *sql.DB
	log *log.Logger
}

var _ region.Store = (*Store)(nil)

func Open(path string, logger *log.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single connection: SQLite serialises writers anyway, and one connection
	// keeps ":memory:" databases shared across the worker pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, log: logger}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS dimensions (
			id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			params_json TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS regions (
			dimension TEXT NOT NULL REFERENCES dimensions(id),
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			biome TEXT NOT NULL,
			settlement TEXT NOT NULL,
			placements INTEGER NOT NULL,
			blob BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (dimension, x, y)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_regions_settlement ON regions(dimension, settlement);`,
		`INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', '1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) GetOrCreateDimension(ctx context.Context, id string, seed int64, params region.Params) (region.Dimension, error) {
	pj, err := json.Marshal(params)
	if err != nil {
		return region.Dimension{}, err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO dimensions(id, seed, params_json, created_at) VALUES (?,?,?,?)`,
		id, seed, string(pj), now)
	if err != nil {
		return region.Dimension{}, fmt.Errorf("insert dimension %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 && s.log != nil {
		s.log.Printf("created dimension %s seed=%d", id, seed)
	}

	var (
		d       region.Dimension
		rawJSON string
	)
	row := s.db.QueryRowContext(ctx, `SELECT id, seed, params_json FROM dimensions WHERE id=?`, id)
	if err := row.Scan(&d.ID, &d.Seed, &rawJSON); err != nil {
		return region.Dimension{}, fmt.Errorf("load dimension %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(rawJSON), &d.Params); err != nil {
		return region.Dimension{}, fmt.Errorf("dimension %s params: %w", id, err)
	}
	return d, nil
}

func (s *Store) GetRegion(ctx context.Context, dim string, c region.Coord) (*region.Region, error) {
	var blob []byte
	row := s.db.QueryRowContext(ctx, `SELECT blob FROM regions WHERE dimension=? AND x=? AND y=?`, dim, c.X, c.Y)
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select region %s/%s: %w", dim, c, err)
	}
	gotDim, r, err := regionblob.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("decode region %s/%s: %w", dim, c, err)
	}
	if gotDim != dim || r.Coord != c {
		return nil, fmt.Errorf("region %s/%s: blob is for %s/%s", dim, c, gotDim, r.Coord)
	}
	return r, nil
}

// PutRegion upserts; the last writer wins.
func (s *Store) PutRegion(ctx context.Context, dim string, r *region.Region) error {
	blob, err := regionblob.Encode(dim, r)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `INSERT INTO regions(dimension, x, y, biome, settlement, placements, blob, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(dimension, x, y) DO UPDATE SET
			biome=excluded.biome,
			settlement=excluded.settlement,
			placements=excluded.placements,
			blob=excluded.blob,
			updated_at=excluded.updated_at`,
		dim, r.Coord.X, r.Coord.Y, string(r.Biome), string(r.Settlement), len(r.Placements), blob, now)
	if err != nil {
		return fmt.Errorf("upsert region %s/%s: %w", dim, r.Coord, err)
	}
	return nil
}

// RegionRow is the index view of a stored region.
type RegionRow struct {
	Coord      region.Coord
	Biome      string
	Settlement string
	Placements int
	BlobBytes  int
	UpdatedAt  string
}

// ListRegions returns stored regions of a dimension ordered by coordinate.
func (s *Store) ListRegions(ctx context.Context, dim string) ([]RegionRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT x, y, biome, settlement, placements, length(blob), updated_at
		FROM regions WHERE dimension=? ORDER BY x, y`, dim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RegionRow
	for rows.Next() {
		var r RegionRow
		if err := rows.Scan(&r.Coord.X, &r.Coord.Y, &r.Biome, &r.Settlement, &r.Placements, &r.BlobBytes, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListDimensions returns every dimension record ordered by ID.
func (s *Store) ListDimensions(ctx context.Context) ([]region.Dimension, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, seed, params_json FROM dimensions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []region.Dimension
	for rows.Next() {
		var (
			d   region.Dimension
			raw string
		)
		if err := rows.Scan(&d.ID, &d.Seed, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &d.Params); err != nil {
			return nil, fmt.Errorf("dimension %s params: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
