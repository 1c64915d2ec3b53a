// Package persistence stores encoded patterns in SQLite and in standalone
// .hologram_cgh files.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/holotrain/internal/encode"
	"github.com/talgya/holotrain/internal/render"
)

// ErrNotFound is returned when a pattern id is not in the store.
var ErrNotFound = errors.New("persistence: pattern not found")

// DB wraps a SQLite connection for pattern storage.
type DB struct {
	conn *sqlx.DB
}

// PatternInfo is the metadata row of a stored pattern.
type PatternInfo struct {
	ID              string  `db:"id" json:"id"`
	Created         string  `db:"created" json:"created"`
	Width           int     `db:"width" json:"width"`
	Height          int     `db:"height" json:"height"`
	Mode            string  `db:"mode" json:"mode"`
	PhaseRange      string  `db:"phase_range" json:"phase_range"`
	Wavelength      float64 `db:"wavelength" json:"wavelength"`
	PixelPitch      float64 `db:"pixel_pitch" json:"pixel_pitch"`
	ViewingDistance float64 `db:"viewing_distance" json:"viewing_distance"`
	Scale           float64 `db:"scale" json:"scale"`
	Strategy        string  `db:"strategy" json:"strategy"`
	Sources         int     `db:"sources" json:"sources"`
	Bytes           int64   `db:"bytes" json:"bytes"`
}

// Meta converts the row back into pattern metadata.
func (pi PatternInfo) Meta() (encode.Meta, error) {
	mode, err := encode.ParseMode(pi.Mode)
	if err != nil {
		return encode.Meta{}, err
	}
	rng, err := encode.ParsePhaseRange(pi.PhaseRange)
	if err != nil {
		return encode.Meta{}, err
	}
	return encode.Meta{
		Wavelength:      pi.Wavelength,
		PixelPitch:      pi.PixelPitch,
		Width:           pi.Width,
		Height:          pi.Height,
		ViewingDistance: pi.ViewingDistance,
		Mode:            mode,
		PhaseRange:      rng,
		Scale:           pi.Scale,
		Strategy:        pi.Strategy,
		Sources:         pi.Sources,
	}, nil
}

// Run is one logged render.
type Run struct {
	PatternID string `db:"pattern_id" json:"pattern_id"`
	Created   string `db:"created" json:"created"`
	Stats     string `db:"stats_json" json:"stats"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		created TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		mode TEXT NOT NULL,
		phase_range TEXT NOT NULL,
		wavelength REAL NOT NULL,
		pixel_pitch REAL NOT NULL,
		viewing_distance REAL NOT NULL,
		scale REAL NOT NULL,
		strategy TEXT NOT NULL,
		sources INTEGER NOT NULL,
		bytes INTEGER NOT NULL,
		data BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pattern_id TEXT NOT NULL,
		created TEXT NOT NULL,
		stats_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS render_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_patterns_created ON patterns(created);
	CREATE INDEX IF NOT EXISTS idx_runs_pattern ON runs(pattern_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func now() string { return time.Now().UTC().Format(timeLayout) }

const infoColumns = `id, created, width, height, mode, phase_range, wavelength,
	pixel_pitch, viewing_distance, scale, strategy, sources, bytes`

// SavePattern stores p under a fresh id and returns it.
func (db *DB) SavePattern(p *encode.Pattern) (string, error) {
	meta := p.Meta()
	data := MarshalValues(p)
	info := PatternInfo{
		ID:              uuid.NewString(),
		Created:         now(),
		Width:           p.Width(),
		Height:          p.Height(),
		Mode:            meta.Mode.String(),
		PhaseRange:      meta.PhaseRange.String(),
		Wavelength:      meta.Wavelength,
		PixelPitch:      meta.PixelPitch,
		ViewingDistance: meta.ViewingDistance,
		Scale:           meta.Scale,
		Strategy:        meta.Strategy,
		Sources:         meta.Sources,
		Bytes:           int64(len(data)),
	}

	_, err := db.conn.Exec(`INSERT INTO patterns (`+infoColumns+`, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Created, info.Width, info.Height, info.Mode, info.PhaseRange,
		info.Wavelength, info.PixelPitch, info.ViewingDistance, info.Scale,
		info.Strategy, info.Sources, info.Bytes, data,
	)
	if err != nil {
		return "", fmt.Errorf("insert pattern: %w", err)
	}

	slog.Info("pattern saved", "id", info.ID, "size", humanize.Bytes(uint64(info.Bytes)), "mode", info.Mode)
	return info.ID, nil
}

// PatternInfo returns the metadata row for id.
func (db *DB) PatternInfo(id string) (PatternInfo, error) {
	var info PatternInfo
	err := db.conn.Get(&info, "SELECT "+infoColumns+" FROM patterns WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return info, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return info, err
}

// LoadPattern reads and validates the pattern stored under id.
func (db *DB) LoadPattern(id string) (*encode.Pattern, error) {
	info, err := db.PatternInfo(id)
	if err != nil {
		return nil, err
	}
	var data []byte
	if err := db.conn.Get(&data, "SELECT data FROM patterns WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("load pattern data: %w", err)
	}
	meta, err := info.Meta()
	if err != nil {
		return nil, fmt.Errorf("pattern %s: %w", id, err)
	}
	values, err := UnmarshalValues(data, info.Width*info.Height)
	if err != nil {
		return nil, fmt.Errorf("pattern %s: %w", id, err)
	}
	p, err := encode.NewPattern(info.Width, info.Height, values, meta)
	if err != nil {
		return nil, err
	}
	if err := encode.Validate(p); err != nil {
		return nil, fmt.Errorf("pattern %s: %w", id, err)
	}
	return p, nil
}

// ListPatterns returns the most recent patterns, newest first.
func (db *DB) ListPatterns(limit int) ([]PatternInfo, error) {
	var out []PatternInfo
	err := db.conn.Select(&out,
		"SELECT "+infoColumns+" FROM patterns ORDER BY created DESC, rowid DESC LIMIT ?",
		limit,
	)
	return out, err
}

// LatestPattern returns the id of the newest pattern.
func (db *DB) LatestPattern() (string, error) {
	list, err := db.ListPatterns(1)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", fmt.Errorf("%w: store is empty", ErrNotFound)
	}
	return list[0].ID, nil
}

// SaveRun logs the statistics of the render that produced a pattern.
func (db *DB) SaveRun(patternID string, st render.Stats) error {
	statsJSON, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		"INSERT INTO runs (pattern_id, created, stats_json) VALUES (?, ?, ?)",
		patternID, now(), string(statsJSON),
	)
	return err
}

// RecentRuns returns the most recent N runs.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		"SELECT pattern_id, created, stats_json FROM runs ORDER BY id DESC LIMIT ?",
		limit,
	)
	return runs, err
}

// SaveMeta stores a key-value pair in render metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO render_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM render_meta WHERE key = ?", key)
	return value, err
}

// SaveRender stores a finished render: the pattern, its run log, and the
// last_pattern marker.
func (db *DB) SaveRender(p *encode.Pattern, st render.Stats) (string, error) {
	id, err := db.SavePattern(p)
	if err != nil {
		return "", fmt.Errorf("save pattern: %w", err)
	}
	if err := db.SaveRun(id, st); err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	if err := db.SaveMeta("last_pattern", id); err != nil {
		return "", fmt.Errorf("save meta: %w", err)
	}
	return id, nil
}

// CountPatterns returns the number of stored patterns.
func (db *DB) CountPatterns() (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM patterns")
	return n, err
}
