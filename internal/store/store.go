package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// FetchRecord is the outcome of fetching one source during one build.
type FetchRecord struct {
	ID        int64
	Source    string
	Kind      string
	StartedAt time.Time
	Duration  time.Duration
	Items     int
	Error     string
}

// BuildRecord is the outcome of one pipeline run. Only counts are kept; the
// report itself is never persisted.
type BuildRecord struct {
	ID        int64
	StartedAt time.Time
	Duration  time.Duration
	Themes    int
	Items     int
	Error     string
}

// SourceHealth summarizes recent fetches of one source.
type SourceHealth struct {
	Source    string
	Fetches   int
	Failures  int
	LastFetch time.Time
	LastError string
	LastItems int
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only allows one writer at a time. Limit pool to 1 connection
	// so concurrent goroutines queue at the Go level instead of hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS source_fetches (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			source      TEXT NOT NULL,
			kind        TEXT NOT NULL DEFAULT '',
			started_at  TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			item_count  INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_source_fetches_source ON source_fetches(source);
		CREATE INDEX IF NOT EXISTS idx_source_fetches_started_at ON source_fetches(started_at);

		CREATE TABLE IF NOT EXISTS report_builds (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at  TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			theme_count INTEGER NOT NULL DEFAULT 0,
			item_count  INTEGER NOT NULL DEFAULT 0,
			error       TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_report_builds_started_at ON report_builds(started_at);
	`)
	return err
}

// RecordFetch appends one source fetch outcome.
// Times are stored in UTC for consistent comparison.
func (s *Store) RecordFetch(ctx context.Context, r FetchRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_fetches (source, kind, started_at, duration_ms, item_count, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.Source, r.Kind, r.StartedAt.UTC().Format(timeLayout), r.Duration.Milliseconds(), r.Items, r.Error)
	if err != nil {
		return fmt.Errorf("record fetch %s: %w", r.Source, err)
	}
	return nil
}

// RecordBuild appends one pipeline run outcome.
func (s *Store) RecordBuild(ctx context.Context, r BuildRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_builds (started_at, duration_ms, theme_count, item_count, error)
		VALUES (?, ?, ?, ?, ?)
	`, r.StartedAt.UTC().Format(timeLayout), r.Duration.Milliseconds(), r.Themes, r.Items, r.Error)
	if err != nil {
		return fmt.Errorf("record build: %w", err)
	}
	return nil
}

// RecentFetches returns the latest fetch records, newest first.
func (s *Store) RecentFetches(ctx context.Context, limit int) ([]FetchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, kind, started_at, duration_ms, item_count, error
		FROM source_fetches
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []FetchRecord
	for rows.Next() {
		var (
			r         FetchRecord
			startedAt string
			ms        int64
		)
		if err := rows.Scan(&r.ID, &r.Source, &r.Kind, &startedAt, &ms, &r.Items, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(startedAt)
		r.Duration = time.Duration(ms) * time.Millisecond
		records = append(records, r)
	}
	return records, rows.Err()
}

// RecentBuilds returns the latest build records, newest first.
func (s *Store) RecentBuilds(ctx context.Context, limit int) ([]BuildRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, duration_ms, theme_count, item_count, error
		FROM report_builds
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []BuildRecord
	for rows.Next() {
		var (
			r         BuildRecord
			startedAt string
			ms        int64
		)
		if err := rows.Scan(&r.ID, &startedAt, &ms, &r.Themes, &r.Items, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(startedAt)
		r.Duration = time.Duration(ms) * time.Millisecond
		records = append(records, r)
	}
	return records, rows.Err()
}

// SourceHealthByWindow aggregates fetches per source within the window.
// Supported windows: "24h", "3days", "7days".
func (s *Store) SourceHealthByWindow(ctx context.Context, window string) ([]SourceHealth, error) {
	cutoff, err := windowCutoff(window)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.source,
		       COUNT(*),
		       SUM(CASE WHEN f.error != '' THEN 1 ELSE 0 END),
		       MAX(f.started_at),
		       (SELECT l.error FROM source_fetches l WHERE l.source = f.source ORDER BY l.started_at DESC, l.id DESC LIMIT 1),
		       (SELECT l.item_count FROM source_fetches l WHERE l.source = f.source ORDER BY l.started_at DESC, l.id DESC LIMIT 1)
		FROM source_fetches f
		WHERE f.started_at >= ?
		GROUP BY f.source
		ORDER BY f.source ASC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceHealth
	for rows.Next() {
		var (
			h    SourceHealth
			last string
		)
		if err := rows.Scan(&h.Source, &h.Fetches, &h.Failures, &last, &h.LastError, &h.LastItems); err != nil {
			return nil, err
		}
		h.LastFetch = parseTime(last)
		out = append(out, h)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// windowCutoff returns the UTC cutoff time formatted for SQLite comparison.
func windowCutoff(window string) (string, error) {
	var d time.Duration
	switch window {
	case "24h":
		d = 24 * time.Hour
	case "3days":
		d = 72 * time.Hour
	case "7days":
		d = 168 * time.Hour
	default:
		return "", fmt.Errorf("unsupported time window: %s (use 24h, 3days, or 7days)", window)
	}
	return time.Now().UTC().Add(-d).Format(timeLayout), nil
}
