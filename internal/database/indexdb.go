package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/ctfindex/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "ctfindex.db"

// timeLayout is the fixed-width layout timestamps are stored with, so that
// text ordering matches chronological ordering.
const timeLayout = "2006-01-02 15:04:05.000000000"

// ErrDatabaseNotFound is returned by Open when the database does not exist
// and CreateIfNotExists is false.
var ErrDatabaseNotFound = errors.New("database not found")

// IndexDB stores crawl runs and their write-ups.
type IndexDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures IndexDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if needed.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the IndexDB in dbDir.
func Open(dbDir string, opts Options) (*IndexDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	mode := "rwc"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
		mode = "rw"
	}

	dsn := dbPath + "?mode=" + mode + "&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	idb := &IndexDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := idb.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return idb, nil
}

// Close closes the database connection.
func (idb *IndexDB) Close() error {
	return idb.db.Close()
}

// Path returns the database file path.
func (idb *IndexDB) Path() string {
	return idb.dbPath
}

func (idb *IndexDB) createTables(ctx context.Context) error {
	schema := `
	-- One row per crawl run of a site
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		site TEXT NOT NULL,
		base_url TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		writeup_count INTEGER NOT NULL DEFAULT 0,
		pages_visited INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT '',
		index_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_site ON runs(site);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Classified write-ups of each run
	CREATE TABLE IF NOT EXISTS writeups (
		run INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		year TEXT NOT NULL,
		ctf TEXT NOT NULL,
		category TEXT NOT NULL,
		title TEXT NOT NULL,
		placeholder INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY(run, url)
	);

	CREATE INDEX IF NOT EXISTS idx_writeups_ctf ON writeups(year, ctf);

	-- Pages fetched during each run
	CREATE TABLE IF NOT EXISTS pages (
		run INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY(run, url)
	);
	`

	_, err := idb.db.ExecContext(ctx, schema)
	return err
}

// RunMetadata summarizes a stored run without loading its index.
type RunMetadata struct {
	// ID is the database identifier, used by `compare --with-run-id`.
	ID int64

	// RunID is the UUID of the run.
	RunID string

	// Site is the configured site name.
	Site string

	// StartedAt is when the run started.
	StartedAt time.Time

	// WriteupCount, PagesVisited and FailureCount are the run counters.
	WriteupCount int
	PagesVisited int
	FailureCount int

	// Status is the run status (see model.Index.Status).
	Status string
}

// SaveIndex stores a run with its write-ups and pages in one transaction
// and returns the database ID of the run.
func (idb *IndexDB) SaveIndex(ctx context.Context, idx *model.Index) (int64, error) {
	indexJSON, err := json.Marshal(idx)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize index: %w", err)
	}

	tx, err := idb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var finishedAt sql.NullString
	if !idx.FinishedAt.IsZero() {
		finishedAt = sql.NullString{String: formatTimestamp(idx.FinishedAt), Valid: true}
	}

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (run_id, site, base_url, started_at, finished_at,
		writeup_count, pages_visited, failure_count, status, index_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idx.RunID,
		idx.Site,
		idx.BaseURL,
		formatTimestamp(idx.StartedAt),
		finishedAt,
		idx.WriteupCount(),
		idx.PagesVisited,
		len(idx.FetchFailures),
		idx.Status(),
		string(indexJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	for _, r := range idx.Records {
		_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO writeups (run, url, year, ctf, category, title, placeholder)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, r.URL, r.Year, r.CTF, r.Category, r.Title, r.Placeholder,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert write-up %s: %w", r.URL, err)
		}
	}

	for _, v := range idx.Visits {
		_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO pages (run, url, status_code, error)
		VALUES (?, ?, ?, ?)`,
			id, v.URL, v.StatusCode, v.Error,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert page %s: %w", v.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// GetIndexByID returns the stored index of a run, or nil if there is none.
func (idb *IndexDB) GetIndexByID(ctx context.Context, id int64) (*model.Index, error) {
	var indexJSON string
	err := idb.db.QueryRowContext(ctx, `SELECT index_json FROM runs WHERE id = ?`, id).Scan(&indexJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}
	return decodeIndex(indexJSON)
}

// GetLatestIndex returns the most recent index of a site, or nil if the
// site was never crawled.
func (idb *IndexDB) GetLatestIndex(ctx context.Context, site string) (*model.Index, error) {
	var indexJSON string
	err := idb.db.QueryRowContext(ctx, `
	SELECT index_json FROM runs
	WHERE site = ?
	ORDER BY started_at DESC, id DESC
	LIMIT 1`, site).Scan(&indexJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run of %s: %w", site, err)
	}
	return decodeIndex(indexJSON)
}

func decodeIndex(indexJSON string) (*model.Index, error) {
	var idx model.Index
	if err := json.Unmarshal([]byte(indexJSON), &idx); err != nil {
		return nil, fmt.Errorf("failed to parse index: %w", err)
	}
	return &idx, nil
}

// GetRunHistory returns the runs of a site, newest first.
func (idb *IndexDB) GetRunHistory(ctx context.Context, site string) ([]RunMetadata, error) {
	rows, err := idb.db.QueryContext(ctx, `
	SELECT id, run_id, site, started_at, writeup_count, pages_visited, failure_count, status
	FROM runs
	WHERE site = ?
	ORDER BY started_at DESC, id DESC`, site)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	defer rows.Close()

	var history []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var startedAt string
		if err := rows.Scan(
			&meta.ID,
			&meta.RunID,
			&meta.Site,
			&startedAt,
			&meta.WriteupCount,
			&meta.PagesVisited,
			&meta.FailureCount,
			&meta.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		meta.StartedAt = parseTimestamp(startedAt)
		history = append(history, meta)
	}
	return history, rows.Err()
}

// ListSites returns the names of all sites with stored runs, sorted.
func (idb *IndexDB) ListSites(ctx context.Context) ([]string, error) {
	rows, err := idb.db.QueryContext(ctx, `SELECT DISTINCT site FROM runs ORDER BY site`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// GetWriteups returns the write-ups stored for a run, sorted like the reports.
func (idb *IndexDB) GetWriteups(ctx context.Context, id int64) ([]model.Record, error) {
	rows, err := idb.db.QueryContext(ctx, `
	SELECT url, year, ctf, category, title, placeholder
	FROM writeups
	WHERE run = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get write-ups of run %d: %w", id, err)
	}
	defer rows.Close()

	records := make([]model.Record, 0)
	for rows.Next() {
		var r model.Record
		if err := rows.Scan(&r.URL, &r.Year, &r.CTF, &r.Category, &r.Title, &r.Placeholder); err != nil {
			return nil, fmt.Errorf("failed to scan write-up: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	model.SortRecords(records)
	return records, nil
}

// SummarizeRun counts the write-ups of a run per (year, competition).
func (idb *IndexDB) SummarizeRun(ctx context.Context, id int64) ([]model.GroupCount, error) {
	rows, err := idb.db.QueryContext(ctx, `
	SELECT year, ctf, COUNT(*)
	FROM writeups
	WHERE run = ?
	GROUP BY year, ctf
	ORDER BY year, ctf`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize run %d: %w", id, err)
	}
	defer rows.Close()

	groups := make([]model.GroupCount, 0)
	for rows.Next() {
		var g model.GroupCount
		if err := rows.Scan(&g.Year, &g.CTF, &g.Count); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GetFailedPages returns the pages of a run that could not be retrieved.
func (idb *IndexDB) GetFailedPages(ctx context.Context, id int64) ([]model.Visit, error) {
	rows, err := idb.db.QueryContext(ctx, `
	SELECT url, status_code, error
	FROM pages
	WHERE run = ? AND error != ''
	ORDER BY url`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get pages of run %d: %w", id, err)
	}
	defer rows.Close()

	var visits []model.Visit
	for rows.Next() {
		var v model.Visit
		if err := rows.Scan(&v.URL, &v.StatusCode, &v.Error); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// DeleteRun removes a run with its write-ups and pages.
func (idb *IndexDB) DeleteRun(ctx context.Context, id int64) error {
	if _, err := idb.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run %d: %w", id, err)
	}
	return nil
}

// formatTimestamp renders t in UTC with timeLayout.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// timestampFormats contains the timestamp formats parseTimestamp accepts.
// The order matters: more specific formats come first.
var timestampFormats = []string{
	timeLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339Nano,
}

// parseTimestamp parses a stored timestamp as UTC, returning the zero time
// when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
