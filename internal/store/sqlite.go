package store

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/plates-cli/internal/model"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// In-memory databases are pinned to a single connection so every query sees the same data.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if isMemoryDSN(dsn) {
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// NewSQLiteReadOnly opens an existing database file without writing to it.
// No pragmas are applied and the schema is not migrated.
func NewSQLiteReadOnly(path string) (*SQLiteStore, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: resolve %s", path)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}
	dsn := (&url.URL{Scheme: "file", Path: abs, RawQuery: "mode=ro"}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open read-only")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrapf(err, "sqlite: open read-only %s", path)
	}
	return &SQLiteStore{db: db}, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == MemoryDSN || strings.Contains(dsn, "mode=memory")
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS records (
	production_year INTEGER,
	plate_number    INTEGER,
	first           INTEGER,
	second          INTEGER,
	third           INTEGER
);

CREATE INDEX IF NOT EXISTS first_part_index ON records(first);
CREATE INDEX IF NOT EXISTS second_part_index ON records(second);
CREATE INDEX IF NOT EXISTS third_part_index ON records(third);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id            TEXT PRIMARY KEY,
	source        TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at  DATETIME,
	rows_read     INTEGER NOT NULL DEFAULT 0,
	rows_inserted INTEGER NOT NULL DEFAULT 0,
	rows_skipped  INTEGER NOT NULL DEFAULT 0,
	error         TEXT
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Persist copies the whole database to a file at path. The copy is written
// next to path and renamed over it, so an existing file is only replaced by
// a complete one.
func (s *SQLiteStore) Persist(ctx context.Context, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "sqlite: create temp file for %s", path)
	}
	tmpPath := tmp.Name()
	tmp.Close() //nolint:errcheck

	renamed := false
	defer func() {
		if !renamed {
			os.Remove(tmpPath) //nolint:errcheck
		}
	}()

	// VACUUM INTO accepts an existing target only when it is empty.
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, tmpPath); err != nil {
		return eris.Wrapf(err, "sqlite: persist to %s", path)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return eris.Wrapf(err, "sqlite: chmod %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return eris.Wrapf(err, "sqlite: replace %s", path)
	}
	renamed = true
	return nil
}

// BeginLoad starts a transaction that empties the records table.
func (s *SQLiteStore) BeginLoad(ctx context.Context) (Loader, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin load")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: clear records")
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (production_year, plate_number, first, second, third) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: prepare insert")
	}
	return &sqliteLoader{tx: tx, stmt: stmt}, nil
}

type sqliteLoader struct {
	tx   *sql.Tx
	stmt *sql.Stmt
}

func (l *sqliteLoader) InsertRecords(ctx context.Context, records []model.PlateRecord) (int64, error) {
	for _, r := range records {
		plateNumber, err := strconv.ParseInt(r.PlateNumber, 10, 64)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: plate number %q", r.PlateNumber)
		}
		if _, err := l.stmt.ExecContext(ctx, r.ProductionYear, plateNumber, r.First, r.Second, r.Third); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert record %s", r.PlateNumber)
		}
	}
	return int64(len(records)), nil
}

func (l *sqliteLoader) Commit(context.Context) error {
	l.stmt.Close() //nolint:errcheck
	return eris.Wrap(l.tx.Commit(), "sqlite: commit load")
}

func (l *sqliteLoader) Rollback(context.Context) error {
	l.stmt.Close() //nolint:errcheck
	if err := l.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return eris.Wrap(err, "sqlite: rollback load")
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(plate_number) FROM records`).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: count records")
	}
	return n, nil
}

func (s *SQLiteStore) SegmentStats(ctx context.Context, v int) (int64, *int, error) {
	var (
		latest sql.NullInt64
		count  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(production_year), COUNT(*) FROM records WHERE first = ?1 OR second = ?1 OR third = ?1`,
		v,
	).Scan(&latest, &count)
	if err != nil {
		return 0, nil, eris.Wrapf(err, "sqlite: segment stats %d", v)
	}
	if count == 0 || !latest.Valid {
		return count, nil, nil
	}
	year := int(latest.Int64)
	return count, &year, nil
}

func (s *SQLiteStore) ScanSegments(ctx context.Context, fn SegmentFunc) error {
	rows, err := s.db.QueryContext(ctx, `SELECT first, second, third FROM records`)
	if err != nil {
		return eris.Wrap(err, "sqlite: scan segments")
	}
	defer rows.Close()

	for rows.Next() {
		var first, second, third int
		if err := rows.Scan(&first, &second, &third); err != nil {
			return eris.Wrap(err, "sqlite: scan segment row")
		}
		if err := fn(first, second, third); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "sqlite: scan segments iterate")
}

func (s *SQLiteStore) StartIngest(ctx context.Context, source string) (*model.IngestRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, source, status, started_at) VALUES (?, ?, ?, ?)`,
		id, source, string(model.IngestStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert ingest run")
	}

	return &model.IngestRun{
		ID:        id,
		Source:    source,
		Status:    model.IngestStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteIngest(ctx context.Context, runID string, counts model.IngestCounts) error {
	return s.finishIngest(ctx, runID, model.IngestStatusComplete, counts, "")
}

func (s *SQLiteStore) FailIngest(ctx context.Context, runID string, counts model.IngestCounts, reason string) error {
	return s.finishIngest(ctx, runID, model.IngestStatusFailed, counts, reason)
}

func (s *SQLiteStore) finishIngest(ctx context.Context, runID string, status model.IngestStatus, counts model.IngestCounts, reason string) error {
	var errText sql.NullString
	if reason != "" {
		errText = sql.NullString{String: reason, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs
		 SET status = ?, completed_at = ?, rows_read = ?, rows_inserted = ?, rows_skipped = ?, error = ?
		 WHERE id = ?`,
		string(status), time.Now().UTC(), counts.RowsRead, counts.RowsInserted, counts.RowsSkipped, errText, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish ingest run %s", runID)
	}
	return checkRowsAffected(res, "ingest run", runID)
}

func (s *SQLiteStore) ListIngestRuns(ctx context.Context, limit int) ([]model.IngestRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, status, started_at, completed_at, rows_read, rows_inserted, rows_skipped, error
		 FROM ingest_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ingest runs")
	}
	defer rows.Close()

	var runs []model.IngestRun
	for rows.Next() {
		var (
			r           model.IngestRun
			completedAt sql.NullTime
			errText     sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Source, &r.Status, &r.StartedAt, &completedAt,
			&r.RowsRead, &r.RowsInserted, &r.RowsSkipped, &errText); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ingest run")
		}
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list ingest runs iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
