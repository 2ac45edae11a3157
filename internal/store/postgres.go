package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/plates-cli/internal/db"
	"github.com/sells-group/plates-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS records (
	production_year INTEGER,
	plate_number    BIGINT,
	first           INTEGER,
	second          INTEGER,
	third           INTEGER
);

CREATE INDEX IF NOT EXISTS first_part_index ON records(first);
CREATE INDEX IF NOT EXISTS second_part_index ON records(second);
CREATE INDEX IF NOT EXISTS third_part_index ON records(third);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source        TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at  TIMESTAMPTZ,
	rows_read     BIGINT NOT NULL DEFAULT 0,
	rows_inserted BIGINT NOT NULL DEFAULT 0,
	rows_skipped  BIGINT NOT NULL DEFAULT 0,
	error         TEXT
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// BeginLoad opens a transaction and truncates records inside it.
func (s *PostgresStore) BeginLoad(ctx context.Context) (Loader, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin load")
	}
	if _, err := tx.Exec(ctx, `TRUNCATE records`); err != nil {
		tx.Rollback(ctx) //nolint:errcheck
		return nil, eris.Wrap(err, "postgres: truncate records")
	}
	return &postgresLoader{tx: tx}, nil
}

type postgresLoader struct {
	tx pgx.Tx
}

func (l *postgresLoader) InsertRecords(ctx context.Context, records []model.PlateRecord) (int64, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		plateNumber, err := strconv.ParseInt(r.PlateNumber, 10, 64)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: plate number %q", r.PlateNumber)
		}
		rows = append(rows, []any{r.ProductionYear, plateNumber, r.First, r.Second, r.Third})
	}

	n, err := db.CopyFrom(ctx, l.tx, "records", recordColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert records")
	}
	return n, nil
}

func (l *postgresLoader) Commit(ctx context.Context) error {
	return eris.Wrap(l.tx.Commit(ctx), "postgres: commit load")
}

func (l *postgresLoader) Rollback(ctx context.Context) error {
	if err := l.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return eris.Wrap(err, "postgres: rollback load")
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(plate_number) FROM records`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count records")
	}
	return n, nil
}

func (s *PostgresStore) SegmentStats(ctx context.Context, v int) (int64, *int, error) {
	var (
		latest int
		count  int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(production_year), 0), COUNT(*) FROM records WHERE first = $1 OR second = $1 OR third = $1`,
		v,
	).Scan(&latest, &count)
	if err != nil {
		return 0, nil, eris.Wrapf(err, "postgres: segment stats %d", v)
	}
	if count == 0 {
		return 0, nil, nil
	}
	return count, &latest, nil
}

func (s *PostgresStore) ScanSegments(ctx context.Context, fn SegmentFunc) error {
	rows, err := s.pool.Query(ctx, `SELECT first, second, third FROM records`)
	if err != nil {
		return eris.Wrap(err, "postgres: scan segments")
	}
	defer rows.Close()

	for rows.Next() {
		var first, second, third int
		if err := rows.Scan(&first, &second, &third); err != nil {
			return eris.Wrap(err, "postgres: scan segment row")
		}
		if err := fn(first, second, third); err != nil {
			return err
		}
	}
	return eris.Wrap(rows.Err(), "postgres: scan segments iterate")
}

func (s *PostgresStore) StartIngest(ctx context.Context, source string) (*model.IngestRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, source, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, source, string(model.IngestStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert ingest run")
	}

	return &model.IngestRun{
		ID:        id,
		Source:    source,
		Status:    model.IngestStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteIngest(ctx context.Context, runID string, counts model.IngestCounts) error {
	return s.finishIngest(ctx, runID, model.IngestStatusComplete, counts, nil)
}

func (s *PostgresStore) FailIngest(ctx context.Context, runID string, counts model.IngestCounts, reason string) error {
	return s.finishIngest(ctx, runID, model.IngestStatusFailed, counts, &reason)
}

func (s *PostgresStore) finishIngest(ctx context.Context, runID string, status model.IngestStatus, counts model.IngestCounts, reason *string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_runs
		 SET status = $1, completed_at = $2, rows_read = $3, rows_inserted = $4, rows_skipped = $5, error = $6
		 WHERE id = $7`,
		string(status), time.Now().UTC(), counts.RowsRead, counts.RowsInserted, counts.RowsSkipped, reason, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish ingest run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("ingest run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListIngestRuns(ctx context.Context, limit int) ([]model.IngestRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, source, status, started_at, completed_at, rows_read, rows_inserted, rows_skipped, error
		 FROM ingest_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ingest runs")
	}
	defer rows.Close()

	var runs []model.IngestRun
	for rows.Next() {
		var (
			r       model.IngestRun
			status  string
			errText *string
		)
		if err := rows.Scan(&r.ID, &r.Source, &status, &r.StartedAt, &r.CompletedAt,
			&r.RowsRead, &r.RowsInserted, &r.RowsSkipped, &errText); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ingest run")
		}
		r.Status = model.IngestStatus(status)
		if errText != nil {
			r.Error = *errText
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list ingest runs iterate")
}
