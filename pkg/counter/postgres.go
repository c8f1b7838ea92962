package counter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	_ "github.com/lib/pq"

	"github.com/entrhq/pilot/pkg/logging"
	"github.com/entrhq/pilot/pkg/record"
)

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS pilot_counters (
				category VARCHAR(255) PRIMARY KEY,
				next_value BIGINT NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
		`,
		2: `
			CREATE TABLE IF NOT EXISTS pilot_executions (
				run_id VARCHAR(64) PRIMARY KEY,
				workflow VARCHAR(255) NOT NULL,
				row_id VARCHAR(255),
				status VARCHAR(20) NOT NULL CHECK (status IN ('SUCCESS', 'FAILED', 'CANCELLED')),
				message TEXT,
				error TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE NOT NULL,
				steps_completed INT NOT NULL DEFAULT 0,
				steps_failed INT NOT NULL DEFAULT 0,
				context JSONB,
				steps JSONB
			);

			CREATE INDEX IF NOT EXISTS idx_pilot_executions_workflow ON pilot_executions(workflow);
			CREATE INDEX IF NOT EXISTS idx_pilot_executions_started_at ON pilot_executions(started_at);
		`,
		3: `
			ALTER TABLE pilot_executions ADD COLUMN IF NOT EXISTS unresolved_orders JSONB;
		`,
	}
}

// Postgres is a Store and a record.Sink backed by PostgreSQL.
type Postgres struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewPostgres connects to databaseURL and applies pending migrations.
func NewPostgres(ctx context.Context, databaseURL string, logger *logging.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Postgres{db: db, logger: logger}
	if err := p.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pilot_schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := p.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM pilot_schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	all := migrations()
	versions := make([]int, 0, len(all))
	for v := range all {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	for _, v := range versions {
		if v <= current {
			continue
		}
		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", v, err)
		}
		if _, err := tx.ExecContext(ctx, all[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", v, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO pilot_schema_migrations (version) VALUES ($1)`, v); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", v, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", v, err)
		}
		p.logger.Infof("applied schema migration %d", v)
	}
	return nil
}

func (p *Postgres) Current(ctx context.Context, category string) (int64, bool, error) {
	var v int64
	err := p.db.QueryRowContext(ctx, `SELECT next_value FROM pilot_counters WHERE category = $1`, category).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read counter %s: %w", category, err)
	}
	return v, true, nil
}

func (p *Postgres) Commit(ctx context.Context, category string, next int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO pilot_counters (category, next_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (category) DO UPDATE SET next_value = EXCLUDED.next_value, updated_at = NOW()`,
		category, next)
	if err != nil {
		return fmt.Errorf("failed to commit counter %s: %w", category, err)
	}
	return nil
}

// Save stores an execution record, replacing any earlier record of the same run.
func (p *Postgres) Save(ctx context.Context, rec *record.Record) error {
	contextJSON, err := json.Marshal(rec.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal run context: %w", err)
	}
	stepsJSON, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal step results: %w", err)
	}
	unresolvedJSON, err := json.Marshal(rec.Unresolved)
	if err != nil {
		return fmt.Errorf("failed to marshal unresolved orders: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO pilot_executions (
			run_id, workflow, row_id, status, message, error, started_at, finished_at,
			steps_completed, steps_failed, context, steps, unresolved_orders
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id) DO UPDATE SET
			status = EXCLUDED.status,
			message = EXCLUDED.message,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at,
			steps_completed = EXCLUDED.steps_completed,
			steps_failed = EXCLUDED.steps_failed,
			context = EXCLUDED.context,
			steps = EXCLUDED.steps,
			unresolved_orders = EXCLUDED.unresolved_orders`,
		rec.RunID, rec.Workflow, rec.RowID, rec.Status, rec.Message, rec.Error,
		rec.StartedAt, rec.FinishedAt, rec.StepsCompleted, rec.StepsFailed,
		string(contextJSON), string(stepsJSON), string(unresolvedJSON))
	if err != nil {
		return fmt.Errorf("failed to save execution record %s: %w", rec.RunID, err)
	}
	return nil
}

// Record loads a stored execution record.
func (p *Postgres) Record(ctx context.Context, runID string) (*record.Record, error) {
	var (
		rec                    record.Record
		rowID, message, errMsg sql.NullString
		contextJSON, stepsJSON []byte
		unresolvedJSON         []byte
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT run_id, workflow, row_id, status, message, error, started_at, finished_at,
			steps_completed, steps_failed, context, steps, unresolved_orders
		FROM pilot_executions WHERE run_id = $1`, runID).Scan(
		&rec.RunID, &rec.Workflow, &rowID, &rec.Status, &message, &errMsg,
		&rec.StartedAt, &rec.FinishedAt, &rec.StepsCompleted, &rec.StepsFailed,
		&contextJSON, &stepsJSON, &unresolvedJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution record %s: %w", runID, err)
	}
	rec.RowID, rec.Message, rec.Error = rowID.String, message.String, errMsg.String

	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &rec.Context); err != nil {
			return nil, fmt.Errorf("failed to decode run context: %w", err)
		}
	}
	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &rec.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode step results: %w", err)
		}
	}
	if len(unresolvedJSON) > 0 {
		if err := json.Unmarshal(unresolvedJSON, &rec.Unresolved); err != nil {
			return nil, fmt.Errorf("failed to decode unresolved orders: %w", err)
		}
	}
	return &rec, nil
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}
