package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type RunsStore struct {
	db *sqlx.DB
}

func (rs *RunsStore) EnsureTable(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS pipeline_runs (
		id             BIGSERIAL PRIMARY KEY,
		started_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		finished_at    TIMESTAMPTZ NULL,
		years          BIGINT[] NOT NULL,
		status         TEXT NOT NULL,
		critical_count INTEGER NOT NULL DEFAULT 0,
		advisory_count INTEGER NOT NULL DEFAULT 0,
		report_dir     TEXT NOT NULL DEFAULT ''
	)`

	if _, err := rs.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensuring pipeline_runs table: %w", err)
	}
	return nil
}

func (rs *RunsStore) Insert(ctx context.Context, run *PipelineRun) error {
	query := `INSERT INTO pipeline_runs (
		years,
		status,
		report_dir
	) VALUES (
		:years,
		:status,
		:report_dir
	) RETURNING id, started_at`

	rows, err := rs.db.NamedQueryContext(ctx, query, run)
	if err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&run.ID, &run.StartedAt); err != nil {
			return fmt.Errorf("read back pipeline run id: %w", err)
		}
	}
	return nil
}

func (rs *RunsStore) Finish(ctx context.Context, id int64, status string, criticalCount, advisoryCount int) error {
	query := `
	UPDATE pipeline_runs
	SET status = $2, critical_count = $3, advisory_count = $4, finished_at = now()
	WHERE id = $1`

	if _, err := rs.db.ExecContext(ctx, query, id, status, criticalCount, advisoryCount); err != nil {
		return fmt.Errorf("finish pipeline run %d: %w", id, err)
	}
	return nil
}

func (rs *RunsStore) GetLatest(ctx context.Context, limit int) ([]PipelineRun, error) {
	query := `
	SELECT id, started_at, finished_at, years, status, critical_count, advisory_count, report_dir
	FROM pipeline_runs
	ORDER BY started_at DESC
	LIMIT $1`

	var runs []PipelineRun
	if err := rs.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("get latest pipeline runs: %w", err)
	}
	return runs, nil
}
