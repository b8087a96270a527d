package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// StagingStore persists lightly-normalized source rows. Staging tables are
// all-TEXT: the portal's column set drifts release to release, so the schema
// follows whatever the export carried and resolution happens downstream.
type StagingStore struct {
	db *sqlx.DB
}

func (ss *StagingStore) EnsureTable(ctx context.Context, table string, columns []string) error {
	defs := make([]string, 0, len(columns)+2)
	for _, c := range columns {
		defs = append(defs, pq.QuoteIdentifier(c)+" TEXT")
	}
	defs = append(defs, pq.QuoteIdentifier(ColRowHash)+" TEXT")
	defs = append(defs, pq.QuoteIdentifier(ColExtractedAt)+" TIMESTAMPTZ NOT NULL DEFAULT now()")

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pq.QuoteIdentifier(table), strings.Join(defs, ", "))
	if _, err := ss.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure staging table %s: %w", table, err)
	}

	// A re-export may add columns an older table is missing.
	for _, c := range columns {
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT", pq.QuoteIdentifier(table), pq.QuoteIdentifier(c))
		if _, err := ss.db.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("add column %s to %s: %w", c, table, err)
		}
	}
	return nil
}

func (ss *StagingStore) Columns(ctx context.Context, table string) ([]string, error) {
	query := `
	SELECT column_name
	FROM information_schema.columns
	WHERE table_schema = current_schema() AND table_name = $1
	ORDER BY ordinal_position`

	var cols []string
	if err := ss.db.SelectContext(ctx, &cols, query, table); err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("staging table %s not found", table)
	}
	return cols, nil
}

func (ss *StagingStore) ExistingHashes(ctx context.Context, table string, hashes []string) (map[string]struct{}, error) {
	if len(hashes) == 0 {
		return map[string]struct{}{}, nil
	}

	query := fmt.Sprintf(
		"SELECT DISTINCT %s FROM %s WHERE %s = ANY($1)",
		pq.QuoteIdentifier(ColRowHash), pq.QuoteIdentifier(table), pq.QuoteIdentifier(ColRowHash))

	var found []string
	if err := ss.db.SelectContext(ctx, &found, query, pq.Array(hashes)); err != nil {
		return nil, fmt.Errorf("look up existing hashes in %s: %w", table, err)
	}

	out := make(map[string]struct{}, len(found))
	for _, h := range found {
		out[h] = struct{}{}
	}
	return out, nil
}

func (ss *StagingStore) Append(ctx context.Context, table string, columns []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pq.QuoteIdentifier(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		pq.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	tx, err := ss.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin staging append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare staging append on %s: %w", table, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("row width %d does not match %d columns of %s", len(row), len(columns), table)
		}
		args := make([]interface{}, len(row))
		for i, v := range row {
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("append row into %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit staging append on %s: %w", table, err)
	}
	return nil
}

func (ss *StagingStore) SelectAll(ctx context.Context, table string) ([]string, [][]string, error) {
	cols, err := ss.Columns(ctx, table)
	if err != nil {
		return nil, nil, err
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("COALESCE(%s::text, '')", pq.QuoteIdentifier(c))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), pq.QuoteIdentifier(table))

	dbRows, err := ss.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("select staging rows from %s: %w", table, err)
	}
	defer dbRows.Close()

	var rows [][]string
	for dbRows.Next() {
		vals := make([]string, len(cols))
		scan := make([]interface{}, len(cols))
		for i := range vals {
			scan[i] = &vals[i]
		}
		if err := dbRows.Scan(scan...); err != nil {
			return nil, nil, fmt.Errorf("scan staging row from %s: %w", table, err)
		}
		rows = append(rows, vals)
	}
	if err := dbRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate staging rows from %s: %w", table, err)
	}
	return cols, rows, nil
}

func (ss *StagingStore) DuplicateHashes(ctx context.Context, table string) ([]HashCount, error) {
	query := fmt.Sprintf(`
	SELECT $1::text AS tabela, %s, COUNT(*) AS qtd
	FROM %s
	GROUP BY %s
	HAVING COUNT(*) > 1`,
		pq.QuoteIdentifier(ColRowHash), pq.QuoteIdentifier(table), pq.QuoteIdentifier(ColRowHash))

	var out []HashCount
	if err := ss.db.SelectContext(ctx, &out, query, table); err != nil {
		return nil, fmt.Errorf("look up duplicate hashes in %s: %w", table, err)
	}
	return out, nil
}
