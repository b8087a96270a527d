package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type FactsStore struct {
	db *sqlx.DB
}

// EnsureTables creates the fact tables when missing. NUMERIC keeps the
// rebuilt values exact.
func (fs *FactsStore) EnsureTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fato_despesa (
			exercicio       INTEGER NOT NULL,
			entidade        TEXT    NOT NULL,
			valor_empenhado NUMERIC NULL,
			valor_liquidado NUMERIC NULL,
			valor_pago      NUMERIC NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fato_despesa_exercicio ON fato_despesa(exercicio)`,
		`CREATE TABLE IF NOT EXISTS fato_receita (
			exercicio     INTEGER NOT NULL,
			codigo        TEXT    NOT NULL,
			especificacao TEXT    NULL,
			previsao      NUMERIC NULL,
			arrecadacao   NUMERIC NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fato_receita_exercicio ON fato_receita(exercicio)`,
	}
	for _, stmt := range stmts {
		if _, err := fs.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring fact tables: %w", err)
		}
	}
	return nil
}

func yearsArray(years []int) pq.Int64Array {
	arr := make(pq.Int64Array, len(years))
	for i, y := range years {
		arr[i] = int64(y)
	}
	return arr
}

// ReplaceDespesa rebuilds fato_despesa for the target years: DELETE plus
// INSERT inside one transaction, so a failure can never leave a half-deleted
// year behind.
func (fs *FactsStore) ReplaceDespesa(ctx context.Context, years []int, rows []FactDespesa) error {
	tx, err := fs.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fato_despesa rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fato_despesa WHERE exercicio = ANY($1)`, yearsArray(years)); err != nil {
		return fmt.Errorf("delete fato_despesa years %v: %w", years, err)
	}

	query := `INSERT INTO fato_despesa (
		exercicio,
		entidade,
		valor_empenhado,
		valor_liquidado,
		valor_pago
	) VALUES (
		:exercicio,
		:entidade,
		:valor_empenhado,
		:valor_liquidado,
		:valor_pago
	)`

	for i := range rows {
		if _, err := tx.NamedExecContext(ctx, query, &rows[i]); err != nil {
			return fmt.Errorf("insert fato_despesa (%d, %s): %w", rows[i].Exercicio, rows[i].Entidade, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fato_despesa rebuild: %w", err)
	}
	return nil
}

// ReplaceReceita is the fato_receita counterpart of ReplaceDespesa.
func (fs *FactsStore) ReplaceReceita(ctx context.Context, years []int, rows []FactReceita) error {
	tx, err := fs.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fato_receita rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fato_receita WHERE exercicio = ANY($1)`, yearsArray(years)); err != nil {
		return fmt.Errorf("delete fato_receita years %v: %w", years, err)
	}

	query := `INSERT INTO fato_receita (
		exercicio,
		codigo,
		especificacao,
		previsao,
		arrecadacao
	) VALUES (
		:exercicio,
		:codigo,
		:especificacao,
		:previsao,
		:arrecadacao
	)`

	for i := range rows {
		if _, err := tx.NamedExecContext(ctx, query, &rows[i]); err != nil {
			return fmt.Errorf("insert fato_receita (%d, %s): %w", rows[i].Exercicio, rows[i].Codigo, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fato_receita rebuild: %w", err)
	}
	return nil
}

func (fs *FactsStore) SelectDespesa(ctx context.Context, years []int) ([]FactDespesa, error) {
	query := `
	SELECT exercicio, entidade, valor_empenhado, valor_liquidado, valor_pago
	FROM fato_despesa`

	var rows []FactDespesa
	var err error
	if len(years) > 0 {
		err = fs.db.SelectContext(ctx, &rows, query+` WHERE exercicio = ANY($1) ORDER BY exercicio, entidade`, yearsArray(years))
	} else {
		err = fs.db.SelectContext(ctx, &rows, query+` ORDER BY exercicio, entidade`)
	}
	if err != nil {
		return nil, fmt.Errorf("select fato_despesa: %w", err)
	}
	return rows, nil
}

func (fs *FactsStore) SelectReceita(ctx context.Context, years []int) ([]FactReceita, error) {
	query := `
	SELECT exercicio, codigo, especificacao, previsao, arrecadacao
	FROM fato_receita`

	var rows []FactReceita
	var err error
	if len(years) > 0 {
		err = fs.db.SelectContext(ctx, &rows, query+` WHERE exercicio = ANY($1) ORDER BY exercicio, codigo`, yearsArray(years))
	} else {
		err = fs.db.SelectContext(ctx, &rows, query+` ORDER BY exercicio, codigo`)
	}
	if err != nil {
		return nil, fmt.Errorf("select fato_receita: %w", err)
	}
	return rows, nil
}

func (fs *FactsStore) DespesaYearTotals(ctx context.Context, years []int) ([]DespesaYearTotal, error) {
	query := `
	SELECT exercicio,
		SUM(COALESCE(valor_empenhado, 0)) AS empenhado,
		SUM(COALESCE(valor_liquidado, 0)) AS liquidado,
		SUM(COALESCE(valor_pago, 0))      AS pago
	FROM fato_despesa
	WHERE ($1::int[] IS NULL OR exercicio = ANY($1))
	GROUP BY exercicio
	ORDER BY exercicio`

	var rows []DespesaYearTotal
	if err := fs.db.SelectContext(ctx, &rows, query, yearsOrNil(years)); err != nil {
		return nil, fmt.Errorf("aggregate fato_despesa by year: %w", err)
	}
	return rows, nil
}

func (fs *FactsStore) ReceitaYearTotals(ctx context.Context, years []int) ([]ReceitaYearTotal, error) {
	query := `
	SELECT exercicio,
		SUM(COALESCE(previsao, 0))    AS previsao,
		SUM(COALESCE(arrecadacao, 0)) AS arrecadacao
	FROM fato_receita
	WHERE ($1::int[] IS NULL OR exercicio = ANY($1))
	GROUP BY exercicio
	ORDER BY exercicio`

	var rows []ReceitaYearTotal
	if err := fs.db.SelectContext(ctx, &rows, query, yearsOrNil(years)); err != nil {
		return nil, fmt.Errorf("aggregate fato_receita by year: %w", err)
	}
	return rows, nil
}

func (fs *FactsStore) Years(ctx context.Context, table string) ([]int, error) {
	if table != "fato_despesa" && table != "fato_receita" {
		return nil, fmt.Errorf("unknown fact table %q", table)
	}

	var years []int
	query := fmt.Sprintf(`SELECT DISTINCT exercicio FROM %s ORDER BY exercicio`, table)
	if err := fs.db.SelectContext(ctx, &years, query); err != nil {
		return nil, fmt.Errorf("list years of %s: %w", table, err)
	}
	return years, nil
}

func yearsOrNil(years []int) interface{} {
	if len(years) == 0 {
		return nil
	}
	return yearsArray(years)
}
