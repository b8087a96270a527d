package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type Storage struct {
	Staging interface {
		EnsureTable(ctx context.Context, table string, columns []string) error
		Columns(ctx context.Context, table string) ([]string, error)
		ExistingHashes(ctx context.Context, table string, hashes []string) (map[string]struct{}, error)
		Append(ctx context.Context, table string, columns []string, rows [][]string) error
		SelectAll(ctx context.Context, table string) ([]string, [][]string, error)
		DuplicateHashes(ctx context.Context, table string) ([]HashCount, error)
	}

	Facts interface {
		EnsureTables(ctx context.Context) error
		ReplaceDespesa(ctx context.Context, years []int, rows []FactDespesa) error
		ReplaceReceita(ctx context.Context, years []int, rows []FactReceita) error
		SelectDespesa(ctx context.Context, years []int) ([]FactDespesa, error)
		SelectReceita(ctx context.Context, years []int) ([]FactReceita, error)
		DespesaYearTotals(ctx context.Context, years []int) ([]DespesaYearTotal, error)
		ReceitaYearTotals(ctx context.Context, years []int) ([]ReceitaYearTotal, error)
		Years(ctx context.Context, table string) ([]int, error)
	}

	Runs interface {
		EnsureTable(ctx context.Context) error
		Insert(ctx context.Context, run *PipelineRun) error
		Finish(ctx context.Context, id int64, status string, criticalCount, advisoryCount int) error
		GetLatest(ctx context.Context, limit int) ([]PipelineRun, error)
	}
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		Staging: &StagingStore{db: db},
		Facts:   &FactsStore{db: db},
		Runs:    &RunsStore{db: db},
	}
}
