package main

import (
	"context"

	"github.com/farxc/orcamento-monitor/internal/store"
)

// storeSource feeds the quality engine from the database.
type storeSource struct {
	storage *store.Storage
}

func (s *storeSource) FactDespesa(ctx context.Context) ([]store.FactDespesa, error) {
	return s.storage.Facts.SelectDespesa(ctx, nil)
}

func (s *storeSource) FactReceita(ctx context.Context) ([]store.FactReceita, error) {
	return s.storage.Facts.SelectReceita(ctx, nil)
}

func (s *storeSource) DespesaYearTotals(ctx context.Context) ([]store.DespesaYearTotal, error) {
	return s.storage.Facts.DespesaYearTotals(ctx, nil)
}

func (s *storeSource) ReceitaYearTotals(ctx context.Context) ([]store.ReceitaYearTotal, error) {
	return s.storage.Facts.ReceitaYearTotals(ctx, nil)
}

func (s *storeSource) FactYears(ctx context.Context, table string) ([]int, error) {
	return s.storage.Facts.Years(ctx, table)
}

func (s *storeSource) StagingDuplicates(ctx context.Context) ([]store.HashCount, error) {
	tables := []string{
		store.StgDespesasEmpenhadas,
		store.StgDespesasLiquidadas,
		store.StgDespesasPagas,
		store.StgReceitas,
	}
	var out []store.HashCount
	for _, table := range tables {
		dups, err := s.storage.Staging.DuplicateHashes(ctx, table)
		if err != nil {
			return nil, err
		}
		out = append(out, dups...)
	}
	return out, nil
}

func (s *storeSource) StagingReceitaRows(ctx context.Context) ([]string, [][]string, error) {
	return s.storage.Staging.SelectAll(ctx, store.StgReceitas)
}
