package quality

import (
	"context"

	"github.com/farxc/orcamento-monitor/internal/logger"
	"github.com/farxc/orcamento-monitor/internal/reconcile"
	"github.com/farxc/orcamento-monitor/internal/reports"
	"github.com/farxc/orcamento-monitor/internal/store"
)

// Source is the data the rule battery reads. Only the duplicate and
// stray-total rules touch staging; everything else reads facts.
type Source interface {
	FactDespesa(ctx context.Context) ([]store.FactDespesa, error)
	FactReceita(ctx context.Context) ([]store.FactReceita, error)
	DespesaYearTotals(ctx context.Context) ([]store.DespesaYearTotal, error)
	ReceitaYearTotals(ctx context.Context) ([]store.ReceitaYearTotal, error)
	FactYears(ctx context.Context, table string) ([]int, error)
	StagingDuplicates(ctx context.Context) ([]store.HashCount, error)
	StagingReceitaRows(ctx context.Context) ([]string, [][]string, error)
}

type Config struct {
	// ExpectedYears drives the coverage rule; empty skips it.
	ExpectedYears []int
	YoYThreshold  float64
}

// RuleResult carries one rule's outcome. Err set means the rule could not
// run, which is a different state from an empty table.
type RuleResult struct {
	Rule     string
	Critical bool
	Err      error
	Table    reports.Table
}

func (r RuleResult) Violations() int {
	return len(r.Table.Rows)
}

type Engine struct {
	src    Source
	logger *logger.Logger
}

func NewEngine(src Source, appLogger *logger.Logger) *Engine {
	return &Engine{src: src, logger: appLogger}
}

// Run executes the battery. Reconciliation rows are computed by the caller
// (the reconciliation engine owns that logic) and enter the battery as the
// R4 result so severity and reporting stay uniform. Monotonicity and
// reconciliation are the build-blocking rules; the rest are advisory.
func (e *Engine) Run(ctx context.Context, cfg Config, reconRows []reconcile.Row) []RuleResult {
	const component = "QualityEngine"

	var results []RuleResult

	despesa, despesaErr := e.src.FactDespesa(ctx)
	receita, receitaErr := e.src.FactReceita(ctx)

	// R1
	r1 := RuleResult{Rule: RuleInequalities, Critical: true}
	if despesaErr != nil {
		r1.Err = despesaErr
	} else {
		r1.Table = CheckMonotonicity(despesa)
	}
	results = append(results, r1)

	// R2
	r2 := RuleResult{Rule: RuleNegatives}
	switch {
	case despesaErr != nil:
		r2.Err = despesaErr
	case receitaErr != nil:
		r2.Err = receitaErr
	default:
		r2.Table = CheckNegatives(despesa, receita)
	}
	results = append(results, r2)

	// R3
	r3 := RuleResult{Rule: RuleDuplicates}
	if dups, err := e.src.StagingDuplicates(ctx); err != nil {
		r3.Err = err
	} else {
		r3.Table = CheckDuplicates(dups)
	}
	results = append(results, r3)

	// R4
	results = append(results, RuleResult{
		Rule:     RuleReconcile,
		Critical: true,
		Table:    reports.ReconciliationTable(RuleReconcile, reconRows),
	})

	// R5
	if len(cfg.ExpectedYears) > 0 {
		r5 := RuleResult{Rule: RuleCoverage}
		dYears, errD := e.src.FactYears(ctx, "fato_despesa")
		rYears, errR := e.src.FactYears(ctx, "fato_receita")
		switch {
		case errD != nil:
			r5.Err = errD
		case errR != nil:
			r5.Err = errR
		default:
			r5.Table = CheckCoverage(cfg.ExpectedYears, dYears, rYears)
		}
		results = append(results, r5)
	}

	// R6
	r6 := RuleResult{Rule: RuleYoY}
	dTotals, errD := e.src.DespesaYearTotals(ctx)
	rTotals, errR := e.src.ReceitaYearTotals(ctx)
	switch {
	case errD != nil:
		r6.Err = errD
	case errR != nil:
		r6.Err = errR
	default:
		r6.Table = CheckYoY(dTotals, rTotals, cfg.YoYThreshold)
	}
	results = append(results, r6)

	// R7
	r7 := RuleResult{Rule: RuleStrayTotals}
	if cols, rows, err := e.src.StagingReceitaRows(ctx); err != nil {
		r7.Err = err
	} else {
		r7.Table = CheckStrayTotals(cols, rows)
	}
	results = append(results, r7)

	for _, r := range results {
		switch {
		case r.Err != nil:
			e.logger.Error(component, "Rule could not run: rule=%s error=%v", r.Rule, r.Err)
		case r.Violations() > 0:
			e.logger.Warn(component, "Rule flagged rows: rule=%s violations=%d critical=%v", r.Rule, r.Violations(), r.Critical)
		default:
			e.logger.Debug(component, "Rule clean: rule=%s", r.Rule)
		}
	}
	return results
}
