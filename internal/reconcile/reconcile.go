// Package reconcile cross-checks the same semantic aggregate computed from
// two pipeline layers. A discrepancy at the raw/staging boundary points at an
// ingestion bug; at the staging/fact boundary, at an aggregation bug. The two
// boundaries are never merged into a single flag.
package reconcile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/farxc/orcamento-monitor/internal/columns"
	"github.com/farxc/orcamento-monitor/internal/facts"
	"github.com/farxc/orcamento-monitor/internal/numeric"
	"github.com/farxc/orcamento-monitor/internal/store"
)

type Boundary string

const (
	RawVsStaging  Boundary = "raw_vs_staging"
	StagingVsFact Boundary = "staging_vs_fact"
)

// Metrics compared per year.
const (
	MetricEmpenhado   = "empenhado"
	MetricLiquidado   = "liquidado"
	MetricPago        = "pago"
	MetricPrevisao    = "previsao"
	MetricArrecadacao = "arrecadacao"
)

// Totals holds one layer's aggregates per year per metric.
type Totals map[int]map[string]decimal.Decimal

func (t Totals) add(year int, metric string, v decimal.Decimal) {
	m := t[year]
	if m == nil {
		m = map[string]decimal.Decimal{}
		t[year] = m
	}
	m[metric] = m[metric].Add(v)
}

// Row is one flagged (year, metric) comparison.
type Row struct {
	Year     int
	Metric   string
	Boundary Boundary
	SourceA  decimal.Decimal
	SourceB  decimal.Decimal
	AbsDiff  decimal.Decimal
}

// Compare emits one row per (year, metric) whose absolute difference reaches
// the threshold. Agreement produces no output; a metric present on only one
// side is skipped here, year coverage is a quality rule's concern.
func Compare(a, b Totals, boundary Boundary, threshold decimal.Decimal) []Row {
	var out []Row
	for _, year := range unionYears(a, b) {
		for _, metric := range unionMetrics(a[year], b[year]) {
			va, okA := a[year][metric]
			vb, okB := b[year][metric]
			if !okA || !okB {
				continue
			}
			diff := va.Sub(vb).Abs()
			if diff.GreaterThanOrEqual(threshold) {
				out = append(out, Row{
					Year:     year,
					Metric:   metric,
					Boundary: boundary,
					SourceA:  va,
					SourceB:  vb,
					AbsDiff:  diff,
				})
			}
		}
	}
	return out
}

// FactDespesaTotals shapes fact-layer expenditure aggregates for comparison.
func FactDespesaTotals(rows []store.DespesaYearTotal) Totals {
	t := Totals{}
	for _, r := range rows {
		t.add(r.Exercicio, MetricEmpenhado, r.Empenhado)
		t.add(r.Exercicio, MetricLiquidado, r.Liquidado)
		t.add(r.Exercicio, MetricPago, r.Pago)
	}
	return t
}

// FactReceitaTotals shapes fact-layer revenue aggregates for comparison.
func FactReceitaTotals(rows []store.ReceitaYearTotal) Totals {
	t := Totals{}
	for _, r := range rows {
		t.add(r.Exercicio, MetricPrevisao, r.Previsao)
		t.add(r.Exercicio, MetricArrecadacao, r.Arrecadacao)
	}
	return t
}

// StagingDespesaTotals recomputes the expenditure aggregates straight from
// the staging relations, resolving the same value columns the Fact Builder
// resolves but summing by year only.
func StagingDespesaTotals(emp, liq, pag facts.Relation) (Totals, error) {
	t := Totals{}
	if err := sumInto(t, emp, MetricEmpenhado, facts.EmpenhadoValueColumns(emp.Columns)); err != nil {
		return nil, err
	}
	if err := sumInto(t, liq, MetricLiquidado, facts.LiquidadoValueColumns(liq.Columns)); err != nil {
		return nil, err
	}
	if err := sumInto(t, pag, MetricPago, facts.PagoValueColumns(pag.Columns)); err != nil {
		return nil, err
	}
	return t, nil
}

// StagingReceitaTotals recomputes revenue aggregates from stg_receitas by
// year, excluding grand-total rows the same way the Fact Builder does.
func StagingReceitaTotals(rel facts.Relation) (Totals, error) {
	yearCol, ok := columns.Resolve(rel.Columns, "exercicio", "ano")
	if !ok {
		return nil, fmt.Errorf("no year column found in %s (columns: %v)", rel.Table, rel.Columns)
	}
	prevCol, okPrev := columns.Resolve(rel.Columns, "previsao", "previsão")
	arrCol, okArr := columns.Resolve(rel.Columns, "arrecadacao", "arrecadação")
	if !okPrev || !okArr {
		return nil, fmt.Errorf("no value columns found in %s (columns: %v)", rel.Table, rel.Columns)
	}
	codeCol, hasCode := columns.Resolve(rel.Columns, "codigo", "código")

	yi := idx(rel, yearCol)
	pi := idx(rel, prevCol)
	ai := idx(rel, arrCol)
	ci := -1
	if hasCode {
		ci = idx(rel, codeCol)
	}

	t := Totals{}
	for _, row := range rel.Rows {
		year, ok := parseYear(row[yi])
		if !ok {
			continue
		}
		if hasCode && strings.EqualFold(strings.TrimSpace(row[ci]), "TOTAL") {
			continue
		}
		t.add(year, MetricPrevisao, numeric.Parse(row[pi]).Value)
		t.add(year, MetricArrecadacao, numeric.Parse(row[ai]).Value)
	}
	return t, nil
}

// MetricTotals sums a single metric from one relation. Raw-layer callers use
// it when the three expenditure stages arrive as separate per-file relations
// instead of one staging table each.
func MetricTotals(rel facts.Relation, metric string, valueCols []string) (Totals, error) {
	t := Totals{}
	if err := sumInto(t, rel, metric, valueCols); err != nil {
		return nil, err
	}
	return t, nil
}

// Merge folds src into dst, adding overlapping (year, metric) cells.
func Merge(dst, src Totals) {
	for year, metrics := range src {
		for metric, v := range metrics {
			dst.add(year, metric, v)
		}
	}
}

func sumInto(t Totals, rel facts.Relation, metric string, valueCols []string) error {
	yearCol, ok := columns.Resolve(rel.Columns, "exercicio", "ano")
	if !ok {
		return fmt.Errorf("no year column found in %s (columns: %v)", rel.Table, rel.Columns)
	}
	yi := idx(rel, yearCol)

	vis := make([]int, 0, len(valueCols))
	for _, c := range valueCols {
		vis = append(vis, idx(rel, c))
	}

	for _, row := range rel.Rows {
		year, ok := parseYear(row[yi])
		if !ok {
			continue
		}
		sum := decimal.Zero
		for _, vi := range vis {
			sum = sum.Add(numeric.Parse(row[vi]).Value)
		}
		t.add(year, metric, sum)
	}
	return nil
}

// Summary condenses a comparison run for the log and the report footer.
type Summary struct {
	Flagged     int
	MaxAbsDiff  float64
	MeanAbsDiff float64
}

func Summarize(rows []Row) Summary {
	if len(rows) == 0 {
		return Summary{}
	}
	diffs := make([]float64, len(rows))
	for i, r := range rows {
		diffs[i], _ = r.AbsDiff.Float64()
	}
	return Summary{
		Flagged:     len(rows),
		MaxAbsDiff:  floats.Max(diffs),
		MeanAbsDiff: stat.Mean(diffs, nil),
	}
}

func unionYears(a, b Totals) []int {
	set := map[int]struct{}{}
	for y := range a {
		set[y] = struct{}{}
	}
	for y := range b {
		set[y] = struct{}{}
	}
	out := make([]int, 0, len(set))
	for y := range set {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

func unionMetrics(a, b map[string]decimal.Decimal) []string {
	set := map[string]struct{}{}
	for m := range a {
		set[m] = struct{}{}
	}
	for m := range b {
		set[m] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func idx(rel facts.Relation, col string) int {
	for i, c := range rel.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

func parseYear(s string) (int, bool) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || y < 1900 || y > 2200 {
		return 0, false
	}
	return y, true
}
