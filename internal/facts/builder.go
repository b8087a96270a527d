// Package facts aggregates staged rows into the two canonical fact
// relations: expenditure by (exercicio, entidade) and revenue by
// (exercicio, codigo). Column names are resolved dynamically per staging
// table since the three expenditure stages may name the same dimension
// differently release to release.
package facts

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/farxc/orcamento-monitor/internal/anexo10"
	"github.com/farxc/orcamento-monitor/internal/columns"
	"github.com/farxc/orcamento-monitor/internal/logger"
	"github.com/farxc/orcamento-monitor/internal/numeric"
	"github.com/farxc/orcamento-monitor/internal/store"
)

// Relation is one staged table held in memory: column names as stored plus
// raw text rows aligned to them.
type Relation struct {
	Table   string
	Columns []string
	Rows    [][]string
}

func (r Relation) index(col string) int {
	for i, c := range r.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

var (
	yearCandidates   = []string{"exercicio", "ano"}
	entityCandidates = []string{"entidade", "orgão", "orgao", "unidade_orcamentaria", "unidade orcamentaria", "unidade"}
	especCandidates  = []string{"especificacao", "especificação", "descricao", "descrição"}
)

type Builder struct {
	logger *logger.Logger
}

func NewBuilder(appLogger *logger.Logger) *Builder {
	return &Builder{logger: appLogger}
}

type despesaKey struct {
	year   int
	entity string
}

// BuildDespesa aggregates the three expenditure stage tables into
// fato_despesa rows for the target years. Liquidated and paid each sum a
// budget component and a remaining-payables component. The stage aggregates
// are full-outer-joined on (year, entity): an entity present in only one
// stage still yields a row, with the missing stages at zero.
func (b *Builder) BuildDespesa(emp, liq, pag Relation, years []int) ([]store.FactDespesa, error) {
	const component = "FactBuilder"

	target := yearSet(years)

	empVals, err := b.sumStage(emp, target, b.empenhadoColumns(emp))
	if err != nil {
		return nil, err
	}
	liqVals, err := b.sumStage(liq, target, b.liquidadoColumns(liq))
	if err != nil {
		return nil, err
	}
	pagVals, err := b.sumStage(pag, target, b.pagoColumns(pag))
	if err != nil {
		return nil, err
	}

	keys := map[despesaKey]struct{}{}
	for k := range empVals {
		keys[k] = struct{}{}
	}
	for k := range liqVals {
		keys[k] = struct{}{}
	}
	for k := range pagVals {
		keys[k] = struct{}{}
	}

	out := make([]store.FactDespesa, 0, len(keys))
	for k := range keys {
		out = append(out, store.FactDespesa{
			Exercicio:      k.year,
			Entidade:       k.entity,
			ValorEmpenhado: empVals[k],
			ValorLiquidado: liqVals[k],
			ValorPago:      pagVals[k],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Exercicio != out[j].Exercicio {
			return out[i].Exercicio < out[j].Exercicio
		}
		return out[i].Entidade < out[j].Entidade
	})

	b.logger.Info(component, "Despesa aggregated: years=%v entities=%d", years, len(out))
	return out, nil
}

// Value columns per stage. A stage whose value column cannot be resolved
// contributes zero with a warning; a missing year or entity column is a hard
// stop, since a fact keyed by a wrong dimension is worse than no fact.
func (b *Builder) empenhadoColumns(rel Relation) []string {
	return b.warnIfEmpty(rel, EmpenhadoValueColumns(rel.Columns))
}

func (b *Builder) liquidadoColumns(rel Relation) []string {
	return b.warnIfEmpty(rel, LiquidadoValueColumns(rel.Columns))
}

func (b *Builder) pagoColumns(rel Relation) []string {
	return b.warnIfEmpty(rel, PagoValueColumns(rel.Columns))
}

func (b *Builder) warnIfEmpty(rel Relation, cols []string) []string {
	const component = "FactBuilder"
	if len(cols) == 0 {
		b.logger.Warn(component, "No value column resolved: table=%s columns=%v", rel.Table, rel.Columns)
	}
	return cols
}

// EmpenhadoValueColumns resolves the committed-stage value column: the
// liquid value when present, the gross committed value otherwise.
func EmpenhadoValueColumns(actual []string) []string {
	if col, ok := columns.ResolveContains(actual, "liquido"); ok {
		return []string{col}
	}
	if col, ok := columns.ResolveContains(actual, "empenhad"); ok {
		return []string{col}
	}
	return nil
}

// LiquidadoValueColumns resolves the liquidated-stage components: budget and
// remaining payables, to be summed.
func LiquidadoValueColumns(actual []string) []string {
	var cols []string
	if col, ok := columns.ResolveContains(actual, "liquid", "orcamento"); ok {
		cols = append(cols, col)
	}
	if col, ok := firstContains(actual, [][]string{{"liquid", "restos"}, {"liquid", "pagar"}}); ok {
		cols = append(cols, col)
	}
	return cols
}

// PagoValueColumns resolves the paid-stage components: budget and remaining
// payables, to be summed.
func PagoValueColumns(actual []string) []string {
	var cols []string
	if col, ok := firstContains(actual, [][]string{{"pago", "orcamento"}, {"pago", "orc"}}); ok {
		cols = append(cols, col)
	}
	if col, ok := firstContains(actual, [][]string{{"pago", "restos"}, {"pago", "pagar"}}); ok {
		cols = append(cols, col)
	}
	return cols
}

func firstContains(actual []string, alternatives [][]string) (string, bool) {
	for _, toks := range alternatives {
		if col, ok := columns.ResolveContains(actual, toks...); ok {
			return col, true
		}
	}
	return "", false
}

func (b *Builder) sumStage(rel Relation, target map[int]struct{}, valueCols []string) (map[despesaKey]decimal.Decimal, error) {
	const component = "FactBuilder"

	yearCol, ok := columns.Resolve(rel.Columns, yearCandidates...)
	if !ok {
		return nil, fmt.Errorf("no year column found in %s (columns: %v)", rel.Table, rel.Columns)
	}
	entityCol, ok := columns.Resolve(rel.Columns, entityCandidates...)
	if !ok {
		return nil, fmt.Errorf("no entity column found in %s (columns: %v)", rel.Table, rel.Columns)
	}

	yi := rel.index(yearCol)
	ei := rel.index(entityCol)
	vis := make([]int, 0, len(valueCols))
	for _, c := range valueCols {
		vis = append(vis, rel.index(c))
	}

	skipped := 0
	out := map[despesaKey]decimal.Decimal{}
	for _, row := range rel.Rows {
		year, ok := parseYear(row[yi])
		if !ok {
			skipped++
			continue
		}
		if _, want := target[year]; !want {
			continue
		}
		k := despesaKey{year: year, entity: strings.TrimSpace(row[ei])}
		sum := out[k]
		for _, vi := range vis {
			sum = sum.Add(numeric.Parse(row[vi]).Value)
		}
		out[k] = sum
	}
	if skipped > 0 {
		b.logger.Debug(component, "Rows without a parseable year skipped: table=%s count=%d", rel.Table, skipped)
	}
	return out, nil
}

type receitaKey struct {
	year int
	code string
}

// BuildReceita aggregates stg_receitas into fato_receita rows grouped by
// (year, code), carrying the longest non-empty label seen for each code.
// When the staging table has no code column the label itself becomes the
// grouping key.
func (b *Builder) BuildReceita(rel Relation, years []int) ([]store.FactReceita, error) {
	const component = "FactBuilder"

	target := yearSet(years)

	yearCol, ok := columns.Resolve(rel.Columns, yearCandidates...)
	if !ok {
		return nil, fmt.Errorf("no year column found in %s (columns: %v)", rel.Table, rel.Columns)
	}
	especCol, ok := columns.Resolve(rel.Columns, especCandidates...)
	if !ok {
		return nil, fmt.Errorf("no label column found in %s (columns: %v)", rel.Table, rel.Columns)
	}
	prevCol, ok := columns.Resolve(rel.Columns, "previsao", "previsão")
	if !ok {
		return nil, fmt.Errorf("no previsao column found in %s (columns: %v)", rel.Table, rel.Columns)
	}
	arrCol, ok := columns.Resolve(rel.Columns, "arrecadacao", "arrecadação")
	if !ok {
		return nil, fmt.Errorf("no arrecadacao column found in %s (columns: %v)", rel.Table, rel.Columns)
	}

	codeCol, hasCode := columns.Resolve(rel.Columns, "codigo", "código")
	if !hasCode {
		b.logger.Warn(component, "No code column in %s; grouping by label", rel.Table)
	}

	yi := rel.index(yearCol)
	si := rel.index(especCol)
	pi := rel.index(prevCol)
	ai := rel.index(arrCol)
	ci := -1
	if hasCode {
		ci = rel.index(codeCol)
	}

	type agg struct {
		prev, arr decimal.Decimal
		label     string
	}
	sums := map[receitaKey]*agg{}

	for _, row := range rel.Rows {
		year, ok := parseYear(row[yi])
		if !ok {
			continue
		}
		if _, want := target[year]; !want {
			continue
		}

		label := strings.TrimSpace(row[si])
		code := label
		if hasCode {
			code = strings.TrimSpace(row[ci])
		}
		if anexo10.IsTotalLabel(code) || anexo10.IsTotalLabel(label) {
			// Grand-total rows must never enter aggregation.
			continue
		}

		k := receitaKey{year: year, code: code}
		a := sums[k]
		if a == nil {
			a = &agg{}
			sums[k] = a
		}
		a.prev = a.prev.Add(numeric.Parse(row[pi]).Value)
		a.arr = a.arr.Add(numeric.Parse(row[ai]).Value)
		if len(label) > len(a.label) {
			a.label = label
		}
	}

	out := make([]store.FactReceita, 0, len(sums))
	for k, a := range sums {
		out = append(out, store.FactReceita{
			Exercicio:     k.year,
			Codigo:        k.code,
			Especificacao: a.label,
			Previsao:      a.prev,
			Arrecadacao:   a.arr,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Exercicio != out[j].Exercicio {
			return out[i].Exercicio < out[j].Exercicio
		}
		return out[i].Codigo < out[j].Codigo
	})

	b.logger.Info(component, "Receita aggregated: years=%v codes=%d", years, len(out))
	return out, nil
}

func parseYear(s string) (int, bool) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || y < 1900 || y > 2200 {
		return 0, false
	}
	return y, true
}

func yearSet(years []int) map[int]struct{} {
	out := make(map[int]struct{}, len(years))
	for _, y := range years {
		out[y] = struct{}{}
	}
	return out
}
