// Package quality runs the fixed battery of invariant checks against the
// fact tables. Every rule reports violations, never fails the data; absence
// of violations is success, and "rule ran clean" stays distinguishable from
// "rule could not run".
package quality

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/farxc/orcamento-monitor/internal/columns"
	"github.com/farxc/orcamento-monitor/internal/reports"
	"github.com/farxc/orcamento-monitor/internal/store"
)

// Rule report names, also the artifact file names.
const (
	RuleInequalities = "R1_inequalities"
	RuleNegatives    = "R2_negativos"
	RuleDuplicates   = "R3_duplicatas_staging"
	RuleReconcile    = "R4_reconcile_fatos_vs_staging"
	RuleCoverage     = "R5_cobertura_anos"
	RuleYoY          = "R6_yoy_anomalias"
	RuleStrayTotals  = "R7_receita_linhas_TOTAL"
)

// Revenue categories that are legitimately negative (deductions,
// restitutions, abatements). Matching is by normalized label because the
// portal does not keep codes stable across years; a new negative category
// outside this list is flagged for investigation, not assumed wrong.
var negReceitaAllow = map[string]struct{}{
	"renuncia":             {},
	"restituicoes":         {},
	"descontos concedidos": {},
	"outras deducoes":      {},
	"deducoes de receita para a formacao do fundeb": {},
}

func allowedNegative(label string) bool {
	_, ok := negReceitaAllow[columns.Norm(label)]
	return ok
}

// CheckMonotonicity flags every fato_despesa row violating
// pago <= liquidado <= empenhado.
func CheckMonotonicity(rows []store.FactDespesa) reports.Table {
	t := reports.Table{
		Name:    RuleInequalities,
		Columns: []string{"exercicio", "entidade", "valor_empenhado", "valor_liquidado", "valor_pago"},
	}
	for _, r := range rows {
		if r.ValorPago.LessThanOrEqual(r.ValorLiquidado) && r.ValorLiquidado.LessThanOrEqual(r.ValorEmpenhado) {
			continue
		}
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(r.Exercicio),
			r.Entidade,
			r.ValorEmpenhado.StringFixed(2),
			r.ValorLiquidado.StringFixed(2),
			r.ValorPago.StringFixed(2),
		})
	}
	return t
}

// CheckNegatives flags negative fact values. Expenditure must always be
// non-negative; revenue admits the deduction allow-list.
func CheckNegatives(despesa []store.FactDespesa, receita []store.FactReceita) reports.Table {
	t := reports.Table{
		Name:    RuleNegatives,
		Columns: []string{"tabela", "exercicio", "chave", "campo", "valor"},
	}

	for _, r := range despesa {
		fields := []struct {
			campo string
			valor decimal.Decimal
		}{
			{"valor_empenhado", r.ValorEmpenhado},
			{"valor_liquidado", r.ValorLiquidado},
			{"valor_pago", r.ValorPago},
		}
		for _, f := range fields {
			if f.valor.IsNegative() {
				t.Rows = append(t.Rows, []string{"fato_despesa", strconv.Itoa(r.Exercicio), r.Entidade, f.campo, f.valor.StringFixed(2)})
			}
		}
	}

	for _, r := range receita {
		if allowedNegative(r.Especificacao) {
			continue
		}
		if r.Previsao.IsNegative() {
			t.Rows = append(t.Rows, []string{"fato_receita", strconv.Itoa(r.Exercicio), r.Especificacao, "previsao", r.Previsao.StringFixed(2)})
		}
		if r.Arrecadacao.IsNegative() {
			t.Rows = append(t.Rows, []string{"fato_receita", strconv.Itoa(r.Exercicio), r.Especificacao, "arrecadacao", r.Arrecadacao.StringFixed(2)})
		}
	}

	return t
}

// CheckDuplicates reports repeated content hashes inside staging tables.
func CheckDuplicates(dups []store.HashCount) reports.Table {
	t := reports.Table{
		Name:    RuleDuplicates,
		Columns: []string{"tabela", "id_linha_hash", "qtd"},
	}
	for _, d := range dups {
		t.Rows = append(t.Rows, []string{d.Tabela, d.Hash, strconv.Itoa(d.Count)})
	}
	return t
}

// CheckCoverage reports expected years missing from either fact table.
func CheckCoverage(expected []int, despesaYears, receitaYears []int) reports.Table {
	t := reports.Table{
		Name:    RuleCoverage,
		Columns: []string{"tabela", "ano_ausente"},
	}
	d := intSet(despesaYears)
	r := intSet(receitaYears)
	for _, y := range expected {
		if _, ok := d[y]; !ok {
			t.Rows = append(t.Rows, []string{"fato_despesa", strconv.Itoa(y)})
		}
		if _, ok := r[y]; !ok {
			t.Rows = append(t.Rows, []string{"fato_receita", strconv.Itoa(y)})
		}
	}
	return t
}

// CheckYoY flags year-over-year swings at or above threshold in any fact
// metric. The previous value is the prior year present in the table; a swing
// is advisory, guarding against missed ingestion rather than hard errors.
func CheckYoY(despesa []store.DespesaYearTotal, receita []store.ReceitaYearTotal, threshold float64) reports.Table {
	t := reports.Table{
		Name:    RuleYoY,
		Columns: []string{"tabela", "exercicio", "yoy_abs", "valor", "valor_ano_anterior"},
	}

	type series struct {
		label  string
		points map[int]float64
	}
	var all []series

	emp := map[int]float64{}
	liq := map[int]float64{}
	pag := map[int]float64{}
	for _, r := range despesa {
		emp[r.Exercicio], _ = r.Empenhado.Float64()
		liq[r.Exercicio], _ = r.Liquidado.Float64()
		pag[r.Exercicio], _ = r.Pago.Float64()
	}
	all = append(all,
		series{"fato_despesa_empenhado", emp},
		series{"fato_despesa_liquidado", liq},
		series{"fato_despesa_pago", pag},
	)

	prev := map[int]float64{}
	arr := map[int]float64{}
	for _, r := range receita {
		prev[r.Exercicio], _ = r.Previsao.Float64()
		arr[r.Exercicio], _ = r.Arrecadacao.Float64()
	}
	all = append(all,
		series{"fato_receita_previsao", prev},
		series{"fato_receita_arrecadacao", arr},
	)

	for _, s := range all {
		years := make([]int, 0, len(s.points))
		for y := range s.points {
			years = append(years, y)
		}
		sort.Ints(years)
		for i := 1; i < len(years); i++ {
			p := s.points[years[i-1]]
			v := s.points[years[i]]
			if p == 0 {
				continue
			}
			yoy := abs((v - p) / p)
			if yoy >= threshold {
				t.Rows = append(t.Rows, []string{
					s.label,
					strconv.Itoa(years[i]),
					fmt.Sprintf("%.4f", yoy),
					fmt.Sprintf("%.2f", v),
					fmt.Sprintf("%.2f", p),
				})
			}
		}
	}
	return t
}

// CheckStrayTotals reports stg_receitas rows whose code or label still reads
// TOTAL: the anti-double-count filter upstream should have kept them out.
func CheckStrayTotals(cols []string, rows [][]string) reports.Table {
	t := reports.Table{
		Name:    RuleStrayTotals,
		Columns: []string{"colunas", "linha"},
	}

	codeCol, hasCode := columns.Resolve(cols, "codigo", "código")
	especCol, hasEspec := columns.Resolve(cols, "especificacao", "especificação")
	if !hasCode && !hasEspec {
		return t
	}

	ci := indexOf(cols, codeCol)
	si := indexOf(cols, especCol)

	header := strings.Join(cols, "|")
	for _, row := range rows {
		total := false
		if hasCode && isTotal(row[ci]) {
			total = true
		}
		if hasEspec && isTotal(row[si]) {
			total = true
		}
		if total {
			t.Rows = append(t.Rows, []string{header, strings.Join(row, "|")})
		}
	}
	return t
}

func isTotal(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "TOTAL")
}

func indexOf(cols []string, col string) int {
	for i, c := range cols {
		if c == col {
			return i
		}
	}
	return -1
}

func intSet(xs []int) map[int]struct{} {
	out := make(map[int]struct{}, len(xs))
	for _, x := range xs {
		out[x] = struct{}{}
	}
	return out
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
