package quality

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/farxc/orcamento-monitor/internal/logger"
	"github.com/farxc/orcamento-monitor/internal/reconcile"
	"github.com/farxc/orcamento-monitor/internal/store"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCheckMonotonicityFlagsPaidAboveLiquidated(t *testing.T) {
	rows := []store.FactDespesa{
		{Exercicio: 2023, Entidade: "Prefeitura", ValorEmpenhado: dec("200"), ValorLiquidado: dec("100"), ValorPago: dec("150")},
		{Exercicio: 2023, Entidade: "Camara", ValorEmpenhado: dec("300"), ValorLiquidado: dec("250"), ValorPago: dec("250")},
	}

	got := CheckMonotonicity(rows)
	if len(got.Rows) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(got.Rows))
	}
	if got.Rows[0][1] != "Prefeitura" {
		t.Errorf("expected Prefeitura flagged, got %q", got.Rows[0][1])
	}
}

func TestCheckMonotonicityEqualityIsClean(t *testing.T) {
	rows := []store.FactDespesa{
		{Exercicio: 2022, Entidade: "Fundo", ValorEmpenhado: dec("100"), ValorLiquidado: dec("100"), ValorPago: dec("100")},
	}
	if got := CheckMonotonicity(rows); len(got.Rows) != 0 {
		t.Fatalf("equal values must pass, got %d violations", len(got.Rows))
	}
}

func TestCheckNegativesDespesa(t *testing.T) {
	rows := []store.FactDespesa{
		{Exercicio: 2023, Entidade: "Prefeitura", ValorEmpenhado: dec("100"), ValorLiquidado: dec("-5"), ValorPago: dec("0")},
	}

	got := CheckNegatives(rows, nil)
	if len(got.Rows) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(got.Rows))
	}
	if got.Rows[0][3] != "valor_liquidado" {
		t.Errorf("expected valor_liquidado flagged, got %q", got.Rows[0][3])
	}
}

func TestCheckNegativesReceitaAllowList(t *testing.T) {
	rows := []store.FactReceita{
		{Exercicio: 2023, Codigo: "9", Especificacao: "Deduções de receita para a formação do FUNDEB", Previsao: dec("-1000"), Arrecadacao: dec("-900")},
		{Exercicio: 2023, Codigo: "1", Especificacao: "Receita Tributária", Previsao: dec("-10"), Arrecadacao: dec("50")},
	}

	got := CheckNegatives(nil, rows)
	if len(got.Rows) != 1 {
		t.Fatalf("expected only non-allow-listed row flagged, got %d", len(got.Rows))
	}
	if got.Rows[0][2] != "Receita Tributária" || got.Rows[0][3] != "previsao" {
		t.Errorf("unexpected flagged row: %v", got.Rows[0])
	}
}

func TestCheckDuplicates(t *testing.T) {
	got := CheckDuplicates([]store.HashCount{
		{Tabela: "stg_receitas", Hash: "abc123", Count: 3},
	})
	if len(got.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got.Rows))
	}
	if got.Rows[0][2] != "3" {
		t.Errorf("expected count 3, got %q", got.Rows[0][2])
	}
}

func TestCheckCoverage(t *testing.T) {
	got := CheckCoverage([]int{2021, 2022, 2023}, []int{2021, 2022, 2023}, []int{2021, 2023})
	if len(got.Rows) != 1 {
		t.Fatalf("expected 1 missing year, got %d: %v", len(got.Rows), got.Rows)
	}
	if got.Rows[0][0] != "fato_receita" || got.Rows[0][1] != "2022" {
		t.Errorf("unexpected row: %v", got.Rows[0])
	}
}

func TestCheckYoY(t *testing.T) {
	despesa := []store.DespesaYearTotal{
		{Exercicio: 2021, Empenhado: dec("1000"), Liquidado: dec("1000"), Pago: dec("1000")},
		{Exercicio: 2022, Empenhado: dec("1400"), Liquidado: dec("1100"), Pago: dec("1050")},
	}

	got := CheckYoY(despesa, nil, 0.30)
	if len(got.Rows) != 1 {
		t.Fatalf("expected 1 anomaly, got %d: %v", len(got.Rows), got.Rows)
	}
	row := got.Rows[0]
	if row[0] != "fato_despesa_empenhado" || row[1] != "2022" {
		t.Errorf("unexpected anomaly row: %v", row)
	}
	if row[2] != "0.4000" {
		t.Errorf("expected yoy 0.4000, got %q", row[2])
	}
}

func TestCheckYoYSkipsZeroPrevious(t *testing.T) {
	despesa := []store.DespesaYearTotal{
		{Exercicio: 2021, Empenhado: dec("0"), Liquidado: dec("0"), Pago: dec("0")},
		{Exercicio: 2022, Empenhado: dec("500"), Liquidado: dec("400"), Pago: dec("300")},
	}
	if got := CheckYoY(despesa, nil, 0.30); len(got.Rows) != 0 {
		t.Fatalf("zero previous year must be skipped, got %v", got.Rows)
	}
}

func TestCheckStrayTotals(t *testing.T) {
	cols := []string{"ano", "codigo", "especificacao", "previsao"}
	rows := [][]string{
		{"2023", "1", "Receita Corrente", "100,00"},
		{"2023", "TOTAL", "", "900,00"},
		{"2023", "", "total", "900,00"},
	}

	got := CheckStrayTotals(cols, rows)
	if len(got.Rows) != 2 {
		t.Fatalf("expected 2 stray TOTAL rows, got %d", len(got.Rows))
	}
}

func TestCheckStrayTotalsNoResolvableColumns(t *testing.T) {
	got := CheckStrayTotals([]string{"a", "b"}, [][]string{{"TOTAL", "x"}})
	if len(got.Rows) != 0 {
		t.Fatalf("without code or label column the rule has nothing to check, got %v", got.Rows)
	}
}

type stubSource struct {
	despesa    []store.FactDespesa
	despesaErr error
	receita    []store.FactReceita
	dups       []store.HashCount
	dupsErr    error
}

func (s *stubSource) FactDespesa(context.Context) ([]store.FactDespesa, error) {
	return s.despesa, s.despesaErr
}
func (s *stubSource) FactReceita(context.Context) ([]store.FactReceita, error) {
	return s.receita, nil
}
func (s *stubSource) DespesaYearTotals(context.Context) ([]store.DespesaYearTotal, error) {
	return nil, nil
}
func (s *stubSource) ReceitaYearTotals(context.Context) ([]store.ReceitaYearTotal, error) {
	return nil, nil
}
func (s *stubSource) FactYears(context.Context, string) ([]int, error) { return nil, nil }
func (s *stubSource) StagingDuplicates(context.Context) ([]store.HashCount, error) {
	return s.dups, s.dupsErr
}
func (s *stubSource) StagingReceitaRows(context.Context) ([]string, [][]string, error) {
	return nil, nil, nil
}

func findResult(t *testing.T, results []RuleResult, rule string) RuleResult {
	t.Helper()
	for _, r := range results {
		if r.Rule == rule {
			return r
		}
	}
	t.Fatalf("rule %s missing from results", rule)
	return RuleResult{}
}

func TestEngineRunSeverity(t *testing.T) {
	src := &stubSource{
		despesa: []store.FactDespesa{
			{Exercicio: 2023, Entidade: "Prefeitura", ValorEmpenhado: dec("200"), ValorLiquidado: dec("100"), ValorPago: dec("150")},
		},
	}
	eng := NewEngine(src, &logger.Logger{MinLevel: logger.LevelError})

	results := eng.Run(context.Background(), Config{YoYThreshold: 0.30}, nil)

	r1 := findResult(t, results, RuleInequalities)
	if !r1.Critical || r1.Violations() != 1 {
		t.Errorf("monotonicity should be critical with 1 violation, got critical=%v violations=%d", r1.Critical, r1.Violations())
	}
	r4 := findResult(t, results, RuleReconcile)
	if !r4.Critical {
		t.Error("reconciliation result must be critical")
	}
	for _, rule := range []string{RuleNegatives, RuleDuplicates, RuleYoY, RuleStrayTotals} {
		if r := findResult(t, results, rule); r.Critical {
			t.Errorf("rule %s must be advisory", rule)
		}
	}
}

func TestEngineRunReconRowsFeedR4(t *testing.T) {
	eng := NewEngine(&stubSource{}, &logger.Logger{MinLevel: logger.LevelError})
	rows := []reconcile.Row{
		{Year: 2023, Metric: reconcile.MetricEmpenhado, Boundary: reconcile.StagingVsFact, SourceA: dec("100"), SourceB: dec("90"), AbsDiff: dec("10")},
	}

	results := eng.Run(context.Background(), Config{}, rows)
	r4 := findResult(t, results, RuleReconcile)
	if r4.Violations() != 1 {
		t.Fatalf("expected reconciliation violation to surface, got %d", r4.Violations())
	}
}

func TestEngineRunCouldNotRun(t *testing.T) {
	boom := errors.New("connection refused")
	eng := NewEngine(&stubSource{dupsErr: boom}, &logger.Logger{MinLevel: logger.LevelError})

	results := eng.Run(context.Background(), Config{}, nil)
	r3 := findResult(t, results, RuleDuplicates)
	if !errors.Is(r3.Err, boom) {
		t.Fatalf("expected duplicate rule to carry the fetch error, got %v", r3.Err)
	}
	if r3.Violations() != 0 {
		t.Errorf("errored rule must not report violations, got %d", r3.Violations())
	}
}
