package facts

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/farxc/orcamento-monitor/internal/logger"
)

func deq(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	w, _ := decimal.NewFromString(want)
	if !got.Equal(w) {
		t.Errorf("%s = %s, want %s", name, got, w)
	}
}

func testBuilder() *Builder {
	l := &logger.Logger{MinLevel: logger.LevelError}
	return NewBuilder(l)
}

func stageRelations() (Relation, Relation, Relation) {
	emp := Relation{
		Table:   "stg_despesas_empenhadas",
		Columns: []string{"Exercício", "Entidade", "Valor Líquido"},
		Rows: [][]string{
			{"2020", "Prefeitura", "1.000,00"},
			{"2020", "Prefeitura", "500,00"},
			{"2020", "Câmara", "200,00"},
		},
	}
	liq := Relation{
		Table:   "stg_despesas_liquidadas",
		Columns: []string{"ano", "orgao", "Líquido - Orçamento", "Líquido - Restos a Pagar"},
		Rows: [][]string{
			{"2020", "Prefeitura", "800,00", "100,00"},
		},
	}
	pag := Relation{
		Table:   "stg_despesas_pagas",
		Columns: []string{"exercicio", "unidade_orcamentaria", "vl_pago_orc", "vl_pago_restos"},
		Rows: [][]string{
			{"2020", "Fundo de Saúde", "50,00", "0,00"},
		},
	}
	return emp, liq, pag
}

func TestBuildDespesaOuterJoin(t *testing.T) {
	emp, liq, pag := stageRelations()
	got, err := testBuilder().BuildDespesa(emp, liq, pag, []int{2020})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3 (full outer join across stages)", len(got))
	}

	byEntity := map[string]int{}
	for i, r := range got {
		byEntity[r.Entidade] = i
	}

	pref := got[byEntity["Prefeitura"]]
	deq(t, "Prefeitura empenhado", pref.ValorEmpenhado, "1500")
	deq(t, "Prefeitura liquidado (orçamento + restos)", pref.ValorLiquidado, "900")
	if !pref.ValorPago.IsZero() {
		t.Errorf("Prefeitura pago = %s, want 0 (absent stage coerces to zero)", pref.ValorPago)
	}

	cam := got[byEntity["Câmara"]]
	deq(t, "Câmara empenhado", cam.ValorEmpenhado, "200")
	if !cam.ValorLiquidado.IsZero() || !cam.ValorPago.IsZero() {
		t.Errorf("Câmara = %+v", cam)
	}

	saude := got[byEntity["Fundo de Saúde"]]
	deq(t, "Fundo de Saúde pago", saude.ValorPago, "50")
}

func TestBuildDespesaYearFilter(t *testing.T) {
	emp, liq, pag := stageRelations()
	emp.Rows = append(emp.Rows, []string{"2019", "Prefeitura", "9.999,00"})

	got, err := testBuilder().BuildDespesa(emp, liq, pag, []int{2020})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range got {
		if r.Exercicio != 2020 {
			t.Errorf("row outside target years: %+v", r)
		}
	}
}

func TestBuildDespesaIdempotent(t *testing.T) {
	emp, liq, pag := stageRelations()
	b := testBuilder()
	first, err := b.BuildDespesa(emp, liq, pag, []int{2020})
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.BuildDespesa(emp, liq, pag, []int{2020})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("two builds over identical input differ:\n%v\n%v", first, second)
	}
}

func TestBuildDespesaMissingYearColumnIsFatal(t *testing.T) {
	emp, liq, pag := stageRelations()
	emp.Columns = []string{"Entidade", "Valor Líquido"}
	emp.Rows = [][]string{{"Prefeitura", "1,00"}}

	if _, err := testBuilder().BuildDespesa(emp, liq, pag, []int{2020}); err == nil {
		t.Fatal("missing year column must be a hard error")
	}
}

func TestBuildDespesaMissingValueColumnDegrades(t *testing.T) {
	emp, liq, pag := stageRelations()
	emp.Columns = []string{"exercicio", "entidade", "observacao"}
	emp.Rows = [][]string{{"2020", "Prefeitura", "x"}}

	got, err := testBuilder().BuildDespesa(emp, liq, pag, []int{2020})
	if err != nil {
		t.Fatalf("missing value column must degrade, not fail: %v", err)
	}
	for _, r := range got {
		if r.Entidade == "Prefeitura" && !r.ValorEmpenhado.IsZero() {
			t.Errorf("empenhado = %s, want 0", r.ValorEmpenhado)
		}
	}
}

func TestBuildReceitaGroupsByCode(t *testing.T) {
	rel := Relation{
		Table:   "stg_receitas",
		Columns: []string{"ano", "codigo", "especificacao", "subitem", "previsao", "arrecadacao"},
		Rows: [][]string{
			{"2020", "11", "Receita Tributária", "", "1.000,00", "900,00"},
			{"2020", "11", "", "Imposto X", "500,00", "450,00"},
			{"2020", "12", "Receita de Serviços", "", "100,00", "90,00"},
			{"2020", "TOTAL", "TOTAL", "", "1.600,00", "1.440,00"},
		},
	}
	got, err := testBuilder().BuildReceita(rel, []int{2020})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2 (TOTAL excluded)", len(got))
	}

	r11 := got[0]
	if r11.Codigo != "11" {
		t.Fatalf("first row code = %s", r11.Codigo)
	}
	deq(t, "code 11 previsao", r11.Previsao, "1500")
	deq(t, "code 11 arrecadacao", r11.Arrecadacao, "1350")
	if r11.Especificacao != "Receita Tributária" {
		t.Errorf("code 11 label = %q, want longest non-empty label", r11.Especificacao)
	}
}

func TestBuildReceitaMissingLabelColumnIsFatal(t *testing.T) {
	rel := Relation{
		Table:   "stg_receitas",
		Columns: []string{"ano", "previsao", "arrecadacao"},
	}
	if _, err := testBuilder().BuildReceita(rel, []int{2020}); err == nil {
		t.Fatal("missing label column must be a hard error")
	}
}
