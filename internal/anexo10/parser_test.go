package anexo10

import (
	"testing"

	"github.com/shopspring/decimal"
)

const header = "CÓDIGO ESPECIFICAÇÃO PREVISÃO ARRECADAÇÃO PARA MAIS PARA MENOS"

func eq(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	w, _ := decimal.NewFromString(want)
	if !got.Equal(w) {
		t.Errorf("value = %s, want %s", got, w)
	}
}

func TestParsePageCodeAndSubitem(t *testing.T) {
	lines := []string{
		header,
		"11 Receita Tributária 1.000,00 900,00 0,00 100,00",
		"  Imposto X 500,00 450,00 0,00 50,00",
	}
	rows := ParsePage(lines)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	if rows[0].Code != "11" || rows[0].Category != "Receita Tributária" || rows[0].Subitem != "" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	eq(t, rows[0].Forecast.Value, "1000")
	eq(t, rows[0].Collected.Value, "900")

	if rows[1].Code != "11" || rows[1].Subitem != "Imposto X" || rows[1].Category != "" {
		t.Errorf("row 1 = %+v", rows[1])
	}
	eq(t, rows[1].Forecast.Value, "500")
	eq(t, rows[1].AdjustMinus.Value, "50")
}

func TestParsePageMultiLineDescription(t *testing.T) {
	lines := []string{
		header,
		"12 Receita de",
		"Serviços 2.000,00 1.800,00 0,00 200,00",
	}
	rows := ParsePage(lines)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].Code != "12" || rows[0].Category != "Receita de Serviços" {
		t.Errorf("row = %+v", rows[0])
	}
	eq(t, rows[0].Forecast.Value, "2000")
}

func TestParsePageNoHeader(t *testing.T) {
	lines := []string{
		"11 Receita Tributária 1.000,00 900,00 0,00 100,00",
	}
	if rows := ParsePage(lines); rows != nil {
		t.Fatalf("page without header must contribute nothing, got %d rows", len(rows))
	}
}

func TestParsePageSubitemBeforeCodeDiscarded(t *testing.T) {
	lines := []string{
		header,
		"  Imposto Órfão 500,00 450,00 0,00 50,00",
	}
	if rows := ParsePage(lines); len(rows) != 0 {
		t.Fatalf("sub-item before any code row must be discarded, got %+v", rows)
	}
}

func TestParsePageNoiseFooterTerminates(t *testing.T) {
	lines := []string{
		header,
		"11 Receita Tributária 1.000,00 900,00 0,00 100,00",
		"Página 2 de 9",
		"13 Outra Receita 1,00 1,00 0,00 0,00",
	}
	rows := ParsePage(lines)
	if len(rows) != 1 {
		t.Fatalf("footer must terminate accumulation, got %d rows", len(rows))
	}
}

func TestParsePageNegativeAmounts(t *testing.T) {
	lines := []string{
		header,
		"9 Deduções (1.234,56) (100,00) 0,00 0,00",
	}
	rows := ParsePage(lines)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	eq(t, rows[0].Forecast.Value, "-1234.56")
	eq(t, rows[0].Collected.Value, "-100")
}

func TestParseDocumentTotalExcluded(t *testing.T) {
	pages := [][]string{{
		header,
		"11 Receita Tributária 1.000,00 900,00 0,00 100,00",
		"TOTAL 1.000,00 900,00 0,00 100,00",
	}}
	rows, err := ParseDocument(pages)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range rows {
		if IsTotalLabel(r.Code) || IsTotalLabel(r.Category) {
			t.Errorf("TOTAL row leaked into output: %+v", r)
		}
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
}

func TestParseDocumentDedup(t *testing.T) {
	page := []string{
		header,
		"11 Receita Tributária 1.000,00 900,00 0,00 100,00",
	}
	rows, err := ParseDocument([][]string{page, page})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("page-break duplicate not collapsed, got %d rows", len(rows))
	}
}

func TestParseDocumentNoTable(t *testing.T) {
	pages := [][]string{
		{"Consolidação Geral", "Página 1 de 9"},
		{"nothing here either"},
	}
	if _, err := ParseDocument(pages); err != ErrNoTable {
		t.Fatalf("err = %v, want ErrNoTable", err)
	}
}

func TestParseDocumentTotalOnlyIsNotNoTable(t *testing.T) {
	pages := [][]string{{
		header,
		"TOTAL 1.000,00 900,00 0,00 100,00",
	}}
	rows, err := ParseDocument(pages)
	if err != nil {
		t.Fatalf("a table that empties after filtering is not an extraction failure: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("got %d rows, want 0", len(rows))
	}
}

func TestInferYear(t *testing.T) {
	cases := []struct {
		name string
		want int
		ok   bool
	}{
		{"anexo10_2018-12-31_consolidado.pdf", 2018, true},
		{"receitas_2021.pdf", 2021, true},
		{"anexo10.pdf", 0, false},
	}
	for _, c := range cases {
		got, ok := InferYear(c.name)
		if got != c.want || ok != c.ok {
			t.Errorf("InferYear(%q) = %d, %v; want %d, %v", c.name, got, ok, c.want, c.ok)
		}
	}
}
