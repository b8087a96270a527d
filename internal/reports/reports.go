// Package reports writes the tabular artifacts a CI or operator workflow
// consumes: one CSV per non-empty check plus a SUMMARY.csv naming every check
// that produced output.
package reports

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/farxc/orcamento-monitor/internal/reconcile"
)

// Table is one check's violations in tabular form. An empty Rows slice means
// the check ran clean.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// WriteCSV writes one table under dir as <name>.csv.
func WriteCSV(dir string, t Table) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, t.Name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		return "", fmt.Errorf("write report header %s: %w", path, err)
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write report row %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush report %s: %w", path, err)
	}
	return path, nil
}

// WriteAll writes every non-empty table plus SUMMARY.csv. The summary lists
// only checks that produced rows; an absent SUMMARY entry means the check
// came back clean.
func WriteAll(dir string, tables []Table) error {
	summary := Table{
		Name:    "SUMMARY",
		Columns: []string{"check", "rows"},
	}
	for _, t := range tables {
		if t.Empty() {
			continue
		}
		if _, err := WriteCSV(dir, t); err != nil {
			return err
		}
		summary.Rows = append(summary.Rows, []string{t.Name, strconv.Itoa(len(t.Rows))})
	}
	if _, err := WriteCSV(dir, summary); err != nil {
		return err
	}
	return nil
}

// ReconciliationTable shapes reconciliation rows for export, boundary kept as
// its own column so ingestion bugs and aggregation bugs stay tell-apart-able.
func ReconciliationTable(name string, rows []reconcile.Row) Table {
	t := Table{
		Name:    name,
		Columns: []string{"exercicio", "metrica", "fronteira", "valor_a", "valor_b", "diferenca_abs"},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(r.Year),
			r.Metric,
			string(r.Boundary),
			r.SourceA.StringFixed(2),
			r.SourceB.StringFixed(2),
			r.AbsDiff.StringFixed(2),
		})
	}
	return t
}
