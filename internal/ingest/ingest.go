// Package ingest lands raw source files into staging tables. Staging keeps
// every value as text exactly as published; typing happens later in the fact
// layer so a parse bug never destroys the evidence of what the portal said.
package ingest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/farxc/orcamento-monitor/internal/anexo10"
	"github.com/farxc/orcamento-monitor/internal/columns"
	"github.com/farxc/orcamento-monitor/internal/logger"
	"github.com/farxc/orcamento-monitor/internal/numeric"
	"github.com/farxc/orcamento-monitor/internal/sniff"
	"github.com/farxc/orcamento-monitor/internal/store"
)

// Dataset is a decoded source file ready for staging.
type Dataset struct {
	Table   string
	Columns []string
	Rows    [][]string
}

// DecodeCSV decodes a raw delimited file into normalized columns plus
// all-text rows. Encoding and delimiter are sniffed, never assumed.
func DecodeCSV(data []byte) ([]string, [][]string, error) {
	decoded, err := sniff.ToUTF8(data)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding source file: %w", err)
	}
	delim := sniff.Delimiter(decoded)

	switch lines := nonBlankLines(decoded); len(lines) {
	case 0:
		return nil, nil, fmt.Errorf("delimited file has no content")
	case 1:
		// gota rejects a frame with zero observations; a header-only export
		// is still a valid, empty dataset.
		return headerColumns(lines[0], delim)
	}

	df := dataframe.ReadCSV(bytes.NewReader(decoded),
		dataframe.WithDelimiter(delim),
		dataframe.WithLazyQuotes(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Error() != nil {
		return nil, nil, fmt.Errorf("reading delimited file: %w", df.Error())
	}

	cols := make([]string, 0, len(df.Names()))
	for _, name := range df.Names() {
		cols = append(cols, NormalizeHeader(name))
	}

	records := df.Records()[1:]
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		empty := true
		out := make([]string, len(rec))
		for i, v := range rec {
			v = strings.TrimSpace(v)
			// gota writes NaN for absent cells; staging keeps them blank.
			if v == "NaN" {
				v = ""
			}
			out[i] = v
			if v != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, out)
		}
	}
	return cols, rows, nil
}

func nonBlankLines(decoded []byte) []string {
	var out []string
	for _, ln := range strings.Split(string(decoded), "\n") {
		if strings.TrimSpace(ln) != "" {
			out = append(out, ln)
		}
	}
	return out
}

func headerColumns(header string, delim rune) ([]string, [][]string, error) {
	r := csv.NewReader(strings.NewReader(header))
	r.Comma = delim
	r.LazyQuotes = true
	fields, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading delimited header: %w", err)
	}
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, NormalizeHeader(f))
	}
	return cols, nil, nil
}

// NormalizeHeader rewrites a published column header into the snake_case
// name staging tables use. Accents survive normalization so the column
// resolver can still strip them on its own terms.
func NormalizeHeader(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '/', '\t':
			return '_'
		}
		return r
	}, s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

// EnsureYear guarantees the dataset carries a usable year column. When the
// file itself has none, the year inferred from the file name is appended as
// a literal "ano" column on every row.
func EnsureYear(cols []string, rows [][]string, filename string) ([]string, [][]string, error) {
	if _, ok := columns.Resolve(cols, "exercicio", "ano"); ok {
		return cols, rows, nil
	}
	year, ok := anexo10.InferYear(filename)
	if !ok {
		return nil, nil, fmt.Errorf("no year column and no year in file name %q", filename)
	}
	cols = append(append([]string{}, cols...), "ano")
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, append(append([]string{}, row...), strconv.Itoa(year)))
	}
	return cols, out, nil
}

// StripTotalRows removes publisher grand-total rows so staged figures can be
// summed without double counting. Rows survive untouched when the dataset
// has no code or label column to judge by.
func StripTotalRows(cols []string, rows [][]string) [][]string {
	codeCol, hasCode := columns.Resolve(cols, "codigo", "código")
	especCol, hasEspec := columns.Resolve(cols, "especificacao", "especificação", "descricao", "descrição")
	if !hasCode && !hasEspec {
		return rows
	}
	ci := indexOf(cols, codeCol)
	si := indexOf(cols, especCol)

	out := rows[:0:0]
	for _, row := range rows {
		if hasCode && anexo10.IsTotalLabel(row[ci]) {
			continue
		}
		if hasEspec && anexo10.IsTotalLabel(row[si]) {
			continue
		}
		out = append(out, row)
	}
	return out
}

// RowHash is the staging identity of a row: md5 over the ordered cell
// values. Bookkeeping columns never participate, so re-extracting the same
// file on a different day yields the same hashes.
func RowHash(values []string) string {
	sum := md5.Sum([]byte(strings.Join(values, "||")))
	return hex.EncodeToString(sum[:])
}

// ReceitaDataset serializes parsed Anexo 10 lines into the stg_receitas
// shape. Null amounts become empty cells, distinct from an explicit zero.
func ReceitaDataset(lines []anexo10.Line) Dataset {
	d := Dataset{
		Table:   store.StgReceitas,
		Columns: []string{"ano", "codigo", "especificacao", "subitem", "previsao", "arrecadacao", "para_mais", "para_menos"},
	}
	for _, l := range lines {
		d.Rows = append(d.Rows, []string{
			strconv.Itoa(l.Year),
			l.Code,
			l.Category,
			l.Subitem,
			amountCell(l.Forecast),
			amountCell(l.Collected),
			amountCell(l.AdjustPlus),
			amountCell(l.AdjustMinus),
		})
	}
	return d
}

func amountCell(r numeric.Result) string {
	if r.Null {
		return ""
	}
	return r.Value.StringFixed(2)
}

// Loader appends datasets to staging with hash-based dedup.
type Loader struct {
	staging StagingWriter
	logger  *logger.Logger
	now     func() time.Time
}

// StagingWriter is the slice of the storage layer the loader needs.
type StagingWriter interface {
	EnsureTable(ctx context.Context, table string, columns []string) error
	ExistingHashes(ctx context.Context, table string, hashes []string) (map[string]struct{}, error)
	Append(ctx context.Context, table string, columns []string, rows [][]string) error
}

func NewLoader(staging StagingWriter, appLogger *logger.Logger) *Loader {
	return &Loader{staging: staging, logger: appLogger, now: time.Now}
}

// Load stages a dataset, skipping rows whose hash already exists in the
// table or earlier in the same batch. Returns inserted and skipped counts.
func (l *Loader) Load(ctx context.Context, d Dataset) (int, int, error) {
	const component = "StagingLoader"

	if err := l.staging.EnsureTable(ctx, d.Table, d.Columns); err != nil {
		return 0, 0, fmt.Errorf("ensuring table %s: %w", d.Table, err)
	}
	if len(d.Rows) == 0 {
		return 0, 0, nil
	}

	hashes := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		hashes[i] = RowHash(row)
	}
	existing, err := l.staging.ExistingHashes(ctx, d.Table, hashes)
	if err != nil {
		return 0, 0, fmt.Errorf("querying existing hashes in %s: %w", d.Table, err)
	}

	stamp := l.now().UTC().Format(time.RFC3339)
	cols := append(append([]string{}, d.Columns...), store.ColRowHash, store.ColExtractedAt)

	seen := map[string]struct{}{}
	var insert [][]string
	skipped := 0
	for i, row := range d.Rows {
		h := hashes[i]
		if _, dup := existing[h]; dup {
			skipped++
			continue
		}
		if _, dup := seen[h]; dup {
			skipped++
			continue
		}
		seen[h] = struct{}{}
		insert = append(insert, append(append([]string{}, row...), h, stamp))
	}

	if len(insert) > 0 {
		if err := l.staging.Append(ctx, d.Table, cols, insert); err != nil {
			return 0, skipped, fmt.Errorf("appending to %s: %w", d.Table, err)
		}
	}
	l.logger.Info(component, "Staged dataset: table=%s inserted=%d skipped=%d", d.Table, len(insert), skipped)
	return len(insert), skipped, nil
}

func indexOf(cols []string, col string) int {
	for i, c := range cols {
		if c == col {
			return i
		}
	}
	return -1
}
