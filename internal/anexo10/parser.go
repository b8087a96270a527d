// Package anexo10 parses the text rendering of the "Anexo 10" revenue
// comparison report (previsão x arrecadação) into structured rows. The PDF
// text extraction wraps long descriptions across physical lines; the only
// reliable row boundary is the presence of exactly four well-formed BR
// numbers at the end of the accumulated text.
package anexo10

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/farxc/orcamento-monitor/internal/numeric"
)

// ErrNoTable reports a document where no page yielded a single row. Callers
// must keep this distinguishable from a valid table that happens to be empty
// after filtering.
var ErrNoTable = errors.New("anexo10: no table content found in document")

// Line is one parsed table row. Category and Subitem are mutually exclusive:
// code rows carry Category, detail rows carry Subitem and inherit Code from
// the most recent code row above them.
type Line struct {
	Year        int
	Code        string
	Category    string
	Subitem     string
	Forecast    numeric.Result
	Collected   numeric.Result
	AdjustPlus  numeric.Result
	AdjustMinus numeric.Result
}

const numBR = `-?\(?\s*(?:\d{1,3}(?:\.\d{3})*|\d+),\d{2}\s*\)?`

var (
	rowTailRe = regexp.MustCompile(`^(.*?)\s+(` + numBR + `)\s+(` + numBR + `)\s+(` + numBR + `)\s+(` + numBR + `)\s*$`)

	// A code row opens with TOTAL or a 1-2 digit category code.
	codeRowRe = regexp.MustCompile(`(?i)^\s*(TOTAL|\d{1,2})\b\s*(.*)$`)

	noiseRe = regexp.MustCompile(`(?i)(consolida[cç][aã]o geral|anexo\s*10|p[aá]gina|conjunto de informa[cç][oõ]es|entidades consolidadas)`)

	yearEndRe = regexp.MustCompile(`(\d{4})[-_]12[-_]31`)
	yearAnyRe = regexp.MustCompile(`(19|20)\d{2}`)
)

func isColumnsHeader(line string) bool {
	s := strings.ToLower(line)
	return (strings.Contains(s, "código") || strings.Contains(s, "codigo")) && strings.Contains(s, "especifica")
}

// pageState is the accumulation state threaded through one page's lines.
// It never leaks across pages or documents.
type pageState struct {
	code   string
	buffer string
}

// ParsePage scans one page's text lines. A page without the column header
// contributes nothing; the table may start on a later page or restart per
// page depending on the rendering.
func ParsePage(lines []string) []Line {
	start := -1
	for i, ln := range lines {
		if isColumnsHeader(ln) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}

	var out []Line
	st := pageState{}

	for _, raw := range lines[start:] {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if noiseRe.MatchString(line) {
			// Footer or repeated title delimits the table area.
			break
		}

		combined := line
		if st.buffer != "" {
			combined = strings.TrimSpace(st.buffer + " " + line)
		}

		m := rowTailRe.FindStringSubmatch(combined)
		if m == nil {
			// Incomplete row, description wrapped in the source rendering.
			st.buffer = combined
			continue
		}

		desc := strings.TrimSpace(m[1])
		if desc == "" {
			desc = strings.TrimSpace(st.buffer)
		}
		st.buffer = ""

		row := Line{
			Forecast:    numeric.Parse(m[2]),
			Collected:   numeric.Parse(m[3]),
			AdjustPlus:  numeric.Parse(m[4]),
			AdjustMinus: numeric.Parse(m[5]),
		}

		if mc := codeRowRe.FindStringSubmatch(desc); mc != nil {
			code := strings.ToUpper(mc[1])
			name := strings.TrimSpace(mc[2])
			st.code = code
			row.Code = code
			if name != "" {
				row.Category = name
			} else {
				row.Category = code
			}
		} else {
			if st.code == "" {
				// Sub-item-shaped line before any code row: pre-header junk.
				continue
			}
			row.Code = st.code
			row.Subitem = desc
		}

		if row.Forecast.Null && row.Collected.Null && row.AdjustPlus.Null && row.AdjustMinus.Null {
			continue
		}
		out = append(out, row)
	}
	return out
}

// ParseDocument parses all pages and applies the document-level cleanup:
// grand-total rows are dropped so page-break repeats can never be double
// counted, exact duplicates from re-rendered rows are collapsed, and text
// fields are trimmed. A document yielding zero rows across every page is an
// extraction failure (ErrNoTable), not an empty table.
func ParseDocument(pages [][]string) ([]Line, error) {
	var all []Line
	for _, lines := range pages {
		all = append(all, ParsePage(lines)...)
	}
	if len(all) == 0 {
		return nil, ErrNoTable
	}

	seen := make(map[string]bool, len(all))
	out := make([]Line, 0, len(all))
	for _, ln := range all {
		ln.Code = strings.TrimSpace(ln.Code)
		ln.Category = strings.TrimSpace(ln.Category)
		ln.Subitem = strings.TrimSpace(ln.Subitem)

		if IsTotalLabel(ln.Code) || IsTotalLabel(ln.Category) {
			continue
		}

		key := strings.Join([]string{
			ln.Code, ln.Category, ln.Subitem,
			amountKey(ln.Forecast), amountKey(ln.Collected),
			amountKey(ln.AdjustPlus), amountKey(ln.AdjustMinus),
		}, "\x1f")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ln)
	}
	return out, nil
}

// IsTotalLabel reports whether a code or label normalizes to the grand-total
// marker.
func IsTotalLabel(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "TOTAL")
}

func amountKey(r numeric.Result) string {
	if r.Null {
		return ""
	}
	return r.Value.String()
}

// InferYear derives the fiscal year from a source file name, preferring the
// year-end date form "2018-12-31" over any loose 19xx/20xx token.
func InferYear(name string) (int, bool) {
	if m := yearEndRe.FindStringSubmatch(name); m != nil {
		y, err := strconv.Atoi(m[1])
		if err == nil {
			return y, true
		}
	}
	if m := yearAnyRe.FindString(name); m != "" {
		y, err := strconv.Atoi(m)
		if err == nil {
			return y, true
		}
	}
	return 0, false
}
