package anexo10

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Report cells are drawn as separate positioned text operations with no
// space glyphs between columns. A horizontal gap wider than this many points
// between consecutive fragments is a column boundary.
const cellGap = 1.0

// ExtractPages renders each PDF page into its text lines, top to bottom.
// Fragments sharing a vertical position form one line, with column gaps
// rendered as single spaces, which is the shape ParsePage expects.
func ExtractPages(data []byte) ([][]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var pages [][]string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("extract text from page %d: %w", i, err)
		}
		var lines []string
		for _, row := range rows {
			if line := rowText(row.Content); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, lines)
	}
	return pages, nil
}

// rowText joins one row's fragments left to right, inserting a space
// whenever the next fragment starts measurably past where the previous one
// ended. The fragments arrive sorted by X.
func rowText(words []pdf.Text) string {
	var b strings.Builder
	end := 0.0
	for _, word := range words {
		if word.S == "" {
			continue
		}
		if b.Len() > 0 && word.X-end > cellGap {
			b.WriteByte(' ')
		}
		b.WriteString(word.S)
		if right := word.X + word.W; right > end {
			end = right
		}
	}
	return strings.TrimSpace(b.String())
}

// ExtractFile is ExtractPages over a file on disk.
func ExtractFile(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pdf %s: %w", path, err)
	}
	pages, err := ExtractPages(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pages, nil
}
