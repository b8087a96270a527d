// Package sniff decides what fetched bytes actually are, independent of the
// content type the portal declared. The portal is known to answer CSV export
// requests with HTML error pages and to label PDFs as octet-stream, so every
// payload is inspected before it enters the pipeline.
package sniff

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

type Kind int

const (
	Unknown Kind = iota
	PDF
	HTML
	Delimited
)

func (k Kind) String() string {
	switch k {
	case PDF:
		return "pdf"
	case HTML:
		return "html"
	case Delimited:
		return "delimited"
	default:
		return "unknown"
	}
}

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Detect classifies a payload by content, never by declared type.
func Detect(data []byte) Kind {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	if len(trimmed) == 0 {
		return Unknown
	}

	if bytes.HasPrefix(trimmed, []byte("%PDF-")) {
		return PDF
	}

	head := strings.ToLower(string(trimmed[:min(len(trimmed), 512)]))
	if strings.HasPrefix(head, "<!doctype") || strings.HasPrefix(head, "<html") || strings.Contains(head, "<html") {
		return HTML
	}

	firstLine, _, _ := bytes.Cut(trimmed, []byte("\n"))
	if bytes.ContainsAny(firstLine, ";,") {
		return Delimited
	}
	return Unknown
}

// Delimiter picks between ';' and ',' by counting occurrences in the first
// line. Equiplano exports use ';'; some historic dumps use ','.
func Delimiter(data []byte) rune {
	firstLine, _, _ := bytes.Cut(bytes.TrimPrefix(data, utf8BOM), []byte("\n"))
	if bytes.Count(firstLine, []byte(";")) >= bytes.Count(firstLine, []byte(",")) {
		return ';'
	}
	return ','
}

// ToUTF8 strips a BOM when present and transcodes Windows-1252 payloads.
// Valid UTF-8 passes through untouched.
func ToUTF8(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), charmap.Windows1252.NewDecoder()))
	if err != nil {
		return nil, err
	}
	return decoded, nil
}
