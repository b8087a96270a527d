// Package columns resolves semantically-equivalent column names across
// inconsistently named source schemas. Portal exports rename columns between
// releases ("Exercício", "ano", "Líquido - Orçamento", "liquido_orcamento");
// resolution is exact match first, then prefix, then contains-all-tokens,
// always over case-folded diacritic-stripped keys.
package columns

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Norm lowercases and strips diacritics: "Arrecadação" -> "arrecadacao".
func Norm(s string) string {
	out, _, err := transform.String(stripAccents, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

// Key further maps every non-alphanumeric rune to '_' so that
// "Líquido - Orçamento" and "liquido_orcamento" share a key.
func Key(s string) string {
	n := Norm(s)
	var b strings.Builder
	b.Grow(len(n))
	for _, ch := range n {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Stems equivalent in portal column naming. A token matches a column if the
// column's key contains the token itself or any of its known stems
// ("liquidado" appears as "liquido" in some releases).
var tokenStems = map[string][]string{
	"empenhado":  {"empenh"},
	"empenho":    {"empenh"},
	"liquidado":  {"liquid", "liquido"},
	"liquidacao": {"liquid", "liquido"},
	"pago":       {"pag"},
	"pagamento":  {"pag"},
	"orcamento":  {"orc"},
	"restos":     {"rap"},
	"rap":        {"restos"},
}

// Resolve finds the actual column matching one of candidates, in candidate
// order, trying exact normalized match, then normalized prefix, then (for
// multi-token candidates) contains-all-tokens. Returns the column as named in
// the source and false when nothing matches; absence is for the caller to
// judge.
func Resolve(actual []string, candidates ...string) (string, bool) {
	for _, cand := range candidates {
		k := Norm(cand)
		for _, a := range actual {
			if Norm(a) == k {
				return a, true
			}
		}
	}
	for _, cand := range candidates {
		k := Norm(cand)
		for _, a := range actual {
			if strings.HasPrefix(Norm(a), k) {
				return a, true
			}
		}
	}
	for _, cand := range candidates {
		toks := tokens(cand)
		if len(toks) < 2 {
			continue
		}
		if col, ok := ResolveContains(actual, toks...); ok {
			return col, true
		}
	}
	return "", false
}

// ResolveContains finds the first actual column whose key contains every
// token (or an equivalent stem of it).
func ResolveContains(actual []string, toks ...string) (string, bool) {
	for _, a := range actual {
		ak := Key(a)
		all := true
		for _, t := range toks {
			if !tokenIn(ak, Key(t)) {
				all = false
				break
			}
		}
		if all {
			return a, true
		}
	}
	return "", false
}

func tokenIn(columnKey, token string) bool {
	if strings.Contains(columnKey, token) {
		return true
	}
	for _, stem := range tokenStems[token] {
		if strings.Contains(columnKey, stem) {
			return true
		}
	}
	return false
}

func tokens(cand string) []string {
	parts := strings.Split(Key(cand), "_")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
