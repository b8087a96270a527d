package numeric

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Result is the outcome of normalizing one raw cell. Null marks cells that
// carried no value at all (empty, a lone dash); Coerced marks cells that had
// content the parser could not make sense of and fell back to zero. Summing
// call sites treat both as zero; row-presence checks look at Null.
type Result struct {
	Value   decimal.Decimal
	Null    bool
	Coerced bool
}

var (
	// Unicode minus, en-dash and em-dash show up in portal exports depending
	// on the rendering path. All collapse to ASCII '-' before sign detection.
	signReplacer = strings.NewReplacer("−", "-", "–", "-", "—", "-", " ", " ")

	nonNumericBR = regexp.MustCompile(`[^0-9,.\-]`)
	nonNumericUS = regexp.MustCompile(`[^0-9.\-]`)
	hasDigit     = regexp.MustCompile(`[0-9]`)
)

// Parse converts locale-formatted numeric text into an exact decimal.
// BR locale (thousands '.', decimal ',') is assumed whenever a comma is
// present; otherwise the text is taken as already using '.' as the decimal
// point. Parenthesized values are accounting negatives. Parse never fails:
// malformed input degrades to zero with the Coerced flag set so the quality
// layer can audit coercion frequency.
func Parse(text string) Result {
	s := strings.TrimSpace(signReplacer.Replace(text))

	if s == "" || s == "-" {
		return Result{Null: true}
	}

	neg := false
	if strings.ContainsAny(s, "()") {
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			neg = true
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
		if strings.ContainsAny(s, "()") {
			// Unbalanced or nested parentheses, e.g. "(2.000,00".
			return Result{Coerced: true}
		}
	}

	if strings.Contains(s, ",") {
		s = nonNumericBR.ReplaceAllString(s, "")
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = nonNumericUS.ReplaceAllString(s, "")
	}

	if !hasDigit.MatchString(s) {
		// A sign with no digits is an empty cell, not garbage.
		return Result{Null: true}
	}

	v, err := decimal.NewFromString(s)
	if err != nil {
		return Result{Coerced: true}
	}
	if neg {
		v = v.Neg()
	}
	return Result{Value: v}
}

// Float returns the value as float64, with Null and Coerced both reading as 0.
func (r Result) Float() float64 {
	f, _ := r.Value.Float64()
	return f
}

// FormatBR renders a decimal in pt-BR convention with two fractional digits:
// thousands '.', decimal ','.
func FormatBR(v decimal.Decimal) string {
	s := v.StringFixed(2)

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, fracPart, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(ch)
	}
	b.WriteByte(',')
	b.WriteString(fracPart)
	return b.String()
}
