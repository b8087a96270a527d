package numeric

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseBRLocale(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.234.567,89", "1234567.89"},
		{"1.000,00", "1000"},
		{"0,00", "0"},
		{"123,45", "123.45"},
		{"(2.000,00)", "-2000"},
		{"(123,45)", "-123.45"},
		{"-1.500,00", "-1500"},
	}
	for _, c := range cases {
		got := Parse(c.in)
		if got.Null || got.Coerced {
			t.Errorf("Parse(%q): unexpected null=%v coerced=%v", c.in, got.Null, got.Coerced)
			continue
		}
		want, _ := decimal.NewFromString(c.want)
		if !got.Value.Equal(want) {
			t.Errorf("Parse(%q) = %s, want %s", c.in, got.Value, want)
		}
	}
}

func TestParseUSLocale(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1234567.89", "1234567.89"},
		{"100", "100"},
		{"-42.5", "-42.5"},
		{"R$ 10.50", "10.50"},
	}
	for _, c := range cases {
		got := Parse(c.in)
		want, _ := decimal.NewFromString(c.want)
		if !got.Value.Equal(want) {
			t.Errorf("Parse(%q) = %s, want %s", c.in, got.Value, want)
		}
	}
}

func TestParseNull(t *testing.T) {
	for _, in := range []string{"", "   ", "-", "R$"} {
		got := Parse(in)
		if !got.Null {
			t.Errorf("Parse(%q): want null, got value %s", in, got.Value)
		}
		if !got.Value.IsZero() {
			t.Errorf("Parse(%q): null result must carry zero, got %s", in, got.Value)
		}
	}
}

func TestParseMalformedCoercesToZero(t *testing.T) {
	// Unbalanced parenthesis must not parse as a negative amount.
	for _, in := range []string{"(2.000,00", "2.000,00)", "((1,00))"} {
		got := Parse(in)
		if !got.Coerced {
			t.Errorf("Parse(%q): want coerced, got value %s null=%v", in, got.Value, got.Null)
		}
		if !got.Value.IsZero() {
			t.Errorf("Parse(%q): coerced result must be zero, got %s", in, got.Value)
		}
	}
}

func TestParseUnicodeVariants(t *testing.T) {
	got := Parse("−" + "1.234,56")
	want, _ := decimal.NewFromString("-1234.56")
	if !got.Value.Equal(want) {
		t.Errorf("unicode minus: got %s, want %s", got.Value, want)
	}

	got = Parse("1.234,56 ")
	want, _ = decimal.NewFromString("1234.56")
	if !got.Value.Equal(want) {
		t.Errorf("NBSP: got %s, want %s", got.Value, want)
	}
}

func TestFormatBRRoundTrip(t *testing.T) {
	cases := []string{"0", "1.5", "999", "1000", "1234567.89", "-2000", "-0.01"}
	for _, c := range cases {
		v, _ := decimal.NewFromString(c)
		formatted := FormatBR(v)
		back := Parse(formatted)
		if !back.Value.Equal(v) {
			t.Errorf("round trip %s: formatted %q parsed back to %s", v, formatted, back.Value)
		}
	}
}

func TestFormatBR(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1234567.89", "1.234.567,89"},
		{"1000", "1.000,00"},
		{"-2000", "-2.000,00"},
		{"0.5", "0,50"},
	}
	for _, c := range cases {
		v, _ := decimal.NewFromString(c.in)
		if got := FormatBR(v); got != c.want {
			t.Errorf("FormatBR(%s) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseIdempotentOnPlainDecimal(t *testing.T) {
	for _, in := range []string{"1234.56", "-7.00", "0"} {
		first := Parse(in)
		second := Parse(first.Value.String())
		if !first.Value.Equal(second.Value) {
			t.Errorf("Parse(Parse(%q)) = %s, want %s", in, second.Value, first.Value)
		}
	}
}
