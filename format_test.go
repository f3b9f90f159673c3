package tokenpulse

import "testing"

func TestFormatCurrency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value float64
		want  string
	}{
		{value: 0, want: "$0"},
		{value: -10, want: "$0"},
		{value: 999, want: "$999.00"},
		{value: 850, want: "$850.00"},
		{value: 1500, want: "$1.50K"},
		{value: 999_999, want: "$1000.00K"},
		{value: 2_500_000, want: "$2.50M"},
	}

	for _, tt := range tests {
		if got := FormatCurrency(tt.value); got != tt.want {
			t.Fatalf("FormatCurrency(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestFormatPrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value float64
		want  string
	}{
		{value: 0, want: "$0.00"},
		{value: 0.0000042, want: "$0.000004"},
		{value: 0.009999, want: "$0.009999"},
		{value: 0.01, want: "$0.0100"},
		{value: 1.23456, want: "$1.2346"},
	}

	for _, tt := range tests {
		if got := FormatPrice(tt.value); got != tt.want {
			t.Fatalf("FormatPrice(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestNormalizePassesThroughFormattedValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{input: "$1.50K", want: "$1.50K"},
		{input: "73.5000 SOL", want: "73.5000 SOL"},
		{input: "1500", want: "$1.50K"},
		{input: "garbage", want: "$0"},
	}

	for _, tt := range tests {
		if got := NormalizeCurrency(tt.input); got != tt.want {
			t.Fatalf("NormalizeCurrency(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	if got := NormalizePrice("$0.000004"); got != "$0.000004" {
		t.Fatalf("NormalizePrice passthrough = %q", got)
	}
	if got := NormalizePrice("1.23456"); got != "$1.2346" {
		t.Fatalf("NormalizePrice(\"1.23456\") = %q", got)
	}
	if got := NormalizePrice("garbage"); got != "$0.00" {
		t.Fatalf("NormalizePrice(\"garbage\") = %q", got)
	}
}
