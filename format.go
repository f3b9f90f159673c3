package tokenpulse

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatCurrency renders a USD value with a magnitude suffix:
// millions as $X.XXM, thousands as $X.XXK, the rest as $X.XX. Zero is "$0".
func FormatCurrency(value float64) string {
	switch {
	case !positiveFinite(value):
		return "$0"
	case value >= 1_000_000:
		return fmt.Sprintf("$%.2fM", value/1_000_000)
	case value >= 1_000:
		return fmt.Sprintf("$%.2fK", value/1_000)
	default:
		return fmt.Sprintf("$%.2f", value)
	}
}

// FormatPrice renders a token price: six decimals below one cent, four otherwise.
// Zero is "$0.00".
func FormatPrice(value float64) string {
	switch {
	case !positiveFinite(value):
		return "$0.00"
	case value < 0.01:
		return fmt.Sprintf("$%.6f", value)
	default:
		return fmt.Sprintf("$%.4f", value)
	}
}

// NormalizeCurrency formats a textual value unless it already carries a
// currency marker, in which case it passes through unchanged. Upstream
// sources occasionally deliver pre-formatted strings.
func NormalizeCurrency(value string) string {
	if alreadyFormatted(value) {
		return value
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return "$0"
	}
	return FormatCurrency(parsed)
}

// NormalizePrice is the price counterpart of NormalizeCurrency.
func NormalizePrice(value string) string {
	if alreadyFormatted(value) {
		return value
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return "$0.00"
	}
	return FormatPrice(parsed)
}

func alreadyFormatted(value string) bool {
	return strings.Contains(value, "$") || strings.Contains(value, "SOL")
}
