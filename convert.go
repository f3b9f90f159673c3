package tokenpulse

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
)

const lamportsPerSOL = 1_000_000_000

// ErrInvalidAmount reports an amount string that does not yield a positive SOL value.
var ErrInvalidAmount = errors.New("invalid amount")

// LamportsToSOL converts a smallest-unit amount string into SOL.
//
// Pure integer strings are parsed with arbitrary precision, so lamport totals
// beyond the 53-bit float-safe range keep their magnitude. Strings carrying a
// decimal point are ambiguous: below the threshold the value is taken as
// already denominated in SOL and passed through, at or above it the value is
// floored and divided by the unit ratio. Every passthrough is logged so the
// heuristic's hits can be reviewed.
func LamportsToSOL(raw string, threshold float64, logger Logger) (float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}

	if strings.Contains(trimmed, ".") {
		return decimalToSOL(trimmed, threshold, logger)
	}

	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not numeric", ErrInvalidAmount, raw)
	}
	if value.Sign() <= 0 {
		return 0, fmt.Errorf("%w: %q is not positive", ErrInvalidAmount, raw)
	}

	sol, _ := new(big.Float).Quo(
		new(big.Float).SetInt(value),
		big.NewFloat(lamportsPerSOL),
	).Float64()
	if !positiveFinite(sol) {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, raw)
	}
	return sol, nil
}

func decimalToSOL(trimmed string, threshold float64, logger Logger) (float64, error) {
	parsed, ok := new(big.Float).SetString(trimmed)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not numeric", ErrInvalidAmount, trimmed)
	}
	value, _ := parsed.Float64()
	if !positiveFinite(value) {
		return 0, fmt.Errorf("%w: %q is not positive", ErrInvalidAmount, trimmed)
	}

	if value < threshold {
		if logger != nil {
			logger.Printf("amount %q below threshold %.0f, treating as SOL", trimmed, threshold)
		}
		return value, nil
	}

	sol := math.Floor(value) / lamportsPerSOL
	if !positiveFinite(sol) {
		return 0, fmt.Errorf("%w: %q floors to zero", ErrInvalidAmount, trimmed)
	}
	return sol, nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
