// Package amount converts between human-readable SOL amounts and lamports.
// All conversions are exact base-10 fixed-point operations; no floats are
// involved, so any amount with at most nine fractional digits round-trips
// losslessly.
package amount

import (
	"fmt"
	"strings"
)

// LamportsPerSol is the fixed scale of the native ledger unit.
const LamportsPerSol = 1_000_000_000

// SolToLamports parses a decimal SOL string into lamports.
// The fractional part is right-padded to nine digits; digits beyond the
// ninth are truncated, matching ledger semantics. An empty string is zero.
func SolToLamports(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("negative amount %q", s)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	// Pad/truncate fraction to exactly 9 digits.
	if len(frac) < 9 {
		frac += strings.Repeat("0", 9-len(frac))
	} else {
		frac = frac[:9]
	}

	w, err := parseDigits(whole)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	f, err := parseDigits(frac)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	const maxWhole = ^uint64(0) / LamportsPerSol
	if w > maxWhole || (w == maxWhole && f > ^uint64(0)-maxWhole*LamportsPerSol) {
		return 0, fmt.Errorf("amount %q overflows lamports", s)
	}
	return w*LamportsPerSol + f, nil
}

// LamportsToSol formats lamports as a decimal SOL string with trailing
// zeros trimmed. Negative values are supported because a claim delta may be
// negative when network fees exceed the claimed amount.
func LamportsToSol(v int64) string {
	sign := ""
	u := uint64(v)
	if v < 0 {
		sign = "-"
		u = uint64(-v)
	}
	return sign + UnsignedLamportsToSol(u)
}

// UnsignedLamportsToSol formats lamports as a decimal SOL string.
func UnsignedLamportsToSol(v uint64) string {
	whole := v / LamportsPerSol
	frac := v % LamportsPerSol
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	fracStr := strings.TrimRight(fmt.Sprintf("%09d", frac), "0")
	return fmt.Sprintf("%d.%s", whole, fracStr)
}

func parseDigits(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty digit run")
	}
	var n uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("unexpected character %q", c)
		}
		d := uint64(c - '0')
		if n > (^uint64(0)-d)/10 {
			return 0, fmt.Errorf("digit run overflows uint64")
		}
		n = n*10 + d
	}
	return n, nil
}
