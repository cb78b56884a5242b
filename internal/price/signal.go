// Package price collects token price observations from independent
// sources and evaluates them against a median-deviation consensus policy.
package price

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Source names, also used by the guard and status reporting.
const (
	SourceJupiterSolUSD = "jupiter-sol-usd"
	SourceJupiterToken  = "jupiter-token"
	SourceDexScreener   = "dexscreener"
	SourceBirdeye       = "birdeye"
)

// Signal is one price observation. Signals are produced fresh each cycle
// and never persisted.
type Signal struct {
	Source   string
	PriceUSD decimal.Decimal
	Note     string
}

// Pricing is the per-cycle price summary derived from the signal list.
type Pricing struct {
	SolUSD   decimal.Decimal
	TokenUSD decimal.Decimal
	HasSol   bool
	HasToken bool
}

// PricingFrom extracts the SOL/USD observation and the median token price
// from a signal list.
func PricingFrom(signals []Signal) Pricing {
	var p Pricing
	var tokenPrices []decimal.Decimal
	for _, s := range signals {
		if s.Source == SourceJupiterSolUSD {
			p.SolUSD = s.PriceUSD
			p.HasSol = true
			continue
		}
		tokenPrices = append(tokenPrices, s.PriceUSD)
	}
	if len(tokenPrices) > 0 {
		p.TokenUSD = median(tokenPrices)
		p.HasToken = true
	}
	return p
}

// median returns the middle value of vs, averaging the two central values
// for even-length input. vs must be non-empty.
func median(vs []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(vs))
	copy(sorted, vs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
	}
	return sorted[mid]
}
