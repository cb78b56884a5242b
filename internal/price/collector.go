package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"burnloop/internal/jupiter"
)

// USDCMint is the quote-currency mint used to express the native asset in
// USD terms.
var USDCMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

// Default feed endpoints.
const (
	DefaultDexScreenerURL = "https://api.dexscreener.com"
	DefaultBirdeyeURL     = "https://public-api.birdeye.so"
)

const (
	defaultTimeout       = 8 * time.Second
	defaultQuoteLamports = 100_000_000 // 0.1 SOL probe
	priceSlippageBps     = 50
)

// aggregator is the slice of the swap aggregator the collector needs.
type aggregator interface {
	Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps int) (*jupiter.Quote, error)
}

// Collector queries each configured price source independently. A source
// failure yields no signal for that source; collection never fails as a
// whole.
type Collector struct {
	agg            aggregator
	dexScreenerURL string
	birdeyeURL     string
	birdeyeKey     string
	quoteLamports  uint64
	http           *http.Client
	logger         *log.Logger
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithDexScreenerURL overrides the DEX-pair search endpoint, used in tests.
func WithDexScreenerURL(u string) CollectorOption {
	return func(c *Collector) { c.dexScreenerURL = u }
}

// WithBirdeyeURL overrides the keyed price endpoint, used in tests.
func WithBirdeyeURL(u string) CollectorOption {
	return func(c *Collector) { c.birdeyeURL = u }
}

// WithQuoteLamports sets the probe size for the token quote.
func WithQuoteLamports(v uint64) CollectorOption {
	return func(c *Collector) {
		if v > 0 {
			c.quoteLamports = v
		}
	}
}

// WithCollectorLogger sets the collector logger.
func WithCollectorLogger(l *log.Logger) CollectorOption {
	return func(c *Collector) { c.logger = l }
}

// WithCollectorTimeout bounds each feed request.
func WithCollectorTimeout(d time.Duration) CollectorOption {
	return func(c *Collector) { c.http.Timeout = d }
}

// NewCollector creates a Collector. birdeyeKey may be empty, which
// disables that source.
func NewCollector(agg aggregator, birdeyeKey string, opts ...CollectorOption) *Collector {
	c := &Collector{
		agg:            agg,
		dexScreenerURL: DefaultDexScreenerURL,
		birdeyeURL:     DefaultBirdeyeURL,
		birdeyeKey:     birdeyeKey,
		quoteLamports:  defaultQuoteLamports,
		http:           &http.Client{Timeout: defaultTimeout},
		logger:         log.New(os.Stdout, "[price] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect gathers whatever signals succeed for mint this cycle, zero to
// four entries.
func (c *Collector) Collect(ctx context.Context, mint solana.PublicKey, decimals uint8) []Signal {
	var signals []Signal

	solUSD, err := c.solUSD(ctx)
	if err != nil {
		c.logger.Printf("SOL/USD quote failed: %v", err)
	} else {
		signals = append(signals, Signal{Source: SourceJupiterSolUSD, PriceUSD: solUSD, Note: "SOL"})
	}

	if err == nil {
		tokenUSD, terr := c.tokenViaSol(ctx, mint, decimals, solUSD)
		if terr != nil {
			c.logger.Printf("token quote failed: %v", terr)
		} else {
			signals = append(signals, Signal{Source: SourceJupiterToken, PriceUSD: tokenUSD, Note: "SOL route"})
		}
	}

	if p, err := c.dexScreener(ctx, mint); err != nil {
		c.logger.Printf("dexscreener failed: %v", err)
	} else if p != nil {
		signals = append(signals, Signal{Source: SourceDexScreener, PriceUSD: *p, Note: "USD"})
	}

	if c.birdeyeKey != "" {
		if p, err := c.birdeye(ctx, mint); err != nil {
			c.logger.Printf("birdeye failed: %v", err)
		} else if p != nil {
			signals = append(signals, Signal{Source: SourceBirdeye, PriceUSD: *p, Note: "USD"})
		}
	}

	return signals
}

// solUSD quotes one SOL into USDC.
func (c *Collector) solUSD(ctx context.Context) (decimal.Decimal, error) {
	quote, err := c.agg.Quote(ctx, solana.SolMint, USDCMint, 1_000_000_000, priceSlippageBps)
	if err != nil {
		return decimal.Zero, err
	}
	if quote.OutAmount == 0 {
		return decimal.Zero, fmt.Errorf("zero out amount")
	}
	return decimal.NewFromInt(int64(quote.OutAmount)).Shift(-6), nil
}

// tokenViaSol derives a USD token price from a fixed-size SOL quote
// through the aggregator, priced via the SOL/USD observation.
func (c *Collector) tokenViaSol(ctx context.Context, mint solana.PublicKey, decimals uint8, solUSD decimal.Decimal) (decimal.Decimal, error) {
	quote, err := c.agg.Quote(ctx, solana.SolMint, mint, c.quoteLamports, priceSlippageBps)
	if err != nil {
		return decimal.Zero, err
	}
	if quote.OutAmount == 0 {
		return decimal.Zero, fmt.Errorf("zero out amount")
	}
	outTokens := decimal.NewFromInt(int64(quote.OutAmount)).Shift(-int32(decimals))
	inSol := decimal.NewFromInt(int64(c.quoteLamports)).Shift(-9)
	solPerToken := inSol.Div(outTokens)
	return solPerToken.Mul(solUSD), nil
}

// dexScreenerResponse matches the pair-search response shape.
type dexScreenerResponse struct {
	Pairs []dexScreenerPair `json:"pairs"`
}

type dexScreenerPair struct {
	ChainID   string `json:"chainId"`
	PriceUSD  string `json:"priceUsd"`
	Liquidity struct {
		USD json.Number `json:"usd"`
	} `json:"liquidity"`
}

// dexScreener returns the USD price of the most liquid solana pair for
// mint, or nil when no pair is listed.
func (c *Collector) dexScreener(ctx context.Context, mint solana.PublicKey) (*decimal.Decimal, error) {
	u := c.dexScreenerURL + "/latest/dex/search?q=" + url.QueryEscape(mint.String())
	raw, err := c.fetch(ctx, u, nil)
	if err != nil {
		return nil, err
	}

	var res dexScreenerResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode pair search: %w", err)
	}

	var pairs []dexScreenerPair
	for _, p := range res.Pairs {
		if p.ChainID == "solana" {
			pairs = append(pairs, p)
		}
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		li, _ := decimal.NewFromString(pairs[i].Liquidity.USD.String())
		lj, _ := decimal.NewFromString(pairs[j].Liquidity.USD.String())
		return li.GreaterThan(lj)
	})

	p, err := decimal.NewFromString(pairs[0].PriceUSD)
	if err != nil || p.IsZero() {
		return nil, nil
	}
	return &p, nil
}

// birdeyeResponse matches the keyed price-lookup response shape.
type birdeyeResponse struct {
	Data struct {
		Value json.Number `json:"value"`
	} `json:"data"`
}

// birdeye returns the USD price from the keyed feed, or nil when the feed
// has no price.
func (c *Collector) birdeye(ctx context.Context, mint solana.PublicKey) (*decimal.Decimal, error) {
	u := c.birdeyeURL + "/defi/price?address=" + url.QueryEscape(mint.String())
	raw, err := c.fetch(ctx, u, map[string]string{"X-API-KEY": c.birdeyeKey})
	if err != nil {
		return nil, err
	}

	var res birdeyeResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode price lookup: %w", err)
	}
	p, err := decimal.NewFromString(res.Data.Value.String())
	if err != nil || p.IsZero() {
		return nil, nil
	}
	return &p, nil
}

func (c *Collector) fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
