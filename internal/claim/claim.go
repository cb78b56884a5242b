// Package claim collects accrued creator fees through the trade relay,
// trying venue, priority-fee and request-shape combinations until one
// lands a rewarded transaction.
package claim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"

	"burnloop/internal/ledger"
	"burnloop/internal/pumpportal"
	"burnloop/internal/wallet"
)

// Method selects how the claim transaction is produced and submitted.
type Method string

const (
	// MethodAuto resolves to replay, lightning or local based on what is
	// configured.
	MethodAuto Method = "auto"
	// MethodReplay rebroadcasts a historical claim transaction with a
	// fresh blockhash.
	MethodReplay Method = "replay"
	// MethodLightning has the relay sign and broadcast server side.
	MethodLightning Method = "lightning"
	// MethodLocal signs a relay-built transaction locally.
	MethodLocal Method = "local"
)

// ParseMethod validates a configured claim method string.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodAuto, MethodReplay, MethodLightning, MethodLocal:
		return Method(s), nil
	default:
		return "", fmt.Errorf("invalid claim method %q (auto|replay|lightning|local)", s)
	}
}

// multiVenues is the fallback venue order when the claim pool is "multi"
// or "pump".
var multiVenues = []string{"pump", "pump-amm", "auto", "raydium-cpmm", "raydium"}

// Fee tiers appended when no priority fee is configured.
var fallbackFeeTiers = []float64{0.00001, 0.00005}

var (
	// ErrExhausted means every venue, fee tier and request shape was tried
	// without landing a rewarded claim.
	ErrExhausted = errors.New("claim failed on all pools")
	// ErrNoVenue means no claim venue could be resolved from the
	// configuration.
	ErrNoVenue = errors.New("no claim venue configured")
)

// noRewardMarkers are on-chain log fragments that identify a claim which
// landed but collected nothing.
var noRewardMarkers = []string{
	"No creator fee to collect",
	"No coin creator fee to collect",
}

// ReplayCache holds the raw bytes of the reference claim transaction so
// the historical lookup happens at most once per signature.
type ReplayCache struct {
	Sig   string
	RawTx []byte
}

// Relay is the trade-relay surface the claimer depends on.
type Relay interface {
	HasAPIKey() bool
	TradeLocal(ctx context.Context, body pumpportal.TradeRequest) ([]byte, error)
	TradeLightning(ctx context.Context, body pumpportal.TradeRequest) (string, error)
}

// Options configures a Claimer.
type Options struct {
	Client ledger.Client
	Relay  Relay
	Wallet *wallet.Wallet
	Mint   solana.PublicKey

	Method Method
	// ClaimPool is the configured claim venue: "multi", a specific venue,
	// or empty to follow the trade pool.
	ClaimPool string
	// TradePool is the main trade venue, used as the claim venue fallback.
	TradePool string
	// RefSig is the historical claim signature used by the replay method.
	RefSig string
	// PriorityFeeSOL is the configured priority fee in SOL terms.
	PriorityFeeSOL float64

	Logger *log.Logger
}

// Claimer drives creator-fee collection.
type Claimer struct {
	opts   Options
	logger *log.Logger
}

// New creates a Claimer.
func New(opts Options) *Claimer {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[claim] ", log.LstdFlags)
	}
	return &Claimer{opts: opts, logger: logger}
}

// Result describes a successful claim.
type Result struct {
	Signature string
	Method    Method
	Venue     string
}

// Attempt is one fully-specified claim try: a venue at one priority-fee
// tier, with the request shapes to cycle through. LastFeeTier marks the
// final tier for its venue, which is the only one whose failure is logged.
type Attempt struct {
	Venue       string
	FeeTierSOL  float64
	LastFeeTier bool
	Bodies      []pumpportal.TradeRequest
}

// ResolveMethod maps the auto method to a concrete one: replay when a
// reference signature exists, lightning when the relay holds an API key,
// local otherwise.
func (c *Claimer) ResolveMethod() Method {
	if c.opts.Method != MethodAuto {
		return c.opts.Method
	}
	if c.opts.RefSig != "" {
		return MethodReplay
	}
	if c.opts.Relay.HasAPIKey() {
		return MethodLightning
	}
	return MethodLocal
}

// venues resolves the venue order for the given method.
func (c *Claimer) venues(method Method) []string {
	if method == MethodReplay {
		p := c.opts.ClaimPool
		if p == "multi" || p == "" {
			p = c.opts.TradePool
		}
		if p == "" {
			return nil
		}
		return []string{p}
	}
	switch c.opts.ClaimPool {
	case "multi", "pump":
		return multiVenues
	case "":
		if c.opts.TradePool == "" {
			return nil
		}
		return []string{c.opts.TradePool}
	default:
		return []string{c.opts.ClaimPool}
	}
}

// feeTiers returns the priority-fee ladder: the configured fee, plus the
// fallback tiers when none is configured.
func (c *Claimer) feeTiers() []float64 {
	tiers := []float64{c.opts.PriorityFeeSOL}
	if c.opts.PriorityFeeSOL <= 0 {
		tiers = append(tiers, fallbackFeeTiers...)
	}
	return tiers
}

// bodies returns the request shapes for one venue. The relay infers the
// venue for "pump" when the pool field is absent, so that venue gets a
// bare request first; other venues get the pool field and then the pool
// plus mint.
func (c *Claimer) bodies(venue string, feeTier float64) []pumpportal.TradeRequest {
	base := pumpportal.TradeRequest{
		PublicKey:   c.opts.Wallet.PublicKey.String(),
		Action:      "collectCreatorFee",
		PriorityFee: feeTier,
	}
	if venue == "pump" {
		withPool := base
		withPool.Pool = venue
		return []pumpportal.TradeRequest{base, withPool}
	}
	withPool := base
	withPool.Pool = venue
	withMint := withPool
	withMint.Mint = c.opts.Mint.String()
	return []pumpportal.TradeRequest{withPool, withMint}
}

// Attempts builds the ordered attempt list for the given method: every
// venue crossed with every fee tier.
func (c *Claimer) Attempts(method Method) []Attempt {
	tiers := c.feeTiers()
	var attempts []Attempt
	for _, venue := range c.venues(method) {
		for i, tier := range tiers {
			attempts = append(attempts, Attempt{
				Venue:       venue,
				FeeTierSOL:  tier,
				LastFeeTier: i == len(tiers)-1,
				Bodies:      c.bodies(venue, tier),
			})
		}
	}
	return attempts
}

// Claim works through the attempt list until one lands a rewarded
// transaction. cache carries replay bytes across cycles and may be
// updated. A fully exhausted list returns ErrExhausted.
func (c *Claimer) Claim(ctx context.Context, cache *ReplayCache) (*Result, error) {
	method := c.ResolveMethod()
	attempts := c.Attempts(method)
	if len(attempts) == 0 {
		return nil, ErrNoVenue
	}

	for _, at := range attempts {
		sig, claimed, err := c.runAttempt(ctx, method, at, cache)
		if err != nil {
			if at.LastFeeTier {
				c.logger.Printf("claim attempt failed (pool=%s): %v", at.Venue, err)
			}
			continue
		}
		if !claimed {
			continue
		}
		c.logger.Printf("claimed creator fees (pool=%s, method=%s)", at.Venue, method)
		return &Result{Signature: sig, Method: method, Venue: at.Venue}, nil
	}
	return nil, ErrExhausted
}

// runAttempt cycles through the attempt's request shapes. claimed=false
// with a nil error means every shape landed without rewards.
func (c *Claimer) runAttempt(ctx context.Context, method Method, at Attempt, cache *ReplayCache) (string, bool, error) {
	for _, body := range at.Bodies {
		var sig string
		var err error
		switch method {
		case MethodReplay:
			sig, err = c.sendReplay(ctx, cache)
		case MethodLightning:
			sig, err = c.opts.Relay.TradeLightning(ctx, body)
		default:
			sig, err = c.sendLocal(ctx, body)
		}
		if err != nil {
			return "", false, err
		}
		if sig == "" {
			continue
		}
		if c.hadNoRewards(ctx, sig) {
			continue
		}
		return sig, true, nil
	}
	return "", false, nil
}

// sendLocal gets transaction bytes from the relay, signs them and submits.
func (c *Claimer) sendLocal(ctx context.Context, body pumpportal.TradeRequest) (string, error) {
	raw, err := c.opts.Relay.TradeLocal(ctx, body)
	if err != nil {
		return "", err
	}
	tx, err := solana.TransactionFromBytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode relay transaction: %w", err)
	}
	if err := c.opts.Wallet.SignTransaction(tx); err != nil {
		return "", err
	}
	sig, err := c.opts.Client.SendAndConfirm(ctx, tx)
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}

// sendReplay rebroadcasts the reference claim transaction under a fresh
// blockhash, re-signing from scratch.
func (c *Claimer) sendReplay(ctx context.Context, cache *ReplayCache) (string, error) {
	if c.opts.RefSig == "" {
		return "", errors.New("replay claim requires a reference signature")
	}

	var raw []byte
	if cache != nil && cache.Sig == c.opts.RefSig && len(cache.RawTx) > 0 {
		raw = cache.RawTx
	} else {
		fetched, err := c.opts.Client.RawTransaction(ctx, c.opts.RefSig)
		if err != nil {
			return "", fmt.Errorf("replay claim: %w", err)
		}
		raw = fetched
		if cache != nil {
			cache.Sig = c.opts.RefSig
			cache.RawTx = raw
		}
	}

	tx, err := solana.TransactionFromBytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode replay transaction: %w", err)
	}
	blockhash, err := c.opts.Client.LatestBlockhash(ctx)
	if err != nil {
		return "", err
	}
	tx.Message.RecentBlockhash = blockhash
	tx.Signatures = make([]solana.Signature, len(tx.Signatures))
	if err := c.opts.Wallet.SignTransaction(tx); err != nil {
		return "", err
	}

	sig, err := c.opts.Client.SendAndConfirm(ctx, tx)
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}

// hadNoRewards checks the landed transaction's logs for the no-reward
// markers. Lookup failures count as rewarded so a flaky node cannot void
// a real claim.
func (c *Claimer) hadNoRewards(ctx context.Context, sig string) bool {
	parsed, err := solana.SignatureFromBase58(sig)
	if err != nil {
		return false
	}
	logs, err := c.opts.Client.TransactionLogs(ctx, parsed)
	if err != nil {
		return false
	}
	for _, line := range logs {
		for _, marker := range noRewardMarkers {
			if strings.Contains(line, marker) {
				return true
			}
		}
	}
	return false
}
