// Package swap routes the buy order to the bonding-curve relay or the
// swap aggregator, stepping down the spend on retryable failures.
package swap

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/gagliardetto/solana-go"

	"burnloop/internal/amount"
	"burnloop/internal/jupiter"
	"burnloop/internal/ledger"
	"burnloop/internal/pumpportal"
	"burnloop/internal/wallet"
)

// Route selects the buy venue.
type Route string

const (
	// RouteAuto uses the bonding curve until it graduates, then the
	// aggregator.
	RouteAuto Route = "auto"
	// RouteJupiter always buys through the aggregator.
	RouteJupiter Route = "jupiter"
	// RoutePump always buys through the bonding-curve relay.
	RoutePump Route = "pump"
)

// ParseRoute validates a configured buy route string.
func ParseRoute(s string) (Route, error) {
	switch Route(s) {
	case RouteAuto, RouteJupiter, RoutePump:
		return Route(s), nil
	default:
		return "", fmt.Errorf("invalid buy route %q (auto|jupiter|pump)", s)
	}
}

// backoffLadder is the lamport deduction applied to the original spend on
// each successive attempt.
var backoffLadder = []uint64{0, 200_000, 500_000, 1_000_000, 2_000_000}

// Aggregator is the swap-aggregator surface the router depends on.
type Aggregator interface {
	Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps int) (*jupiter.Quote, error)
	Swap(ctx context.Context, quote *jupiter.Quote, owner solana.PublicKey, maxPriorityFeeLamports uint64) ([]byte, error)
	HasRoute(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps int) (bool, error)
}

// Relay is the bonding-curve relay surface the router depends on.
type Relay interface {
	TradeLocal(ctx context.Context, body pumpportal.TradeRequest) ([]byte, error)
}

// Options configures a Router.
type Options struct {
	Client     ledger.Client
	Aggregator Aggregator
	Relay      Relay
	Wallet     *wallet.Wallet
	Mint       solana.PublicKey

	Route Route
	// TradePool is the relay pool name sent with bonding-curve buys.
	TradePool string
	// SlippagePct is the tolerated slippage in percent.
	SlippagePct float64
	// PriorityFeeSOL is the priority fee in SOL terms, passed through to
	// the relay and converted to lamports for the aggregator.
	PriorityFeeSOL float64

	Logger *log.Logger
}

// Router drives the buy leg of the cycle.
type Router struct {
	opts   Options
	logger *log.Logger
}

// New creates a Router.
func New(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[swap] ", log.LstdFlags)
	}
	return &Router{opts: opts, logger: logger}
}

// Result describes a confirmed buy.
type Result struct {
	Signature     string
	Venue         string
	SpentLamports uint64
}

// slippageBps converts the percentage config to basis points, never below
// one.
func (r *Router) slippageBps() int {
	bps := int(math.Round(r.opts.SlippagePct * 100))
	if bps < 1 {
		bps = 1
	}
	return bps
}

// priorityFeeLamports converts the SOL-term priority fee for the
// aggregator's fee cap.
func (r *Router) priorityFeeLamports() uint64 {
	if r.opts.PriorityFeeSOL <= 0 {
		return 0
	}
	return uint64(math.Round(r.opts.PriorityFeeSOL * amount.LamportsPerSol))
}

// ProbeGraduation asks the aggregator whether a route exists for the
// probe size, which is how curve graduation becomes visible off-chain.
func (r *Router) ProbeGraduation(ctx context.Context, probeLamports uint64) (bool, error) {
	return r.opts.Aggregator.HasRoute(ctx, solana.SolMint, r.opts.Mint, probeLamports, r.slippageBps())
}

// Buy spends up to spendLamports on the token, walking the backoff ladder
// when the venue asks for a smaller order. It returns a nil Result when no
// attempt landed; the returned graduated flag carries any curve-complete
// discovery back to the caller.
func (r *Router) Buy(ctx context.Context, spendLamports uint64, graduated bool) (*Result, bool, error) {
	warnedGraduation := false
	for _, deduction := range backoffLadder {
		if deduction >= spendLamports {
			continue
		}
		adjusted := spendLamports - deduction

		useAggregator := r.opts.Route == RouteJupiter || (r.opts.Route == RouteAuto && graduated)
		var sig string
		var venue string
		var err error
		if useAggregator {
			venue = "jupiter"
			sig, err = r.buyAggregator(ctx, adjusted)
		} else {
			venue = "pump"
			sig, err = r.buyRelay(ctx, adjusted)
		}
		if err == nil {
			r.logger.Printf("bought %s SOL via %s", amount.UnsignedLamportsToSol(adjusted), venue)
			return &Result{Signature: sig, Venue: venue, SpentLamports: adjusted}, graduated, nil
		}
		if ctx.Err() != nil {
			return nil, graduated, ctx.Err()
		}

		switch ledger.Classify(err) {
		case ledger.KindCurveComplete:
			graduated = true
			if r.opts.Route == RoutePump {
				if !warnedGraduation {
					r.logger.Printf("bonding curve complete, pump buy disabled by config")
				}
				return nil, graduated, nil
			}
			if !warnedGraduation {
				r.logger.Printf("bonding curve complete, switching to aggregator buy")
				warnedGraduation = true
			}
			continue
		case ledger.KindRelayRejected:
			if r.opts.Route != RoutePump {
				graduated = true
				if !warnedGraduation {
					r.logger.Printf("relay rejected buy, switching to aggregator")
					warnedGraduation = true
				}
				continue
			}
			r.logger.Printf("buy failed: %v", err)
			return nil, graduated, nil
		case ledger.KindNoRoute:
			r.logger.Printf("no aggregator route for this amount, skipping buy this cycle")
			return nil, graduated, nil
		case ledger.KindInsufficientFunds:
			r.logger.Printf("buy failed (insufficient funds), skipping buy this cycle")
			return nil, graduated, nil
		default:
			r.logger.Printf("buy failed: %v", err)
			return nil, graduated, nil
		}
	}
	r.logger.Printf("buy did not succeed after retries")
	return nil, graduated, nil
}

// buyAggregator quotes and swaps through the aggregator, then signs and
// submits the returned transaction.
func (r *Router) buyAggregator(ctx context.Context, lamports uint64) (string, error) {
	quote, err := r.opts.Aggregator.Quote(ctx, solana.SolMint, r.opts.Mint, lamports, r.slippageBps())
	if err != nil {
		return "", err
	}
	raw, err := r.opts.Aggregator.Swap(ctx, quote, r.opts.Wallet.PublicKey, r.priorityFeeLamports())
	if err != nil {
		return "", err
	}
	return r.signAndSend(ctx, raw)
}

// buyRelay orders a SOL-denominated buy from the bonding-curve relay,
// then signs and submits the returned transaction.
func (r *Router) buyRelay(ctx context.Context, lamports uint64) (string, error) {
	raw, err := r.opts.Relay.TradeLocal(ctx, pumpportal.TradeRequest{
		PublicKey:        r.opts.Wallet.PublicKey.String(),
		Action:           "buy",
		Mint:             r.opts.Mint.String(),
		DenominatedInSol: "true",
		Amount:           amount.UnsignedLamportsToSol(lamports),
		Slippage:         r.opts.SlippagePct,
		PriorityFee:      r.opts.PriorityFeeSOL,
		Pool:             r.opts.TradePool,
	})
	if err != nil {
		return "", err
	}
	return r.signAndSend(ctx, raw)
}

func (r *Router) signAndSend(ctx context.Context, raw []byte) (string, error) {
	tx, err := solana.TransactionFromBytes(raw)
	if err != nil {
		return "", fmt.Errorf("decode swap transaction: %w", err)
	}
	if err := r.opts.Wallet.SignTransaction(tx); err != nil {
		return "", err
	}
	sig, err := r.opts.Client.SendAndConfirm(ctx, tx)
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}
