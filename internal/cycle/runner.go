// Package cycle sequences one claim, skim, burn, price, buy and burn
// pass and repeats it on a fixed interval. One cycle's failure never
// stops the loop.
package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"burnloop/internal/amount"
	"burnloop/internal/burn"
	"burnloop/internal/claim"
	"burnloop/internal/domain"
	"burnloop/internal/ledger"
	"burnloop/internal/observability"
	"burnloop/internal/price"
	"burnloop/internal/status"
	"burnloop/internal/storage"
	"burnloop/internal/swap"
	"burnloop/internal/tokenaccount"
	"burnloop/internal/wallet"
)

// State is the cross-cycle state. It is owned by the Runner and mutated
// only between phases; cycles never overlap.
type State struct {
	// Graduated is latched once the bonding-curve venue is known
	// exhausted.
	Graduated bool
	// ClaimCooldown counts the cycles left to skip the claim step.
	ClaimCooldown int
	// Replay caches the reference claim transaction bytes.
	Replay claim.ReplayCache
	// Count is the monotonically increasing cycle counter.
	Count int64
}

// Claimer collects creator fees.
type Claimer interface {
	Claim(ctx context.Context, cache *claim.ReplayCache) (*claim.Result, error)
}

// Buyer routes the buy order and probes venue graduation.
type Buyer interface {
	Buy(ctx context.Context, spendLamports uint64, graduated bool) (*swap.Result, bool, error)
	ProbeGraduation(ctx context.Context, probeLamports uint64) (bool, error)
}

// SignalCollector gathers the cycle's price observations.
type SignalCollector interface {
	Collect(ctx context.Context, mint solana.PublicKey, decimals uint8) []price.Signal
}

// Options configures a Runner.
type Options struct {
	Client ledger.Client
	Wallet *wallet.Wallet
	Mint   solana.PublicKey

	Claimer   Claimer
	Buyer     Buyer
	Collector SignalCollector

	// BurnAll burns the wallet's full token position; nil binds the
	// default implementation against Client.
	BurnAll func(ctx context.Context) (*burn.Result, error)
	// Skim moves the treasury share of a positive claim; nil disables
	// the treasury leg.
	Skim func(ctx context.Context, claimedLamports uint64) (uint64, error)
	// MintInfo reads the mint's program, supply and decimals; nil binds
	// the default implementation against Client.
	MintInfo func(ctx context.Context) (*tokenaccount.MintInfo, error)
	// EnsureAccount prepares the wallet's token account under the given
	// program; nil binds the default implementation against Client.
	EnsureAccount func(ctx context.Context, program solana.PublicKey) (*tokenaccount.Status, error)

	// Records persists per-cycle outcomes; nil disables persistence.
	Records  storage.CycleRecordStore
	Reporter *status.Reporter

	Route           swap.Route
	GuardMode       price.GuardMode
	MaxDeviationPct decimal.Decimal
	// QuoteLamports is the probe size for graduation checks.
	QuoteLamports uint64
	// Reserve is the lamport floor never spent on buys.
	Reserve uint64
	// FeeBuffer is the lamport headroom kept for transaction fees.
	FeeBuffer uint64
	// MinBuyLamports is the smallest buy worth sending.
	MinBuyLamports uint64
	// ClaimMinLamports is the balance floor below which claims are
	// skipped.
	ClaimMinLamports uint64
	// CooldownCycles is how many cycles to skip claims after an empty
	// claim.
	CooldownCycles int

	Interval time.Duration
}

// Runner drives the loop.
type Runner struct {
	opts     Options
	state    State
	reporter *status.Reporter
}

// New creates a Runner, binding default burn, mint-info and token-account
// implementations when none are injected.
func New(opts Options) *Runner {
	if opts.Reporter == nil {
		opts.Reporter = status.NewReporter(nil)
	}
	if opts.BurnAll == nil {
		opts.BurnAll = func(ctx context.Context) (*burn.Result, error) {
			return burn.All(ctx, opts.Client, opts.Wallet, opts.Mint)
		}
	}
	if opts.MintInfo == nil {
		opts.MintInfo = func(ctx context.Context) (*tokenaccount.MintInfo, error) {
			return tokenaccount.FetchMintInfo(ctx, opts.Client, opts.Mint)
		}
	}
	if opts.EnsureAccount == nil {
		opts.EnsureAccount = func(ctx context.Context, program solana.PublicKey) (*tokenaccount.Status, error) {
			return tokenaccount.EnsureAccount(ctx, opts.Client, opts.Wallet, opts.Mint, program, opts.Reserve, opts.FeeBuffer)
		}
	}
	return &Runner{opts: opts, reporter: opts.Reporter}
}

// State returns a copy of the cross-cycle state.
func (r *Runner) State() State { return r.state }

// Run executes the first cycle immediately, then repeats on the
// configured interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.cycleSafe(ctx)
	for {
		next := time.Now().Add(r.opts.Interval)
		r.reporter.Info("Next cycle in %ds at %s.", int(r.opts.Interval.Seconds()), next.Format("15:04:05"))
		r.reporter.Update(func(s *status.Snapshot) { s.Next = next.Format("15:04:05") })

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.opts.Interval):
		}
		r.cycleSafe(ctx)
	}
}

// cycleSafe contains one cycle's failure, panics included.
func (r *Runner) cycleSafe(ctx context.Context) {
	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			r.reporter.Err("Cycle panicked: %v", v)
			observability.RecordCycle("panic", time.Since(start).Seconds())
		}
	}()
	if err := r.RunOnce(ctx); err != nil {
		r.reporter.Err("Cycle failed: %v", err)
		observability.RecordCycle("error", time.Since(start).Seconds())
		return
	}
	observability.RecordCycle("ok", time.Since(start).Seconds())
}

// RunOnce executes a single cycle.
func (r *Runner) RunOnce(ctx context.Context) error {
	r.state.Count++
	seq := r.state.Count
	started := time.Now()
	r.reporter.Section(fmt.Sprintf("CYCLE #%d", seq))

	balanceBefore, err := r.opts.Client.Balance(ctx, r.opts.Wallet.PublicKey)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	observability.UpdateWalletBalance(balanceBefore)
	r.reporter.Info("SOL before claim: %s", amount.UnsignedLamportsToSol(balanceBefore))

	rec := &domain.CycleRecord{
		RecordID:      fmt.Sprintf("%s-%d", r.opts.Mint, started.UnixMilli()),
		Mint:          r.opts.Mint.String(),
		CycleSeq:      seq,
		StartedAt:     started.UnixMilli(),
		BalanceBefore: balanceBefore,
	}

	balanceAfter, claimed := r.claimPhase(ctx, balanceBefore, rec)

	balanceAfter = r.treasuryPhase(ctx, claimed, balanceAfter, rec)
	rec.ClaimedLamports = claimed

	r.burnPhase(ctx, "pre-buy", nil, rec)

	info := r.mintPhase(ctx)
	ataReady, balanceAfter := r.accountPhase(ctx, info, balanceAfter)

	signals, pricing := r.pricePhase(ctx, info, claimed, seq)

	r.probePhase(ctx)

	guard := price.EvaluateGuard(signals, r.opts.GuardMode, r.opts.MaxDeviationPct)
	rec.GuardOK = guard.OK
	rec.GuardReason = guard.Reason
	if pricing.HasSol {
		rec.SolUSD = pricing.SolUSD.String()
	}
	if pricing.HasToken {
		rec.TokenUSD = pricing.TokenUSD.String()
	}

	r.buyPhase(ctx, guard, ataReady, balanceAfter, seq, rec)

	r.burnPhase(ctx, "post-buy", &pricing, rec)

	rec.FinishedAt = time.Now().UnixMilli()
	rec.BalanceAfter = balanceAfter
	if r.opts.Records != nil {
		if err := r.opts.Records.Insert(ctx, rec); err != nil {
			r.reporter.Warn("Cycle record insert failed: %v", err)
		}
	}
	return nil
}

// claimPhase runs the claim step and returns the refreshed balance and
// the observed claim delta. The cooldown only counts down on cycles it
// causes to skip; an attempted or balance-skipped claim re-arms it when
// nothing was collected.
func (r *Runner) claimPhase(ctx context.Context, balanceBefore uint64, rec *domain.CycleRecord) (uint64, int64) {
	armCooldown := true
	switch {
	case balanceBefore < r.opts.ClaimMinLamports:
		r.reporter.Warn("Skipping claim: balance %s below claim minimum %s SOL.",
			amount.UnsignedLamportsToSol(balanceBefore), amount.UnsignedLamportsToSol(r.opts.ClaimMinLamports))
	case r.state.ClaimCooldown > 0:
		r.reporter.Warn("Skipping claim: cooldown %d cycles remaining.", r.state.ClaimCooldown)
		r.state.ClaimCooldown--
		armCooldown = false
	default:
		res, err := r.opts.Claimer.Claim(ctx, &r.state.Replay)
		if err != nil {
			r.reporter.Err("Claim failed: %v", err)
			observability.RecordClaim("failed", 0)
		} else {
			r.reporter.OK("Claimed creator fees (pool=%s, method=%s).", res.Venue, res.Method)
			r.reporter.Tx("Claim Tx", res.Signature)
			r.reporter.Update(func(s *status.Snapshot) { s.LastAction = "Claimed" })
			rec.ClaimSignature = res.Signature
			rec.ClaimVenue = res.Venue
			rec.ClaimMethod = string(res.Method)
		}
	}

	balanceAfter, err := r.opts.Client.Balance(ctx, r.opts.Wallet.PublicKey)
	if err != nil {
		r.reporter.Warn("Balance refresh failed: %v", err)
		balanceAfter = balanceBefore
	}
	claimed := int64(balanceAfter) - int64(balanceBefore)
	r.reporter.Info("SOL after claim: %s (claimed %s)",
		amount.UnsignedLamportsToSol(balanceAfter), amount.LamportsToSol(claimed))
	r.reporter.Update(func(s *status.Snapshot) {
		s.Sol = amount.UnsignedLamportsToSol(balanceAfter)
		s.Claimed = amount.LamportsToSol(claimed)
	})

	if armCooldown {
		if claimed <= 0 {
			r.state.ClaimCooldown = r.opts.CooldownCycles
		} else {
			r.state.ClaimCooldown = 0
			observability.RecordClaim("collected", claimed)
		}
	}
	observability.UpdateClaimCooldown(r.state.ClaimCooldown)
	return balanceAfter, claimed
}

// treasuryPhase moves the configured share of a positive claim. Failures
// are deliberately silent.
func (r *Runner) treasuryPhase(ctx context.Context, claimed int64, balanceAfter uint64, rec *domain.CycleRecord) uint64 {
	if claimed <= 0 || r.opts.Skim == nil {
		return balanceAfter
	}
	moved, err := r.opts.Skim(ctx, uint64(claimed))
	if err != nil || moved == 0 {
		return balanceAfter
	}
	if moved > balanceAfter {
		moved = balanceAfter
	}
	rec.TreasuryLamports = moved
	observability.DefaultMetrics.TreasuryLamports.Add(float64(moved))
	balanceAfter -= moved
	r.reporter.Update(func(s *status.Snapshot) { s.Sol = amount.UnsignedLamportsToSol(balanceAfter) })
	return balanceAfter
}

// burnPhase burns the full token position. leg is "pre-buy" or
// "post-buy"; only the post-buy leg reports value.
func (r *Runner) burnPhase(ctx context.Context, leg string, pricing *price.Pricing, rec *domain.CycleRecord) {
	res, err := r.opts.BurnAll(ctx)
	if err != nil {
		r.reporter.Err("Burn (%s) failed: %v", leg, err)
		return
	}
	if res == nil {
		return
	}
	observability.RecordBurn(res.BurnedRaw)
	r.reporter.OK("Burned %s tokens.", res.Tokens())
	r.reporter.Tx("Burn Tx", res.Signature)
	rec.BurnSignature = res.Signature
	if leg == "pre-buy" {
		rec.PreBuyBurnRaw = res.BurnedRaw
		return
	}
	rec.PostBuyBurnRaw = res.BurnedRaw
	r.reporter.Update(func(s *status.Snapshot) {
		s.Burned = fmt.Sprintf("%s tokens", res.Tokens())
		s.LastAction = "Burned"
	})
	if pricing != nil {
		if usd, sol, ok := res.Value(*pricing); ok {
			r.reporter.Info("Burn value: %s SOL ($%s)", sol.StringFixed(4), usd.StringFixed(2))
			r.reporter.Update(func(s *status.Snapshot) {
				s.BurnValue = fmt.Sprintf("%s SOL ($%s)", sol.StringFixed(4), usd.StringFixed(2))
			})
		}
	}
}

// mintPhase reads mint info, tolerating failure.
func (r *Runner) mintPhase(ctx context.Context) *tokenaccount.MintInfo {
	info, err := r.opts.MintInfo(ctx)
	if err != nil {
		r.reporter.Warn("Mint info fetch failed: %v", err)
		return nil
	}
	supply := decimal.NewFromInt(int64(info.Supply)).Shift(-int32(info.Decimals))
	r.reporter.Info("Tokens remaining (supply): %s (mint %s)", supply, r.opts.Mint)
	return info
}

// accountPhase makes sure the token account exists, refreshing the
// balance when rent was just paid.
func (r *Runner) accountPhase(ctx context.Context, info *tokenaccount.MintInfo, balanceAfter uint64) (bool, uint64) {
	if info == nil {
		return true, balanceAfter
	}
	st, err := r.opts.EnsureAccount(ctx, info.Program)
	if err != nil {
		r.reporter.Warn("Token account check failed: %v", err)
		return false, balanceAfter
	}
	if !st.Ready {
		r.reporter.Warn("Token account not ready: %s", st.Reason)
		return false, balanceAfter
	}
	if st.Created {
		refreshed, err := r.opts.Client.Balance(ctx, r.opts.Wallet.PublicKey)
		if err == nil {
			balanceAfter = refreshed
		}
	}
	return true, balanceAfter
}

// pricePhase collects signals and reports the claimed value in USD terms.
func (r *Runner) pricePhase(ctx context.Context, info *tokenaccount.MintInfo, claimed int64, seq int64) ([]price.Signal, price.Pricing) {
	var signals []price.Signal
	if info != nil {
		signals = r.opts.Collector.Collect(ctx, r.opts.Mint, info.Decimals)
	}
	if len(signals) == 0 {
		r.reporter.Info("Price signals: none available.")
	} else {
		r.reporter.Info("Price signals:")
		for _, s := range signals {
			r.reporter.Price(s.Source, s.PriceUSD.String(), s.Note)
			f, _ := s.PriceUSD.Float64()
			observability.RecordPriceSignal(s.Source, f)
		}
	}
	pricing := price.PricingFrom(signals)

	claimedSol := amount.LamportsToSol(claimed)
	if pricing.HasSol {
		claimedUSD := decimal.NewFromInt(claimed).Shift(-9).Mul(pricing.SolUSD)
		r.reporter.Info("CYCLE #%d CLAIM EXECUTED %s SOL ($%s).", seq, claimedSol, claimedUSD.StringFixed(2))
		r.reporter.Update(func(s *status.Snapshot) {
			s.Claimed = fmt.Sprintf("%s ($%s)", claimedSol, claimedUSD.StringFixed(2))
			s.SolUSD = fmt.Sprintf("SOL: $%s", pricing.SolUSD.StringFixed(2))
		})
	} else {
		r.reporter.Info("CYCLE #%d CLAIM EXECUTED %s SOL (USD n/a).", seq, claimedSol)
	}
	if pricing.HasToken {
		r.reporter.Update(func(s *status.Snapshot) {
			s.TokenUSD = fmt.Sprintf("TOKEN: $%s", pricing.TokenUSD)
		})
	}
	return signals, pricing
}

// probePhase refreshes the graduation flag in automatic routing mode.
func (r *Runner) probePhase(ctx context.Context) {
	if r.opts.Route != swap.RouteAuto {
		return
	}
	graduated, err := r.opts.Buyer.ProbeGraduation(ctx, r.opts.QuoteLamports)
	if err != nil {
		r.reporter.Warn("Graduation check failed: %v", err)
		return
	}
	r.state.Graduated = graduated
}

// buyPhase spends the balance above the reserve when the guard approves
// and the account is ready.
func (r *Runner) buyPhase(ctx context.Context, guard price.GuardResult, ataReady bool, balanceAfter uint64, seq int64, rec *domain.CycleRecord) {
	if !guard.OK {
		r.reporter.Warn("Price guard blocked buy: %s", guard.Reason)
		observability.RecordGuardBlock()
		return
	}
	if !ataReady {
		r.reporter.Warn("Token account not ready (rent/fees). Skipping buy this cycle.")
		return
	}

	reserve := r.opts.Reserve + r.opts.FeeBuffer
	var spendable uint64
	if balanceAfter > reserve {
		spendable = balanceAfter - reserve
	}
	if spendable == 0 || spendable < r.opts.MinBuyLamports {
		r.reporter.Info("Spendable SOL %s below minimum buy %s. Skipping buy.",
			amount.UnsignedLamportsToSol(spendable), amount.UnsignedLamportsToSol(r.opts.MinBuyLamports))
		return
	}

	r.reporter.Info("CYCLE #%d BUY ROUTE LOCKED. DEPLOYING %s SOL.", seq, amount.UnsignedLamportsToSol(spendable))
	res, graduated, err := r.opts.Buyer.Buy(ctx, spendable, r.state.Graduated)
	r.state.Graduated = graduated
	if err != nil {
		r.reporter.Err("Buy failed: %v", err)
		observability.RecordBuy("", "error", 0)
		return
	}
	if res == nil {
		observability.RecordBuy("", "skipped", 0)
		return
	}
	r.reporter.OK("Bought %s SOL via %s.", amount.UnsignedLamportsToSol(res.SpentLamports), res.Venue)
	r.reporter.Tx("Buy Tx", res.Signature)
	r.reporter.Info("CYCLE #%d BUY CONFIRMED. PREPARING BURN.", seq)
	r.reporter.Update(func(s *status.Snapshot) { s.LastAction = "Bought" })
	observability.RecordBuy(res.Venue, "ok", res.SpentLamports)
	rec.BuySignature = res.Signature
	rec.BuyVenue = res.Venue
	rec.SpentLamports = res.SpentLamports
}
