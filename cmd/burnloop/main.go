// Package main runs the continuous token reduction loop: claim creator
// fees, skim the treasury share, burn the token position, buy with the
// remaining balance and burn again, on a fixed interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"burnloop/internal/amount"
	"burnloop/internal/claim"
	"burnloop/internal/cycle"
	"burnloop/internal/jupiter"
	"burnloop/internal/ledger"
	"burnloop/internal/observability"
	"burnloop/internal/price"
	"burnloop/internal/pumpportal"
	"burnloop/internal/status"
	"burnloop/internal/storage"
	"burnloop/internal/storage/memory"
	"burnloop/internal/storage/migrations"
	pgstore "burnloop/internal/storage/postgres"
	"burnloop/internal/swap"
	"burnloop/internal/wallet"
)

func main() {
	// Load .env if present; real env vars win.
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	rpcURLs := flag.String("rpc-urls", envOr("RPC_URLS", os.Getenv("RPC_URL")), "Comma-separated Solana RPC endpoints")
	mintStr := flag.String("mint", os.Getenv("MINT"), "Token mint address")
	slippage := flag.Float64("slippage", envFloat("SLIPPAGE", 1), "Buy slippage tolerance in percent")
	priorityFee := flag.Float64("priority-fee", envFloat("PRIORITY_FEE", 0.0001), "Priority fee in SOL")
	pool := flag.String("pool", envOr("POOL", "pump"), "Trade pool passed to the relay")
	buyRoute := flag.String("buy-route", envOr("BUY_ROUTE", "auto"), "Buy route (auto|jupiter|pump)")
	claimMethod := flag.String("claim-method", envOr("CLAIM_METHOD", "auto"), "Claim method (auto|replay|lightning|local)")
	claimPool := flag.String("claim-pool", os.Getenv("CLAIM_POOL"), "Claim venue, 'multi' for the full rotation, empty to follow --pool")
	claimRefSig := flag.String("claim-ref-sig", os.Getenv("CLAIM_REF_SIG"), "Historical claim signature replayed by the replay method")
	treasuryAddr := flag.String("treasury-address", os.Getenv("CLAIM_TREASURY_ADDRESS"), "Treasury address for the claim skim (empty disables)")
	treasuryBps := flag.Uint64("treasury-bps", envUint("CLAIM_TREASURY_BPS", 0), "Treasury share of each claim in basis points")
	interval := flag.Duration("interval", time.Duration(envUint("INTERVAL_MS", 180000))*time.Millisecond, "Cycle interval")
	minSolKeep := flag.String("min-sol-keep", envOr("MIN_SOL_KEEP", "0"), "SOL balance never spent on buys")
	buyFeeBuffer := flag.String("buy-fee-buffer", envOr("BUY_SOL_FEE_BUFFER", "0"), "SOL headroom kept for buy transaction fees")
	minBuySol := flag.String("min-buy-sol", envOr("MIN_BUY_SOL", "0.0005"), "Smallest buy worth sending, in SOL")
	claimMinSol := flag.String("claim-min-sol", envOr("CLAIM_MIN_SOL", "0"), "Balance floor below which claims are skipped, in SOL")
	cooldownCycles := flag.Int("claim-cooldown-cycles", int(envUint("CLAIM_COOLDOWN_CYCLES", 3)), "Cycles to skip claims after an empty claim")
	guardMode := flag.String("price-guard-mode", envOr("PRICE_GUARD_MODE", "auto"), "Price guard mode (off|on|auto)")
	maxDeviation := flag.Float64("max-price-deviation-pct", envFloat("MAX_PRICE_DEVIATION_PCT", 15), "Maximum tolerated price deviation from the median, in percent")
	quoteLamports := flag.Uint64("price-quote-lamports", envUint("PRICE_QUOTE_SOL_LAMPORTS", 100_000_000), "Probe size for quotes and graduation checks, in lamports")
	fetchTimeout := flag.Duration("fetch-timeout", time.Duration(envUint("FETCH_TIMEOUT_MS", 8000))*time.Millisecond, "HTTP timeout for relay, aggregator and price sources")
	statusAddr := flag.String("status-addr", envOr("STATUS_ADDR", ":8787"), "Operator status HTTP address (empty disables)")
	metricsAddr := flag.String("metrics-addr", envOr("METRICS_ADDR", ":9090"), "Prometheus metrics HTTP address (empty disables)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (empty keeps cycle records in memory)")

	flag.Parse()

	logger := log.New(os.Stdout, "[burnloop] ", log.LstdFlags)

	if *rpcURLs == "" {
		logger.Fatal("--rpc-urls is required (or RPC_URLS / RPC_URL)")
	}
	if *mintStr == "" {
		logger.Fatal("--mint is required (or MINT)")
	}
	secret := os.Getenv("WALLET_SECRET_KEY_BASE58")
	if secret == "" {
		logger.Fatal("WALLET_SECRET_KEY_BASE58 is required")
	}

	w, err := wallet.FromSecret(secret, wallet.SecretFormat(os.Getenv("WALLET_SECRET_KEY_FORMAT")))
	if err != nil {
		logger.Fatalf("Parse wallet secret: %v", err)
	}
	mint, err := wallet.ValidateAddress(*mintStr)
	if err != nil {
		logger.Fatalf("Parse mint: %v", err)
	}
	route, err := swap.ParseRoute(*buyRoute)
	if err != nil {
		logger.Fatal(err)
	}
	method, err := claim.ParseMethod(*claimMethod)
	if err != nil {
		logger.Fatal(err)
	}
	gmode, err := price.ParseGuardMode(*guardMode)
	if err != nil {
		logger.Fatal(err)
	}
	var treasury solana.PublicKey
	if *treasuryAddr != "" {
		treasury, err = wallet.ValidateAddress(*treasuryAddr)
		if err != nil {
			logger.Fatalf("Parse treasury address: %v", err)
		}
	}
	if *treasuryBps > 10000 {
		logger.Fatalf("--treasury-bps must be at most 10000, got %d", *treasuryBps)
	}
	reserve := mustLamports(logger, "min-sol-keep", *minSolKeep)
	feeBuffer := mustLamports(logger, "buy-fee-buffer", *buyFeeBuffer)
	minBuy := mustLamports(logger, "min-buy-sol", *minBuySol)
	claimMin := mustLamports(logger, "claim-min-sol", *claimMinSol)

	urls := splitURLs(*rpcURLs)
	rpcPool, err := ledger.NewPool(urls,
		ledger.WithCallTimeout(*fetchTimeout),
		ledger.WithRotationHook(func(fromURL string) {
			observability.RecordRPCRotation()
			logger.Printf("RPC rotated away from %s", wallet.RedactAPIKey(fromURL))
		}),
	)
	if err != nil {
		logger.Fatalf("RPC pool: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records, cleanup, err := createRecordStore(ctx, *postgresDSN, logger)
	if err != nil {
		logger.Fatalf("Cycle record store: %v", err)
	}
	defer cleanup()

	relay := pumpportal.New(os.Getenv("PUMPPORTAL_API_KEY"), pumpportal.WithTimeout(*fetchTimeout))
	agg := jupiter.New(os.Getenv("JUPITER_API_KEY"), jupiter.WithTimeout(*fetchTimeout))

	reporter := status.NewReporter(log.New(os.Stdout, "", log.LstdFlags))
	reporter.Section("CTRL - Continuous Token Reduction Loop")
	reporter.Info("Runtime initialized.")
	reporter.Info("Wallet: %s", w.PublicKey)
	reporter.Info("Mint: %s", mint)
	reporter.Info("RPCs: %d (active %s)", len(urls), wallet.RedactAPIKey(urls[0]))
	reporter.Info("Interval: %s", *interval)
	reporter.Info("Buy route: %s", route)
	reporter.Update(func(s *status.Snapshot) {
		s.Wallet = w.PublicKey.String()
		s.Mint = mint.String()
	})

	claimer := claim.New(claim.Options{
		Client:         rpcPool,
		Relay:          relay,
		Wallet:         w,
		Mint:           mint,
		Method:         method,
		ClaimPool:      *claimPool,
		TradePool:      *pool,
		RefSig:         *claimRefSig,
		PriorityFeeSOL: *priorityFee,
	})
	router := swap.New(swap.Options{
		Client:         rpcPool,
		Aggregator:     agg,
		Relay:          relay,
		Wallet:         w,
		Mint:           mint,
		Route:          route,
		TradePool:      *pool,
		SlippagePct:    *slippage,
		PriorityFeeSOL: *priorityFee,
	})
	collector := price.NewCollector(agg, os.Getenv("BIRDEYE_API_KEY"),
		price.WithQuoteLamports(*quoteLamports),
		price.WithCollectorTimeout(*fetchTimeout),
	)

	opts := cycle.Options{
		Client:           rpcPool,
		Wallet:           w,
		Mint:             mint,
		Claimer:          claimer,
		Buyer:            router,
		Collector:        collector,
		Records:          records,
		Reporter:         reporter,
		Route:            route,
		GuardMode:        gmode,
		MaxDeviationPct:  decimal.NewFromFloat(*maxDeviation),
		QuoteLamports:    *quoteLamports,
		Reserve:          reserve,
		FeeBuffer:        feeBuffer,
		MinBuyLamports:   minBuy,
		ClaimMinLamports: claimMin,
		CooldownCycles:   *cooldownCycles,
		Interval:         *interval,
	}
	if !treasury.IsZero() && *treasuryBps > 0 {
		bps := *treasuryBps
		opts.Skim = func(ctx context.Context, claimed uint64) (uint64, error) {
			return claim.TreasurySkim(ctx, rpcPool, w, treasury, claimed, bps)
		}
	}
	runner := cycle.New(opts)

	if *statusAddr != "" {
		mux := http.NewServeMux()
		reporter.Register(mux)
		go func() {
			logger.Printf("Status server listening on %s", *statusAddr)
			if err := http.ListenAndServe(*statusAddr, mux); err != nil {
				logger.Printf("Status server: %v", err)
			}
		}()
	}
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		go func() {
			logger.Printf("Metrics server listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Printf("Metrics server: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatalf("Loop error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// createRecordStore returns the postgres-backed store when a DSN is
// configured and an in-memory store otherwise.
func createRecordStore(ctx context.Context, dsn string, logger *log.Logger) (storage.CycleRecordStore, func(), error) {
	if dsn == "" {
		logger.Println("POSTGRES_DSN not set, keeping cycle records in memory")
		return memory.NewCycleRecordStore(), func() {}, nil
	}
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return pgstore.NewCycleRecordStore(pool), pool.Close, nil
}

// splitURLs splits the comma-separated RPC list, expanding ${VAR}
// references so keys can live in separate env vars.
func splitURLs(raw string) []string {
	var urls []string
	for _, u := range strings.Split(os.ExpandEnv(raw), ",") {
		u = strings.TrimSpace(u)
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func mustLamports(logger *log.Logger, name, sol string) uint64 {
	v, err := amount.SolToLamports(sol)
	if err != nil {
		logger.Fatalf("Invalid --%s %q: %v", name, sol, err)
	}
	return v
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envUint(key string, def uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
