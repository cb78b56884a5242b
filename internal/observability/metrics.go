// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram

	// Claim metrics
	ClaimsTotal      *prometheus.CounterVec
	ClaimedLamports  prometheus.Counter
	TreasuryLamports prometheus.Counter
	ClaimCooldown    prometheus.Gauge

	// Buy metrics
	BuysTotal     *prometheus.CounterVec
	SpentLamports prometheus.Counter

	// Burn metrics
	BurnsTotal  prometheus.Counter
	TokensBurnt prometheus.Counter

	// Price metrics
	PriceSignals     *prometheus.GaugeVec
	GuardBlocksTotal prometheus.Counter

	// Chain metrics
	WalletLamports prometheus.Gauge
	RPCRotations   prometheus.Counter
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "burnloop"
	}

	return &Metrics{
		// Cycle metrics
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total number of cycles by status",
		}, []string{"status"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Cycle execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		// Claim metrics
		ClaimsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "attempts_total",
			Help:      "Total number of claim outcomes by status",
		}, []string{"status"}),
		ClaimedLamports: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "claimed_lamports_total",
			Help:      "Total lamports collected from creator fees",
		}),
		TreasuryLamports: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "treasury_lamports_total",
			Help:      "Total lamports skimmed to the treasury",
		}),
		ClaimCooldown: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "claim",
			Name:      "cooldown_cycles",
			Help:      "Cycles remaining before the next claim attempt",
		}),

		// Buy metrics
		BuysTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buy",
			Name:      "attempts_total",
			Help:      "Total number of buy outcomes by venue and status",
		}, []string{"venue", "status"}),
		SpentLamports: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buy",
			Name:      "spent_lamports_total",
			Help:      "Total lamports spent on buys",
		}),

		// Burn metrics
		BurnsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "burn",
			Name:      "transactions_total",
			Help:      "Total number of confirmed burn transactions",
		}),
		TokensBurnt: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "burn",
			Name:      "tokens_total",
			Help:      "Total tokens burned in minor units",
		}),

		// Price metrics
		PriceSignals: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "signal_usd",
			Help:      "Latest USD price observation by source",
		}, []string{"source"}),
		GuardBlocksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "price",
			Name:      "guard_blocks_total",
			Help:      "Total number of buys blocked by the price guard",
		}),

		// Chain metrics
		WalletLamports: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "wallet_lamports",
			Help:      "Last observed wallet balance in lamports",
		}),
		RPCRotations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_rotations_total",
			Help:      "Total number of RPC endpoint rotations",
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCycle records a completed cycle.
func RecordCycle(status string, durationSeconds float64) {
	DefaultMetrics.CyclesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.CycleDuration.Observe(durationSeconds)
}

// RecordClaim records a claim outcome. Positive deltas feed the claimed
// counter.
func RecordClaim(status string, claimedLamports int64) {
	DefaultMetrics.ClaimsTotal.WithLabelValues(status).Inc()
	if claimedLamports > 0 {
		DefaultMetrics.ClaimedLamports.Add(float64(claimedLamports))
	}
}

// RecordBuy records a buy outcome.
func RecordBuy(venue, status string, spentLamports uint64) {
	DefaultMetrics.BuysTotal.WithLabelValues(venue, status).Inc()
	if spentLamports > 0 {
		DefaultMetrics.SpentLamports.Add(float64(spentLamports))
	}
}

// RecordBurn records a confirmed burn.
func RecordBurn(rawTokens uint64) {
	DefaultMetrics.BurnsTotal.Inc()
	DefaultMetrics.TokensBurnt.Add(float64(rawTokens))
}

// RecordPriceSignal publishes the latest observation for a source.
func RecordPriceSignal(source string, priceUSD float64) {
	DefaultMetrics.PriceSignals.WithLabelValues(source).Set(priceUSD)
}

// RecordGuardBlock counts a buy blocked by the price guard.
func RecordGuardBlock() {
	DefaultMetrics.GuardBlocksTotal.Inc()
}

// UpdateWalletBalance updates the wallet balance gauge.
func UpdateWalletBalance(lamports uint64) {
	DefaultMetrics.WalletLamports.Set(float64(lamports))
}

// UpdateClaimCooldown updates the cooldown gauge.
func UpdateClaimCooldown(cycles int) {
	DefaultMetrics.ClaimCooldown.Set(float64(cycles))
}

// RecordRPCRotation counts an endpoint rotation.
func RecordRPCRotation() {
	DefaultMetrics.RPCRotations.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
