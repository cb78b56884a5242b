package swap

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"burnloop/internal/jupiter"
	"burnloop/internal/ledger"
	"burnloop/internal/pumpportal"
	"burnloop/internal/wallet"
)

type fakeAggregator struct {
	quoteErr  error
	swapErr   error
	swapTx    []byte
	hasRoute  bool
	routeErr  error
	quoteAmts []uint64
}

func (f *fakeAggregator) Quote(_ context.Context, _, _ solana.PublicKey, amt uint64, _ int) (*jupiter.Quote, error) {
	f.quoteAmts = append(f.quoteAmts, amt)
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return &jupiter.Quote{OutAmount: 1, Routes: 1}, nil
}

func (f *fakeAggregator) Swap(context.Context, *jupiter.Quote, solana.PublicKey, uint64) ([]byte, error) {
	return f.swapTx, f.swapErr
}

func (f *fakeAggregator) HasRoute(context.Context, solana.PublicKey, solana.PublicKey, uint64, int) (bool, error) {
	return f.hasRoute, f.routeErr
}

type fakeRelay struct {
	tx     []byte
	err    error
	bodies []pumpportal.TradeRequest
}

func (f *fakeRelay) TradeLocal(_ context.Context, body pumpportal.TradeRequest) ([]byte, error) {
	f.bodies = append(f.bodies, body)
	return f.tx, f.err
}

type fakeClient struct {
	sendErr error
	sent    []*solana.Transaction
}

func (f *fakeClient) Balance(context.Context, solana.PublicKey) (uint64, error) { return 0, nil }

func (f *fakeClient) LatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{1}, nil
}

func (f *fakeClient) SendAndConfirm(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	f.sent = append(f.sent, tx)
	return solana.Signature{9}, nil
}

func (f *fakeClient) AccountInfo(context.Context, solana.PublicKey) (*ledger.Account, error) {
	return nil, nil
}

func (f *fakeClient) MinimumRent(context.Context, uint64) (uint64, error) { return 0, nil }

func (f *fakeClient) TransactionLogs(context.Context, solana.Signature) ([]string, error) {
	return nil, nil
}

func (f *fakeClient) RawTransaction(context.Context, string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

var _ ledger.Client = (*fakeClient)(nil)

var testMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

func testWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return &wallet.Wallet{PrivateKey: key, PublicKey: key.PublicKey()}
}

func signedTxBytes(t *testing.T, w *wallet.Wallet) []byte {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(1, w.PublicKey, w.PublicKey).Build(),
		},
		solana.Hash{1},
		solana.TransactionPayer(w.PublicKey),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.SignTransaction(tx); err != nil {
		t.Fatal(err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func newRouter(t *testing.T, opts Options) *Router {
	t.Helper()
	if opts.Wallet == nil {
		opts.Wallet = testWallet(t)
	}
	if opts.Mint.IsZero() {
		opts.Mint = testMint
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return New(opts)
}

func TestParseRoute(t *testing.T) {
	for _, valid := range []string{"auto", "jupiter", "pump"} {
		if _, err := ParseRoute(valid); err != nil {
			t.Errorf("ParseRoute(%q) error = %v", valid, err)
		}
	}
	if _, err := ParseRoute("raydium"); err == nil {
		t.Error("ParseRoute(\"raydium\") expected error, got nil")
	}
}

func TestBuyViaRelay(t *testing.T) {
	w := testWallet(t)
	relay := &fakeRelay{tx: signedTxBytes(t, w)}
	client := &fakeClient{}
	r := newRouter(t, Options{
		Client:         client,
		Aggregator:     &fakeAggregator{},
		Relay:          relay,
		Wallet:         w,
		Route:          RoutePump,
		TradePool:      "pump",
		SlippagePct:    1,
		PriorityFeeSOL: 0.0001,
	})

	res, graduated, err := r.Buy(context.Background(), 1_000_000_000, false)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || res.Venue != "pump" || res.SpentLamports != 1_000_000_000 {
		t.Fatalf("result = %+v", res)
	}
	if graduated {
		t.Fatal("graduated flag should stay false")
	}

	body := relay.bodies[0]
	if body.Action != "buy" || body.DenominatedInSol != "true" || body.Pool != "pump" {
		t.Fatalf("body = %+v", body)
	}
	if body.Amount != "1" {
		t.Fatalf("amount = %q, want \"1\" SOL", body.Amount)
	}
	if body.Mint != testMint.String() {
		t.Fatalf("mint = %q", body.Mint)
	}
}

func TestBuyLadderStepsDownAfterGraduation(t *testing.T) {
	w := testWallet(t)
	relay := &fakeRelay{err: ledger.WrapKind(ledger.KindCurveComplete, errors.New("custom program error: 0x1775"))}
	agg := &fakeAggregator{swapTx: signedTxBytes(t, w)}
	r := newRouter(t, Options{
		Client:      &fakeClient{},
		Aggregator:  agg,
		Relay:       relay,
		Wallet:      w,
		Route:       RouteAuto,
		SlippagePct: 1,
	})

	res, graduated, err := r.Buy(context.Background(), 1_000_000, false)
	if err != nil {
		t.Fatal(err)
	}
	if !graduated {
		t.Fatal("graduation discovery should be reported")
	}
	if res == nil || res.Venue != "jupiter" {
		t.Fatalf("result = %+v", res)
	}
	// First attempt spends the full million on the curve; the second goes
	// through the aggregator at the original amount minus the deduction.
	if res.SpentLamports != 800_000 {
		t.Fatalf("spent = %d, want 800000", res.SpentLamports)
	}
	if len(agg.quoteAmts) != 1 || agg.quoteAmts[0] != 800_000 {
		t.Fatalf("aggregator amounts = %v, want [800000]", agg.quoteAmts)
	}
}

func TestBuyPinnedPumpStopsOnGraduation(t *testing.T) {
	relay := &fakeRelay{err: ledger.WrapKind(ledger.KindCurveComplete, errors.New("BondingCurveComplete"))}
	agg := &fakeAggregator{}
	r := newRouter(t, Options{
		Client:      &fakeClient{},
		Aggregator:  agg,
		Relay:       relay,
		Route:       RoutePump,
		SlippagePct: 1,
	})

	res, graduated, err := r.Buy(context.Background(), 1_000_000_000, false)
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Fatalf("result = %+v, want nil", res)
	}
	if !graduated {
		t.Fatal("graduation should still be recorded")
	}
	if len(relay.bodies) != 1 {
		t.Fatalf("relay attempts = %d, want 1", len(relay.bodies))
	}
	if len(agg.quoteAmts) != 0 {
		t.Fatal("pinned pump route must not touch the aggregator")
	}
}

func TestBuyAbortsOnNoRoute(t *testing.T) {
	agg := &fakeAggregator{quoteErr: ledger.WrapKind(ledger.KindNoRoute, errors.New("quote returned no route"))}
	r := newRouter(t, Options{
		Client:      &fakeClient{},
		Aggregator:  agg,
		Relay:       &fakeRelay{},
		Route:       RouteJupiter,
		SlippagePct: 1,
	})

	res, _, err := r.Buy(context.Background(), 1_000_000_000, true)
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Fatalf("result = %+v, want nil", res)
	}
	if len(agg.quoteAmts) != 1 {
		t.Fatalf("quote attempts = %d, want 1 (no ladder on missing route)", len(agg.quoteAmts))
	}
}

func TestBuyAbortsOnInsufficientFunds(t *testing.T) {
	w := testWallet(t)
	agg := &fakeAggregator{swapTx: signedTxBytes(t, w)}
	client := &fakeClient{sendErr: ledger.WrapKind(ledger.KindInsufficientFunds, errors.New("insufficient lamports"))}
	r := newRouter(t, Options{
		Client:      client,
		Aggregator:  agg,
		Relay:       &fakeRelay{},
		Wallet:      w,
		Route:       RouteJupiter,
		SlippagePct: 1,
	})

	res, _, err := r.Buy(context.Background(), 1_000_000_000, true)
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Fatalf("result = %+v, want nil", res)
	}
	if len(agg.quoteAmts) != 1 {
		t.Fatalf("quote attempts = %d, want 1", len(agg.quoteAmts))
	}
}

func TestBuyLadderSkipsOversizedDeductions(t *testing.T) {
	// Spend so small that only the zero deduction fits.
	relay := &fakeRelay{err: ledger.WrapKind(ledger.KindCurveComplete, errors.New("BondingCurveComplete"))}
	agg := &fakeAggregator{quoteErr: ledger.WrapKind(ledger.KindCurveComplete, errors.New("BondingCurveComplete"))}
	r := newRouter(t, Options{
		Client:      &fakeClient{},
		Aggregator:  agg,
		Relay:       relay,
		Route:       RouteAuto,
		SlippagePct: 1,
	})

	res, _, err := r.Buy(context.Background(), 150_000, false)
	if err != nil {
		t.Fatal(err)
	}
	if res != nil {
		t.Fatalf("result = %+v, want nil", res)
	}
	if len(relay.bodies) != 1 || len(agg.quoteAmts) != 0 {
		t.Fatalf("attempts relay=%d agg=%d, want a single relay try", len(relay.bodies), len(agg.quoteAmts))
	}
}

func TestProbeGraduation(t *testing.T) {
	agg := &fakeAggregator{hasRoute: true}
	r := newRouter(t, Options{
		Client:      &fakeClient{},
		Aggregator:  agg,
		Relay:       &fakeRelay{},
		Route:       RouteAuto,
		SlippagePct: 1,
	})
	graduated, err := r.ProbeGraduation(context.Background(), 100_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if !graduated {
		t.Fatal("expected graduation when a route exists")
	}
}
