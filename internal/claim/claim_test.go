package claim

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"burnloop/internal/ledger"
	"burnloop/internal/pumpportal"
	"burnloop/internal/wallet"
)

type fakeRelay struct {
	apiKey    bool
	localTx   []byte
	localErr  error
	lightning func(body pumpportal.TradeRequest) (string, error)

	localCalls     []pumpportal.TradeRequest
	lightningCalls []pumpportal.TradeRequest
}

func (f *fakeRelay) HasAPIKey() bool { return f.apiKey }

func (f *fakeRelay) TradeLocal(_ context.Context, body pumpportal.TradeRequest) ([]byte, error) {
	f.localCalls = append(f.localCalls, body)
	return f.localTx, f.localErr
}

func (f *fakeRelay) TradeLightning(_ context.Context, body pumpportal.TradeRequest) (string, error) {
	f.lightningCalls = append(f.lightningCalls, body)
	if f.lightning != nil {
		return f.lightning(body)
	}
	return "", errors.New("lightning unavailable")
}

type fakeClient struct {
	logs      map[string][]string
	rawTx     []byte
	rawErr    error
	rawCalls  int
	sent      []*solana.Transaction
	sentSigs  []solana.Signature
	nextSigID byte
}

func (f *fakeClient) Balance(context.Context, solana.PublicKey) (uint64, error) { return 0, nil }

func (f *fakeClient) LatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{7}, nil
}

func (f *fakeClient) SendAndConfirm(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.sent = append(f.sent, tx)
	f.nextSigID++
	sig := solana.Signature{f.nextSigID}
	f.sentSigs = append(f.sentSigs, sig)
	return sig, nil
}

func (f *fakeClient) AccountInfo(context.Context, solana.PublicKey) (*ledger.Account, error) {
	return nil, nil
}

func (f *fakeClient) MinimumRent(context.Context, uint64) (uint64, error) { return 0, nil }

func (f *fakeClient) TransactionLogs(_ context.Context, sig solana.Signature) ([]string, error) {
	return f.logs[sig.String()], nil
}

func (f *fakeClient) RawTransaction(context.Context, string) ([]byte, error) {
	f.rawCalls++
	return f.rawTx, f.rawErr
}

var _ ledger.Client = (*fakeClient)(nil)

func testWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return &wallet.Wallet{PrivateKey: key, PublicKey: key.PublicKey()}
}

// signedTxBytes builds a minimal signed transaction owned by w and returns
// its wire bytes, standing in for relay or historical transaction bytes.
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

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

var testMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

func newClaimer(t *testing.T, opts Options) *Claimer {
	t.Helper()
	if opts.Wallet == nil {
		opts.Wallet = testWallet(t)
	}
	if opts.Mint.IsZero() {
		opts.Mint = testMint
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return New(opts)
}

func TestResolveMethod(t *testing.T) {
	tests := []struct {
		name   string
		method Method
		refSig string
		apiKey bool
		want   Method
	}{
		{"explicit local wins", MethodLocal, "refsig", true, MethodLocal},
		{"auto with ref sig is replay", MethodAuto, "refsig", true, MethodReplay},
		{"auto with api key is lightning", MethodAuto, "", true, MethodLightning},
		{"auto bare is local", MethodAuto, "", false, MethodLocal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClaimer(t, Options{
				Client: &fakeClient{},
				Relay:  &fakeRelay{apiKey: tt.apiKey},
				Method: tt.method,
				RefSig: tt.refSig,
			})
			if got := c.ResolveMethod(); got != tt.want {
				t.Fatalf("ResolveMethod() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAttempts(t *testing.T) {
	t.Run("multi pool fans out venues and fee tiers", func(t *testing.T) {
		c := newClaimer(t, Options{
			Client:    &fakeClient{},
			Relay:     &fakeRelay{},
			Method:    MethodLocal,
			ClaimPool: "multi",
		})
		attempts := c.Attempts(MethodLocal)
		// Five venues, each at the configured zero tier plus two fallbacks.
		if len(attempts) != 15 {
			t.Fatalf("got %d attempts, want 15", len(attempts))
		}
		if attempts[0].Venue != "pump" || attempts[3].Venue != "pump-amm" {
			t.Fatalf("venue order wrong: %s, %s", attempts[0].Venue, attempts[3].Venue)
		}
		if attempts[0].LastFeeTier || attempts[1].LastFeeTier || !attempts[2].LastFeeTier {
			t.Fatal("LastFeeTier should mark only the third tier per venue")
		}
		if attempts[1].FeeTierSOL != 0.00001 || attempts[2].FeeTierSOL != 0.00005 {
			t.Fatalf("fallback tiers = %v, %v", attempts[1].FeeTierSOL, attempts[2].FeeTierSOL)
		}
	})

	t.Run("configured fee uses a single tier", func(t *testing.T) {
		c := newClaimer(t, Options{
			Client:         &fakeClient{},
			Relay:          &fakeRelay{},
			Method:         MethodLocal,
			ClaimPool:      "raydium",
			PriorityFeeSOL: 0.0002,
		})
		attempts := c.Attempts(MethodLocal)
		if len(attempts) != 1 {
			t.Fatalf("got %d attempts, want 1", len(attempts))
		}
		if !attempts[0].LastFeeTier || attempts[0].FeeTierSOL != 0.0002 {
			t.Fatalf("attempt = %+v", attempts[0])
		}
	})

	t.Run("pump venue sends bare body first", func(t *testing.T) {
		c := newClaimer(t, Options{
			Client:         &fakeClient{},
			Relay:          &fakeRelay{},
			Method:         MethodLocal,
			ClaimPool:      "pump",
			PriorityFeeSOL: 0.0001,
		})
		attempts := c.Attempts(MethodLocal)
		bodies := attempts[0].Bodies
		if len(bodies) != 2 {
			t.Fatalf("got %d bodies, want 2", len(bodies))
		}
		if bodies[0].Pool != "" || bodies[1].Pool != "pump" {
			t.Fatalf("pool fields = %q, %q", bodies[0].Pool, bodies[1].Pool)
		}
		if bodies[0].Mint != "" || bodies[1].Mint != "" {
			t.Fatal("pump bodies should not carry a mint")
		}
	})

	t.Run("other venues add pool then mint", func(t *testing.T) {
		c := newClaimer(t, Options{
			Client:         &fakeClient{},
			Relay:          &fakeRelay{},
			Method:         MethodLocal,
			ClaimPool:      "raydium-cpmm",
			PriorityFeeSOL: 0.0001,
		})
		bodies := c.Attempts(MethodLocal)[0].Bodies
		if len(bodies) != 2 {
			t.Fatalf("got %d bodies, want 2", len(bodies))
		}
		if bodies[0].Pool != "raydium-cpmm" || bodies[0].Mint != "" {
			t.Fatalf("first body = %+v", bodies[0])
		}
		if bodies[1].Pool != "raydium-cpmm" || bodies[1].Mint != testMint.String() {
			t.Fatalf("second body = %+v", bodies[1])
		}
	})

	t.Run("replay pins a single venue", func(t *testing.T) {
		c := newClaimer(t, Options{
			Client:    &fakeClient{},
			Relay:     &fakeRelay{},
			Method:    MethodReplay,
			ClaimPool: "multi",
			TradePool: "pump",
			RefSig:    "refsig",
		})
		attempts := c.Attempts(MethodReplay)
		for _, at := range attempts {
			if at.Venue != "pump" {
				t.Fatalf("replay venue = %s, want pump", at.Venue)
			}
		}
	})
}

func TestClaimLightning(t *testing.T) {
	sig := solana.Signature{42}.String()

	t.Run("first rewarded signature wins", func(t *testing.T) {
		relay := &fakeRelay{
			apiKey: true,
			lightning: func(pumpportal.TradeRequest) (string, error) {
				return sig, nil
			},
		}
		c := newClaimer(t, Options{
			Client:         &fakeClient{},
			Relay:          relay,
			Method:         MethodLightning,
			ClaimPool:      "pump",
			PriorityFeeSOL: 0.0001,
		})
		res, err := c.Claim(context.Background(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Signature != sig || res.Venue != "pump" || res.Method != MethodLightning {
			t.Fatalf("result = %+v", res)
		}
		if len(relay.lightningCalls) != 1 {
			t.Fatalf("relay called %d times, want 1", len(relay.lightningCalls))
		}
	})

	t.Run("no-reward transaction falls through to next body", func(t *testing.T) {
		emptySig := solana.Signature{1}.String()
		goodSig := solana.Signature{2}.String()
		calls := 0
		relay := &fakeRelay{
			apiKey: true,
			lightning: func(pumpportal.TradeRequest) (string, error) {
				calls++
				if calls == 1 {
					return emptySig, nil
				}
				return goodSig, nil
			},
		}
		client := &fakeClient{logs: map[string][]string{
			emptySig: {"Program log: No creator fee to collect"},
		}}
		c := newClaimer(t, Options{
			Client:         client,
			Relay:          relay,
			Method:         MethodLightning,
			ClaimPool:      "pump",
			PriorityFeeSOL: 0.0001,
		})
		res, err := c.Claim(context.Background(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Signature != goodSig {
			t.Fatalf("signature = %s, want the second body's %s", res.Signature, goodSig)
		}
	})

	t.Run("exhaustion returns sentinel", func(t *testing.T) {
		relay := &fakeRelay{
			apiKey: true,
			lightning: func(pumpportal.TradeRequest) (string, error) {
				return "", errors.New("relay down")
			},
		}
		c := newClaimer(t, Options{
			Client:         &fakeClient{},
			Relay:          relay,
			Method:         MethodLightning,
			ClaimPool:      "multi",
			PriorityFeeSOL: 0.0001,
		})
		_, err := c.Claim(context.Background(), nil)
		if !errors.Is(err, ErrExhausted) {
			t.Fatalf("err = %v, want ErrExhausted", err)
		}
	})
}

func TestClaimLocal(t *testing.T) {
	w := testWallet(t)
	relay := &fakeRelay{localTx: signedTxBytes(t, w)}
	client := &fakeClient{}
	c := newClaimer(t, Options{
		Client:         client,
		Relay:          relay,
		Wallet:         w,
		Method:         MethodLocal,
		ClaimPool:      "pump",
		PriorityFeeSOL: 0.0001,
	})

	res, err := c.Claim(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(client.sent))
	}
	if res.Signature != client.sentSigs[0].String() {
		t.Fatalf("signature = %s, want %s", res.Signature, client.sentSigs[0])
	}
}

func TestClaimReplayCache(t *testing.T) {
	w := testWallet(t)
	raw := signedTxBytes(t, w)

	t.Run("fetch populates the cache", func(t *testing.T) {
		client := &fakeClient{rawTx: raw}
		c := newClaimer(t, Options{
			Client:         client,
			Relay:          &fakeRelay{},
			Wallet:         w,
			Method:         MethodReplay,
			ClaimPool:      "pump",
			RefSig:         "refsig",
			PriorityFeeSOL: 0.0001,
		})
		cache := &ReplayCache{}
		if _, err := c.Claim(context.Background(), cache); err != nil {
			t.Fatal(err)
		}
		if client.rawCalls != 1 {
			t.Fatalf("raw lookups = %d, want 1", client.rawCalls)
		}
		if cache.Sig != "refsig" || len(cache.RawTx) == 0 {
			t.Fatalf("cache = %+v, want populated", cache)
		}
	})

	t.Run("warm cache skips the lookup", func(t *testing.T) {
		client := &fakeClient{rawErr: errors.New("lookup should not happen")}
		c := newClaimer(t, Options{
			Client:         client,
			Relay:          &fakeRelay{},
			Wallet:         w,
			Method:         MethodReplay,
			ClaimPool:      "pump",
			RefSig:         "refsig",
			PriorityFeeSOL: 0.0001,
		})
		cache := &ReplayCache{Sig: "refsig", RawTx: raw}
		if _, err := c.Claim(context.Background(), cache); err != nil {
			t.Fatal(err)
		}
		if client.rawCalls != 0 {
			t.Fatalf("raw lookups = %d, want 0", client.rawCalls)
		}
	})

	t.Run("replay refreshes the blockhash", func(t *testing.T) {
		client := &fakeClient{rawTx: raw}
		c := newClaimer(t, Options{
			Client:         client,
			Relay:          &fakeRelay{},
			Wallet:         w,
			Method:         MethodReplay,
			ClaimPool:      "pump",
			RefSig:         "refsig",
			PriorityFeeSOL: 0.0001,
		})
		if _, err := c.Claim(context.Background(), &ReplayCache{}); err != nil {
			t.Fatal(err)
		}
		sent := client.sent[0]
		if sent.Message.RecentBlockhash != (solana.Hash{7}) {
			t.Fatalf("blockhash = %s, want refreshed", sent.Message.RecentBlockhash)
		}
	})
}

func TestTreasurySkim(t *testing.T) {
	w := testWallet(t)
	treasury := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

	t.Run("moves the basis-point share", func(t *testing.T) {
		client := &fakeClient{}
		moved, err := TreasurySkim(context.Background(), client, w, treasury, 1_000_000, 250)
		if err != nil {
			t.Fatal(err)
		}
		if moved != 25_000 {
			t.Fatalf("moved = %d, want 25000", moved)
		}
		if len(client.sent) != 1 {
			t.Fatalf("sent %d transactions, want 1", len(client.sent))
		}
	})

	t.Run("zero share sends nothing", func(t *testing.T) {
		client := &fakeClient{}
		moved, err := TreasurySkim(context.Background(), client, w, treasury, 3, 250)
		if err != nil {
			t.Fatal(err)
		}
		if moved != 0 || len(client.sent) != 0 {
			t.Fatalf("moved = %d, sent = %d, want no transfer", moved, len(client.sent))
		}
	})
}
