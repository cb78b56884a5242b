package jupiter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"burnloop/internal/ledger"
)

var (
	testInput  = solana.SolMint
	testOutput = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		require.Equal(t, testInput.String(), r.URL.Query().Get("inputMint"))
		require.Equal(t, "1000000000", r.URL.Query().Get("amount"))
		require.Equal(t, "50", r.URL.Query().Get("slippageBps"))
		require.Equal(t, "k1", r.Header.Get("x-api-key"))
		w.Write([]byte(`{"outAmount":"142530000","routePlan":[{"swapInfo":{}}]}`))
	}))
	defer srv.Close()

	c := New("k1", WithBaseURL(srv.URL))
	quote, err := c.Quote(context.Background(), testInput, testOutput, 1_000_000_000, 50)
	require.NoError(t, err)
	require.Equal(t, uint64(142_530_000), quote.OutAmount)
	require.Equal(t, 1, quote.Routes)
}

func TestQuoteNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"outAmount":"0","routePlan":[]}`))
	}))
	defer srv.Close()

	c := New("", WithBaseURL(srv.URL))
	_, err := c.Quote(context.Background(), testInput, testOutput, 1000, 50)
	require.Error(t, err)
	require.Equal(t, ledger.KindNoRoute, ledger.Classify(err))

	ok, err := c.HasRoute(context.Background(), testInput, testOutput, 1000, 50)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSwap(t *testing.T) {
	wantTx := []byte{1, 2, 3, 4}
	quoteRaw := json.RawMessage(`{"outAmount":"5","routePlan":[{}]}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/swap", r.URL.Path)
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.JSONEq(t, string(quoteRaw), string(body["quoteResponse"]))
		require.Contains(t, string(body["prioritizationFeeLamports"]), "veryHigh")
		json.NewEncoder(w).Encode(map[string]string{
			"swapTransaction": base64.StdEncoding.EncodeToString(wantTx),
		})
	}))
	defer srv.Close()

	c := New("", WithBaseURL(srv.URL))
	got, err := c.Swap(context.Background(), &Quote{Raw: quoteRaw, OutAmount: 5, Routes: 1},
		solana.MustPublicKeyFromBase58("11111111111111111111111111111111"), 100_000)
	require.NoError(t, err)
	require.Equal(t, wantTx, got)
}

func TestSwapNoTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New("", WithBaseURL(srv.URL))
	_, err := c.Swap(context.Background(), &Quote{Raw: json.RawMessage(`{}`)}, solana.PublicKey{}, 0)
	require.Error(t, err)
	require.Equal(t, ledger.KindNoRoute, ledger.Classify(err))
}
