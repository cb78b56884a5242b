// Package jupiter is a client for the swap aggregator's quote and swap
// endpoints. The quote payload is treated as an opaque upstream contract:
// it is parsed only far enough to read the out amount and route presence,
// and passed back verbatim when requesting the swap transaction.
package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	"burnloop/internal/ledger"
)

// DefaultBaseURL is the public aggregator API root.
const DefaultBaseURL = "https://api.jup.ag/swap/v1"

const defaultTimeout = 8 * time.Second

// Client talks to the aggregator REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root, used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Client. The API key is optional.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quote is an aggregator route for a fixed input amount.
type Quote struct {
	// Raw is the unmodified quote payload, passed back on swap.
	Raw json.RawMessage
	// OutAmount is the quoted output in the output mint's minor units.
	OutAmount uint64
	// Routes is the number of route-plan legs.
	Routes int
}

// quoteEnvelope reads just the fields needed from the opaque payload.
type quoteEnvelope struct {
	OutAmount string            `json:"outAmount"`
	RoutePlan []json.RawMessage `json:"routePlan"`
}

// Quote requests a route for amount of inputMint into outputMint.
// Returns a no-route error when the aggregator has no viable route.
func (c *Client) Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps int) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint.String())
	q.Set("outputMint", outputMint.String())
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))

	raw, err := c.get(ctx, "/quote?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var env quoteEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	if len(env.RoutePlan) == 0 {
		return nil, ledger.WrapKind(ledger.KindNoRoute, errors.New("quote returned no route"))
	}
	outAmount, err := strconv.ParseUint(env.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode quote outAmount %q: %w", env.OutAmount, err)
	}
	return &Quote{Raw: raw, OutAmount: outAmount, Routes: len(env.RoutePlan)}, nil
}

// HasRoute reports whether the aggregator can route amount of inputMint
// into outputMint at all.
func (c *Client) HasRoute(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps int) (bool, error) {
	quote, err := c.Quote(ctx, inputMint, outputMint, amount, slippageBps)
	if err != nil {
		if ledger.Classify(err) == ledger.KindNoRoute {
			return false, nil
		}
		return false, err
	}
	return quote.OutAmount > 0, nil
}

// swapRequest is the swap endpoint body.
type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	DynamicSlippage           bool            `json:"dynamicSlippage"`
	PrioritizationFeeLamports *priorityFee    `json:"prioritizationFeeLamports,omitempty"`
}

type priorityFee struct {
	PriorityLevelWithMaxLamports priorityLevel `json:"priorityLevelWithMaxLamports"`
}

type priorityLevel struct {
	MaxLamports   uint64 `json:"maxLamports"`
	PriorityLevel string `json:"priorityLevel"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// Swap requests a signable transaction for a previously obtained quote and
// returns its decoded wire bytes. maxPriorityFeeLamports of zero omits the
// priority-fee hint.
func (c *Client) Swap(ctx context.Context, quote *Quote, owner solana.PublicKey, maxPriorityFeeLamports uint64) ([]byte, error) {
	body := swapRequest{
		QuoteResponse:           quote.Raw,
		UserPublicKey:           owner.String(),
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
		DynamicSlippage:         true,
	}
	if maxPriorityFeeLamports > 0 {
		body.PrioritizationFeeLamports = &priorityFee{
			PriorityLevelWithMaxLamports: priorityLevel{
				MaxLamports:   maxPriorityFeeLamports,
				PriorityLevel: "veryHigh",
			},
		}
	}

	raw, err := c.post(ctx, "/swap", body)
	if err != nil {
		return nil, err
	}

	var res swapResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode swap response: %w", err)
	}
	if res.SwapTransaction == "" {
		return nil, ledger.WrapKind(ledger.KindNoRoute, errors.New("swap returned no transaction"))
	}
	txBytes, err := base64.StdEncoding.DecodeString(res.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("decode swap transaction: %w", err)
	}
	return txBytes, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aggregator request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read aggregator response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aggregator HTTP %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
