// Package pumpportal is a client for the claim/trade relay. The relay
// exposes two transports for the same request body: a local endpoint that
// returns a signable transaction, and a lightning endpoint that signs and
// broadcasts server-side, keyed by an API key.
package pumpportal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"burnloop/internal/ledger"
)

// Default relay endpoints.
const (
	DefaultLocalURL     = "https://pumpportal.fun/api/trade-local"
	DefaultLightningURL = "https://pumpportal.fun/api/trade"
)

const defaultTimeout = 8 * time.Second

// TradeRequest is the relay body shared by claims and buys. Optional
// fields are omitted when empty to tolerate relay-side schema differences.
type TradeRequest struct {
	PublicKey        string  `json:"publicKey"`
	Action           string  `json:"action"`
	Mint             string  `json:"mint,omitempty"`
	Pool             string  `json:"pool,omitempty"`
	Amount           string  `json:"amount,omitempty"`
	DenominatedInSol string  `json:"denominatedInSol,omitempty"`
	Slippage         float64 `json:"slippage,omitempty"`
	PriorityFee      float64 `json:"priorityFee"`
}

// Client talks to the relay.
type Client struct {
	localURL     string
	lightningURL string
	apiKey       string
	http         *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithLocalURL overrides the local-build endpoint, used in tests.
func WithLocalURL(u string) Option {
	return func(c *Client) { c.localURL = u }
}

// WithLightningURL overrides the fast-relay endpoint, used in tests.
func WithLightningURL(u string) Option {
	return func(c *Client) { c.lightningURL = u }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a Client. The API key is required only for lightning calls.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		localURL:     DefaultLocalURL,
		lightningURL: DefaultLightningURL,
		apiKey:       apiKey,
		http:         &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasAPIKey reports whether lightning calls are possible.
func (c *Client) HasAPIKey() bool { return c.apiKey != "" }

// TradeLocal submits a trade body to the local-build endpoint and returns
// the raw bytes of a signable transaction.
func (c *Client) TradeLocal(ctx context.Context, body TradeRequest) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal trade body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.localURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read relay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("relay HTTP %d: %s", resp.StatusCode, string(raw))
		if resp.StatusCode == http.StatusBadRequest {
			// The relay surfaces program errors in the 400 body; keep a
			// specific classification when it names one.
			if kind := ledger.ClassifyMessage(string(raw)); kind != ledger.KindTransient {
				return nil, ledger.WrapKind(kind, err)
			}
			return nil, ledger.WrapKind(ledger.KindRelayRejected, err)
		}
		return nil, err
	}
	return raw, nil
}

// lightningResponse covers the signature field names the relay has used.
type lightningResponse struct {
	Signature   string `json:"signature"`
	TxSignature string `json:"txSignature"`
	Result      string `json:"result"`
}

// TradeLightning submits a trade body to the fast relay, which signs and
// broadcasts server-side, and returns the transaction signature.
func (c *Client) TradeLightning(ctx context.Context, body TradeRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("lightning trade requires an API key")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal trade body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.lightningURL+"?api-key="+c.apiKey, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read relay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("lightning HTTP %d: %s", resp.StatusCode, string(raw))
		if resp.StatusCode == http.StatusBadRequest {
			return "", ledger.WrapKind(ledger.KindRelayRejected, err)
		}
		return "", err
	}

	var res lightningResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("decode lightning response: %w", err)
	}
	sig := res.Signature
	if sig == "" {
		sig = res.TxSignature
	}
	if sig == "" {
		sig = res.Result
	}
	if sig == "" {
		return "", fmt.Errorf("lightning response missing signature: %s", string(raw))
	}
	return sig, nil
}
