// Package ledger provides access to the chain through a pool of RPC
// endpoints with rotate-on-failure semantics and a typed error taxonomy.
package ledger

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"

	"burnloop/internal/observability"
)

// Default configuration values.
const (
	DefaultCallTimeout    = 8 * time.Second
	DefaultConfirmTimeout = 90 * time.Second
	DefaultConfirmPoll    = 2 * time.Second
)

// Pool is a round-robin set of RPC endpoints. The active index is owned by
// the pool and mutated only by rotation.
type Pool struct {
	urls    []string
	clients []*rpc.Client

	mu  sync.Mutex
	idx int

	callTimeout    time.Duration
	confirmTimeout time.Duration
	confirmPoll    time.Duration
	httpClient     *http.Client
	logger         *log.Logger
	onRotate       func(fromURL string)
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithCallTimeout bounds every single RPC attempt.
func WithCallTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.callTimeout = d
		p.httpClient.Timeout = d
	}
}

// WithConfirmTimeout bounds the whole confirmation poll for one signature.
func WithConfirmTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.confirmTimeout = d }
}

// WithLogger sets the pool logger.
func WithLogger(l *log.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// WithRotationHook installs a callback invoked on every endpoint rotation,
// with the URL being rotated away from.
func WithRotationHook(fn func(fromURL string)) PoolOption {
	return func(p *Pool) { p.onRotate = fn }
}

// NewPool creates a pool over the given endpoint URLs.
func NewPool(urls []string, opts ...PoolOption) (*Pool, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no RPC endpoints configured")
	}
	p := &Pool{
		urls:           urls,
		clients:        make([]*rpc.Client, len(urls)),
		callTimeout:    DefaultCallTimeout,
		confirmTimeout: DefaultConfirmTimeout,
		confirmPoll:    DefaultConfirmPoll,
		httpClient:     &http.Client{Timeout: DefaultCallTimeout},
		logger:         log.New(os.Stdout, "[ledger] ", log.LstdFlags),
	}
	for i, url := range urls {
		p.clients[i] = rpc.New(url)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Size returns the number of endpoints.
func (p *Pool) Size() int { return len(p.clients) }

// CurrentURL returns the active endpoint URL.
func (p *Pool) CurrentURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.urls[p.idx]
}

func (p *Pool) current() (*rpc.Client, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clients[p.idx], p.urls[p.idx]
}

func (p *Pool) rotate() {
	p.mu.Lock()
	from := p.urls[p.idx]
	p.idx = (p.idx + 1) % len(p.clients)
	p.mu.Unlock()
	if p.onRotate != nil {
		p.onRotate(from)
	}
}

// WithRetry runs fn against the current endpoint. Terminal errors propagate
// immediately without rotation; transient errors rotate to the next
// endpoint and retry, at most Size attempts in total. Each attempt is
// bounded by the pool call timeout.
func (p *Pool) WithRetry(ctx context.Context, label string, fn func(ctx context.Context, c *rpc.Client) error) error {
	var lastErr error
	for i := 0; i < len(p.clients); i++ {
		client, _ := p.current()

		attemptCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
		started := time.Now()
		err := fn(attemptCtx, client)
		observability.RecordRPCLatency(label, time.Since(started).Seconds())
		cancel()

		if err == nil {
			return nil
		}
		if Classify(err).Terminal() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		p.rotate()
	}
	return fmt.Errorf("%s: all %d endpoints failed: %w", label, len(p.clients), lastErr)
}
