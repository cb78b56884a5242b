package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client is the chain surface the rest of the system depends on. The Pool
// implements it with retry/rotation; tests substitute fakes.
type Client interface {
	// Balance returns the lamport balance of owner.
	Balance(ctx context.Context, owner solana.PublicKey) (uint64, error)

	// LatestBlockhash returns a fresh recent-block reference.
	LatestBlockhash(ctx context.Context) (solana.Hash, error)

	// SendAndConfirm submits a signed transaction and polls until it is
	// confirmed.
	SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)

	// AccountInfo returns account data for key, or nil if the account does
	// not exist.
	AccountInfo(ctx context.Context, key solana.PublicKey) (*Account, error)

	// MinimumRent returns the rent-exempt minimum for an account of the
	// given byte size.
	MinimumRent(ctx context.Context, size uint64) (uint64, error)

	// TransactionLogs returns the on-chain log messages of a confirmed
	// transaction.
	TransactionLogs(ctx context.Context, sig solana.Signature) ([]string, error)

	// RawTransaction fetches the raw wire bytes of a historical
	// transaction by signature.
	RawTransaction(ctx context.Context, signature string) ([]byte, error)
}

// Account is the subset of on-chain account state the system reads.
type Account struct {
	Lamports uint64
	Owner    solana.PublicKey
	Data     []byte
}

var _ Client = (*Pool)(nil)

// Balance returns the confirmed lamport balance of owner.
func (p *Pool) Balance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	var out uint64
	err := p.WithRetry(ctx, "getBalance", func(ctx context.Context, c *rpc.Client) error {
		res, err := c.GetBalance(ctx, owner, rpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		out = res.Value
		return nil
	})
	return out, err
}

// LatestBlockhash returns a fresh recent-block reference.
func (p *Pool) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var out solana.Hash
	err := p.WithRetry(ctx, "getLatestBlockhash", func(ctx context.Context, c *rpc.Client) error {
		res, err := c.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		out = res.Value.Blockhash
		return nil
	})
	return out, err
}

// SendAndConfirm submits tx and polls signature status until confirmed.
func (p *Pool) SendAndConfirm(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	maxRetries := uint(3)
	var sig solana.Signature
	err := p.WithRetry(ctx, "sendTransaction", func(ctx context.Context, c *rpc.Client) error {
		var err error
		sig, err = c.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			MaxRetries:          &maxRetries,
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
		return err
	})
	if err != nil {
		return solana.Signature{}, err
	}
	if err := p.confirm(ctx, sig); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

// confirm polls getSignatureStatuses until the signature reaches confirmed
// or finalized commitment.
func (p *Pool) confirm(ctx context.Context, sig solana.Signature) error {
	deadline := time.Now().Add(p.confirmTimeout)
	for {
		var status *rpc.SignatureStatusesResult
		err := p.WithRetry(ctx, "getSignatureStatuses", func(ctx context.Context, c *rpc.Client) error {
			res, err := c.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				return err
			}
			if len(res.Value) > 0 {
				status = res.Value[0]
			}
			return nil
		})
		if err != nil {
			return err
		}
		if status != nil {
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", sig, status.Err)
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("transaction %s not confirmed after %s", sig, p.confirmTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.confirmPoll):
		}
	}
}

// AccountInfo returns account state, or nil if the account does not exist.
func (p *Pool) AccountInfo(ctx context.Context, key solana.PublicKey) (*Account, error) {
	var out *Account
	err := p.WithRetry(ctx, "getAccountInfo", func(ctx context.Context, c *rpc.Client) error {
		res, err := c.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{
			Commitment: rpc.CommitmentConfirmed,
			Encoding:   solana.EncodingBase64,
		})
		if err != nil {
			if errors.Is(err, rpc.ErrNotFound) {
				out = nil
				return nil
			}
			return err
		}
		if res.Value == nil {
			out = nil
			return nil
		}
		out = &Account{
			Lamports: res.Value.Lamports,
			Owner:    res.Value.Owner,
			Data:     res.Value.Data.GetBinary(),
		}
		return nil
	})
	return out, err
}

// MinimumRent returns the rent-exempt minimum for an account of size bytes.
func (p *Pool) MinimumRent(ctx context.Context, size uint64) (uint64, error) {
	var out uint64
	err := p.WithRetry(ctx, "getMinimumBalanceForRentExemption", func(ctx context.Context, c *rpc.Client) error {
		res, err := c.GetMinimumBalanceForRentExemption(ctx, size, rpc.CommitmentConfirmed)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// TransactionLogs returns the log messages of a confirmed transaction.
func (p *Pool) TransactionLogs(ctx context.Context, sig solana.Signature) ([]string, error) {
	maxVersion := uint64(0)
	var out []string
	err := p.WithRetry(ctx, "getTransaction", func(ctx context.Context, c *rpc.Client) error {
		res, err := c.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentConfirmed,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		if err != nil {
			return err
		}
		if res != nil && res.Meta != nil {
			out = res.Meta.LogMessages
		}
		return nil
	})
	return out, err
}

// rawTransactionResult matches the getTransaction base64 response shape.
// The transaction field is either [data, "base64"] or a plain string
// depending on node version.
type rawTransactionResult struct {
	Transaction json.RawMessage `json:"transaction"`
}

// RawTransaction fetches the raw bytes of a historical transaction.
func (p *Pool) RawTransaction(ctx context.Context, signature string) ([]byte, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "base64",
			"maxSupportedTransactionVersion": 0,
		},
	}
	var res rawTransactionResult
	if err := p.RawRequest(ctx, "getTransaction", params, &res); err != nil {
		return nil, err
	}
	if len(res.Transaction) == 0 {
		return nil, fmt.Errorf("transaction %s not found", signature)
	}

	var encoded string
	var pair []string
	if err := json.Unmarshal(res.Transaction, &pair); err == nil && len(pair) > 0 {
		encoded = pair[0]
	} else if err := json.Unmarshal(res.Transaction, &encoded); err != nil {
		return nil, fmt.Errorf("unexpected transaction encoding for %s", signature)
	}
	if encoded == "" {
		return nil, fmt.Errorf("transaction %s not found", signature)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", signature, err)
	}
	return raw, nil
}
