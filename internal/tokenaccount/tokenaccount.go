// Package tokenaccount resolves the token program for a mint, derives
// associated token accounts and creates them when missing.
package tokenaccount

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"burnloop/internal/ledger"
	"burnloop/internal/wallet"
)

// tokenAccountSize is the byte size of an SPL token account, used for the
// rent-exemption lookup.
const tokenAccountSize = 165

var (
	// ErrMintNotFound means the configured mint does not exist on chain.
	ErrMintNotFound = errors.New("mint account not found")
	// ErrNotAMint means the account at the mint address is owned by
	// neither token program.
	ErrNotAMint = errors.New("account is not a token mint")
)

// MintInfo is the subset of mint state read each cycle.
type MintInfo struct {
	Program  solana.PublicKey
	Supply   uint64
	Decimals uint8
}

// ResolveProgram returns the token program that owns mint, distinguishing
// classic SPL Token from Token-2022.
func ResolveProgram(ctx context.Context, c ledger.Client, mint solana.PublicKey) (solana.PublicKey, error) {
	acct, err := c.AccountInfo(ctx, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("fetch mint %s: %w", mint, err)
	}
	if acct == nil {
		return solana.PublicKey{}, ErrMintNotFound
	}
	switch acct.Owner {
	case solana.TokenProgramID, solana.Token2022ProgramID:
		return acct.Owner, nil
	}
	return solana.PublicKey{}, fmt.Errorf("%w: owned by %s", ErrNotAMint, acct.Owner)
}

// FetchMintInfo reads the mint's program, supply and decimals.
func FetchMintInfo(ctx context.Context, c ledger.Client, mint solana.PublicKey) (*MintInfo, error) {
	acct, err := c.AccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("fetch mint %s: %w", mint, err)
	}
	if acct == nil {
		return nil, ErrMintNotFound
	}
	if acct.Owner != solana.TokenProgramID && acct.Owner != solana.Token2022ProgramID {
		return nil, fmt.Errorf("%w: owned by %s", ErrNotAMint, acct.Owner)
	}
	// Mint layout: authority option (4) + authority (32), then supply u64
	// at 36 and decimals at 44.
	if len(acct.Data) < 45 {
		return nil, fmt.Errorf("mint %s account data too short (%d bytes)", mint, len(acct.Data))
	}
	return &MintInfo{
		Program:  acct.Owner,
		Supply:   binary.LittleEndian.Uint64(acct.Data[36:44]),
		Decimals: acct.Data[44],
	}, nil
}

// DeriveAddress derives the associated token account PDA for owner under
// the given token program.
func DeriveAddress(owner, program, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{owner.Bytes(), program.Bytes(), mint.Bytes()},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token account: %w", err)
	}
	return addr, nil
}

// Balance returns the token amount held in account, or (0, false) when the
// account does not exist.
func Balance(ctx context.Context, c ledger.Client, account solana.PublicKey) (uint64, bool, error) {
	acct, err := c.AccountInfo(ctx, account)
	if err != nil {
		return 0, false, fmt.Errorf("fetch token account %s: %w", account, err)
	}
	if acct == nil {
		return 0, false, nil
	}
	// Token account layout: mint (32) + owner (32), then amount u64 at 64.
	if len(acct.Data) < 72 {
		return 0, false, fmt.Errorf("token account %s data too short (%d bytes)", account, len(acct.Data))
	}
	return binary.LittleEndian.Uint64(acct.Data[64:72]), true, nil
}

// Status is the outcome of an EnsureAccount call.
type Status struct {
	Address solana.PublicKey
	Ready   bool
	Created bool
	Reason  string
}

// EnsureAccount makes sure the payer holds an associated token account for
// mint. When the account is missing it is created only if the payer can
// fund rent on top of the configured reserve and fee buffer; otherwise the
// status reports not-ready with the shortfall reason and no transaction is
// sent.
func EnsureAccount(ctx context.Context, c ledger.Client, payer *wallet.Wallet, mint, program solana.PublicKey, reserve, feeBuffer uint64) (*Status, error) {
	addr, err := DeriveAddress(payer.PublicKey, program, mint)
	if err != nil {
		return nil, err
	}

	// Probe the derived address itself; a non-associated account holding
	// the mint does not count.
	existing, err := c.AccountInfo(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("fetch token account %s: %w", addr, err)
	}
	if existing != nil {
		return &Status{Address: addr, Ready: true}, nil
	}

	rent, err := c.MinimumRent(ctx, tokenAccountSize)
	if err != nil {
		return nil, fmt.Errorf("rent lookup: %w", err)
	}
	balance, err := c.Balance(ctx, payer.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("balance lookup: %w", err)
	}
	needed := rent + reserve + feeBuffer
	if balance < needed {
		return &Status{
			Address: addr,
			Ready:   false,
			Reason:  fmt.Sprintf("need %d lamports for rent, have %d", needed, balance),
		}, nil
	}

	blockhash, err := c.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("blockhash: %w", err)
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{createInstruction(payer.PublicKey, addr, payer.PublicKey, mint, program)},
		blockhash,
		solana.TransactionPayer(payer.PublicKey),
	)
	if err != nil {
		return nil, fmt.Errorf("build create transaction: %w", err)
	}
	if err := payer.SignTransaction(tx); err != nil {
		return nil, err
	}
	if _, err := c.SendAndConfirm(ctx, tx); err != nil {
		return nil, fmt.Errorf("create token account: %w", err)
	}
	return &Status{Address: addr, Ready: true, Created: true}, nil
}

// createInstruction assembles the associated-token-account create
// instruction for the given token program.
func createInstruction(payer, account, owner, mint, program solana.PublicKey) solana.Instruction {
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(account, true, false),
		solana.NewAccountMeta(owner, false, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(program, false, false),
	}
	return solana.NewInstruction(solana.SPLAssociatedTokenAccountProgramID, accounts, nil)
}
