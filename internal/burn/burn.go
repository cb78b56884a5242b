// Package burn removes the wallet's entire token position from
// circulation.
package burn

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"burnloop/internal/ledger"
	"burnloop/internal/price"
	"burnloop/internal/tokenaccount"
	"burnloop/internal/wallet"
)

// burnCheckedOpcode is the SPL token instruction tag shared by both token
// programs.
const burnCheckedOpcode = 15

// Result describes a confirmed burn.
type Result struct {
	Signature string
	// BurnedRaw is the burned amount in the mint's minor units.
	BurnedRaw uint64
	Decimals  uint8
}

// Tokens returns the burned amount in whole-token terms.
func (r *Result) Tokens() decimal.Decimal {
	return decimal.NewFromInt(int64(r.BurnedRaw)).Shift(-int32(r.Decimals))
}

// Value prices the burned amount, returning USD and SOL figures. ok is
// false when the cycle has no usable pricing.
func (r *Result) Value(p price.Pricing) (usd, sol decimal.Decimal, ok bool) {
	if !p.HasToken || !p.HasSol || p.SolUSD.IsZero() {
		return decimal.Zero, decimal.Zero, false
	}
	usd = r.Tokens().Mul(p.TokenUSD)
	return usd, usd.Div(p.SolUSD), true
}

// All burns every token the wallet holds for mint. A missing or empty
// token account is a no-op returning (nil, nil).
func All(ctx context.Context, c ledger.Client, w *wallet.Wallet, mint solana.PublicKey) (*Result, error) {
	info, err := tokenaccount.FetchMintInfo(ctx, c, mint)
	if err != nil {
		return nil, err
	}
	ata, err := tokenaccount.DeriveAddress(w.PublicKey, info.Program, mint)
	if err != nil {
		return nil, err
	}
	held, exists, err := tokenaccount.Balance(ctx, c, ata)
	if err != nil {
		return nil, err
	}
	if !exists || held == 0 {
		return nil, nil
	}

	blockhash, err := c.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{burnCheckedInstruction(info.Program, ata, mint, w.PublicKey, held, info.Decimals)},
		blockhash,
		solana.TransactionPayer(w.PublicKey),
	)
	if err != nil {
		return nil, fmt.Errorf("build burn transaction: %w", err)
	}
	if err := w.SignTransaction(tx); err != nil {
		return nil, err
	}
	sig, err := c.SendAndConfirm(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("burn: %w", err)
	}
	return &Result{Signature: sig.String(), BurnedRaw: held, Decimals: info.Decimals}, nil
}

// burnCheckedInstruction assembles BurnChecked for the given token
// program, which works for both classic SPL Token and Token-2022.
func burnCheckedInstruction(program, account, mint, owner solana.PublicKey, amt uint64, decimals uint8) solana.Instruction {
	data := make([]byte, 10)
	data[0] = burnCheckedOpcode
	binary.LittleEndian.PutUint64(data[1:9], amt)
	data[9] = decimals

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(account, true, false),
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(owner, false, true),
	}
	return solana.NewInstruction(program, accounts, data)
}
