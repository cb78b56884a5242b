package claim

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"burnloop/internal/ledger"
	"burnloop/internal/wallet"
)

// TreasurySkim transfers the configured basis-point share of a positive
// claim to the treasury address. It returns the lamports moved; a zero
// share sends nothing.
func TreasurySkim(ctx context.Context, c ledger.Client, w *wallet.Wallet, treasury solana.PublicKey, claimed uint64, bps uint64) (uint64, error) {
	share := claimed * bps / 10_000
	if share == 0 {
		return 0, nil
	}

	blockhash, err := c.LatestBlockhash(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(share, w.PublicKey, treasury).Build(),
		},
		blockhash,
		solana.TransactionPayer(w.PublicKey),
	)
	if err != nil {
		return 0, fmt.Errorf("build treasury transfer: %w", err)
	}
	if err := w.SignTransaction(tx); err != nil {
		return 0, err
	}
	if _, err := c.SendAndConfirm(ctx, tx); err != nil {
		return 0, fmt.Errorf("treasury transfer: %w", err)
	}
	return share, nil
}
