package domain

// CycleRecord captures the outcome of one claim/buy/burn cycle.
// Corresponds to the cycle_records table.
type CycleRecord struct {
	RecordID string // deterministic: mint + started_at
	Mint     string
	CycleSeq int64 // cycle counter within the run

	StartedAt  int64 // ms
	FinishedAt int64 // ms

	// Balances in lamports.
	BalanceBefore uint64
	BalanceAfter  uint64

	// Claim leg. ClaimedLamports is the observed balance delta and may be
	// negative when network fees exceed the claim.
	ClaimedLamports  int64
	ClaimSignature   string
	ClaimVenue       string
	ClaimMethod      string
	TreasuryLamports uint64

	// Buy leg.
	BuySignature  string
	BuyVenue      string
	SpentLamports uint64

	// Burn legs, in the mint's minor units.
	PreBuyBurnRaw  uint64
	PostBuyBurnRaw uint64
	BurnSignature  string

	// Guard verdict.
	GuardOK     bool
	GuardReason string

	// Price context as decimal strings; empty when unknown.
	SolUSD   string
	TokenUSD string
}
