package postgres

import (
	"context"
	"fmt"
	"time"

	"burnloop/internal/domain"
	"burnloop/internal/observability"
	"burnloop/internal/storage"
)

// CycleRecordStore implements storage.CycleRecordStore using PostgreSQL.
type CycleRecordStore struct {
	pool *Pool
}

// NewCycleRecordStore creates a new CycleRecordStore.
func NewCycleRecordStore(pool *Pool) *CycleRecordStore {
	return &CycleRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CycleRecordStore = (*CycleRecordStore)(nil)

const cycleRecordColumns = `
	record_id, mint, cycle_seq, started_at, finished_at,
	balance_before, balance_after,
	claimed_lamports, claim_signature, claim_venue, claim_method, treasury_lamports,
	buy_signature, buy_venue, spent_lamports,
	pre_buy_burn_raw, post_buy_burn_raw, burn_signature,
	guard_ok, guard_reason, sol_usd, token_usd
`

// Insert adds a new cycle record. Returns ErrDuplicateKey if record_id exists.
func (s *CycleRecordStore) Insert(ctx context.Context, r *domain.CycleRecord) (err error) {
	if r == nil || r.RecordID == "" {
		return storage.ErrInvalidInput
	}
	defer observeQuery("insert_cycle_record", time.Now(), &err)

	query := `
		INSERT INTO cycle_records (` + cycleRecordColumns + `) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18,
			$19, $20, $21, $22
		)
	`

	_, err = s.pool.Exec(ctx, query,
		r.RecordID, r.Mint, r.CycleSeq, r.StartedAt, r.FinishedAt,
		int64(r.BalanceBefore), int64(r.BalanceAfter),
		r.ClaimedLamports, r.ClaimSignature, r.ClaimVenue, r.ClaimMethod, int64(r.TreasuryLamports),
		r.BuySignature, r.BuyVenue, int64(r.SpentLamports),
		int64(r.PreBuyBurnRaw), int64(r.PostBuyBurnRaw), r.BurnSignature,
		r.GuardOK, r.GuardReason, r.SolUSD, r.TokenUSD,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert cycle record: %w", err)
	}
	return nil
}

// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
func (s *CycleRecordStore) GetByID(ctx context.Context, recordID string) (_ *domain.CycleRecord, err error) {
	defer observeQuery("get_cycle_record_by_id", time.Now(), &err)
	query := `SELECT ` + cycleRecordColumns + ` FROM cycle_records WHERE record_id = $1`

	r, err := s.scanOne(s.pool.QueryRow(ctx, query, recordID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get cycle record by id: %w", err)
	}
	return r, nil
}

// GetByMint retrieves all records for a mint, ordered by started_at ASC.
func (s *CycleRecordStore) GetByMint(ctx context.Context, mint string) (_ []*domain.CycleRecord, err error) {
	defer observeQuery("get_cycle_records_by_mint", time.Now(), &err)
	query := `SELECT ` + cycleRecordColumns + ` FROM cycle_records WHERE mint = $1 ORDER BY started_at ASC`

	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("get cycle records by mint: %w", err)
	}
	defer rows.Close()

	return s.scanAll(rows)
}

// GetByTimeRange retrieves records for a mint within [start, end] (inclusive).
func (s *CycleRecordStore) GetByTimeRange(ctx context.Context, mint string, start, end int64) (_ []*domain.CycleRecord, err error) {
	defer observeQuery("get_cycle_records_by_time_range", time.Now(), &err)
	query := `
		SELECT ` + cycleRecordColumns + `
		FROM cycle_records
		WHERE mint = $1 AND started_at >= $2 AND started_at <= $3
		ORDER BY started_at ASC
	`

	rows, err := s.pool.Query(ctx, query, mint, start, end)
	if err != nil {
		return nil, fmt.Errorf("get cycle records by time range: %w", err)
	}
	defer rows.Close()

	return s.scanAll(rows)
}

// observeQuery reports one query's duration and outcome.
func observeQuery(operation string, started time.Time, err *error) {
	observability.RecordDBQuery(operation, time.Since(started).Seconds(), *err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *CycleRecordStore) scanOne(row rowScanner) (*domain.CycleRecord, error) {
	var r domain.CycleRecord
	var balanceBefore, balanceAfter, treasury, spent, preBurn, postBurn int64
	err := row.Scan(
		&r.RecordID, &r.Mint, &r.CycleSeq, &r.StartedAt, &r.FinishedAt,
		&balanceBefore, &balanceAfter,
		&r.ClaimedLamports, &r.ClaimSignature, &r.ClaimVenue, &r.ClaimMethod, &treasury,
		&r.BuySignature, &r.BuyVenue, &spent,
		&preBurn, &postBurn, &r.BurnSignature,
		&r.GuardOK, &r.GuardReason, &r.SolUSD, &r.TokenUSD,
	)
	if err != nil {
		return nil, err
	}
	r.BalanceBefore = uint64(balanceBefore)
	r.BalanceAfter = uint64(balanceAfter)
	r.TreasuryLamports = uint64(treasury)
	r.SpentLamports = uint64(spent)
	r.PreBuyBurnRaw = uint64(preBurn)
	r.PostBuyBurnRaw = uint64(postBurn)
	return &r, nil
}

type rowsScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func (s *CycleRecordStore) scanAll(rows rowsScanner) ([]*domain.CycleRecord, error) {
	var result []*domain.CycleRecord
	for rows.Next() {
		r, err := s.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cycle record: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle records: %w", err)
	}
	return result, nil
}
