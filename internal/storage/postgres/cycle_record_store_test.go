package postgres

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"burnloop/internal/domain"
	"burnloop/internal/observability"
	"burnloop/internal/storage"
)

func createTestCycleRecord(recordID, mint string, startedAt int64) *domain.CycleRecord {
	return &domain.CycleRecord{
		RecordID:         recordID,
		Mint:             mint,
		CycleSeq:         1,
		StartedAt:        startedAt,
		FinishedAt:       startedAt + 5000,
		BalanceBefore:    5_000_000_000,
		BalanceAfter:     4_100_000_000,
		ClaimedLamports:  600_000_000,
		ClaimSignature:   "claimsig",
		ClaimVenue:       "pump",
		ClaimMethod:      "lightning",
		TreasuryLamports: 15_000_000,
		BuySignature:     "buysig",
		BuyVenue:         "jupiter",
		SpentLamports:    1_400_000_000,
		PreBuyBurnRaw:    0,
		PostBuyBurnRaw:   123_456_789,
		BurnSignature:    "burnsig",
		GuardOK:          true,
		GuardReason:      "price consensus",
		SolUSD:           "150.25",
		TokenUSD:         "0.0021",
	}
}

func TestCycleRecordStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCycleRecordStore(pool)

	rec := createTestCycleRecord("rec-001", "mint1", 1000)
	queriesBefore := testutil.CollectAndCount(observability.DefaultMetrics.DBQueryDuration)
	require.NoError(t, store.Insert(ctx, rec))

	got, err := store.GetByID(ctx, "rec-001")
	require.NoError(t, err)
	assert.Greater(t, testutil.CollectAndCount(observability.DefaultMetrics.DBQueryDuration), queriesBefore,
		"store queries must observe their duration")
	assert.Equal(t, rec.Mint, got.Mint)
	assert.Equal(t, rec.ClaimedLamports, got.ClaimedLamports)
	assert.Equal(t, rec.BalanceBefore, got.BalanceBefore)
	assert.Equal(t, rec.PostBuyBurnRaw, got.PostBuyBurnRaw)
	assert.Equal(t, rec.GuardOK, got.GuardOK)
	assert.Equal(t, rec.SolUSD, got.SolUSD)
}

func TestCycleRecordStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCycleRecordStore(pool)

	rec := createTestCycleRecord("rec-001", "mint1", 1000)
	require.NoError(t, store.Insert(ctx, rec))

	err := store.Insert(ctx, rec)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestCycleRecordStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCycleRecordStore(pool)

	_, err := store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCycleRecordStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCycleRecordStore(pool)

	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &domain.CycleRecord{}), storage.ErrInvalidInput)
}

func TestCycleRecordStore_GetByMintOrdersByStart(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCycleRecordStore(pool)

	require.NoError(t, store.Insert(ctx, createTestCycleRecord("rec-002", "mint1", 2000)))
	require.NoError(t, store.Insert(ctx, createTestCycleRecord("rec-001", "mint1", 1000)))
	require.NoError(t, store.Insert(ctx, createTestCycleRecord("rec-003", "mint2", 1500)))

	got, err := store.GetByMint(ctx, "mint1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "rec-001", got[0].RecordID)
	assert.Equal(t, "rec-002", got[1].RecordID)
}

func TestCycleRecordStore_GetByTimeRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCycleRecordStore(pool)

	require.NoError(t, store.Insert(ctx, createTestCycleRecord("rec-001", "mint1", 1000)))
	require.NoError(t, store.Insert(ctx, createTestCycleRecord("rec-002", "mint1", 2000)))
	require.NoError(t, store.Insert(ctx, createTestCycleRecord("rec-003", "mint1", 3000)))

	got, err := store.GetByTimeRange(ctx, "mint1", 1000, 2000)
	require.NoError(t, err)
	require.Len(t, got, 2, "bounds are inclusive")
	assert.Equal(t, "rec-001", got[0].RecordID)
	assert.Equal(t, "rec-002", got[1].RecordID)
}
