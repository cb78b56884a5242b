package storage

import (
	"context"

	"burnloop/internal/domain"
)

// CycleRecordStore provides access to cycle_records storage.
type CycleRecordStore interface {
	// Insert adds a new cycle record. Returns ErrDuplicateKey if record_id exists.
	Insert(ctx context.Context, r *domain.CycleRecord) error

	// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, recordID string) (*domain.CycleRecord, error)

	// GetByMint retrieves all records for a mint, ordered by started_at ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.CycleRecord, error)

	// GetByTimeRange retrieves records for a mint within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, mint string, start, end int64) ([]*domain.CycleRecord, error)
}
