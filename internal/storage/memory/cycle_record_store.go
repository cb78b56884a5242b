package memory

import (
	"context"
	"sort"
	"sync"

	"burnloop/internal/domain"
	"burnloop/internal/storage"
)

// CycleRecordStore is an in-memory implementation of storage.CycleRecordStore.
type CycleRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.CycleRecord // keyed by record_id
}

// NewCycleRecordStore creates a new in-memory cycle record store.
func NewCycleRecordStore() *CycleRecordStore {
	return &CycleRecordStore{
		data: make(map[string]*domain.CycleRecord),
	}
}

var _ storage.CycleRecordStore = (*CycleRecordStore)(nil)

// Insert adds a new cycle record. Returns ErrDuplicateKey if record_id exists.
func (s *CycleRecordStore) Insert(_ context.Context, r *domain.CycleRecord) error {
	if r == nil || r.RecordID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RecordID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data[r.RecordID] = &copy
	return nil
}

// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
func (s *CycleRecordStore) GetByID(_ context.Context, recordID string) (*domain.CycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[recordID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *r
	return &copy, nil
}

// GetByMint retrieves all records for a mint, ordered by started_at ASC.
func (s *CycleRecordStore) GetByMint(_ context.Context, mint string) ([]*domain.CycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CycleRecord
	for _, r := range s.data {
		if r.Mint == mint {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt < result[j].StartedAt
	})

	return result, nil
}

// GetByTimeRange retrieves records for a mint within [start, end] (inclusive).
func (s *CycleRecordStore) GetByTimeRange(_ context.Context, mint string, start, end int64) ([]*domain.CycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CycleRecord
	for _, r := range s.data {
		if r.Mint == mint && r.StartedAt >= start && r.StartedAt <= end {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt < result[j].StartedAt
	})

	return result, nil
}
