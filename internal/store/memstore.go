package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/KainCH/omniasylum-sub001/pkg/models"
)

// MemStore is a map-backed store used by tests.
type MemStore struct {
	mu   sync.RWMutex
	recs map[string]map[string]models.Record
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{recs: make(map[string]map[string]models.Record)}
}

func (s *MemStore) Get(ctx context.Context, partition, row string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.recs[partition][row]; ok {
		return rec, nil
	}
	return models.Record{}, fmt.Errorf("%w: %s/%s", models.ErrNotFound, partition, row)
}

func (s *MemStore) Upsert(ctx context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recs[rec.Partition] == nil {
		s.recs[rec.Partition] = make(map[string]models.Record)
	}
	s.recs[rec.Partition][rec.Row] = rec
	return nil
}

func (s *MemStore) List(ctx context.Context, partition string) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Record
	for _, rec := range s.recs[partition] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out, nil
}

func (s *MemStore) Delete(ctx context.Context, partition, row string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[partition][row]; !ok {
		return fmt.Errorf("%w: %s/%s", models.ErrNotFound, partition, row)
	}
	delete(s.recs[partition], row)
	return nil
}

func (s *MemStore) Close() error { return nil }
