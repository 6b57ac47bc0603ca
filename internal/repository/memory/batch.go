package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ignite/contact-import/internal/domain"
	"github.com/ignite/contact-import/internal/service/contactimport"
)

// BatchStore implements contactimport.BatchStore in memory. Batches are
// stored as JSON so callers never share mutable state with the store.
type BatchStore struct {
	mu      sync.RWMutex
	batches map[string][]byte
}

// NewBatchStore creates an empty batch store.
func NewBatchStore() *BatchStore {
	return &BatchStore{batches: make(map[string][]byte)}
}

func (s *BatchStore) Create(_ context.Context, b *domain.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[b.ID]; ok {
		return fmt.Errorf("create batch %s: already exists", b.ID)
	}
	s.batches[b.ID] = data
	return nil
}

func (s *BatchStore) Get(_ context.Context, id string) (*domain.Batch, error) {
	s.mu.RLock()
	data, ok := s.batches[id]
	s.mu.RUnlock()
	if !ok {
		return nil, contactimport.ErrUnknownBatch.WithRef(id)
	}
	var b domain.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", id, err)
	}
	return &b, nil
}

func (s *BatchStore) Save(_ context.Context, b *domain.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[b.ID]; !ok {
		return contactimport.ErrUnknownBatch.WithRef(b.ID)
	}
	s.batches[b.ID] = data
	return nil
}

func (s *BatchStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.batches, id)
	return nil
}
