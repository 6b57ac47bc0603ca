package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ignite/contact-import/internal/domain"
	"github.com/ignite/contact-import/internal/service/listimport"
)

// ProgressStore implements listimport.ProgressStore in memory.
type ProgressStore struct {
	mu    sync.RWMutex
	snaps map[string]domain.ProgressSnapshot
}

// NewProgressStore creates an empty progress store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{snaps: make(map[string]domain.ProgressSnapshot)}
}

func (s *ProgressStore) Save(_ context.Context, snap domain.ProgressSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.JobID] = snap.Clone()
	return nil
}

func (s *ProgressStore) Get(_ context.Context, jobID string) (*domain.ProgressSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[jobID]
	if !ok {
		return nil, listimport.ErrUnknownJob.WithRef(jobID)
	}
	c := snap.Clone()
	return &c, nil
}

// List returns all snapshots, newest first.
func (s *ProgressStore) List(_ context.Context) ([]domain.ProgressSnapshot, error) {
	s.mu.RLock()
	out := make([]domain.ProgressSnapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, snap.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool {
		return out[a].StartedAt.After(out[b].StartedAt)
	})
	return out, nil
}
