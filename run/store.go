package run

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/stream"
)

// Store persists runs.
type Store interface {
	// Create stores a new run. Ids must be unique.
	Create(ctx context.Context, r *Run) error
	// Get returns a copy of the run or NOT_FOUND.
	Get(ctx context.Context, id string) (*Run, error)
	// Transition applies tr atomically; terminal runs reject it with CONFLICT.
	Transition(ctx context.Context, id string, tr Transition) error
	// SaveCheckpoint records the cursor for one source of a running run.
	SaveCheckpoint(ctx context.Context, id, sourceID string, cursor stream.Cursor) error
	// Checkpoints returns the run's checkpoints by source node id.
	Checkpoints(ctx context.Context, id string) (map[string]stream.Cursor, error)
	// List returns runs newest first.
	List(ctx context.Context, filter ListFilter) ([]*Run, error)
}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	WorkflowID string
	Status     Status
	Limit      int
}

// Match reports whether r passes the filter's field checks.
func (f ListFilter) Match(r *Run) bool {
	if f.WorkflowID != "" && r.WorkflowID != f.WorkflowID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// SortNewestFirst orders runs by creation time, newest first, and applies
// the filter's limit.
func (f ListFilter) SortNewestFirst(runs []*Run) []*Run {
	slices.SortStableFunc(runs, func(a, b *Run) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if f.Limit > 0 && len(runs) > f.Limit {
		runs = runs[:f.Limit]
	}
	return runs
}

// MemoryStore keeps runs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*Run)}
}

func (s *MemoryStore) Create(_ context.Context, r *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[r.ID]; exists {
		return errors.New(errors.ErrCodeAlreadyExists, "run "+r.ID+" already exists")
	}
	s.runs[r.ID] = r.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, errors.NotFound("run", id)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, tr Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return errors.NotFound("run", id)
	}
	return tr.Apply(r)
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, id, sourceID string, cursor stream.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return errors.NotFound("run", id)
	}
	return SetCheckpoint(r, sourceID, cursor)
}

func (s *MemoryStore) Checkpoints(_ context.Context, id string) (map[string]stream.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, errors.NotFound("run", id)
	}
	return maps.Clone(r.Checkpoints), nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*Run, error) {
	s.mu.RLock()
	var out []*Run
	for _, r := range s.runs {
		if filter.Match(r) {
			out = append(out, r.Clone())
		}
	}
	s.mu.RUnlock()
	return filter.SortNewestFirst(out), nil
}
