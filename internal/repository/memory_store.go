package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kirychukyurii/domain-search/internal/model"
)

type memoryEntry struct {
	data    []byte
	state   model.JobState
	version int64
}

type memoryLease struct {
	owner   string
	expires time.Time
}

// memoryStore keeps serialized snapshots in process memory
type memoryStore struct {
	mu     sync.RWMutex
	jobs   map[string]memoryEntry
	leases map[string]memoryLease
}

// NewMemoryStore creates a job store backed by a map
func NewMemoryStore() JobStore {
	return &memoryStore{
		jobs:   make(map[string]memoryEntry),
		leases: make(map[string]memoryLease),
	}
}

func (s *memoryStore) Load(_ context.Context, jobID string) (*model.Job, int64, error) {
	s.mu.RLock()
	entry, ok := s.jobs[jobID]
	s.mu.RUnlock()

	if !ok {
		return nil, 0, fmt.Errorf("job %s: %w", jobID, model.ErrNotFound)
	}

	var job model.Job
	if err := json.Unmarshal(entry.data, &job); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return &job, entry.version, nil
}

func (s *memoryStore) Save(_ context.Context, job *model.Job, expectedVersion int64) (int64, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[job.ID]
	switch {
	case expectedVersion == 0 && ok:
		return 0, fmt.Errorf("job %s already exists: %w", job.ID, model.ErrVersionConflict)
	case expectedVersion != 0 && !ok:
		return 0, fmt.Errorf("job %s: %w", job.ID, model.ErrNotFound)
	case ok && current.version != expectedVersion:
		return 0, fmt.Errorf("job %s at version %d, expected %d: %w",
			job.ID, current.version, expectedVersion, model.ErrVersionConflict)
	}

	next := current.version + 1
	s.jobs[job.ID] = memoryEntry{data: data, state: job.State, version: next}
	return next, nil
}

func (s *memoryStore) ListActive(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for id, entry := range s.jobs {
		if !entry.state.IsTerminal() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memoryStore) Claim(_ context.Context, jobID, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if cur, ok := s.leases[jobID]; ok && cur.owner != owner && cur.expires.After(now) {
		return fmt.Errorf("job %s leased by %s: %w", jobID, cur.owner, model.ErrLeaseHeld)
	}
	s.leases[jobID] = memoryLease{owner: owner, expires: now.Add(ttl)}
	return nil
}

func (s *memoryStore) Renew(_ context.Context, jobID, owner string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[jobID]
	if !ok || cur.owner != owner {
		return fmt.Errorf("job %s: %w", jobID, model.ErrLeaseLost)
	}
	cur.expires = time.Now().Add(ttl)
	s.leases[jobID] = cur
	return nil
}

func (s *memoryStore) Release(_ context.Context, jobID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.leases[jobID]; ok && cur.owner == owner {
		delete(s.leases, jobID)
	}
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
