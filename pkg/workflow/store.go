package workflow

import (
	"errors"
	"fmt"
	"sync"
)

// ErrWorkflowNotFound is returned for unknown workflow ids.
var ErrWorkflowNotFound = errors.New("workflow not found")

// Store is the in-memory workflow record index. The engine mutates records
// through Update; everyone else reads immutable snapshots.
type Store struct {
	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{workflows: make(map[string]*Workflow)}
}

// Create registers a new workflow record.
func (s *Store) Create(w *Workflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID] = w
}

// Update applies fn to the workflow under the store lock.
func (s *Store) Update(id string, fn func(*Workflow)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	fn(w)
	return nil
}

// Snapshot returns a read-only projection of the workflow.
func (s *Store) Snapshot(id string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return w.Snapshot(), nil
}

// Status returns the workflow's current status.
func (s *Store) Status(id string) (Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return w.Status, nil
}
