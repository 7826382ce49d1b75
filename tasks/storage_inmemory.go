package tasks

import (
	"context"
	"sort"
	"sync"
)

type taskKey struct {
	sessionID string
	jobID     int64
}

// InMemoryStorage keeps task states in a map. It is the default storage.
type InMemoryStorage struct {
	mu    sync.RWMutex
	tasks map[taskKey]TaskState
}

// NewInMemoryStorage creates a new instance of InMemoryStorage
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		tasks: make(map[taskKey]TaskState),
	}
}

func (s *InMemoryStorage) Save(ctx context.Context, state TaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[taskKey{state.SessionID, state.JobID}] = state
	return nil
}

func (s *InMemoryStorage) Get(ctx context.Context, sessionID string, jobID int64) (*TaskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.tasks[taskKey{sessionID, jobID}]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return &state, nil
}

func (s *InMemoryStorage) List(ctx context.Context, sessionID string) ([]TaskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]TaskState, 0, len(s.tasks))
	for key, state := range s.tasks {
		if sessionID == "" || key.sessionID == sessionID {
			states = append(states, state)
		}
	}
	sortStates(states)
	return states, nil
}

func (s *InMemoryStorage) Delete(ctx context.Context, sessionID string, jobID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := taskKey{sessionID, jobID}
	if _, ok := s.tasks[key]; !ok {
		return ErrTaskNotFound
	}
	delete(s.tasks, key)
	return nil
}

func sortStates(states []TaskState) {
	sort.Slice(states, func(i, j int) bool {
		if states[i].SessionID != states[j].SessionID {
			return states[i].SessionID < states[j].SessionID
		}
		return states[i].JobID < states[j].JobID
	})
}
