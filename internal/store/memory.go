package store

import (
	"context"
	"sync"

	"github.com/crescendo-labs/crescendo/internal/experiment"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu          sync.RWMutex
	experiments map[string]experiment.Experiment
	order       []string
	assignments map[string][]*experiment.Assignment
	events      map[string][]StoredEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		experiments: make(map[string]experiment.Experiment),
		assignments: make(map[string][]*experiment.Assignment),
		events:      make(map[string][]StoredEvent),
	}
}

func (m *MemoryStore) SaveExperiment(_ context.Context, exp *experiment.Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.experiments[exp.ID]; !ok {
		m.order = append(m.order, exp.ID)
	}
	m.experiments[exp.ID] = *exp
	return nil
}

func (m *MemoryStore) GetExperiment(_ context.Context, id string) (*experiment.Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exp, ok := m.experiments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := exp
	return &cp, nil
}

func (m *MemoryStore) ListExperiments(_ context.Context) ([]*experiment.Experiment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*experiment.Experiment, 0, len(m.order))
	for _, id := range m.order {
		exp := m.experiments[id]
		cp := exp
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) SaveAssignment(_ context.Context, a *experiment.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.assignments[a.ExperimentID] {
		if existing.UserID == a.UserID {
			return nil
		}
	}
	cp := *a
	cp.Events = nil
	m.assignments[a.ExperimentID] = append(m.assignments[a.ExperimentID], &cp)
	return nil
}

func (m *MemoryStore) ListAssignments(_ context.Context, experimentID string) ([]*experiment.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.assignments[experimentID]
	out := make([]*experiment.Assignment, 0, len(src))
	for _, a := range src {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, experimentID, userID string, ev experiment.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[experimentID] = append(m.events[experimentID], StoredEvent{UserID: userID, Event: ev})
	return nil
}

func (m *MemoryStore) ListEvents(_ context.Context, experimentID string) ([]StoredEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]StoredEvent(nil), m.events[experimentID]...), nil
}

func (m *MemoryStore) Close() error {
	return nil
}
