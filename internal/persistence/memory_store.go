package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/petrijr/genflow/pkg/api"
)

// DefaultListLimit is the page size used when a query does not set one.
const DefaultListLimit = 50

// InMemoryStore is a goroutine-safe FlowStateStore backed by a map. It is
// non-durable and intended for tests and local development.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]*api.FlowState
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states: make(map[string]*api.FlowState),
	}
}

var _ api.FlowStateStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) Create(ctx context.Context, fs *api.FlowState) error {
	clone, err := CloneState(fs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[fs.FlowID]; ok {
		return api.ErrAlreadyExists
	}
	s.states[fs.FlowID] = clone
	return nil
}

func (s *InMemoryStore) Load(ctx context.Context, flowID string) (*api.FlowState, error) {
	s.mu.RLock()
	fs, ok := s.states[flowID]
	s.mu.RUnlock()

	if !ok {
		return nil, api.ErrNotFound
	}
	return CloneState(fs)
}

func (s *InMemoryStore) Save(ctx context.Context, fs *api.FlowState) error {
	clone, err := CloneState(fs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[fs.FlowID]; !ok {
		return api.ErrNotFound
	}
	s.states[fs.FlowID] = clone
	return nil
}

func (s *InMemoryStore) List(ctx context.Context, q api.StateQuery) ([]*api.FlowStateSummary, string, error) {
	s.mu.RLock()
	all := make([]*api.FlowState, 0, len(s.states))
	for _, fs := range s.states {
		if q.Name != "" && fs.Name != q.Name {
			continue
		}
		all = append(all, fs)
	}
	s.mu.RUnlock()

	// Deterministic order: flowId ascending.
	sort.Slice(all, func(i, j int) bool { return all[i].FlowID < all[j].FlowID })

	start := 0
	if q.ContinuationToken != "" {
		for i, fs := range all {
			if fs.FlowID > q.ContinuationToken {
				start = i
				break
			}
			start = len(all)
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	page := make([]*api.FlowStateSummary, 0, end-start)
	for _, fs := range all[start:end] {
		page = append(page, fs.Summary())
	}

	token := ""
	if end < len(all) && len(page) > 0 {
		token = page[len(page)-1].FlowID
	}
	return page, token, nil
}
