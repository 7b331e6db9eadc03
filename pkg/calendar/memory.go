package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lit-af/hydroqc-ha/pkg/types"
)

// MemoryBackend is an in-memory Backend used for local development and
// tests. Contents are lost on restart.
type MemoryBackend struct {
	mu     sync.RWMutex
	events map[string]map[string]types.CalendarRecord
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{events: make(map[string]map[string]types.CalendarRecord)}
}

func (m *MemoryBackend) Create(ctx context.Context, contractID string, rec types.CalendarRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events[contractID] == nil {
		m.events[contractID] = make(map[string]types.CalendarRecord)
	}
	if _, exists := m.events[contractID][rec.UID]; exists {
		return fmt.Errorf("event %s already exists", rec.UID)
	}
	m.events[contractID][rec.UID] = rec
	return nil
}

func (m *MemoryBackend) Update(ctx context.Context, contractID string, rec types.CalendarRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events[contractID] == nil {
		m.events[contractID] = make(map[string]types.CalendarRecord)
	}
	m.events[contractID][rec.UID] = rec
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, contractID, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events[contractID], uid)
	return nil
}

func (m *MemoryBackend) Get(ctx context.Context, contractID, uid string) (types.CalendarRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.events[contractID][uid]
	if !ok {
		return types.CalendarRecord{}, fmt.Errorf("%w: %s", ErrEventNotFound, uid)
	}
	return rec, nil
}

func (m *MemoryBackend) List(ctx context.Context, contractID string, variant types.TariffVariant) ([]types.CalendarRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var recs []types.CalendarRecord
	for _, rec := range m.events[contractID] {
		if rec.Variant == variant {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].Start.Before(recs[j].Start)
	})
	return recs, nil
}

func (m *MemoryBackend) Close() error {
	return nil
}
