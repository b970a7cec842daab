// Package store persists the event catalog. A Store always reads and
// writes whole collections; the catalog calls SaveEvents and
// SaveRecurrences after every successful mutation.
package store

import (
	"sync"

	"eventsched/internal/model"
)

// Store is the persistence contract the catalog is built on.
type Store interface {
	// LoadEvents returns events in stored order.
	LoadEvents() ([]model.Event, error)
	// SaveEvents replaces the whole event collection.
	SaveEvents(events []model.Event) error
	LoadRecurrences() ([]model.RecurrenceSpec, error)
	SaveRecurrences(specs []model.RecurrenceSpec) error
}

// MemStore keeps collections in memory. Setting Err makes every call fail,
// which tests use to simulate an unwritable backing store.
type MemStore struct {
	mu     sync.Mutex
	events []model.Event
	specs  []model.RecurrenceSpec

	Err   error
	Saves int
}

// NewMemStore returns a MemStore seeded with copies of events and specs.
func NewMemStore(events []model.Event, specs []model.RecurrenceSpec) *MemStore {
	return &MemStore{
		events: append([]model.Event(nil), events...),
		specs:  cloneSpecs(specs),
	}
}

func (m *MemStore) LoadEvents() ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]model.Event(nil), m.events...), nil
}

func (m *MemStore) SaveEvents(events []model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append([]model.Event(nil), events...)
	m.Saves++
	return nil
}

func (m *MemStore) LoadRecurrences() ([]model.RecurrenceSpec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return cloneSpecs(m.specs), nil
}

func (m *MemStore) SaveRecurrences(specs []model.RecurrenceSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.specs = cloneSpecs(specs)
	return nil
}

// SetErr changes the injected failure under the store's lock.
func (m *MemStore) SetErr(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}

// cloneSpecs deep-copies specs so EndDate pointers are not shared.
func cloneSpecs(specs []model.RecurrenceSpec) []model.RecurrenceSpec {
	out := make([]model.RecurrenceSpec, len(specs))
	for i, s := range specs {
		if s.EndDate != nil {
			d := *s.EndDate
			s.EndDate = &d
		}
		out[i] = s
	}
	return out
}

// CloneSpecs is cloneSpecs for other packages.
func CloneSpecs(specs []model.RecurrenceSpec) []model.RecurrenceSpec {
	return cloneSpecs(specs)
}
