// Package catalog owns the in-memory event collection: id allocation,
// create/update/delete, recurring series materialization, backup and
// restore. Every successful mutation is written through to a store.Store
// before the call returns.
//
// All mutations are serialized behind one lock; a recurring series is
// inserted in a single critical section so readers never see half of it.
// When the write-through fails the in-memory state is kept as the source
// of truth for the session; the failure is logged and reported by
// PersistErr until a later write succeeds.
package catalog

import (
	"errors"
	"fmt"
	"sync"
	"time"

	appLog "eventsched/internal/log"
	"eventsched/internal/model"
	"eventsched/internal/recur"
	"eventsched/internal/store"
)

// ErrNotFound is returned by operations that need an existing event and
// report failure through an error (GenerateRecurrence). Update and Delete
// report a missing id with a false result instead.
var ErrNotFound = errors.New("event not found")

// Catalog is safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	store  store.Store
	events []model.Event
	specs  []model.RecurrenceSpec
	nextID int

	loc            *time.Location
	maxOccurrences int
	collision      CollisionPolicy

	persistErr error
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithMaxOccurrences caps how many events a single recurrence expansion
// may materialize.
func WithMaxOccurrences(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.maxOccurrences = n
		}
	}
}

// WithCollisionPolicy selects how append-restores treat ids that already
// exist in the catalog.
func WithCollisionPolicy(p CollisionPolicy) Option {
	return func(c *Catalog) {
		if p != "" {
			c.collision = p
		}
	}
}

// WithLocation sets the zone backup timestamps are read in.
func WithLocation(loc *time.Location) Option {
	return func(c *Catalog) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// New loads events and recurrence specs from st.
func New(st store.Store, opts ...Option) (*Catalog, error) {
	if st == nil {
		return nil, errors.New("catalog: store is nil")
	}
	c := &Catalog{
		store:          st,
		loc:            time.Local,
		maxOccurrences: recur.DefaultMaxOccurrences,
		collision:      CollisionKeep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.collision.Validate(); err != nil {
		return nil, err
	}

	events, err := st.LoadEvents()
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	specs, err := st.LoadRecurrences()
	if err != nil {
		return nil, fmt.Errorf("load recurrences: %w", err)
	}
	c.events = events
	c.specs = specs
	c.recomputeNextIDLocked()

	appLog.Info("catalog loaded", "events", len(c.events), "recurrences", len(c.specs), "next_id", c.nextID)
	return c, nil
}

// Create stores a new event and returns it with its allocated id.
func (c *Catalog) Create(title, description string, start, end time.Time) (model.Event, error) {
	if err := model.ValidateTitle(title); err != nil {
		return model.Event{}, err
	}
	if err := model.ValidateRange(start, end); err != nil {
		return model.Event{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.insertLocked(model.Event{Title: title, Description: description, Start: start, End: end})
	appLog.Debug("catalog: event created", "id", e.ID, "title", e.Title)
	c.persistLocked("create")
	return e, nil
}

// Update replaces the fields of the event with id. It returns false when
// no such event exists. An invalid range is rejected before anything is
// changed.
func (c *Catalog) Update(id int, title, description string, start, end time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(id)
	if i < 0 {
		return false, nil
	}
	if err := model.ValidateTitle(title); err != nil {
		return false, err
	}
	if err := model.ValidateRange(start, end); err != nil {
		return false, err
	}

	e := &c.events[i]
	e.Title = title
	e.Description = description
	e.Start = start
	e.End = end

	appLog.Debug("catalog: event updated", "id", id)
	c.persistLocked("update")
	return true, nil
}

// Delete removes the event with id together with any recurrence spec
// anchored on it. Siblings of a series are independent events and stay.
func (c *Catalog) Delete(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(id)
	if i < 0 {
		return false
	}
	c.events = append(c.events[:i], c.events[i+1:]...)

	kept := c.specs[:0]
	for _, s := range c.specs {
		if s.EventID != id {
			kept = append(kept, s)
		}
	}
	c.specs = kept
	c.recomputeNextIDLocked()

	appLog.Debug("catalog: event deleted", "id", id, "next_id", c.nextID)
	c.persistLocked("delete")
	return true
}

// Find returns the first event with id.
func (c *Catalog) Find(id int) (model.Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := c.indexLocked(id)
	if i < 0 {
		return model.Event{}, false
	}
	return c.events[i], true
}

// List returns a copy of all events in catalog order. Changing the
// returned slice never affects the catalog.
func (c *Catalog) List() []model.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Recurrences returns a copy of all recurrence specs.
func (c *Catalog) Recurrences() []model.RecurrenceSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return store.CloneSpecs(c.specs)
}

// Recurrence returns the spec anchored on the event with anchorID.
func (c *Catalog) Recurrence(anchorID int) (model.RecurrenceSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, s := range c.specs {
		if s.EventID == anchorID {
			return store.CloneSpecs([]model.RecurrenceSpec{s})[0], true
		}
	}
	return model.RecurrenceSpec{}, false
}

// NextID is the id the next created event will get.
func (c *Catalog) NextID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nextID
}

// PersistErr returns the error of the most recent write-through, or nil
// if it succeeded.
func (c *Catalog) PersistErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.persistErr
}

func (c *Catalog) insertLocked(e model.Event) model.Event {
	e.ID = c.nextID
	c.nextID++
	c.events = append(c.events, e)
	return e
}

func (c *Catalog) indexLocked(id int) int {
	for i := range c.events {
		if c.events[i].ID == id {
			return i
		}
	}
	return -1
}

// recomputeNextIDLocked sets nextID to max(id)+1, or 1 for an empty catalog.
func (c *Catalog) recomputeNextIDLocked() {
	maxID := 0
	for _, e := range c.events {
		if e.ID > maxID {
			maxID = e.ID
		}
	}
	c.nextID = maxID + 1
}

// persistLocked rewrites the store from the in-memory state.
func (c *Catalog) persistLocked(op string) {
	err := c.store.SaveEvents(c.events)
	if err == nil {
		err = c.store.SaveRecurrences(c.specs)
	}
	c.persistErr = err
	if err != nil {
		appLog.Error("catalog: write-through failed; keeping in-memory state", err,
			"op", op, "events", len(c.events), "recurrences", len(c.specs))
	}
}
