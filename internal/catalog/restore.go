package catalog

import (
	"fmt"
	"sort"

	appLog "eventsched/internal/log"
	"eventsched/internal/model"
	"eventsched/internal/store"
)

// CollisionPolicy decides what an append-restore does with incoming events
// whose id already exists in the catalog.
type CollisionPolicy string

const (
	// CollisionKeep appends colliding events unchanged, leaving duplicate
	// ids in the catalog, and logs a warning.
	CollisionKeep CollisionPolicy = "keep"
	// CollisionReject fails the restore and leaves the catalog untouched.
	CollisionReject CollisionPolicy = "reject"
	// CollisionRenumber gives colliding events fresh ids after the current
	// maximum. Specs anchored on them follow.
	CollisionRenumber CollisionPolicy = "renumber"
)

func (p CollisionPolicy) Validate() error {
	switch p {
	case CollisionKeep, CollisionReject, CollisionRenumber:
		return nil
	}
	return fmt.Errorf("%w: unknown collision policy %q", model.ErrValidation, string(p))
}

// Snapshot returns an independent copy of the whole catalog state.
func (c *Catalog) Snapshot() store.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Catalog) snapshotLocked() store.Snapshot {
	events := make([]model.Event, len(c.events))
	copy(events, c.events)
	return store.Snapshot{Events: events, Recurrences: store.CloneSpecs(c.specs)}
}

// Backup writes the current events and specs to path in the backup format.
func (c *Catalog) Backup(path string) error {
	snap := c.Snapshot()
	if err := store.CreateBackup(path, snap); err != nil {
		appLog.Error("catalog: backup failed", err, "path", path)
		return err
	}
	appLog.Info("catalog: backup written", "path", path, "events", len(snap.Events), "recurrences", len(snap.Recurrences))
	return nil
}

// Restore reads the backup at path. With appendMode false the catalog is
// replaced by the backup contents; otherwise the backup is merged in under
// the configured collision policy. A backup that fails to parse leaves the
// catalog unchanged.
func (c *Catalog) Restore(path string, appendMode bool) error {
	snap, err := store.LoadBackup(path, c.loc)
	if err != nil {
		appLog.Error("catalog: restore failed", err, "path", path)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !appendMode {
		c.events = snap.Events
		c.specs = snap.Recurrences
	} else if err := c.mergeLocked(snap); err != nil {
		appLog.Error("catalog: restore rejected", err, "path", path)
		return err
	}
	c.recomputeNextIDLocked()

	appLog.Info("catalog: restored",
		"path", path,
		"append", appendMode,
		"events", len(c.events),
		"recurrences", len(c.specs),
		"next_id", c.nextID,
	)
	c.persistLocked("restore")
	return nil
}

func (c *Catalog) mergeLocked(snap store.Snapshot) error {
	existing := make(map[int]bool, len(c.events))
	maxID := 0
	for _, e := range c.events {
		existing[e.ID] = true
		maxID = max(maxID, e.ID)
	}
	for _, e := range snap.Events {
		maxID = max(maxID, e.ID)
	}

	collided := make(map[int]bool)
	for _, e := range snap.Events {
		if existing[e.ID] {
			collided[e.ID] = true
		}
	}
	if len(collided) == 0 {
		c.events = append(c.events, snap.Events...)
		c.specs = append(c.specs, snap.Recurrences...)
		return nil
	}

	ids := make([]int, 0, len(collided))
	for id := range collided {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	switch c.collision {
	case CollisionReject:
		return fmt.Errorf("%w: backup ids already in catalog: %v", model.ErrValidation, ids)

	case CollisionRenumber:
		renamed := make(map[int]int, len(collided))
		for _, e := range snap.Events {
			if collided[e.ID] {
				maxID++
				if _, ok := renamed[e.ID]; !ok {
					renamed[e.ID] = maxID
				}
				e.ID = maxID
			}
			c.events = append(c.events, e)
		}
		for _, s := range snap.Recurrences {
			if id, ok := renamed[s.EventID]; ok {
				s.EventID = id
			}
			c.specs = append(c.specs, s)
		}
		appLog.Info("catalog: renumbered colliding restore ids", "ids", ids)

	default:
		c.events = append(c.events, snap.Events...)
		c.specs = append(c.specs, snap.Recurrences...)
		appLog.Warn("catalog: restore appended duplicate ids", "ids", ids)
	}
	return nil
}
