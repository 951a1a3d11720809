// Package persistence holds the optional run ledger: one record per
// workflow run plus its step history. Artifacts on disk stay the only
// state a workflow depends on; the ledger is for audit and debugging.
package persistence

import (
	"database/sql"
	"fmt"
)

// Persistence bundles the two store interfaces so the executor
// can depend on a single abstraction.
type Persistence struct {
	Instances InstanceStore
	Events    EventStore
}

// NewInMemory returns a ledger that lives as long as the process.
func NewInMemory() Persistence {
	return Persistence{
		Instances: NewInMemoryStore(),
		Events:    NewInMemoryEventStore(),
	}
}

// NewSQLite creates the ledger tables in db if needed.
//
// The caller imports the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
func NewSQLite(db *sql.DB) (Persistence, error) {
	inst, err := NewSQLiteInstanceStore(db)
	if err != nil {
		return Persistence{}, fmt.Errorf("ledger instances: %w", err)
	}
	ev, err := NewSQLiteEventStore(db)
	if err != nil {
		return Persistence{}, fmt.Errorf("ledger events: %w", err)
	}
	return Persistence{Instances: inst, Events: ev}, nil
}
