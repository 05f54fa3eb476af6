// Package history persists the log of executed search queries.
//
// The log is bounded to MaxEntries, ordered most-recent-first on read and
// addressed by position in that ordering. FileStore keeps the whole set in
// memory and rewrites a JSON array on disk after every mutation.
package history

import (
	"github.com/rubiojr/quack/pkg/core"
)

// MaxEntries is the maximum number of retained history entries.
const MaxEntries = 100

// Repository is the history persistence capability used by the search
// service.
type Repository interface {
	// Save appends query with the current time, evicting the oldest entries
	// beyond MaxEntries.
	Save(query string) error
	// FindAll returns a fresh copy of all entries, most recent first.
	FindAll() ([]core.HistoryEntry, error)
	// RemoveAt removes the entry at index in most-recent-first order.
	// Out of range indexes are ignored.
	RemoveAt(index int) error
	// Clear removes every entry.
	Clear() error
}

// Op identifies a history mutation.
type Op string

const (
	OpSaved   Op = "saved"
	OpRemoved Op = "removed"
	OpCleared Op = "cleared"
)

// Change describes a persisted mutation.
type Change struct {
	Op    Op
	Entry core.HistoryEntry
	Index int
}

// Observer is notified after a mutation has been persisted.
type Observer func(Change)
