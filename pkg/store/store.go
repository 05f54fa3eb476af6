// Package store holds the client side search state.
//
// A Store serialises user intent into backend calls and applies responses to
// a single State value. Only the response of the most recent search may
// change visible state: every search mints a new fencing token and cancels
// the context of the one before it, so late responses are dropped.
//
// History mutations are applied optimistically and rolled back when the
// backend call fails. History writes carry their own generation counter:
// a history load that finishes after a newer load or mutation started is
// dropped, and a rollback is skipped when a newer load or mutation already
// replaced the optimistic state.
//
// Subscribers receive snapshots in the order the changes happened, one at a
// time. A subscriber must not call mutating Store methods synchronously.
package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/rubiojr/quack/pkg/core"
	"github.com/rubiojr/quack/pkg/log"
	"github.com/rubiojr/quack/pkg/pagination"
)

// SearchFailedMessage is shown to the user when a search fails.
const SearchFailedMessage = "Failed to fetch search results. Please try again."

// Backend is the remote API the store talks to.
type Backend interface {
	Search(ctx context.Context, query string) ([]core.SearchResult, error)
	History(ctx context.Context) ([]core.HistoryEntry, error)
	RemoveHistoryEntry(ctx context.Context, index int) error
	ClearHistory(ctx context.Context) error
}

// State is a point-in-time view of the store.
type State struct {
	Query            string
	Results          []core.SearchResult
	History          []core.HistoryEntry
	CurrentPage      int
	IsLoading        bool
	IsHistoryLoading bool
	HasSearched      bool
	Err              string
}

func initialState() State {
	return State{CurrentPage: 1}
}

func (s State) clone() State {
	s.Results = slices.Clone(s.Results)
	s.History = slices.Clone(s.History)
	return s
}

// Store is safe for concurrent use.
type Store struct {
	backend Backend
	logger  *log.Logger

	mu             sync.Mutex
	state          State
	activeSearchID uint64
	activeCancel   context.CancelFunc
	historyGen     uint64
	historyLoads   int
	subscribers    map[int]func(State)
	nextSub        int

	// held from snapshot to delivery so subscribers see changes in order
	deliverMu sync.Mutex
	pending   sync.WaitGroup
}

func New(backend Backend) *Store {
	return &Store{
		backend:     backend,
		logger:      log.ForService("store"),
		state:       initialState(),
		subscribers: make(map[int]func(State)),
	}
}

// Search runs query against the backend. Blank queries are ignored. A
// search superseded by a later one returns nil without touching the state;
// a failed search that is still current returns the backend error. A
// successful search triggers a history refresh in the background; Wait
// blocks until it is done.
func (s *Store) Search(parent context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	s.mu.Lock()
	if s.activeCancel != nil {
		s.activeCancel()
	}
	s.activeSearchID++
	id := s.activeSearchID
	s.activeCancel = cancel
	s.state.Query = query
	s.state.IsLoading = true
	s.state.Err = ""
	s.state.CurrentPage = 1
	s.state.HasSearched = true
	s.mu.Unlock()
	s.publish()

	results, err := s.backend.Search(ctx, query)

	s.mu.Lock()
	if id != s.activeSearchID {
		s.mu.Unlock()
		s.logger.Debugf("discarding stale response for %q", query)
		return nil
	}
	s.activeCancel = nil
	s.state.IsLoading = false
	if err != nil {
		s.state.Err = SearchFailedMessage
		s.state.Results = nil
	} else {
		s.state.Results = results
	}
	s.mu.Unlock()
	s.publish()

	if err != nil {
		s.logger.Warnf("search for %q failed: %v", query, err)
		return err
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.LoadHistory(parent)
	}()
	return nil
}

// Wait blocks until background history refreshes have finished.
func (s *Store) Wait() {
	s.pending.Wait()
}

// SetCurrentPage moves to page and reports whether the page was valid.
func (s *Store) SetCurrentPage(page int) bool {
	s.mu.Lock()
	total := pagination.TotalPages(len(s.state.Results), pagination.PageSize)
	if total == 0 || page < 1 || page > total {
		s.mu.Unlock()
		return false
	}
	s.state.CurrentPage = page
	s.mu.Unlock()
	s.publish()
	return true
}

// LoadHistory refreshes the history from the backend. On failure the
// current history is kept. A response is dropped when a newer load or
// mutation started while it was in flight.
func (s *Store) LoadHistory(ctx context.Context) {
	s.mu.Lock()
	s.historyGen++
	gen := s.historyGen
	s.historyLoads++
	s.state.IsHistoryLoading = true
	s.mu.Unlock()
	s.publish()

	entries, err := s.backend.History(ctx)

	s.mu.Lock()
	s.historyLoads--
	s.state.IsHistoryLoading = s.historyLoads > 0
	stale := gen != s.historyGen
	if err == nil && !stale {
		s.state.History = entries
	}
	s.mu.Unlock()
	s.publish()

	switch {
	case err != nil:
		s.logger.Warnf("loading history failed: %v", err)
	case stale:
		s.logger.Debugf("discarding stale history response")
	}
}

// RemoveHistoryEntry drops the entry at index locally, then on the backend.
// The previous history is restored if the backend call fails.
func (s *Store) RemoveHistoryEntry(ctx context.Context, index int) error {
	return s.optimistic(
		func(st *State) {
			if index >= 0 && index < len(st.History) {
				st.History = slices.Delete(slices.Clone(st.History), index, index+1)
			}
		},
		func() error { return s.backend.RemoveHistoryEntry(ctx, index) },
	)
}

// ClearHistory empties the history locally, then on the backend. The
// previous history is restored if the backend call fails.
func (s *Store) ClearHistory(ctx context.Context) error {
	return s.optimistic(
		func(st *State) { st.History = nil },
		func() error { return s.backend.ClearHistory(ctx) },
	)
}

func (s *Store) optimistic(apply func(*State), call func() error) error {
	s.mu.Lock()
	s.historyGen++
	gen := s.historyGen
	snapshot := slices.Clone(s.state.History)
	apply(&s.state)
	s.mu.Unlock()
	s.publish()

	if err := call(); err != nil {
		s.mu.Lock()
		superseded := gen != s.historyGen
		if !superseded {
			s.state.History = snapshot
		}
		s.mu.Unlock()
		if superseded {
			s.logger.Warnf("history update failed after newer history arrived: %v", err)
			return err
		}
		s.publish()
		s.logger.Warnf("history update rolled back: %v", err)
		return err
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// PageResults returns the results on the current page.
func (s *Store) PageResults() []core.SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(pagination.Slice(s.state.Results, s.state.CurrentPage, pagination.PageSize))
}

func (s *Store) TotalPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pagination.TotalPages(len(s.state.Results), pagination.PageSize)
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Reset aborts any in-flight search and returns to the initial state.
func (s *Store) Reset() {
	s.mu.Lock()
	if s.activeCancel != nil {
		s.activeCancel()
		s.activeCancel = nil
	}
	s.activeSearchID++
	s.historyGen++
	s.state = initialState()
	s.mu.Unlock()
	s.publish()
}

func (s *Store) publish() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if len(s.subscribers) == 0 {
		s.mu.Unlock()
		return
	}
	snapshot := s.state.clone()
	fns := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}
