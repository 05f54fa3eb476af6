package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rubiojr/quack/pkg/core"
	"github.com/rubiojr/quack/pkg/log"
)

// FileStore is a Repository backed by a JSON file.
//
// Entries are kept in insertion order in memory; ordering by timestamp is
// applied on read. Mutations are serialized by a mutex, so a single process
// is safe to share one FileStore across requests. Several processes writing
// the same file are not coordinated.
type FileStore struct {
	mu       sync.Mutex
	path     string
	entries  []core.HistoryEntry
	now      func() time.Time
	observer Observer
	logger   *log.Logger
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithClock overrides the time source used for new entries.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) { s.now = now }
}

// WithObserver registers fn to be called after each persisted mutation.
func WithObserver(fn Observer) Option {
	return func(s *FileStore) { s.observer = fn }
}

// Open loads the history at path. A missing or unreadable file yields an
// empty store; Open only fails when the parent directory cannot be created.
func Open(path string, opts ...Option) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		now:    time.Now,
		logger: log.ForService("history"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	s.load()
	return s, nil
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Infof("no history file at %s, starting fresh", s.path)
		} else {
			s.logger.Warnf("reading history file %s: %v, starting fresh", s.path, err)
		}
		s.entries = nil
		return
	}

	var entries []core.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warnf("history file %s is malformed (%v), starting fresh", s.path, err)
		s.entries = nil
		return
	}

	s.entries = evictOldest(entries, MaxEntries)
	s.logger.Infof("loaded %d history entries", len(s.entries))
}

func (s *FileStore) Save(query string) error {
	s.mu.Lock()
	prev := s.entries
	entry := core.NewHistoryEntry(query, s.now())
	s.entries = evictOldest(append(s.entries, entry), MaxEntries)
	err := s.persist()
	if err != nil {
		s.entries = prev
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(Change{Op: OpSaved, Entry: entry})
	return nil
}

func (s *FileStore) FindAll() ([]core.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sortedCopy(s.entries), nil
}

func (s *FileStore) RemoveAt(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.entries) {
		s.mu.Unlock()
		return nil
	}

	order := newestFirst(s.entries)
	pos := order[index]
	prev := s.entries
	removed := s.entries[pos]
	s.entries = append(s.entries[:pos:pos], s.entries[pos+1:]...)
	err := s.persist()
	if err != nil {
		s.entries = prev
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(Change{Op: OpRemoved, Entry: removed, Index: index})
	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	prev := s.entries
	s.entries = nil
	err := s.persist()
	if err != nil {
		s.entries = prev
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.notify(Change{Op: OpCleared})
	return nil
}

func (s *FileStore) notify(c Change) {
	if s.observer != nil {
		s.observer(c)
	}
}

// persist writes the current set atomically. Callers must hold s.mu.
func (s *FileStore) persist() error {
	entries := s.entries
	if entries == nil {
		entries = []core.HistoryEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".history-*.json")
	if err != nil {
		return fmt.Errorf("creating temp history file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing history: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing history file: %w", err)
	}

	s.logger.Debugf("persisted %d entries to %s", len(s.entries), s.path)
	return nil
}

// newestFirst returns positions into entries ordered by timestamp, newest
// first. Among entries sharing a timestamp the later inserted one ranks as
// newer.
func newestFirst(entries []core.HistoryEntry) []int {
	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ta, tb := entries[order[a]].Timestamp, entries[order[b]].Timestamp
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return order[a] > order[b]
	})
	return order
}

func sortedCopy(entries []core.HistoryEntry) []core.HistoryEntry {
	out := make([]core.HistoryEntry, 0, len(entries))
	for _, pos := range newestFirst(entries) {
		out = append(out, entries[pos])
	}
	return out
}

// evictOldest drops the oldest entries by timestamp until at most limit
// remain. Survivors keep their insertion order.
func evictOldest(entries []core.HistoryEntry, limit int) []core.HistoryEntry {
	if len(entries) <= limit {
		return entries
	}

	keep := make([]bool, len(entries))
	for _, pos := range newestFirst(entries)[:limit] {
		keep[pos] = true
	}

	out := make([]core.HistoryEntry, 0, limit)
	for i, e := range entries {
		if keep[i] {
			out = append(out, e)
		}
	}
	return out
}

var _ Repository = (*FileStore)(nil)
