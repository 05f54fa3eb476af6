package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sony/gobreaker/v2"

	"github.com/rubiojr/quack/pkg/core"
	"github.com/rubiojr/quack/pkg/history"
	"github.com/rubiojr/quack/pkg/log"
	"github.com/rubiojr/quack/pkg/provider"
)

// ErrInvalidQuery is returned by ValidateQuery for empty or oversized queries.
var ErrInvalidQuery = errors.New("invalid query")

// Service executes searches and manages the search history.
type Service struct {
	provider provider.Provider
	history  history.Repository
	logger   *log.Logger
	pending  sync.WaitGroup
}

// NewService creates a search service.
func NewService(p provider.Provider, h history.Repository) *Service {
	return &Service{
		provider: p,
		history:  h,
		logger:   log.ForService("search"),
	}
}

// Search asks the provider for results. Provider errors are returned
// unchanged and leave the history untouched. On success the query is saved
// to the history in the background.
func (s *Service) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	results, err := s.provider.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.history.Save(query); err != nil {
			s.logger.Warnf("failed to save history for %q: %v", query, err)
		}
	}()

	return results, nil
}

// History returns all history entries, most recent first.
func (s *Service) History() ([]core.HistoryEntry, error) {
	return s.history.FindAll()
}

// RemoveHistoryEntry removes the entry at index in most-recent-first order.
func (s *Service) RemoveHistoryEntry(index int) error {
	return s.history.RemoveAt(index)
}

// ClearHistory removes every history entry.
func (s *Service) ClearHistory() error {
	return s.history.Clear()
}

// Wait blocks until background history writes have finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// ProviderName returns the name of the configured provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// ProviderState reports the circuit breaker state of the provider, or an
// empty string when the provider has no breaker.
func (s *Service) ProviderState() string {
	if b, ok := s.provider.(interface{ State() gobreaker.State }); ok {
		return b.State().String()
	}
	return ""
}

// ValidateQuery trims q and checks its length.
func ValidateQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", fmt.Errorf("%w: query must not be empty", ErrInvalidQuery)
	}
	if n := utf8.RuneCountInString(q); n > core.MaxQueryLength {
		return "", fmt.Errorf("%w: query must be at most %d characters, got %d", ErrInvalidQuery, core.MaxQueryLength, n)
	}
	return q, nil
}
