package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxQueryLength is the maximum number of characters accepted in a query.
const MaxQueryLength = 200

// TimestampLayout is the ISO-8601 layout used for history timestamps on the
// wire and on disk. Timestamps are always rendered in UTC with millisecond
// precision, e.g. "2025-01-01T00:00:00.000Z".
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// SearchResult is a single hit returned by a search provider.
//
// Results are produced by the provider adapter from upstream data, are
// never persisted and should be treated as immutable values.
type SearchResult struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// HistoryEntry records one executed query and when it was executed.
//
// Entries are written by the search service after a provider call succeeds.
// Consumers always receive them most-recent-first.
type HistoryEntry struct {
	Query     string
	Timestamp time.Time
}

type historyEntryJSON struct {
	Query     string `json:"query"`
	Timestamp string `json:"timestamp"`
}

// NewHistoryEntry builds an entry truncated to millisecond precision, the
// resolution the timestamp survives a round trip through JSON with.
func NewHistoryEntry(query string, at time.Time) HistoryEntry {
	return HistoryEntry{Query: query, Timestamp: at.UTC().Truncate(time.Millisecond)}
}

// MarshalJSON renders the entry as {"query": ..., "timestamp": ...}.
func (e HistoryEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(historyEntryJSON{
		Query:     e.Query,
		Timestamp: FormatTimestamp(e.Timestamp),
	})
}

// UnmarshalJSON parses an entry. Any RFC 3339 timestamp is accepted.
func (e *HistoryEntry) UnmarshalJSON(data []byte) error {
	var raw historyEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return err
	}
	e.Query = raw.Query
	e.Timestamp = ts
	return nil
}

// FormatTimestamp renders t using TimestampLayout in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses an RFC 3339 timestamp and normalizes it to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
