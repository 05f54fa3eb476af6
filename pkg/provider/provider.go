// Package provider contains the adapters that talk to external search
// engines. Every adapter maps the upstream response to core.SearchResult
// values and fails with *Error on any upstream problem instead of returning
// partial or empty data.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/rubiojr/quack/pkg/core"
)

// Provider is an external search backend.
type Provider interface {
	Search(ctx context.Context, query string) ([]core.SearchResult, error)
	Name() string
}

// Error is returned by providers when the upstream lookup fails for any
// reason: transport errors, timeouts, unexpected status codes, malformed
// payloads or an open circuit.
type Error struct {
	Provider string
	Query    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("Search provider failed for query %q", e.Query)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail returns the message including the underlying cause, for logs.
func (e *Error) Detail() string {
	if e.Err == nil {
		return e.Error()
	}
	return fmt.Sprintf("%s (%s): %v", e.Error(), e.Provider, e.Err)
}

// IsProviderError reports whether err is, or wraps, a provider failure.
func IsProviderError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}

func wrap(name, query string, err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Provider: name, Query: query, Err: err}
}
