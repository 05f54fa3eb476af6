package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/rubiojr/quack/pkg/core"
	"github.com/rubiojr/quack/pkg/log"
)

const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

// BreakerConfig configures the circuit breaker around a provider.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout time.Duration
	// Interval clears failure counts periodically while closed.
	Interval time.Duration
}

// Breaker wraps a Provider so that repeated upstream failures fail fast
// instead of piling up slow requests.
type Breaker struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker[[]core.SearchResult]
}

// NewBreaker wraps inner with a circuit breaker.
func NewBreaker(inner Provider, cfg BreakerConfig) *Breaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultBreakerInterval
	}

	logger := log.ForService("provider")
	cb := gobreaker.NewCircuitBreaker[[]core.SearchResult](gobreaker.Settings{
		Name:        "provider:" + inner.Name(),
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
		// Requests cancelled by the caller do not count as failures.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Breaker{inner: inner, breaker: cb}
}

func (b *Breaker) Name() string { return b.inner.Name() }

// Search forwards to the wrapped provider unless the circuit is open.
func (b *Breaker) Search(ctx context.Context, query string) ([]core.SearchResult, error) {
	results, err := b.breaker.Execute(func() ([]core.SearchResult, error) {
		return b.inner.Search(ctx, query)
	})
	if err != nil {
		return nil, wrap(b.inner.Name(), query, err)
	}
	return results, nil
}

// State returns the current breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}

var (
	_ Provider = (*DuckDuckGo)(nil)
	_ Provider = (*Breaker)(nil)
)
