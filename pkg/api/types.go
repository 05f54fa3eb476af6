package api

import (
	"time"
)

// SearchRequest is the POST /search body.
type SearchRequest struct {
	Q *string `json:"q"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Provider  string    `json:"provider"`

	// ProviderState is the circuit breaker state: closed, half-open or open.
	ProviderState string `json:"provider_state,omitempty"`
	// Watchers is the number of connected history stream clients.
	Watchers      int    `json:"watchers"`
}
