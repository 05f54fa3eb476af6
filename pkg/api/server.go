package api

import (
	"encoding/json"
	"net/http"

	"github.com/rubiojr/quack/pkg/log"
	"github.com/rubiojr/quack/pkg/realtime"
	"github.com/rubiojr/quack/pkg/search"
)

const maxBodySize = 4 << 10

type Server struct {
	service *search.Service
	hub     *realtime.Hub
	logger  *log.Logger
}

// NewServer creates the API server. hub may be nil, in which case the
// history websocket endpoint is not registered.
func NewServer(service *search.Service, hub *realtime.Hub) *Server {
	return &Server{
		service: service,
		hub:     hub,
		logger:  log.ForService("api"),
	}
}

// Handler returns the routes wrapped in the standard middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return RequestIDMiddleware(s.LoggingMiddleware(CorsMiddleware(GzipMiddleware(mux))))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}
