package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rubiojr/quack/pkg/core"
	"github.com/rubiojr/quack/pkg/provider"
	"github.com/rubiojr/quack/pkg/search"
	"github.com/rubiojr/quack/pkg/version"
)

func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	values, ok := r.URL.Query()["q"]
	if !ok || len(values) == 0 {
		s.writeError(w, http.StatusBadRequest, "Missing query parameter", "Query parameter 'q' is required")
		return
	}

	query, err := search.ValidateQuery(values[0])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid query", err.Error())
		return
	}

	s.runSearch(w, r, query, http.StatusOK)
}

func (s *Server) HandleSearchBody(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	var req SearchRequest
	if err := dec.Decode(&req); err != nil {
		msg := err.Error()
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		s.writeError(w, http.StatusBadRequest, "Invalid body", msg)
		return
	}
	if dec.More() {
		s.writeError(w, http.StatusBadRequest, "Invalid body", "Request body must contain a single JSON object")
		return
	}
	if req.Q == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid body", "Field 'q' is required")
		return
	}

	query, err := search.ValidateQuery(*req.Q)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid query", err.Error())
		return
	}

	s.runSearch(w, r, query, http.StatusCreated)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, query string, status int) {
	results, err := s.service.Search(r.Context(), query)
	if err != nil {
		var pe *provider.Error
		if errors.As(err, &pe) {
			s.logger.Warnf("%s", pe.Detail())
			s.writeError(w, http.StatusBadGateway, "Search failed", pe.Error())
			return
		}
		s.logger.Errorf("search for %q failed: %v", query, err)
		s.writeError(w, http.StatusInternalServerError, "Search failed", err.Error())
		return
	}

	if results == nil {
		results = []core.SearchResult{}
	}
	s.writeJSON(w, status, results)
}

func (s *Server) HandleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.History()
	if err != nil {
		s.logger.Errorf("reading history: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to read history", err.Error())
		return
	}

	if entries == nil {
		entries = []core.HistoryEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) HandleRemoveHistoryEntry(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid index", fmt.Sprintf("Index must be an integer, got %q", raw))
		return
	}

	if err := s.service.RemoveHistoryEntry(index); err != nil {
		s.logger.Errorf("removing history entry %d: %v", index, err)
		s.writeError(w, http.StatusInternalServerError, "Failed to remove history entry", err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearHistory(); err != nil {
		s.logger.Errorf("clearing history: %v", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to clear history", err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
		Provider:  s.service.ProviderName(),

		ProviderState: s.service.ProviderState(),
	}
	if s.hub != nil {
		health.Watchers = s.hub.Size()
	}

	s.writeJSON(w, http.StatusOK, health)
}
