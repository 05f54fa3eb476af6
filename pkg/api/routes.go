package api

import (
	"net/http"
)

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /search", s.HandleSearch)
	mux.HandleFunc("POST /search", s.HandleSearchBody)
	mux.HandleFunc("GET /search/history", s.HandleHistory)
	mux.HandleFunc("DELETE /search/history/{index}", s.HandleRemoveHistoryEntry)
	mux.HandleFunc("DELETE /search/history", s.HandleClearHistory)
	if s.hub != nil {
		mux.HandleFunc("GET /search/history/ws", s.HandleHistoryWS)
	}
	mux.HandleFunc("GET /health", s.HandleHealth)
}
