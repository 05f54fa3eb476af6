package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rubiojr/quack/pkg/core"
	"github.com/rubiojr/quack/pkg/realtime"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleHistoryWS streams history changes. The first message carries the
// current history; each later message carries one change event.
func (s *Server) HandleHistoryWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Register before reading the snapshot so no change falls in between.
	id, events := s.hub.Register()
	defer s.hub.Unregister(id)
	s.logger.Debugf("history stream client connected (%d watching)", s.hub.Size())

	entries, err := s.service.History()
	if err != nil {
		s.logger.Errorf("reading history for websocket: %v", err)
		return
	}
	if entries == nil {
		entries = []core.HistoryEntry{}
	}
	if err := s.writeWS(conn, realtime.Message{Type: realtime.TypeInit, History: entries}); err != nil {
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.writeWS(conn, realtime.Message{Type: realtime.TypeHistory, Event: &ev}); err != nil {
				s.logger.Debugf("websocket write failed: %v", err)
				return
			}
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, msg realtime.Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
