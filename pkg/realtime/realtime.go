// Package realtime fans out history change events to in-process listeners,
// such as websocket sessions on the API server.
//
// Delivery is best effort: each listener has its own buffered channel and an
// event that does not fit is dropped for that listener only, so a slow
// client never blocks history writes. There is no replay; a listener that
// needs the full state reads the history first and then applies events.
package realtime

import (
	"sync"
	"time"

	"github.com/rubiojr/quack/pkg/core"
	"github.com/rubiojr/quack/pkg/history"
)

// Event types.
const (
	TypeInit    = "init"
	TypeHistory = "history"
)

// HistoryEvent describes one persisted history mutation.
//
// Fields:
//   - Op:    "saved", "removed" or "cleared".
//   - Query: the affected query (empty for "cleared").
//   - Index: position in most-recent-first order for "removed".
//   - At:    when the event was published.
type HistoryEvent struct {
	Op    string    `json:"op"`
	Query string    `json:"query,omitempty"`
	Index int       `json:"index"`
	At    time.Time `json:"at"`
}

// Message is the envelope written to websocket clients.
type Message struct {
	Type    string              `json:"type"`
	History []core.HistoryEntry `json:"history,omitempty"`
	Event   *HistoryEvent       `json:"event,omitempty"`
}

// Hub is an in-memory fan-out dispatcher. It is safe for concurrent use.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]chan HistoryEvent
	nextID    uint64
	bufSize   int
	now       func() time.Time
}

// NewHub creates a hub with the given per-listener buffer size (default 32).
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 32
	}
	return &Hub{
		listeners: make(map[uint64]chan HistoryEvent),
		bufSize:   bufSize,
		now:       time.Now,
	}
}

// Register adds a listener. Callers must Unregister the returned id.
func (h *Hub) Register() (uint64, <-chan HistoryEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan HistoryEvent, h.bufSize)
	h.listeners[id] = ch
	return id, ch
}

// Unregister removes a listener and closes its channel. Unknown ids are
// ignored.
func (h *Hub) Unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.listeners[id]; ok {
		delete(h.listeners, id)
		close(ch)
	}
}

// Broadcast delivers ev to every listener that has room for it.
func (h *Hub) Broadcast(ev HistoryEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Size returns the number of registered listeners.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Observe is a history.Observer publishing every change to the hub.
func (h *Hub) Observe(c history.Change) {
	h.Broadcast(HistoryEvent{
		Op:    string(c.Op),
		Query: c.Entry.Query,
		Index: c.Index,
		At:    h.now().UTC(),
	})
}
