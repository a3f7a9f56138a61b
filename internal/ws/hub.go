// Package ws serves the live-tail WebSocket route (GET
// /ws/coords/{coord_id}): one JSON line per delta appended to a
// coordinate, for as long as the connection stays open. It is
// non-authoritative — a subscriber that disconnects loses nothing,
// since /recall always reconstructs the full state from the
// repository. Grounded on services/crypto-stream/main.go's use of
// github.com/gorilla/websocket, adapted here to the server side via
// websocket.Upgrader (the teacher only dials out as a client).
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chartlylabs/vstate/pkg/delta"
)

// TailEvent is one line streamed to subscribers of a coordinate.
type TailEvent struct {
	CoordID string      `json:"coord_id"`
	DeltaID string      `json:"delta_id"`
	State   delta.Value `json:"state"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	subscriberBuffer = 32
	writeWait        = 10 * time.Second
	pingInterval     = 30 * time.Second
)

// Hub fans out TailEvents to subscribers grouped by coordinate id.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan TailEvent]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan TailEvent]struct{})}
}

// Publish fans out an event to every subscriber of coordID. Subscribers
// that are not keeping up have the event dropped for them rather than
// blocking the publisher — the WebSocket route is a best-effort tail,
// not a delivery guarantee.
func (h *Hub) Publish(coordID string, ev TailEvent) {
	h.mu.Lock()
	subs := h.subs[coordID]
	chans := make([]chan TailEvent, 0, len(subs))
	for ch := range subs {
		chans = append(chans, ch)
	}
	h.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) subscribe(coordID string) chan TailEvent {
	ch := make(chan TailEvent, subscriberBuffer)
	h.mu.Lock()
	if h.subs[coordID] == nil {
		h.subs[coordID] = make(map[chan TailEvent]struct{})
	}
	h.subs[coordID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(coordID string, ch chan TailEvent) {
	h.mu.Lock()
	if subs, ok := h.subs[coordID]; ok {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(h.subs, coordID)
		}
	}
	h.mu.Unlock()
}

// Serve upgrades r to a WebSocket connection and streams TailEvents for
// coordID until the client disconnects or the connection errors.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, coordID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := h.subscribe(coordID)
	defer h.unsubscribe(coordID, ch)

	// Drain and discard client reads; this route is send-only, but we
	// still need to notice when the peer closes the connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case ev := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
