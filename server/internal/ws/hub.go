package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/apibadges/pkg/types"
	"github.com/obsidianstack/apibadges/server/internal/api"
	"github.com/obsidianstack/apibadges/server/internal/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// queueDepth is how many messages a slow client may lag behind before it
	// is dropped.
	queueDepth = 16
)

// EventSnapshot is the only event the hub emits.
const EventSnapshot = "snapshot"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Message is the envelope of every frame sent to a client.
type Message struct {
	Event string               `json:"event"`
	Data  api.SnapshotResponse `json:"data"`
}

// Hub fans the current entity snapshot out to every connected client.
type Hub struct {
	store    *store.Store
	interval time.Duration
	changed  chan struct{}

	mu    sync.RWMutex
	peers map[*peer]struct{}
}

type peer struct {
	conn  *websocket.Conn
	queue chan []byte
}

// New returns a Hub over st that broadcasts every interval.
func New(st *store.Store, interval time.Duration) *Hub {
	return &Hub{
		store:    st,
		interval: interval,
		changed:  make(chan struct{}, 1),
		peers:    make(map[*peer]struct{}),
	}
}

// Evaluate schedules an early broadcast after a snapshot was stored. It never
// blocks, so the hub can sit behind the ingest receiver.
func (h *Hub) Evaluate(*types.Snapshot) {
	select {
	case h.changed <- struct{}{}:
	default:
	}
}

// Run broadcasts until ctx is cancelled and then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.disconnectAll()
			return
		case <-t.C:
			h.broadcast()
		case <-h.changed:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the request, sends the current snapshot right away and
// then relays broadcasts until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied with an HTTP error.
		return
	}

	p := &peer{conn: conn, queue: make(chan []byte, queueDepth)}
	if frame, err := h.frame(); err == nil {
		p.queue <- frame
	}
	h.add(p)
	defer h.remove(p)

	go p.writeLoop()
	p.readLoop()
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) add(p *peer) {
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
}

// remove is idempotent; the queue is closed exactly once.
func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[p]; ok {
		delete(h.peers, p)
		close(p.queue)
	}
}

func (h *Hub) broadcast() {
	frame, err := h.frame()
	if err != nil {
		slog.Error("ws: encode snapshot", "err", err)
		return
	}

	h.mu.RLock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		select {
		case p.queue <- frame:
		default:
			slog.Warn("ws: dropping slow client", "remote", p.conn.RemoteAddr().String())
			h.remove(p)
		}
	}
}

func (h *Hub) frame() ([]byte, error) {
	return json.Marshal(Message{Event: EventSnapshot, Data: api.BuildSnapshot(h.store)})
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		delete(h.peers, p)
		close(p.queue)
	}
}

// writeLoop owns all writes to the connection.
func (p *peer) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-p.queue:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards client frames; it exists to process pongs and notice
// disconnects.
func (p *peer) readLoop() {
	defer p.conn.Close()
	p.conn.SetReadLimit(512)
	p.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			return
		}
	}
}
