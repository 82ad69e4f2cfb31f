// Package events pushes saved-marathon list snapshots to connected clients
// over websockets.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cinemarathon/internal/logging"
	"cinemarathon/internal/metrics"
	"cinemarathon/models"
)

// TypeMarathons is the event type carrying a user's full saved list.
const TypeMarathons = "marathons"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 8
	readLimit  = 512
)

var ErrHubClosed = errors.New("event hub closed")

// Lister loads the list pushed to a user's connections.
type Lister interface {
	List(ctx context.Context, userID string) ([]models.SavedMarathon, error)
}

// Hub tracks websocket connections per user. Every connection receives the
// user's list once on connect and again after each Notify.
type Hub struct {
	lister   Lister
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu     sync.Mutex
	conns  map[string]map[*client]struct{}
	closed bool
	wg     sync.WaitGroup

	// seq numbers snapshot reads; delivered holds the newest seq pushed per user.
	seq       uint64
	delivered map[string]uint64
}

type client struct {
	userID string
	ws     *websocket.Conn
	send   chan []byte
	once   sync.Once
	done   chan struct{}
}

// NewHub creates a hub reading lists from lister.
func NewHub(lister Lister) *Hub {
	return &Hub{
		lister: lister,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// origin checks are left to the CORS policy of the API
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logging.WithComponent("events"),
		conns:     make(map[string]map[*client]struct{}),
		delivered: make(map[string]uint64),
	}
}

// ServeWS upgrades the request and registers the connection for userID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return ErrHubClosed
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}

	c := &client{
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	if !h.register(c) {
		_ = ws.Close()
		return ErrHubClosed
	}
	// register reserved the wait group slots for both loops

	seq := h.nextSeq()
	payload, err := h.snapshot(r.Context(), userID)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("initial marathon snapshot failed")
	} else {
		h.mu.Lock()
		// a Notify that read later already reached this client
		if seq > h.delivered[userID] {
			c.enqueue(payload)
		}
		h.mu.Unlock()
	}

	go func() {
		defer h.wg.Done()
		h.writeLoop(c)
	}()
	go func() {
		defer h.wg.Done()
		h.readLoop(c)
	}()
	return nil
}

// Notify pushes the user's current list to all of their connections. When
// concurrent calls for one user finish out of order, the snapshot read first
// is dropped so clients never see an older list after a newer one.
func (h *Hub) Notify(ctx context.Context, userID string) {
	h.mu.Lock()
	n := len(h.conns[userID])
	h.seq++
	seq := h.seq
	h.mu.Unlock()
	if n == 0 {
		return
	}

	payload, err := h.snapshot(ctx, userID)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("marathon snapshot failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if seq < h.delivered[userID] {
		h.logger.Debug().Str("user_id", userID).Uint64("seq", seq).Msg("dropping stale marathon snapshot")
		return
	}
	if _, ok := h.conns[userID]; ok {
		h.delivered[userID] = seq
	}
	for c := range h.conns[userID] {
		if !c.enqueue(payload) {
			h.logger.Warn().Str("user_id", userID).Msg("dropping slow event subscriber")
			h.unregisterLocked(c)
		}
	}
}

// Subscribers returns the number of open connections for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for _, set := range h.conns {
		for c := range set {
			h.unregisterLocked(c)
		}
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) nextSeq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	return h.seq
}

func (h *Hub) snapshot(ctx context.Context, userID string) ([]byte, error) {
	list, err := h.lister.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.MarathonEvent{Type: TypeMarathons, Marathons: list})
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.conns[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
	h.wg.Add(2)
	metrics.EventSubscribers.Inc()
	h.logger.Debug().Str("user_id", c.userID).Int("connections", len(set)).Msg("event subscriber connected")
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(c)
}

func (h *Hub) unregisterLocked(c *client) {
	set := h.conns[c.userID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.userID)
		delete(h.delivered, c.userID)
	}
	metrics.EventSubscribers.Dec()
	c.stop()
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// readLoop drains client frames so pongs and close frames are processed.
func (h *Hub) readLoop(c *client) {
	defer h.unregister(c)
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Str("user_id", c.userID).Msg("event subscriber read error")
			}
			return
		}
	}
}

func (c *client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}
