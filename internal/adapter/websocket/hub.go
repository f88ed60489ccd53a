package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pscheid92/moodmap/internal/adapter/metrics"
	"github.com/pscheid92/moodmap/internal/domain"
)

const (
	DefaultMaxClients = 500

	sendBuffer   = 16
	writeTimeout = 5 * time.Second
)

var (
	ErrHubStopped = errors.New("hub stopped")
	ErrHubFull    = errors.New("too many live map clients")
)

// Message is the envelope pushed to every client.
type Message struct {
	Type     string              `json:"type"`
	Snapshot *domain.MapSnapshot `json:"snapshot,omitempty"`
	Degraded bool                `json:"degraded"`
	Error    string              `json:"error,omitempty"`
}

const (
	MessageSnapshot = "snapshot"
	MessageStatus   = "status"
)

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	conn  *websocket.Conn
	errCh chan error
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct{ conn *websocket.Conn }

func (cmdUnregister) hubCmd() {}

type cmdBroadcast struct {
	data []byte
	// retain keeps data as the greeting for later clients.
	retain bool
}

func (cmdBroadcast) hubCmd() {}

type cmdClientCount struct{ replyCh chan int }

func (cmdClientCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// --- Per-connection writer ---

type clientWriter struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
}

func newClientWriter(conn *websocket.Conn) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		sendCh: make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	for {
		select {
		case msg := <-cw.sendCh:
			_ = cw.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	close(cw.done)
	_ = cw.conn.Close()
}

// --- Hub ---

// Hub fans snapshot messages out to every connected live map client. All
// state is owned by the run goroutine; public methods send it commands.
type Hub struct {
	cmdCh      chan hubCmd
	done       chan struct{}
	clients    map[*websocket.Conn]*clientWriter
	last       []byte
	maxClients int
	metrics    *metrics.WebSocketMetrics
}

var _ domain.SnapshotPublisher = (*Hub)(nil)

// NewHub starts a hub. maxClients <= 0 uses DefaultMaxClients; m may be nil.
func NewHub(maxClients int, m *metrics.WebSocketMetrics) *Hub {
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	h := &Hub{
		cmdCh:      make(chan hubCmd, 256),
		done:       make(chan struct{}),
		clients:    make(map[*websocket.Conn]*clientWriter),
		maxClients: maxClients,
		metrics:    m,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.done)
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.handleRegister(c)
		case cmdUnregister:
			h.handleUnregister(c.conn)
		case cmdBroadcast:
			h.handleBroadcast(c)
		case cmdClientCount:
			c.replyCh <- len(h.clients)
		case cmdStop:
			h.handleStop()
			return
		}
	}
}

func (h *Hub) handleRegister(c cmdRegister) {
	if len(h.clients) >= h.maxClients {
		slog.Warn("Rejecting live map client", "max_clients", h.maxClients)
		if h.metrics != nil {
			h.metrics.ConnectionsRejected.Inc()
		}
		_ = c.conn.Close()
		c.errCh <- fmt.Errorf("%w (%d)", ErrHubFull, h.maxClients)
		return
	}

	cw := newClientWriter(c.conn)
	h.clients[c.conn] = cw
	if h.last != nil {
		cw.sendCh <- h.last
	}
	if h.metrics != nil {
		h.metrics.ActiveConnections.Set(float64(len(h.clients)))
	}
	slog.Debug("Live map client registered", "clients", len(h.clients))
	c.errCh <- nil
}

func (h *Hub) handleUnregister(conn *websocket.Conn) {
	cw, ok := h.clients[conn]
	if !ok {
		return
	}
	cw.stop()
	delete(h.clients, conn)
	if h.metrics != nil {
		h.metrics.ActiveConnections.Set(float64(len(h.clients)))
	}
	slog.Debug("Live map client unregistered", "clients", len(h.clients))
}

func (h *Hub) handleBroadcast(c cmdBroadcast) {
	if c.retain {
		h.last = c.data
	}

	var slow []*websocket.Conn
	for conn, cw := range h.clients {
		select {
		case cw.sendCh <- c.data:
			if h.metrics != nil {
				h.metrics.MessagesPublished.Inc()
			}
		default:
			slow = append(slow, conn)
		}
	}

	for _, conn := range slow {
		slog.Warn("Disconnecting slow live map client")
		if h.metrics != nil {
			h.metrics.SlowClientsDropped.Inc()
		}
		h.handleUnregister(conn)
	}
}

func (h *Hub) handleStop() {
	for conn, cw := range h.clients {
		cw.stop()
		delete(h.clients, conn)
	}
	if h.metrics != nil {
		h.metrics.ActiveConnections.Set(0)
	}
}

// send delivers cmd unless the hub has stopped.
func (h *Hub) send(cmd hubCmd) bool {
	select {
	case h.cmdCh <- cmd:
		return true
	case <-h.done:
		return false
	}
}

// --- Public API ---

// Register adds conn and greets it with the latest snapshot, if any.
func (h *Hub) Register(conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	if !h.send(cmdRegister{conn: conn, errCh: errCh}) {
		_ = conn.Close()
		return ErrHubStopped
	}
	select {
	case err := <-errCh:
		return err
	case <-h.done:
		_ = conn.Close()
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.send(cmdUnregister{conn: conn})
}

// Publish pushes snap to all clients and keeps it for clients that join later.
func (h *Hub) Publish(_ context.Context, snap *domain.MapSnapshot) error {
	return h.broadcast(Message{Type: MessageSnapshot, Snapshot: snap}, true)
}

// PublishStatus tells clients whether the map is currently degraded.
func (h *Hub) PublishStatus(_ context.Context, degraded bool, lastErr error) error {
	msg := Message{Type: MessageStatus, Degraded: degraded}
	if lastErr != nil {
		msg.Error = lastErr.Error()
	}
	return h.broadcast(msg, false)
}

func (h *Hub) broadcast(msg Message, retain bool) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}
	if !h.send(cmdBroadcast{data: data, retain: retain}) {
		return ErrHubStopped
	}
	return nil
}

func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	if !h.send(cmdClientCount{replyCh: replyCh}) {
		return 0
	}
	select {
	case n := <-replyCh:
		return n
	case <-h.done:
		return 0
	}
}

// Stop disconnects every client. It is safe to call more than once.
func (h *Hub) Stop() {
	h.send(cmdStop{})
	<-h.done
}
