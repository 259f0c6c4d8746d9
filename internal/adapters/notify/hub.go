package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// Hub pushes call events to connected participants over WebSocket. It
// implements core.Notifier; delivery is best-effort and a slow consumer
// drops events instead of stalling the coordinator.
type Hub struct {
	readLimit int64

	mu    sync.RWMutex
	conns map[domain.ParticipantID]*wsConn
}

func NewHub(readLimit int64) *Hub {
	return &Hub{
		readLimit: readLimit,
		conns:     make(map[domain.ParticipantID]*wsConn),
	}
}

func (h *Hub) Notify(to domain.ParticipantID, ev core.Event) {
	h.mu.RLock()
	conn, ok := h.conns[to]
	h.mu.RUnlock()
	if !ok {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "notify").Msg("marshal event")
		return
	}
	if err := conn.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "notify").
			Str("participant", string(to)).
			Str("event", string(ev.Type)).
			Msg("event dropped")
	}
}

// HandleEvents upgrades the request and keeps the participant attached
// until the socket dies or ctx ends.
func (h *Hub) HandleEvents(ctx context.Context, c *gin.Context) {
	pid := domain.ParticipantID(c.GetString("client_token"))
	log.Info().Str("module", "notify").Str("participant", string(pid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "notify").Msg("ws upgrade")
		return
	}
	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan []byte, 32),
	}
	h.bind(pid, conn)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		h.writePump(ctx, conn)
		cancel()
	}()
	h.readPump(ctx, pid, conn)
	cancel()
	h.unbind(pid, conn)
}

func (h *Hub) bind(pid domain.ParticipantID, conn *wsConn) {
	h.mu.Lock()
	if old, ok := h.conns[pid]; ok {
		old.Close()
	}
	h.conns[pid] = conn
	h.mu.Unlock()
}

func (h *Hub) unbind(pid domain.ParticipantID, conn *wsConn) {
	h.mu.Lock()
	if h.conns[pid] == conn {
		delete(h.conns, pid)
	}
	h.mu.Unlock()
	conn.Close()
}
