package notify

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Beam/internal/domain"
)

func (h *Hub) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "notify").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "notify").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "notify").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "notify").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump only drains the socket; the event stream is one-way. A read
// error means the participant went away.
func (h *Hub) readPump(ctx context.Context, pid domain.ParticipantID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "notify").Str("participant", string(pid)).Msg("readPump closing")
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if _, _, err := c.conn.ReadMessage(); err != nil {
				log.Info().Err(err).Str("module", "notify").Str("participant", string(pid)).Msg("readPump read error")
				return
			}
		}
	}
}
