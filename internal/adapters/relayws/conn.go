package relayws

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/VoiceBridge/internal/core"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Conn is one relay client connection.
type Conn struct {
	id   string
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newConn(id string, ws *websocket.Conn, buf int) *Conn {
	return &Conn{id: id, conn: ws, send: make(chan core.Frame, buf)}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return &core.TransportNotReadyError{Transport: core.TransportRelay}
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (ctl *Controller) writePump(ctx context.Context, c *Conn, pingPeriod time.Duration) {
	var ping <-chan time.Time
	if pingPeriod > 0 {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		ping = t.C
	}
	log := ctl.log.With().Str("conn", c.id).Logger()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("writePump ctx done")
			c.Close()
			return
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, c *Conn, s *connState) {
	log := ctl.log.With().Str("conn", c.id).Logger()
	defer func() {
		log.Info().Msg("readPump closing")
		ctl.Registry.Unbind(c.id)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Msg("readPump read error")
				}
				return
			}
			ctl.handleEvent(c, s, data)
		}
	}
}
