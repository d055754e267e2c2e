package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/VoiceBridge/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

const (
	writeWait       = 5 * time.Second
	defaultSendSize = 64
)

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	WriteControl(mt int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens the relay side channel.
type Dialer struct {
	URL        string
	Dialer     *websocket.Dialer
	SendBuffer int
	Logger     zerolog.Logger
}

func (d *Dialer) Dial(ctx context.Context) (core.RelaySocket, error) {
	wd := d.Dialer
	if wd == nil {
		wd = websocket.DefaultDialer
	}
	conn, _, err := wd.DialContext(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", d.URL, err)
	}
	d.Logger.Info().Str("module", "relay").Str("url", d.URL).Msg("relay connected")
	return NewSocket(conn, d.SendBuffer, d.Logger), nil
}

// Socket is the client end of the relay websocket. One JSON event per text frame.
type Socket struct {
	conn   WSConn
	send   chan core.Frame
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool

	onMessage atomic.Pointer[func(core.Frame)]
	onClose   atomic.Pointer[func()]

	once  sync.Once
	pumps conc.WaitGroup
}

// NewSocket starts the read and write pumps on conn.
func NewSocket(conn WSConn, sendBuffer int, logger zerolog.Logger) *Socket {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendSize
	}
	s := &Socket{
		conn:   conn,
		send:   make(chan core.Frame, sendBuffer),
		logger: logger.With().Str("module", "relay").Logger(),
	}
	s.pumps.Go(s.writePump)
	s.pumps.Go(s.readPump)
	return s
}

func (s *Socket) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// Send queues f for the write pump.
func (s *Socket) Send(f core.Frame) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &core.TransportNotReadyError{Transport: core.TransportRelay}
	}
	select {
	case s.send <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (s *Socket) OnMessage(fn func(core.Frame)) { s.onMessage.Store(&fn) }

func (s *Socket) OnClose(fn func()) { s.onClose.Store(&fn) }

// Close sends a close frame, stops both pumps and fires OnClose once.
func (s *Socket) Close() error {
	s.shutdown(true)
	return nil
}

func (s *Socket) shutdown(graceful bool) {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.send)
		s.mu.Unlock()

		if graceful {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		}
		_ = s.conn.Close()
		s.logger.Info().Bool("local", graceful).Msg("relay closed")

		if fn := s.onClose.Load(); fn != nil {
			(*fn)()
		}
	})
}

// Wait blocks until both pumps exited.
func (s *Socket) Wait() { s.pumps.Wait() }

func (s *Socket) writePump() {
	for data := range s.send {
		if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			s.logger.Error().Err(err).Msg("writePump set deadline")
			go s.shutdown(false)
			return
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Error().Err(err).Msg("writePump write error")
			go s.shutdown(false)
			return
		}
	}
}

func (s *Socket) readPump() {
	defer s.shutdown(false)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.IsOpen() {
				s.logger.Info().Err(err).Msg("readPump read error")
			}
			return
		}
		fn := s.onMessage.Load()
		if fn == nil {
			s.logger.Warn().Int("bytes", len(data)).Msg("no message handler, frame dropped")
			continue
		}
		(*fn)(core.Frame(data))
	}
}
