package session

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/VoiceBridge/internal/app/bridge"
	"github.com/dkeye/VoiceBridge/internal/app/handshake"
	"github.com/dkeye/VoiceBridge/internal/core"
	"github.com/dkeye/VoiceBridge/internal/media"
	"github.com/rs/zerolog"
)

// StreamObserver is told which media streams are live. Both nil means none.
type StreamObserver interface {
	SetStreams(local *media.LocalStream, remote *media.RemoteStream)
}

type Options struct {
	Peers     core.PeerFactory
	Relay     core.RelayDialer
	Handshake *handshake.Protocol
	Streams   StreamObserver
	Logger    zerolog.Logger

	// OnStateChange is called outside the controller lock.
	OnStateChange func(from, to State)
	// OnEvent sees every event sent by the client or crossing the bridge.
	OnEvent func(source string, env core.Envelope, raw core.Frame)
}

// Controller owns the session aggregate: peer connection, data channel, relay
// socket and media streams. Nothing else creates or destroys them.
type Controller struct {
	opts Options
	log  zerolog.Logger

	mu       sync.Mutex
	state    State
	gen      uint64
	sess     *session
	pending  *attempt
	// draining closes once the latest teardown and every one before it
	// have finished.
	draining chan struct{}
	notes    []transition

	// obsMu orders stream updates against teardown.
	obsMu sync.Mutex
}

type transition struct{ from, to State }

type attempt struct {
	done chan struct{}
	err  error
}

type session struct {
	gen    uint64
	cancel context.CancelFunc

	pc     core.PeerConnection
	dc     core.DataChannel
	relay  core.RelaySocket
	local  *media.LocalStream
	remote *media.RemoteStream
	bridge *bridge.Bridge

	opened   chan struct{}
	openOnce sync.Once
	lost     chan struct{}
	lostErr  error
	lostOnce sync.Once
	stopped  chan struct{}
	stopOnce sync.Once
}

func newSession(gen uint64, cancel context.CancelFunc) *session {
	return &session{
		gen:     gen,
		cancel:  cancel,
		opened:  make(chan struct{}),
		lost:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (s *session) markOpened() { s.openOnce.Do(func() { close(s.opened) }) }

func (s *session) markLost(err error) {
	s.lostOnce.Do(func() {
		s.lostErr = err
		close(s.lost)
	})
}

func (s *session) markStopped() {
	s.stopOnce.Do(func() {
		s.cancel()
		close(s.stopped)
	})
}

func New(opts Options) *Controller {
	return &Controller{
		opts: opts,
		log:  opts.Logger.With().Str("module", "session").Logger(),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setState records a transition; the caller must hold c.mu and release it
// with unlock so observers run outside the lock.
func (c *Controller) setState(to State) {
	if c.state == to {
		return
	}
	c.notes = append(c.notes, transition{c.state, to})
	c.log.Info().Str("from", c.state.String()).Str("to", to.String()).Msg("state change")
	c.state = to
}

func (c *Controller) unlock() {
	notes := c.notes
	c.notes = nil
	c.mu.Unlock()
	if c.opts.OnStateChange == nil {
		return
	}
	for _, n := range notes {
		c.opts.OnStateChange(n.from, n.to)
	}
}

// Start activates a session and blocks until it is Active or has failed.
// Calls made while a start is in flight join it and share its outcome.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Active:
		c.mu.Unlock()
		return nil
	case Activating:
		a := c.pending
		c.mu.Unlock()
		if a == nil {
			return ErrNoAttempt
		}
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.gen++
	actx, cancel := context.WithCancel(ctx)
	s := newSession(c.gen, cancel)
	a := &attempt{done: make(chan struct{})}
	c.sess = s
	c.pending = a
	busy := c.draining
	c.setState(Activating)
	c.unlock()

	err := c.waitDrain(actx, busy)
	if err == nil {
		err = c.activate(actx, s)
	}
	c.finish(a, s, err)
	return a.err
}

// ErrNoAttempt is returned to a joining caller when no attempt is recorded.
var ErrNoAttempt = errors.New("no activation in flight")

func (c *Controller) waitDrain(ctx context.Context, busy chan struct{}) error {
	if busy == nil {
		return nil
	}
	select {
	case <-busy:
		return nil
	case <-ctx.Done():
		return &core.HandshakeError{Step: core.StepPeerConnection, Err: ctx.Err()}
	}
}

func (c *Controller) activate(ctx context.Context, s *session) error {
	pc, err := c.opts.Peers.NewPeerConnection()
	if err != nil {
		return &core.HandshakeError{Step: core.StepPeerConnection, Err: err}
	}
	if !c.attach(s, func() { s.pc = pc }) {
		_ = pc.Close()
		return core.ErrSessionStopped
	}
	pc.OnFailed(func() {
		c.transportLost(s, true, errPeerFailed)
	})
	pc.OnRemoteStream(func(rs *media.RemoteStream) {
		c.attachRemote(s, rs)
	})

	relay, err := c.opts.Relay.Dial(ctx)
	if err != nil {
		return &core.HandshakeError{Step: core.StepRelayDial, Err: err}
	}
	if !c.attach(s, func() { s.relay = relay }) {
		_ = relay.Close()
		return core.ErrSessionStopped
	}
	relay.OnClose(func() {
		c.transportLost(s, false, errRelayClosed)
	})
	// Replaced by the bridge once the data channel exists.
	relay.OnMessage(func(f core.Frame) {
		env, _ := core.ParseEnvelope(core.TransportRelay, f)
		c.log.Warn().
			Err(&core.TransportNotReadyError{Transport: core.TransportDataChannel}).
			Str("type", env.Type).
			Msg("relay message before data channel, dropped")
	})

	if err := c.opts.Handshake.Run(ctx, pc, &sink{c: c, s: s}); err != nil {
		return err
	}

	select {
	case <-s.opened:
	case <-s.lost:
		return &core.HandshakeError{Step: core.StepChannelOpen, Err: s.lostErr}
	case <-s.stopped:
		return core.ErrSessionStopped
	case <-ctx.Done():
		return &core.HandshakeError{Step: core.StepChannelOpen, Err: ctx.Err()}
	}
	return nil
}

var (
	errPeerFailed    = errors.New("peer connection failed")
	errRelayClosed   = errors.New("relay socket closed")
	errChannelClosed = errors.New("data channel closed")
)

// attach runs set under the lock if s is still the live session.
func (c *Controller) attach(s *session, set func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != s {
		return false
	}
	set()
	return true
}

func (c *Controller) finish(a *attempt, s *session, err error) {
	c.mu.Lock()
	if err == nil {
		select {
		case <-s.lost:
			err = &core.HandshakeError{Step: core.StepChannelOpen, Err: s.lostErr}
		default:
		}
	}
	if err == nil && c.sess == s {
		c.setState(Active)
		s.bridge.Start()
		c.resolve(a, nil)
		c.unlock()
		c.log.Info().Uint64("gen", s.gen).Msg("session active")
		return
	}

	if c.sess != s {
		// Stop ran meanwhile and owns teardown.
		c.resolve(a, core.ErrSessionStopped)
		c.unlock()
		return
	}
	c.sess = nil
	d := c.beginDrain()
	c.mu.Unlock()

	c.log.Error().Err(err).Uint64("gen", s.gen).Msg("activation failed")
	c.teardown(s)
	d.waitPrev()

	c.mu.Lock()
	c.endDrain(d)
	if c.gen == s.gen {
		c.setState(Failed)
		c.resolve(a, err)
	} else {
		c.resolve(a, core.ErrSessionStopped)
	}
	c.unlock()
}

func (c *Controller) resolve(a *attempt, err error) {
	a.err = err
	if c.pending == a {
		c.pending = nil
	}
	close(a.done)
}

// Stop tears the session down from any state. It is idempotent and safe to
// call while Start is in flight. It returns once no teardown is running.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.gen++
	s := c.sess
	c.sess = nil
	wait := c.draining
	var d drain
	if s != nil {
		d = c.beginDrain()
		wait = d.done
	}
	if c.state != Idle {
		c.setState(Stopped)
	}
	c.unlock()

	if s != nil {
		c.teardown(s)
		d.waitPrev()
		c.mu.Lock()
		c.endDrain(d)
		c.mu.Unlock()
	}
	if wait != nil {
		<-wait
	}

	c.mu.Lock()
	if c.sess == nil && c.state == Stopped {
		c.setState(Idle)
	}
	c.unlock()
}

// transportLost handles the peer failing or a transport closing remotely.
func (c *Controller) transportLost(s *session, peerFailed bool, reason error) {
	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		return
	}
	if c.state == Activating {
		s.markLost(reason)
		c.mu.Unlock()
		return
	}

	c.log.Warn().Err(reason).Msg("transport lost")
	c.sess = nil
	gen := c.gen
	if peerFailed {
		c.setState(Failed)
	} else {
		c.setState(Stopped)
	}
	d := c.beginDrain()
	go func() {
		c.teardown(s)
		d.waitPrev()
		c.mu.Lock()
		c.endDrain(d)
		if c.gen == gen && c.sess == nil && c.state == Stopped {
			c.setState(Idle)
		}
		c.unlock()
	}()
	c.unlock()
}

type drain struct {
	done chan struct{}
	prev chan struct{}
}

// waitPrev blocks until the teardown registered before d has finished.
// It must be called without c.mu held.
func (d drain) waitPrev() {
	if d.prev != nil {
		<-d.prev
	}
}

// beginDrain marks a teardown in progress; Start and Stop wait for it.
// The caller must hold c.mu.
func (c *Controller) beginDrain() drain {
	d := drain{done: make(chan struct{}), prev: c.draining}
	c.draining = d.done
	return d
}

// endDrain must run with c.mu held, after d.waitPrev.
func (c *Controller) endDrain(d drain) {
	if c.draining == d.done {
		c.draining = nil
	}
	close(d.done)
}

func (c *Controller) attachRemote(s *session, rs *media.RemoteStream) {
	var old *media.RemoteStream
	if !c.attach(s, func() { old, s.remote = s.remote, rs }) {
		rs.Stop()
		return
	}
	if old != nil {
		old.Stop()
	}
	c.log.Info().Str("stream_id", rs.ID()).Msg("remote stream attached")
	c.publishStreams(s)
}

func (c *Controller) publishStreams(s *session) {
	if c.opts.Streams == nil {
		return
	}
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.mu.Lock()
	live := c.sess == s
	local, remote := s.local, s.remote
	c.mu.Unlock()
	if live {
		c.opts.Streams.SetStreams(local, remote)
	}
}

// teardown releases s in order: bridge, visualization, data channel, media,
// peer connection, relay socket. s must already be detached.
func (c *Controller) teardown(s *session) {
	s.markStopped()
	if s.bridge != nil {
		s.bridge.Stop()
	}
	if c.opts.Streams != nil {
		c.obsMu.Lock()
		c.opts.Streams.SetStreams(nil, nil)
		c.obsMu.Unlock()
	}
	if s.dc != nil {
		if err := s.dc.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close data channel")
		}
	}
	if s.local != nil {
		s.local.Stop()
	}
	if s.remote != nil {
		s.remote.Stop()
	}
	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close peer connection")
		}
	}
	if s.relay != nil {
		if err := s.relay.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close relay socket")
		}
	}
	c.log.Info().Uint64("gen", s.gen).Msg("session released")
}

// sink receives handshake resources on behalf of one session.
type sink struct {
	c *Controller
	s *session
}

func (k *sink) AttachLocalStream(l *media.LocalStream) error {
	if !k.c.attach(k.s, func() { k.s.local = l }) {
		l.Stop()
		return core.ErrSessionStopped
	}
	k.c.publishStreams(k.s)
	return nil
}

func (k *sink) AttachDataChannel(dc core.DataChannel) error {
	c, s := k.c, k.s
	ok := c.attach(s, func() {
		s.dc = dc
		s.bridge = bridge.New(dc, s.relay, bridge.Options{
			Tap:    c.bridgeTap,
			Logger: c.opts.Logger,
		})
	})
	if !ok {
		_ = dc.Close()
		return core.ErrSessionStopped
	}
	dc.OnOpen(s.markOpened)
	dc.OnClose(func() {
		c.transportLost(s, false, errChannelClosed)
	})
	return nil
}

func (c *Controller) bridgeTap(d bridge.Direction, env core.Envelope, raw core.Frame) {
	src := SourcePeer
	if d == bridge.RelayToPeer {
		src = SourceRelay
	}
	c.emit(src, env, raw)
}

func (c *Controller) emit(source string, env core.Envelope, raw core.Frame) {
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(source, env, raw)
	}
}
