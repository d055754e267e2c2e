package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceBridge/internal/core"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// Direction of a forwarded event.
type Direction int

const (
	PeerToRelay Direction = iota
	RelayToPeer
)

func (d Direction) String() string {
	if d == PeerToRelay {
		return "peer->relay"
	}
	return "relay->peer"
}

const defaultQueueSize = 256

// Options tunes a Bridge.
type Options struct {
	QueueSize int
	// Tap observes every event accepted for forwarding.
	Tap    func(Direction, core.Envelope, core.Frame)
	Logger zerolog.Logger
}

// Stats counts what each direction did with its inbound messages.
type Stats struct {
	Forwarded uint64
	Dropped   uint64
	Invalid   uint64
}

type lane struct {
	dir   Direction
	src   string
	dst   string
	to    core.Endpoint
	queue chan core.Frame

	forwarded atomic.Uint64
	dropped   atomic.Uint64
	invalid   atomic.Uint64
}

// Bridge shuttles events between the peer data channel and the relay socket.
// Each transport has one inbound queue drained by one dispatcher, so order
// within a transport is preserved.
type Bridge struct {
	lanes [2]*lane
	tap   func(Direction, core.Envelope, core.Frame)
	log   zerolog.Logger

	mu      sync.Mutex
	started bool
	done    chan struct{}
	stop    sync.Once
	wg      conc.WaitGroup
}

// New registers inbound handlers on both endpoints. Messages are queued from
// that moment and forwarded once Start runs.
func New(peer, relay core.Endpoint, opts Options) *Bridge {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	b := &Bridge{
		tap:  opts.Tap,
		log:  opts.Logger.With().Str("module", "bridge").Logger(),
		done: make(chan struct{}),
	}
	b.lanes[PeerToRelay] = &lane{
		dir: PeerToRelay, src: core.TransportDataChannel, dst: core.TransportRelay,
		to: relay, queue: make(chan core.Frame, size),
	}
	b.lanes[RelayToPeer] = &lane{
		dir: RelayToPeer, src: core.TransportRelay, dst: core.TransportDataChannel,
		to: peer, queue: make(chan core.Frame, size),
	}
	peer.OnMessage(func(f core.Frame) { b.enqueue(b.lanes[PeerToRelay], f) })
	relay.OnMessage(func(f core.Frame) { b.enqueue(b.lanes[RelayToPeer], f) })
	return b
}

// enqueue blocks the transport's reader while the queue is full, so a burst is
// never dropped while the destination is open. Stop releases it.
func (b *Bridge) enqueue(l *lane, f core.Frame) {
	select {
	case <-b.done:
		l.dropped.Add(1)
		return
	default:
	}
	select {
	case l.queue <- f:
	case <-b.done:
		l.dropped.Add(1)
	}
}

// Start runs one dispatcher per direction. It is a no-op after the first call
// or after Stop.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	select {
	case <-b.done:
		return
	default:
	}
	b.started = true
	for _, l := range b.lanes {
		l := l
		b.wg.Go(func() { b.dispatch(l) })
	}
}

func (b *Bridge) dispatch(l *lane) {
	for {
		select {
		case <-b.done:
			return
		case f := <-l.queue:
			b.forward(l, f)
		}
	}
}

// forward makes exactly one delivery attempt for f.
func (b *Bridge) forward(l *lane, f core.Frame) {
	env, err := core.ParseEnvelope(l.src, f)
	if err != nil {
		l.invalid.Add(1)
		b.log.Warn().Err(err).Str("direction", l.dir.String()).Msg("dropping unparsable message")
		return
	}
	if b.tap != nil {
		b.tap(l.dir, env, f)
	}
	if !l.to.IsOpen() {
		l.dropped.Add(1)
		b.log.Warn().
			Err(&core.TransportNotReadyError{Transport: l.dst}).
			Str("direction", l.dir.String()).
			Str("type", env.Type).
			Msg("destination closed, message dropped")
		return
	}
	if err := l.to.Send(f); err != nil {
		l.dropped.Add(1)
		b.log.Warn().Err(err).Str("direction", l.dir.String()).Str("type", env.Type).Msg("forward failed")
		return
	}
	l.forwarded.Add(1)
}

// Stop halts both dispatchers and waits for them. Queued messages are discarded.
func (b *Bridge) Stop() {
	b.stop.Do(func() {
		b.mu.Lock()
		close(b.done)
		b.mu.Unlock()
	})
	b.wg.Wait()
}

func (b *Bridge) Stats(d Direction) Stats {
	l := b.lanes[d]
	return Stats{
		Forwarded: l.forwarded.Load(),
		Dropped:   l.dropped.Load(),
		Invalid:   l.invalid.Load(),
	}
}
