// Package coretest provides in-memory transports for tests.
package coretest

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/VoiceBridge/internal/core"
	"github.com/dkeye/VoiceBridge/internal/media"
	"github.com/pion/webrtc/v4"
)

var ErrInjected = errors.New("injected failure")

// Endpoint is a fake transport end that records sent frames.
type Endpoint struct {
	Name string

	mu        sync.Mutex
	open      bool
	sent      []core.Frame
	closes    int
	onMessage func(core.Frame)
	onOpen    func()
	onClose   func()
}

func (e *Endpoint) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

func (e *Endpoint) Send(f core.Frame) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return &core.TransportNotReadyError{Transport: e.Name}
	}
	e.sent = append(e.sent, append(core.Frame(nil), f...))
	return nil
}

func (e *Endpoint) OnMessage(fn func(core.Frame)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onMessage = fn
}

func (e *Endpoint) OnOpen(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onOpen = fn
}

func (e *Endpoint) OnClose(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClose = fn
}

// Open marks the endpoint open and fires the open handler.
func (e *Endpoint) Open() {
	e.mu.Lock()
	e.open = true
	fn := e.onOpen
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SetOpen flips readiness without firing handlers.
func (e *Endpoint) SetOpen(open bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = open
}

// Deliver simulates an inbound message.
func (e *Endpoint) Deliver(f core.Frame) {
	e.mu.Lock()
	fn := e.onMessage
	e.mu.Unlock()
	if fn != nil {
		fn(f)
	}
}

// Drop simulates the remote side closing the transport.
func (e *Endpoint) Drop() {
	e.mu.Lock()
	wasOpen := e.open
	e.open = false
	fn := e.onClose
	e.mu.Unlock()
	if wasOpen && fn != nil {
		fn()
	}
}

// Close closes locally and fires the close handler like pion does.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	e.closes++
	e.mu.Unlock()
	e.Drop()
	return nil
}

func (e *Endpoint) Sent() []core.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.Frame, len(e.sent))
	copy(out, e.sent)
	return out
}

func (e *Endpoint) Closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closes
}

// DataChannel is a fake core.DataChannel.
type DataChannel struct {
	Endpoint
	label string
}

func NewDataChannel(label string) *DataChannel {
	return &DataChannel{Endpoint: Endpoint{Name: core.TransportDataChannel}, label: label}
}

func (d *DataChannel) Label() string { return d.label }

// Relay is a fake core.RelaySocket; it is open from creation.
type Relay struct {
	Endpoint
}

func NewRelay() *Relay {
	return &Relay{Endpoint: Endpoint{Name: core.TransportRelay, open: true}}
}

// Dialer hands out Relay fakes.
type Dialer struct {
	Err error

	mu     sync.Mutex
	relays []*Relay
}

func (d *Dialer) Dial(ctx context.Context) (core.RelaySocket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.Err != nil {
		return nil, d.Err
	}
	r := NewRelay()
	d.mu.Lock()
	d.relays = append(d.relays, r)
	d.mu.Unlock()
	return r, nil
}

func (d *Dialer) Relays() []*Relay {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Relay(nil), d.relays...)
}

// Last returns the most recent relay or nil.
func (d *Dialer) Last() *Relay {
	rs := d.Relays()
	if len(rs) == 0 {
		return nil
	}
	return rs[len(rs)-1]
}

// Signaler answers offers with a canned SDP.
type Signaler struct {
	Err error
	// Gate, when set, blocks CreateSession until it is closed or ctx ends.
	Gate chan struct{}

	mu     sync.Mutex
	offers []webrtc.SessionDescription
}

func (s *Signaler) CreateSession(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	s.mu.Lock()
	s.offers = append(s.offers, offer)
	s.mu.Unlock()
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return webrtc.SessionDescription{}, ctx.Err()
		}
	}
	if s.Err != nil {
		return webrtc.SessionDescription{}, s.Err
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (s *Signaler) Offers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.offers)
}

// Capturer returns silent local streams backed by a real sample track.
type Capturer struct {
	Err      error
	NoTracks bool
	// Gate, when set, blocks Capture until it is closed or ctx ends.
	Gate chan struct{}

	mu      sync.Mutex
	calls   int
	streams []*media.LocalStream
}

func (c *Capturer) Capture(ctx context.Context, _ media.Constraints) (*media.LocalStream, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.Gate != nil {
		select {
		case <-c.Gate:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Err != nil {
		return nil, c.Err
	}
	var tracks []webrtc.TrackLocal
	if !c.NoTracks {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000, Channels: 1}, "audio", "mic")
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	s := media.NewLocalStream("mic", tracks, nil)
	c.mu.Lock()
	c.streams = append(c.streams, s)
	c.mu.Unlock()
	return s, nil
}

// Calls counts Capture invocations, including ones still blocked on Gate.
func (c *Capturer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *Capturer) Streams() []*media.LocalStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*media.LocalStream(nil), c.streams...)
}
