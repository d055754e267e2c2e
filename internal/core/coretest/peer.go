package coretest

import (
	"context"
	"sync"

	"github.com/dkeye/VoiceBridge/internal/core"
	"github.com/dkeye/VoiceBridge/internal/media"
	"github.com/pion/webrtc/v4"
)

// Peer is a fake core.PeerConnection that records the calls made on it.
type Peer struct {
	// Fail maps a call name ("AddTrack", "CreateDataChannel", "CreateOffer",
	// "SetRemoteDescription") to the error it returns.
	Fail map[string]error
	// OfferGate, when set, blocks CreateOffer until it is closed or ctx ends.
	OfferGate chan struct{}
	// AutoOpen opens the data channel when the remote description is applied.
	AutoOpen bool

	mu       sync.Mutex
	calls    []string
	dc       *DataChannel
	closed   bool
	onStream func(*media.RemoteStream)
	onFailed func()
	factory  *PeerFactory
}

func (p *Peer) record(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
	return p.Fail[name]
}

func (p *Peer) AddTrack(webrtc.TrackLocal) error { return p.record("AddTrack") }

func (p *Peer) CreateDataChannel(label string) (core.DataChannel, error) {
	if err := p.record("CreateDataChannel"); err != nil {
		return nil, err
	}
	dc := NewDataChannel(label)
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()
	return dc, nil
}

func (p *Peer) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := p.record("CreateOffer"); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if p.OfferGate != nil {
		select {
		case <-p.OfferGate:
		case <-ctx.Done():
			return webrtc.SessionDescription{}, ctx.Err()
		}
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (p *Peer) SetRemoteDescription(webrtc.SessionDescription) error {
	if err := p.record("SetRemoteDescription"); err != nil {
		return err
	}
	if p.AutoOpen {
		if dc := p.DataChannel(); dc != nil {
			go dc.Open()
		}
	}
	return nil
}

func (p *Peer) OnRemoteStream(fn func(*media.RemoteStream)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStream = fn
}

func (p *Peer) OnFailed(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFailed = fn
}

func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.calls = append(p.calls, "Close")
	p.mu.Unlock()

	if f := p.factory; f != nil {
		f.mu.Lock()
		f.live--
		f.mu.Unlock()
	}
	return nil
}

// FailConnection simulates an ICE/DTLS failure.
func (p *Peer) FailConnection() {
	p.mu.Lock()
	fn := p.onFailed
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// EmitRemote hands a remote stream to the registered callback.
func (p *Peer) EmitRemote(s *media.RemoteStream) {
	p.mu.Lock()
	fn := p.onStream
	p.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (p *Peer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *Peer) DataChannel() *DataChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dc
}

func (p *Peer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// PeerFactory creates Peers and tracks how many are alive at once.
type PeerFactory struct {
	Err error
	// Configure is applied to every new peer before it is returned.
	Configure func(*Peer)

	mu      sync.Mutex
	peers   []*Peer
	live    int
	maxLive int
}

func (f *PeerFactory) NewPeerConnection() (core.PeerConnection, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	p := &Peer{factory: f}
	if f.Configure != nil {
		f.Configure(p)
	}
	f.mu.Lock()
	f.peers = append(f.peers, p)
	f.live++
	if f.live > f.maxLive {
		f.maxLive = f.live
	}
	f.mu.Unlock()
	return p, nil
}

func (f *PeerFactory) Peers() []*Peer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Peer(nil), f.peers...)
}

// Last returns the most recent peer or nil.
func (f *PeerFactory) Last() *Peer {
	ps := f.Peers()
	if len(ps) == 0 {
		return nil
	}
	return ps[len(ps)-1]
}

// Live is the number of peers created and not yet closed.
func (f *PeerFactory) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

// MaxLive is the highest Live value observed.
func (f *PeerFactory) MaxLive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxLive
}
