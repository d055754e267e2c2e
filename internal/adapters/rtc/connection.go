package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/VoiceBridge/internal/core"
	"github.com/dkeye/VoiceBridge/internal/media"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Config builds a webrtc.Configuration from a list of ICE server URLs.
// An empty list falls back to DefaultWebRTCConfig.
func Config(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		return DefaultWebRTCConfig()
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

// Factory creates offer-side peer connections sharing one webrtc API.
type Factory struct {
	api        *webrtc.API
	cfg        webrtc.Configuration
	recordPath string
	logger     zerolog.Logger
}

// NewFactory registers the default codecs. recordPath, when set, is where the
// remote Opus track is written.
func NewFactory(cfg webrtc.Configuration, recordPath string, logger zerolog.Logger) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	return &Factory{
		api:        webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		cfg:        cfg,
		recordPath: recordPath,
		logger:     logger.With().Str("module", "webrtc").Logger(),
	}, nil
}

func (f *Factory) NewPeerConnection() (core.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	c := &WebRTCConnection{pc: pc, recordPath: f.recordPath, logger: f.logger}
	c.watch()
	return c, nil
}

// WebRTCConnection adapts *webrtc.PeerConnection to core.PeerConnection.
type WebRTCConnection struct {
	pc         *webrtc.PeerConnection
	recordPath string
	logger     zerolog.Logger

	mu        sync.Mutex
	onStream  func(*media.RemoteStream)
	onFailed  func()
	closeOnce sync.Once
}

func (c *WebRTCConnection) watch() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed {
			c.mu.Lock()
			fn := c.onFailed
			c.mu.Unlock()
			if fn != nil {
				fn()
			}
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Str("codec", track.Codec().MimeType).
			Msg("OnTrack received")
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		rec, err := media.OpenRecorder(c.recordPath, track.Codec().MimeType)
		if err != nil {
			c.logger.Error().Err(err).Str("path", c.recordPath).Msg("open recorder")
		}
		stream := media.NewRemoteStream(track.StreamID(), remoteTrack{track}, rec, c.logger)

		c.mu.Lock()
		fn := c.onStream
		c.mu.Unlock()
		if fn != nil {
			fn(stream)
		} else {
			stream.Stop()
		}
	})
}

// AddTrack attaches a local track and drains RTCP from its sender.
func (c *WebRTCConnection) AddTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *WebRTCConnection) CreateDataChannel(label string) (core.DataChannel, error) {
	dc, err := c.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, err
	}
	return newDataChannel(dc, c.logger), nil
}

// CreateOffer commits the offer and waits for ICE gathering, so the returned
// description carries every candidate.
func (c *WebRTCConnection) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return webrtc.SessionDescription{}, ctx.Err()
	}

	return *c.pc.LocalDescription(), nil
}

func (c *WebRTCConnection) SetRemoteDescription(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

// OnRemoteStream sets application-level callback for remote audio.
func (c *WebRTCConnection) OnRemoteStream(fn func(*media.RemoteStream)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStream = fn
}

func (c *WebRTCConnection) OnFailed(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailed = fn
}

func (c *WebRTCConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.onFailed = nil
		c.onStream = nil
		c.mu.Unlock()
		if err = c.pc.Close(); err != nil {
			c.logger.Error().Err(err).Msg("close error")
		} else {
			c.logger.Info().Msg("closed")
		}
	})
	return err
}

type remoteTrack struct {
	t *webrtc.TrackRemote
}

func (r remoteTrack) ReadRTP() (*rtp.Packet, error) {
	p, _, err := r.t.ReadRTP()
	return p, err
}

func (r remoteTrack) MimeType() string  { return r.t.Codec().MimeType }
func (r remoteTrack) ClockRate() uint32 { return r.t.Codec().ClockRate }
