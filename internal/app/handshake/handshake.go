package handshake

import (
	"context"
	"errors"

	"github.com/dkeye/VoiceBridge/internal/core"
	"github.com/dkeye/VoiceBridge/internal/media"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// EventsLabel is the data channel label the realtime peer expects.
const EventsLabel = "oai-events"

var errNoTrack = errors.New("captured stream has no tracks")

// Sink receives resources as the handshake creates them. Returning an error
// means the attempt is stale: the handshake stops and the sink owns cleanup.
type Sink interface {
	AttachLocalStream(*media.LocalStream) error
	AttachDataChannel(core.DataChannel) error
}

// Protocol runs the offer side of the session handshake.
type Protocol struct {
	Capturer    core.MediaCapturer
	Signaler    core.Signaler
	Constraints media.Constraints
	Label       string
	Logger      zerolog.Logger
}

// Run performs, in order: capture, add track, create data channel, create offer,
// exchange, set remote description. The first failure aborts the rest.
func (p *Protocol) Run(ctx context.Context, pc core.PeerConnection, sink Sink) error {
	log := p.Logger.With().Str("module", "handshake").Logger()

	if err := ctx.Err(); err != nil {
		return &core.MediaAcquisitionError{Err: err}
	}
	local, err := p.Capturer.Capture(ctx, p.Constraints)
	if err != nil {
		log.Error().Err(err).Msg("media acquisition failed")
		return &core.MediaAcquisitionError{Err: err}
	}
	if err := sink.AttachLocalStream(local); err != nil {
		return err
	}
	log.Debug().Str("stream_id", local.ID()).Msg("local stream acquired")

	tracks := local.Tracks()
	if err := step(ctx, core.StepAddTrack, func() error {
		if len(tracks) == 0 {
			return errNoTrack
		}
		return pc.AddTrack(tracks[0])
	}); err != nil {
		return err
	}

	label := p.Label
	if label == "" {
		label = EventsLabel
	}
	var dc core.DataChannel
	if err := step(ctx, core.StepCreateDataChannel, func() error {
		var err error
		dc, err = pc.CreateDataChannel(label)
		return err
	}); err != nil {
		return err
	}
	if err := sink.AttachDataChannel(dc); err != nil {
		return err
	}

	offer, err := stepValue(ctx, core.StepCreateOffer, pc.CreateOffer)
	if err != nil {
		return err
	}
	log.Debug().Int("sdp_len", len(offer.SDP)).Msg("offer committed")

	answer, err := stepValue(ctx, core.StepExchange, func(ctx context.Context) (webrtc.SessionDescription, error) {
		return p.Signaler.CreateSession(ctx, offer)
	})
	if err != nil {
		return err
	}

	if err := step(ctx, core.StepSetRemote, func() error {
		return pc.SetRemoteDescription(answer)
	}); err != nil {
		return err
	}
	log.Info().Msg("handshake complete")
	return nil
}

func step(ctx context.Context, s core.Step, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &core.HandshakeError{Step: s, Err: err}
	}
	if err := fn(); err != nil {
		return &core.HandshakeError{Step: s, Err: err}
	}
	return nil
}

func stepValue(ctx context.Context, s core.Step, fn func(context.Context) (webrtc.SessionDescription, error)) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, &core.HandshakeError{Step: s, Err: err}
	}
	v, err := fn(ctx)
	if err != nil {
		return webrtc.SessionDescription{}, &core.HandshakeError{Step: s, Err: err}
	}
	return v, nil
}
