package media

import (
	"context"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// RTPSource is an inbound media track.
type RTPSource interface {
	ReadRTP() (*rtp.Packet, error)
	MimeType() string
	ClockRate() uint32
}

// PacketWriter persists RTP packets, e.g. an Ogg writer.
type PacketWriter interface {
	WriteRTP(*rtp.Packet) error
	Close() error
}

// RemoteStream is the audio received from the peer.
type RemoteStream struct {
	id     string
	src    RTPSource
	tap    *Tap
	rec    PacketWriter
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

// NewRemoteStream starts reading src. rec may be nil.
func NewRemoteStream(id string, src RTPSource, rec PacketWriter, logger zerolog.Logger) *RemoteStream {
	ctx, cancel := context.WithCancel(context.Background())
	rs := &RemoteStream{
		id:     id,
		src:    src,
		tap:    NewTap(),
		rec:    rec,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger.With().Str("module", "remote").Str("stream_id", id).Logger(),
	}
	go rs.loop(ctx)
	return rs
}

func (r *RemoteStream) ID() string { return r.id }

func (r *RemoteStream) PCM() *Tap { return r.tap }

// Done is closed once the read loop exited.
func (r *RemoteStream) Done() <-chan struct{} { return r.done }

// Stop detaches consumers. The read loop ends when the track stops delivering.
func (r *RemoteStream) Stop() {
	r.once.Do(func() {
		r.cancel()
		r.tap.Close()
	})
}

// loop reads RTP packets from the track, records them and feeds the PCM tap.
func (r *RemoteStream) loop(ctx context.Context) {
	defer close(r.done)
	defer r.tap.Close()
	defer func() {
		if r.rec != nil {
			if err := r.rec.Close(); err != nil {
				r.logger.Error().Err(err).Msg("close recorder")
			}
		}
	}()

	decode := decoderFor(r.src.MimeType())
	if decode == nil {
		r.logger.Info().Str("codec", r.src.MimeType()).Msg("codec not decodable, remote audio is not visualized")
	}
	rate := int(r.src.ClockRate())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("remote ctx done")
			return
		default:
		}
		pkt, err := r.src.ReadRTP()
		if err != nil {
			r.logger.Info().Err(err).Msg("remote read RTP stopped")
			return
		}
		if r.rec != nil {
			if err := r.rec.WriteRTP(pkt); err != nil {
				r.logger.Error().Err(err).Msg("record RTP, disabling recorder")
				_ = r.rec.Close()
				r.rec = nil
			}
		}
		if decode != nil && len(pkt.Payload) > 0 {
			samples := make([]float32, len(pkt.Payload))
			for i, b := range pkt.Payload {
				samples[i] = float32(decode(b)) / 32768
			}
			r.tap.Publish(Chunk{Samples: samples, SampleRate: rate})
		}
	}
}

func decoderFor(mime string) func(byte) int16 {
	switch {
	case strings.EqualFold(mime, webrtc.MimeTypePCMU):
		return DecodeUlaw
	case strings.EqualFold(mime, webrtc.MimeTypePCMA):
		return DecodeAlaw
	}
	return nil
}
