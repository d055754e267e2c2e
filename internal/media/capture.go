package media

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	resampling "github.com/tphakala/go-audio-resampling"
)

const (
	// trackClockRate is the G.711 clock rate of the outbound track.
	trackClockRate = 8000
	framePeriod    = 20 * time.Millisecond
)

// FileCapturer stands in for a microphone: it plays a 16-bit PCM WAV file into the
// outbound track in real time. An empty Path captures silence.
type FileCapturer struct {
	Path   string
	Loop   bool
	Logger zerolog.Logger
}

func (c *FileCapturer) Capture(ctx context.Context, cons Constraints) (*LocalStream, error) {
	rate := cons.SampleRate
	if rate <= 0 {
		rate = DefaultConstraints().SampleRate
	}
	var pcm []float32
	if c.Path != "" {
		f, err := os.Open(c.Path)
		if err != nil {
			return nil, fmt.Errorf("open capture source: %w", err)
		}
		clip, err := readWAV(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read capture source %s: %w", c.Path, err)
		}
		pcm = clip.mono()
		rate = clip.SampleRate
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := c.Logger.With().Str("module", "capture").Logger()
	if cons.SampleRate > 0 && cons.SampleRate != rate {
		logger.Debug().Int("want", cons.SampleRate).Int("have", rate).Msg("sample rate hint not met")
	}
	logger.Debug().
		Bool("echo_cancellation", cons.EchoCancellation).
		Bool("noise_suppression", cons.NoiseSuppression).
		Bool("auto_gain", cons.AutoGainControl).
		Msg("processing hints are not applied to file capture")

	var rs resampling.Resampler
	if rate != trackClockRate {
		var err error
		rs, err = resampling.New(&resampling.Config{
			InputRate:  float64(rate),
			OutputRate: trackClockRate,
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("create resampler: %w", err)
		}
	}

	streamID := "mic-" + uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: trackClockRate, Channels: 1},
		"audio", streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create local track: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	stream := NewLocalStream(streamID, []webrtc.TrackLocal{track}, cancel)
	p := &capturePump{
		pcm:    pcm,
		rate:   rate,
		loop:   c.Loop,
		rs:     rs,
		track:  track,
		tap:    stream.PCM(),
		logger: logger,
	}
	go p.run(loopCtx)
	logger.Info().Str("stream_id", streamID).Int("rate", rate).Str("source", c.Path).Msg("capture started")
	return stream, nil
}

type capturePump struct {
	pcm    []float32
	pos    int
	rate   int
	loop   bool
	rs     resampling.Resampler
	track  *webrtc.TrackLocalStaticSample
	tap    *Tap
	logger zerolog.Logger
}

func (p *capturePump) run(ctx context.Context) {
	defer p.tap.Close()
	ticker := time.NewTicker(framePeriod)
	defer ticker.Stop()

	n := p.rate * int(framePeriod/time.Millisecond) / 1000
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("capture stopped")
			return
		case <-ticker.C:
		}
		chunk := p.next(n)
		p.tap.Publish(Chunk{Samples: chunk, SampleRate: p.rate})
		payload, err := p.encode(chunk)
		if err != nil {
			p.logger.Error().Err(err).Msg("encode frame")
			continue
		}
		if err := p.track.WriteSample(pmedia.Sample{Data: payload, Duration: framePeriod}); err != nil {
			p.logger.Debug().Err(err).Msg("write sample")
		}
	}
}

// next returns n samples, looping or padding with silence past the end.
func (p *capturePump) next(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		if p.pos >= len(p.pcm) {
			if !p.loop || len(p.pcm) == 0 {
				break
			}
			p.pos = 0
		}
		out[i] = p.pcm[p.pos]
		p.pos++
	}
	return out
}

func (p *capturePump) encode(chunk []float32) ([]byte, error) {
	in := make([]float64, len(chunk))
	for i, s := range chunk {
		in[i] = float64(s)
	}
	if p.rs != nil {
		out, err := p.rs.Process(in)
		if err != nil {
			return nil, err
		}
		in = out
	}
	payload := make([]byte, len(in))
	for i, s := range in {
		payload[i] = EncodeUlaw(toInt16(s))
	}
	return payload, nil
}

func toInt16(s float64) int16 {
	switch {
	case s >= 1:
		return 32767
	case s <= -1:
		return -32768
	}
	return int16(s * 32767)
}
