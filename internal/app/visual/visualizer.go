package visual

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/VoiceBridge/internal/media"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

const DefaultFrameRate = 60

// Visualizer draws the radial spectrum of whatever streams are present. It is
// restarted whenever the stream set changes and stops when both are gone.
type Visualizer struct {
	renderer   Renderer
	frameRate  int
	sampleRate int
	logger     zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      *conc.WaitGroup
	running bool
}

func New(r Renderer, frameRate int, logger zerolog.Logger) *Visualizer {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &Visualizer{
		renderer:   r,
		frameRate:  frameRate,
		sampleRate: DefaultSampleRate,
		logger:     logger.With().Str("module", "visual").Logger(),
	}
}

// SetStreams tears down the current analysis and starts a new one fed by the
// given streams. Passing two nils only stops.
func (v *Visualizer) SetStreams(local *media.LocalStream, remote *media.RemoteStream) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopLocked()

	var taps []*media.Tap
	if local != nil {
		taps = append(taps, local.PCM())
	}
	if remote != nil {
		taps = append(taps, remote.PCM())
	}
	if len(taps) == 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	an := NewAnalyser(v.sampleRate)
	wg := &conc.WaitGroup{}
	for _, tap := range taps {
		in := an.NewInput()
		ch, unsubscribe := tap.Subscribe(16)
		wg.Go(func() {
			defer unsubscribe()
			v.feed(ctx, in, ch)
		})
	}
	wg.Go(func() { v.draw(ctx, an) })

	v.cancel = cancel
	v.wg = wg
	v.running = true
	v.logger.Info().Int("sources", len(taps)).Msg("visualization started")
}

// Stop cancels the tick and releases the analyser.
func (v *Visualizer) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopLocked()
}

func (v *Visualizer) stopLocked() {
	if !v.running {
		return
	}
	v.cancel()
	v.wg.Wait()
	v.running = false
	v.cancel, v.wg = nil, nil
	v.logger.Info().Msg("visualization stopped")
}

func (v *Visualizer) Running() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.running
}

func (v *Visualizer) feed(ctx context.Context, in *Input, ch <-chan media.Chunk) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-ch:
			if !ok {
				return
			}
			if err := in.Write(c); err != nil {
				v.logger.Warn().Err(err).Msg("analyser input")
				return
			}
		}
	}
}

func (v *Visualizer) draw(ctx context.Context, an *Analyser) {
	ticker := time.NewTicker(time.Second / time.Duration(v.frameRate))
	defer ticker.Stop()

	data := make([]byte, BinCount)
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		data = an.ByteFrequencyData(data)
		seq++
		if v.renderer == nil {
			continue
		}
		if err := v.renderer.Render(Frame{Seq: seq, Data: data, Bars: Layout(data)}); err != nil {
			v.logger.Warn().Err(err).Msg("render")
		}
	}
}
