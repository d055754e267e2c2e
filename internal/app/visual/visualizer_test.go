package visual

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/VoiceBridge/internal/media"
	"github.com/rs/zerolog"
)

func countingRenderer(n *atomic.Int64) Renderer {
	return RendererFunc(func(f Frame) error {
		if len(f.Bars) != BarCount || len(f.Data) != BinCount {
			panic("malformed frame")
		}
		n.Add(1)
		return nil
	})
}

func waitFrames(t *testing.T, n *atomic.Int64, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for n.Load() < want {
		if time.Now().After(deadline) {
			t.Fatalf("got %d frames, want %d", n.Load(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestVisualizerLifecycle(t *testing.T) {
	var frames atomic.Int64
	v := New(countingRenderer(&frames), 200, zerolog.Nop())

	v.SetStreams(nil, nil)
	if v.Running() {
		t.Fatal("running without streams")
	}

	local := media.NewLocalStream("mic", nil, nil)
	v.SetStreams(local, nil)
	if !v.Running() {
		t.Fatal("not running with a local stream")
	}
	local.PCM().Publish(media.Chunk{Samples: make([]float32, 320), SampleRate: DefaultSampleRate})
	waitFrames(t, &frames, 3)

	v.SetStreams(nil, nil)
	if v.Running() {
		t.Fatal("still running after both streams removed")
	}
	stopped := frames.Load()
	time.Sleep(30 * time.Millisecond)
	if frames.Load() != stopped {
		t.Fatal("frames rendered after stop")
	}

	// restartable
	v.SetStreams(local, nil)
	waitFrames(t, &frames, stopped+2)
	v.Stop()
	v.Stop()
	if v.Running() {
		t.Fatal("running after Stop")
	}
}

func TestVisualizerSurvivesStreamEnd(t *testing.T) {
	var frames atomic.Int64
	v := New(countingRenderer(&frames), 200, zerolog.Nop())
	defer v.Stop()

	local := media.NewLocalStream("mic", nil, nil)
	v.SetStreams(local, nil)
	local.Stop()

	before := frames.Load()
	waitFrames(t, &frames, before+2)
}
