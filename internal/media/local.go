package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// LocalStream is the captured microphone stream.
type LocalStream struct {
	id      string
	tracks  []webrtc.TrackLocal
	tap     *Tap
	stop    func()
	once    sync.Once
	stopped atomic.Bool
}

// NewLocalStream wraps captured tracks. stop releases the capture device and may be nil.
func NewLocalStream(id string, tracks []webrtc.TrackLocal, stop func()) *LocalStream {
	return &LocalStream{
		id:     id,
		tracks: tracks,
		tap:    NewTap(),
		stop:   stop,
	}
}

func (s *LocalStream) ID() string { return s.id }

func (s *LocalStream) Tracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// PCM is the tap of captured samples.
func (s *LocalStream) PCM() *Tap { return s.tap }

// Stop ends capture on every track.
func (s *LocalStream) Stop() {
	s.once.Do(func() {
		s.stopped.Store(true)
		if s.stop != nil {
			s.stop()
		}
		s.tap.Close()
	})
}

func (s *LocalStream) Stopped() bool { return s.stopped.Load() }
