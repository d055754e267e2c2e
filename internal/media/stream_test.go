package media

import (
	"testing"
	"time"
)

func TestTapDeliversToAllSubscribers(t *testing.T) {
	tap := NewTap()
	a, cancelA := tap.Subscribe(1)
	defer cancelA()
	b, cancelB := tap.Subscribe(1)
	defer cancelB()

	tap.Publish(Chunk{Samples: []float32{0.5}, SampleRate: 8000})

	for name, ch := range map[string]<-chan Chunk{"a": a, "b": b} {
		select {
		case c := <-ch:
			if len(c.Samples) != 1 || c.SampleRate != 8000 {
				t.Fatalf("%s: unexpected chunk %+v", name, c)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: no chunk", name)
		}
	}
}

func TestTapDropsForSlowSubscriber(t *testing.T) {
	tap := NewTap()
	ch, cancel := tap.Subscribe(1)
	defer cancel()

	tap.Publish(Chunk{SampleRate: 1})
	tap.Publish(Chunk{SampleRate: 2})

	if c := <-ch; c.SampleRate != 1 {
		t.Fatalf("first chunk rate = %d, want 1", c.SampleRate)
	}
	select {
	case c := <-ch:
		t.Fatalf("unexpected second chunk %+v", c)
	default:
	}
}

func TestTapCloseEndsSubscriptions(t *testing.T) {
	tap := NewTap()
	ch, cancel := tap.Subscribe(0)
	tap.Close()
	tap.Close()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Close")
	}
	late, _ := tap.Subscribe(0)
	if _, ok := <-late; ok {
		t.Fatal("subscription after Close is open")
	}
}

func TestLocalStreamStopOnce(t *testing.T) {
	calls := 0
	s := NewLocalStream("mic", nil, func() { calls++ })
	ch, _ := s.PCM().Subscribe(0)

	s.Stop()
	s.Stop()

	if calls != 1 {
		t.Fatalf("stop called %d times, want 1", calls)
	}
	if !s.Stopped() {
		t.Fatal("Stopped() = false")
	}
	if _, ok := <-ch; ok {
		t.Fatal("tap not closed")
	}
}
