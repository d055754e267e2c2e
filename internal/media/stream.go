package media

import "sync"

// Constraints are capture hints. The capture layer applies what it can.
type Constraints struct {
	SampleRate       int
	ChannelCount     int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultConstraints is the voice profile: mono, 16 kHz, all processing hints on.
func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:       16000,
		ChannelCount:     1,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Chunk is a block of mono PCM samples in [-1, 1].
type Chunk struct {
	Samples    []float32
	SampleRate int
}

// Tap fans PCM chunks out to read-only subscribers.
// A slow subscriber loses chunks instead of stalling the producer.
type Tap struct {
	mu     sync.Mutex
	subs   map[uint64]chan Chunk
	next   uint64
	closed bool
}

func NewTap() *Tap {
	return &Tap{subs: make(map[uint64]chan Chunk)}
}

// Subscribe returns a channel of chunks and a func that cancels the subscription.
// The channel is closed on cancel or when the tap closes.
func (t *Tap) Subscribe(buf int) (<-chan Chunk, func()) {
	ch := make(chan Chunk, buf)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		close(ch)
		return ch, func() {}
	}
	id := t.next
	t.next++
	t.subs[id] = ch
	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if c, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(c)
		}
	}
}

func (t *Tap) Publish(c Chunk) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	for _, ch := range t.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

func (t *Tap) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
}
