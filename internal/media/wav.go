package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var errNotWAV = errors.New("not a RIFF/WAVE file")

// wavClip is 16-bit PCM audio read from a WAV file.
type wavClip struct {
	SampleRate int
	Channels   int
	Samples    []int16 // interleaved
}

func readWAV(r io.Reader) (*wavClip, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("wav header: %w", err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return nil, errNotWAV
	}

	clip := &wavClip{}
	var haveFmt bool
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("wav: no data chunk")
			}
			return nil, fmt.Errorf("wav chunk: %w", err)
		}
		id := string(ch[0:4])
		size := int64(binary.LittleEndian.Uint32(ch[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("wav: fmt chunk too short (%d)", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("wav fmt: %w", err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != 1 || bits != 16 {
				return nil, fmt.Errorf("wav: unsupported encoding format=%d bits=%d", format, bits)
			}
			clip.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			if clip.Channels < 1 || clip.SampleRate <= 0 {
				return nil, fmt.Errorf("wav: bad format channels=%d rate=%d", clip.Channels, clip.SampleRate)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, errors.New("wav: data before fmt")
			}
			body := make([]byte, size)
			n, err := io.ReadFull(r, body)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("wav data: %w", err)
			}
			body = body[:n-n%2]
			clip.Samples = make([]int16, len(body)/2)
			for i := range clip.Samples {
				clip.Samples[i] = int16(binary.LittleEndian.Uint16(body[2*i:]))
			}
			return clip, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, fmt.Errorf("wav skip %q: %w", id, err)
			}
		}
		if size%2 == 1 && id == "fmt " {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return nil, err
			}
		}
	}
}

// mono averages interleaved channels into normalized float samples.
func (c *wavClip) mono() []float32 {
	frames := len(c.Samples) / c.Channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for ch := 0; ch < c.Channels; ch++ {
			sum += int(c.Samples[i*c.Channels+ch])
		}
		out[i] = float32(sum) / float32(c.Channels) / 32768
	}
	return out
}
