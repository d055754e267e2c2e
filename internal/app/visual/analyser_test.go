package visual

import (
	"math"
	"testing"

	"github.com/dkeye/VoiceBridge/internal/media"
)

func sine(freq float64, rate, n int, amp float64) media.Chunk {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return media.Chunk{Samples: s, SampleRate: rate}
}

func peakBin(data []byte) int {
	best := 0
	for i, v := range data {
		if v > data[best] {
			best = i
		}
	}
	return best
}

func TestSilenceIsZero(t *testing.T) {
	an := NewAnalyser(48000)
	an.NewInput()
	data := an.ByteFrequencyData(nil)
	if len(data) != BinCount {
		t.Fatalf("len = %d, want %d", len(data), BinCount)
	}
	for i, v := range data {
		if v != 0 {
			t.Fatalf("bin %d = %d on silence", i, v)
		}
	}
}

func TestSinePeaksAtItsBin(t *testing.T) {
	const rate = 48000
	an := NewAnalyser(rate)
	in := an.NewInput()
	// 3000 Hz at 48 kHz with 1024 points lands on bin 64.
	if err := in.Write(sine(3000, rate, FFTSize, 0.5)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var data []byte
	for i := 0; i < 20; i++ {
		data = an.ByteFrequencyData(data)
	}
	if got := peakBin(data); got != 64 {
		t.Fatalf("peak bin = %d, want 64", got)
	}
	if data[64] < 200 {
		t.Fatalf("peak value = %d, want near full scale", data[64])
	}
	if data[200] != 0 {
		t.Fatalf("far bin = %d, want 0", data[200])
	}
}

func TestSmoothingRampsUp(t *testing.T) {
	const rate = 48000
	an := NewAnalyser(rate)
	in := an.NewInput()
	_ = in.Write(sine(3000, rate, FFTSize, 0.5))

	first := an.ByteFrequencyData(nil)[64]
	second := an.ByteFrequencyData(nil)[64]
	if !(second > first) {
		t.Fatalf("smoothed value did not rise: %d then %d", first, second)
	}
}

func TestInputsAreSummed(t *testing.T) {
	const rate = 48000
	an := NewAnalyser(rate)
	a, b := an.NewInput(), an.NewInput()
	_ = a.Write(sine(3000, rate, FFTSize, 0.5))
	_ = b.Write(sine(6000, rate, FFTSize, 0.5))

	var data []byte
	for i := 0; i < 20; i++ {
		data = an.ByteFrequencyData(data)
	}
	if data[64] < 200 || data[128] < 200 {
		t.Fatalf("bins 64/128 = %d/%d, want both strong", data[64], data[128])
	}
}

func TestInputResamplesOtherRates(t *testing.T) {
	an := NewAnalyser(48000)
	in := an.NewInput()
	if err := in.Write(sine(3000, 8000, 800, 0.5)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := in.Write(sine(3000, 8000, 800, 0.5)); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestBlackmanWindowShape(t *testing.T) {
	w := blackman(FFTSize)
	if math.Abs(w[0]) > 1e-9 {
		t.Fatalf("w[0] = %v, want 0", w[0])
	}
	if math.Abs(w[FFTSize/2]-1) > 1e-9 {
		t.Fatalf("w[mid] = %v, want 1", w[FFTSize/2])
	}
}
