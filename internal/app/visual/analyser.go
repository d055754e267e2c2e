package visual

import (
	"math"
	"sync"

	"github.com/dkeye/VoiceBridge/internal/media"
	resampling "github.com/tphakala/go-audio-resampling"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Analyser parameters, matching a Web Audio AnalyserNode with fftSize 1024.
const (
	FFTSize               = 1024
	BinCount              = FFTSize / 2
	SmoothingTimeConstant = 0.8
	MinDecibels           = -100.0
	MaxDecibels           = -30.0

	DefaultSampleRate = 48000
)

// Analyser computes byte frequency data from the sum of its inputs.
type Analyser struct {
	mu       sync.Mutex
	rate     int
	fft      *fourier.FFT
	window   []float64
	inputs   []*Input
	frame    []float64
	smoothed []float64
}

func NewAnalyser(sampleRate int) *Analyser {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Analyser{
		rate:     sampleRate,
		fft:      fourier.NewFFT(FFTSize),
		window:   blackman(FFTSize),
		frame:    make([]float64, FFTSize),
		smoothed: make([]float64, BinCount),
	}
}

func (a *Analyser) SampleRate() int { return a.rate }

// blackman is the window used by AnalyserNode (alpha 0.16).
func blackman(n int) []float64 {
	const alpha = 0.16
	a0, a1, a2 := (1-alpha)/2, 0.5, alpha/2
	w := make([]float64, n)
	for i := range w {
		x := float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x)
	}
	return w
}

// Input is one source connected to the analyser. It keeps the most recent
// FFTSize samples at the analyser rate.
type Input struct {
	a      *Analyser
	ring   []float64
	pos    int
	rs     resampling.Resampler
	rsRate int
}

func (a *Analyser) NewInput() *Input {
	in := &Input{a: a, ring: make([]float64, FFTSize)}
	a.mu.Lock()
	a.inputs = append(a.inputs, in)
	a.mu.Unlock()
	return in
}

// Write appends a chunk, resampling it to the analyser rate when needed.
func (in *Input) Write(c media.Chunk) error {
	samples := make([]float64, len(c.Samples))
	for i, s := range c.Samples {
		samples[i] = float64(s)
	}
	if c.SampleRate > 0 && c.SampleRate != in.a.rate {
		if in.rs == nil || in.rsRate != c.SampleRate {
			rs, err := resampling.New(&resampling.Config{
				InputRate:  float64(c.SampleRate),
				OutputRate: float64(in.a.rate),
				Channels:   1,
				Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
			})
			if err != nil {
				return err
			}
			in.rs, in.rsRate = rs, c.SampleRate
		}
		out, err := in.rs.Process(samples)
		if err != nil {
			return err
		}
		samples = out
	}

	in.a.mu.Lock()
	defer in.a.mu.Unlock()
	for _, s := range samples {
		in.ring[in.pos] = s
		in.pos = (in.pos + 1) % FFTSize
	}
	return nil
}

// ByteFrequencyData fills dst (allocating when short) with BinCount magnitudes
// scaled from [MinDecibels, MaxDecibels] to [0, 255].
func (a *Analyser) ByteFrequencyData(dst []byte) []byte {
	if len(dst) < BinCount {
		dst = make([]byte, BinCount)
	}
	dst = dst[:BinCount]

	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.frame {
		a.frame[i] = 0
	}
	for _, in := range a.inputs {
		for i := 0; i < FFTSize; i++ {
			a.frame[i] += in.ring[(in.pos+i)%FFTSize]
		}
	}
	for i := range a.frame {
		a.frame[i] *= a.window[i]
	}

	coeffs := a.fft.Coefficients(nil, a.frame)
	scale := 1.0 / FFTSize
	rangeScale := 255 / (MaxDecibels - MinDecibels)
	for k := 0; k < BinCount; k++ {
		mag := math.Hypot(real(coeffs[k]), imag(coeffs[k])) * scale
		a.smoothed[k] = SmoothingTimeConstant*a.smoothed[k] + (1-SmoothingTimeConstant)*mag

		db := 20 * math.Log10(a.smoothed[k])
		v := math.Floor(rangeScale * (db - MinDecibels))
		switch {
		case math.IsNaN(v) || v < 0:
			dst[k] = 0
		case v > 255:
			dst[k] = 255
		default:
			dst[k] = byte(v)
		}
	}
	return dst
}
