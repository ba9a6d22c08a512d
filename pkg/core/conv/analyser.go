package conv

import (
	"math"
	"math/cmplx"
	"sync"
)

// Analyser parameters. The window size fixes the frequency resolution,
// the smoothing constant blends each new spectrum into the previous one
// so short transients do not make the readout jitter.
const (
	analyserWindowSize = 2048
	analyserSmoothing  = 0.8

	// Decibel range mapped onto the byte-valued frequency readout.
	analyserMinDecibels = -100.0
	analyserMaxDecibels = -30.0
)

// Analyser computes a smoothed magnitude spectrum over a sliding window
// of normalized PCM samples. It is one of the two independent consumers
// fed by the capture source; it owns its buffers exclusively.
type Analyser struct {
	mu sync.Mutex

	// window is a ring of the most recent input samples.
	window [analyserWindowSize]float64
	pos    int
	filled bool

	// smoothed holds the exponentially smoothed magnitudes for the
	// analyserWindowSize/2 frequency bins.
	smoothed [analyserWindowSize / 2]float64

	// freqBytes is allocated on first readout and reused afterwards.
	freqBytes []byte

	hann [analyserWindowSize]float64
}

// NewAnalyser returns an analyser with a precomputed Hann window.
func NewAnalyser() *Analyser {
	a := &Analyser{}
	for i := range a.hann {
		a.hann[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(analyserWindowSize-1)))
	}
	return a
}

// Feed appends normalized samples to the sliding window and, once a
// full window is available, recomputes the smoothed spectrum.
func (a *Analyser) Feed(samples []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range samples {
		a.window[a.pos] = s
		a.pos++
		if a.pos == analyserWindowSize {
			a.pos = 0
			a.filled = true
		}
	}
	// No spectrum until a full window of input has been seen.
	if !a.filled {
		return
	}
	a.recompute()
}

// recompute runs a windowed FFT over the current ring contents and
// folds the magnitudes into the smoothed spectrum. Caller holds mu.
func (a *Analyser) recompute() {
	buf := make([]complex128, analyserWindowSize)
	for i := 0; i < analyserWindowSize; i++ {
		// Oldest sample first.
		buf[i] = complex(a.window[(a.pos+i)%analyserWindowSize]*a.hann[i], 0)
	}
	fft(buf)

	for i := range a.smoothed {
		mag := cmplx.Abs(buf[i]) / float64(analyserWindowSize)
		a.smoothed[i] = analyserSmoothing*a.smoothed[i] + (1-analyserSmoothing)*mag
	}
}

// ByteFrequencyData writes the current smoothed spectrum into a
// byte-per-bin buffer, mapping [-100, -30] dB onto [0, 255]. The buffer
// is allocated once and reused; callers must not retain it across
// calls.
func (a *Analyser) ByteFrequencyData() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.freqBytes == nil {
		a.freqBytes = make([]byte, len(a.smoothed))
	}
	scale := 255 / (analyserMaxDecibels - analyserMinDecibels)
	for i, mag := range a.smoothed {
		db := analyserMinDecibels
		if mag > 0 {
			db = 20 * math.Log10(mag)
		}
		v := (db - analyserMinDecibels) * scale
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		a.freqBytes[i] = byte(v)
	}
	return a.freqBytes
}

// BinCount returns the number of frequency bins in the readout.
func (a *Analyser) BinCount() int { return analyserWindowSize / 2 }

// fft computes an in-place radix-2 Cooley-Tukey transform. len(buf)
// must be a power of two.
func fft(buf []complex128) {
	n := len(buf)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wl := cmplx.Exp(complex(0, angle))
		for start := 0; start < n; start += length {
			w := complex(1, 0)
			for k := 0; k < length/2; k++ {
				u := buf[start+k]
				v := buf[start+k+length/2] * w
				buf[start+k] = u + v
				buf[start+k+length/2] = u - v
				w *= wl
			}
		}
	}
}
