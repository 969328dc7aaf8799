// SPDX-License-Identifier: MIT
package playback

import (
	"sync"

	"audiovis/internal/analysis"
	"audiovis/internal/audio"
	"audiovis/internal/buffer"
	"audiovis/pkg/bitint"
)

var _ audio.PlaybackTap = (*Tap)(nil)

type analyzerKey struct {
	size   int
	window analysis.WindowFunc
}

// Tap keeps the most recent interleaved frames handed to the output. The
// player writes from its goroutine; the provider reads from the driver.
type Tap struct {
	mu         sync.Mutex
	channels   int
	sampleRate float64
	ring       *buffer.Ring

	interleaved []float32
	mono        []float32
	analyzers   map[analyzerKey]*analysis.SpectrumAnalyzer
}

// NewTap keeps up to frames frames of channels-wide audio.
func NewTap(channels int, sampleRate float64, frames int) *Tap {
	channels = max(channels, 1)
	return &Tap{
		channels:   channels,
		sampleRate: sampleRate,
		ring:       buffer.NewRing(max(frames, 1) * channels),
		analyzers:  make(map[analyzerKey]*analysis.SpectrumAnalyzer),
	}
}

func (t *Tap) Channels() int {
	return t.channels
}

// Write records interleaved samples as played. Callers pass whole frames.
func (t *Tap) Write(samples []float32) {
	t.mu.Lock()
	t.ring.Write(samples)
	t.mu.Unlock()
}

// Reset forgets everything played, so readers see silence.
func (t *Tap) Reset() {
	t.mu.Lock()
	t.ring.Reset()
	t.mu.Unlock()
}

func (t *Tap) Latest(dst []float32) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest(dst)
}

func (t *Tap) latest(dst []float32) int {
	n := min(len(dst), t.ring.Cap())
	n -= n % t.channels
	return t.ring.Read(dst[:n])
}

// MixSpectrum zeroes dst unless 2*len(dst) is a power of two.
func (t *Tap) MixSpectrum(dst []float32, w analysis.WindowFunc) {
	size := 2 * len(dst)
	if bitint.Log2(size) < 1 {
		clear(dst)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := analyzerKey{size: size, window: w}
	a, ok := t.analyzers[key]
	if !ok {
		var err error
		if a, err = analysis.NewSpectrumAnalyzer(size, t.sampleRate, w); err != nil {
			clear(dst)
			return
		}
		t.analyzers[key] = a
	}

	need := size * t.channels
	if cap(t.interleaved) < need {
		t.interleaved = make([]float32, need)
		t.mono = make([]float32, size)
	}
	n := t.latest(t.interleaved[:need])
	m := buffer.Mix(t.mono[:size], t.interleaved[:n], t.channels)
	a.Load(t.mono[:m])
	a.GetMagnitudes(dst)
}
