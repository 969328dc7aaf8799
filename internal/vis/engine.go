// SPDX-License-Identifier: MIT

// Package vis arbitrates between audio providers and hands consumers
// per-frame waveform and spectrum snapshots of the current one.
package vis

import (
	"context"
	"errors"
	"sync"

	"audiovis/internal/audio"
	applog "audiovis/internal/log"
	"audiovis/internal/observe"

	"golang.org/x/sync/errgroup"
)

// Visualizer consumes engine output once per frame.
type Visualizer interface {
	OnFrame(e *Engine)
}

// Config sizes the snapshot buffers.
type Config struct {
	WaveformSize int
	SpectrumBins int
	Metrics      *observe.Metrics
}

// snapshot is one memoized per-channel array.
type snapshot struct {
	data     []float32
	frame    uint64
	provider int
	valid    bool
}

func (s *snapshot) fresh(frame uint64, provider int) bool {
	return s.valid && s.frame == frame && s.provider == provider
}

func (s *snapshot) mark(frame uint64, provider int) {
	s.frame, s.provider, s.valid = frame, provider, true
}

// Engine selects the first non-silent provider in priority order and serves
// its data. Update and the getters must be called from one goroutine, the
// driver's.
type Engine struct {
	frames    FrameSource
	providers []audio.Provider
	current   int

	waveforms [3]snapshot
	spectra   [3]snapshot
	zeroWave  []float32
	zeroSpec  []float32

	vmu         sync.Mutex
	visualizers map[Visualizer]struct{}
	vlist       []Visualizer // rebuilt on change, read by the driver

	metrics *observe.Metrics
	log     applog.Logger
}

// NewEngine creates an engine over providers, highest priority first.
func NewEngine(frames FrameSource, cfg Config, providers ...audio.Provider) (*Engine, error) {
	if frames == nil {
		return nil, errors.New("nil frame source")
	}
	if len(providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	if cfg.WaveformSize < 1 || cfg.SpectrumBins < 1 {
		return nil, errors.New("snapshot sizes must be positive")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	e := &Engine{
		frames:      frames,
		providers:   providers,
		zeroWave:    make([]float32, cfg.WaveformSize),
		zeroSpec:    make([]float32, cfg.SpectrumBins),
		visualizers: make(map[Visualizer]struct{}),
		metrics:     cfg.Metrics,
		log:         applog.Named("engine"),
	}
	for ch := range e.waveforms {
		e.waveforms[ch].data = make([]float32, cfg.WaveformSize)
		e.spectra[ch].data = make([]float32, cfg.SpectrumBins)
	}
	return e, nil
}

// Update refreshes every provider, then makes the first non-silent one
// current. When all are silent the previous choice is kept.
func (e *Engine) Update() {
	for _, p := range e.providers {
		p.Update()
	}

	for i, p := range e.providers {
		if p.IsSilent() {
			continue
		}
		if i != e.current {
			e.log.Infof("source %s -> %s", e.providers[e.current].Source(), p.Source())
			e.metrics.SourceSwitches.Add(context.Background(), 1, observe.Source(p.Source().String()))
			e.current = i
		}
		return
	}
}

// Current returns the provider whose data the getters serve.
func (e *Engine) Current() audio.Provider {
	return e.providers[e.current]
}

// CurrentSource returns the kind of the current provider.
func (e *Engine) CurrentSource() audio.SourceKind {
	return e.Current().Source()
}

// ChannelCount returns the channel count of the current provider.
func (e *Engine) ChannelCount() int {
	return e.Current().ChannelCount()
}

// SampleRate returns the sample rate of the current provider.
func (e *Engine) SampleRate() float64 {
	return e.Current().SampleRate()
}

// Providers returns the providers in priority order.
func (e *Engine) Providers() []audio.Provider {
	return append([]audio.Provider(nil), e.providers...)
}

// GetWaveform returns the current provider's waveform for ch. The slice is
// owned by the engine and valid until the next frame. Unknown channels
// return zeros.
func (e *Engine) GetWaveform(ch Channel) []float32 {
	if !ch.valid() {
		clear(e.zeroWave)
		return e.zeroWave
	}

	snap := &e.waveforms[ch]
	frame := e.frames.Frame()
	if snap.fresh(frame, e.current) {
		return snap.data
	}

	p := e.Current()
	switch {
	case ch == Center:
		left, right := e.GetWaveform(Left), e.GetWaveform(Right)
		for i := range snap.data {
			snap.data[i] = (left[i] + right[i]) * 0.5
		}
	case ch == Right && p.ChannelCount() < 2:
		copy(snap.data, e.GetWaveform(Left))
	default:
		p.GetWaveform(snap.data, int(ch))
	}

	snap.mark(frame, e.current)
	e.metrics.RecordSnapshot(context.Background(), "waveform", ch.String())
	return snap.data
}

// GetSpectrum returns the current provider's magnitude bins for ch. Center
// is the spectrum of the mono mix rather than the mean of the left and
// right magnitudes.
func (e *Engine) GetSpectrum(ch Channel) []float32 {
	if !ch.valid() {
		clear(e.zeroSpec)
		return e.zeroSpec
	}

	snap := &e.spectra[ch]
	frame := e.frames.Frame()
	if snap.fresh(frame, e.current) {
		return snap.data
	}

	p := e.Current()
	switch {
	case ch == Center:
		p.GetSpectrum(snap.data, audio.MixChannel)
	case ch == Right && p.ChannelCount() < 2:
		copy(snap.data, e.GetSpectrum(Left))
	default:
		p.GetSpectrum(snap.data, int(ch))
	}

	snap.mark(frame, e.current)
	e.metrics.RecordSnapshot(context.Background(), "spectrum", ch.String())
	return snap.data
}

// AddVisualizer registers v. Adding twice is a no-op.
func (e *Engine) AddVisualizer(v Visualizer) {
	e.vmu.Lock()
	defer e.vmu.Unlock()
	if _, ok := e.visualizers[v]; ok {
		return
	}
	e.visualizers[v] = struct{}{}
	e.rebuildVisualizers()
}

// RemoveVisualizer unregisters v. Removing an unknown visualizer is a no-op.
func (e *Engine) RemoveVisualizer(v Visualizer) {
	e.vmu.Lock()
	defer e.vmu.Unlock()
	if _, ok := e.visualizers[v]; !ok {
		return
	}
	delete(e.visualizers, v)
	e.rebuildVisualizers()
}

// Visualizers returns the registered visualizers in no particular order.
func (e *Engine) Visualizers() []Visualizer {
	e.vmu.Lock()
	defer e.vmu.Unlock()
	return append([]Visualizer(nil), e.vlist...)
}

func (e *Engine) rebuildVisualizers() {
	list := make([]Visualizer, 0, len(e.visualizers))
	for v := range e.visualizers {
		list = append(list, v)
	}
	e.vlist = list
}

// activeVisualizers returns the current list without copying. The list is
// replaced, never mutated, so callers may range over it freely.
func (e *Engine) activeVisualizers() []Visualizer {
	e.vmu.Lock()
	defer e.vmu.Unlock()
	return e.vlist
}

// Dispose disposes every provider concurrently and returns the first error.
func (e *Engine) Dispose() error {
	var g errgroup.Group
	for _, p := range e.providers {
		g.Go(func() error {
			if err := p.Dispose(); err != nil {
				e.log.Warnf("dispose %s: %v", p.Source(), err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
