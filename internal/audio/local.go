// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"fmt"

	"audiovis/internal/analysis"
	"audiovis/internal/buffer"
	"audiovis/internal/observe"

	"go.opentelemetry.io/otel/metric"
)

// PlaybackTap exposes the samples the application itself is playing.
type PlaybackTap interface {
	Channels() int

	// Latest copies the most recent interleaved samples into dst, oldest
	// first, and returns how many were written. The count is a whole number
	// of frames.
	Latest(dst []float32) int

	// MixSpectrum writes len(dst) magnitude bins of the mono mix of the
	// latest 2*len(dst) frames, windowed with w.
	MixSpectrum(dst []float32, w analysis.WindowFunc)
}

// LocalProvider reads the application's playback on the calling goroutine.
// It runs no goroutine of its own.
type LocalProvider struct {
	tap      PlaybackTap
	cfg      ProviderConfig
	channels int
	stride   int // tap channels, may exceed channels

	metrics *observe.Metrics
	attrs   metric.MeasurementOption
	silence *SilenceDetector

	scan        []float32 // ScanFrames interleaved
	interleaved []float32 // max(WaveformSize, FFTSize) interleaved frames
	mono        []float32
	analyzer    *analysis.SpectrumAnalyzer
	mixSpectrum []float32
}

// NewLocalProvider wraps tap.
func NewLocalProvider(tap PlaybackTap, cfg ProviderConfig) (*LocalProvider, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("%s provider: %w", LocalPlayback, err)
	}

	analyzer, err := analysis.NewSpectrumAnalyzer(cfg.FFTSize, cfg.SampleRate, cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("%s provider: %w", LocalPlayback, err)
	}

	stride := max(tap.Channels(), 1)
	frames := max(cfg.WaveformSize, cfg.FFTSize)
	return &LocalProvider{
		tap:         tap,
		cfg:         cfg,
		channels:    clampChannels(stride),
		stride:      stride,
		metrics:     cfg.Metrics,
		attrs:       observe.Source(LocalPlayback.String()),
		silence:     NewSilenceDetector(cfg.SilenceThreshold, cfg.SilenceTimeout, cfg.Clock),
		scan:        make([]float32, cfg.ScanFrames*stride),
		interleaved: make([]float32, frames*stride),
		mono:        make([]float32, frames),
		analyzer:    analyzer,
		mixSpectrum: make([]float32, analyzer.Bins()),
	}, nil
}

func (p *LocalProvider) Source() SourceKind {
	return LocalPlayback
}

func (p *LocalProvider) ChannelCount() int {
	return p.channels
}

func (p *LocalProvider) SampleRate() float64 {
	return p.cfg.SampleRate
}

func (p *LocalProvider) IsSilent() bool {
	return p.silence.IsSilent()
}

// Update scans the tap for sound and refreshes the silence timer.
func (p *LocalProvider) Update() {
	n := p.tap.Latest(p.scan)
	if p.silence.Scan(p.scan[:n]) {
		p.silence.Heard()
		p.metrics.ChunksProcessed.Add(context.Background(), 1, p.attrs)
	}
	p.silence.Refresh()
}

func (p *LocalProvider) GetWaveform(buf []float32, channel int) {
	if channel != MixChannel && (channel < 0 || channel >= p.channels) {
		clear(buf)
		return
	}

	frames := min(len(buf), p.cfg.WaveformSize)
	n := p.read(frames)

	var got int
	if channel == MixChannel {
		got = buffer.Mix(buf[:frames], p.interleaved[:n], p.stride)
	} else {
		got = buffer.Deinterleave(buf[:frames], p.interleaved[:n], channel, p.stride)
	}
	clear(buf[got:])
}

func (p *LocalProvider) GetSpectrum(buf []float32, channel int) {
	switch {
	case channel == MixChannel:
		p.tap.MixSpectrum(p.mixSpectrum, p.cfg.Window)
		n := copy(buf, p.mixSpectrum)
		clear(buf[n:])
	case channel >= 0 && channel < p.channels:
		n := p.read(p.cfg.FFTSize)
		got := buffer.Deinterleave(p.mono, p.interleaved[:n], channel, p.stride)
		p.analyzer.Load(p.mono[:got])
		p.analyzer.GetMagnitudes(buf)
	default:
		clear(buf)
	}
}

// Dispose is a no-op; the tap belongs to the player.
func (p *LocalProvider) Dispose() error {
	return nil
}

// read fills p.interleaved with up to frames of the latest playback.
func (p *LocalProvider) read(frames int) int {
	return p.tap.Latest(p.interleaved[:frames*p.stride])
}
