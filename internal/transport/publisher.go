// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"time"

	"audiovis/internal/analysis"
	applog "audiovis/internal/log"
	"audiovis/internal/observe"
	"audiovis/internal/vis"
)

// Publisher is a vis.Visualizer that copies the centre snapshot of each
// frame into a Frame and sends it to every transport. It runs on the driver
// goroutine; transports must not block.
type Publisher struct {
	transports []namedTransport
	every      int // publish every n-th frame
	waveform   bool
	fftSize    int
	bands      []analysis.FrequencyBand
	bandRate   float64 // sample rate bands were laid out for

	frames   uint64
	sequence uint64
	now      func() time.Time
	metrics  *observe.Metrics
	log      applog.Logger
}

type namedTransport struct {
	name string
	t    Transport
}

// PublisherConfig controls what a Publisher sends.
type PublisherConfig struct {
	// Every publishes one frame in n. Values below 1 mean every frame.
	Every int

	// Waveform includes the centre waveform in each frame.
	Waveform bool

	// FFTSize enables band energies when set. Band edges follow the sample
	// rate of the current source.
	FFTSize int

	Metrics *observe.Metrics
}

// NewPublisher creates a publisher with no transports.
func NewPublisher(cfg PublisherConfig) *Publisher {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	p := &Publisher{
		every:    max(cfg.Every, 1),
		waveform: cfg.Waveform,
		fftSize:  cfg.FFTSize,
		now:      time.Now,
		metrics:  cfg.Metrics,
		log:      applog.Named("publisher"),
	}
	return p
}

// Add registers a transport under name, used in logs and metrics.
func (p *Publisher) Add(name string, t Transport) {
	p.transports = append(p.transports, namedTransport{name: name, t: t})
}

// Len returns the number of registered transports.
func (p *Publisher) Len() int {
	return len(p.transports)
}

func (p *Publisher) OnFrame(e *vis.Engine) {
	p.frames++
	if len(p.transports) == 0 || (p.frames-1)%uint64(p.every) != 0 {
		return
	}

	frame := p.build(e)
	for _, nt := range p.transports {
		if err := nt.t.Send(frame); err != nil {
			p.log.Warnf("%s: %v", nt.name, err)
			continue
		}
		p.metrics.RecordPublish(context.Background(), nt.name)
	}
}

// build copies the engine's current snapshot into a new Frame.
func (p *Publisher) build(e *vis.Engine) *Frame {
	p.sequence++
	src := e.Current()
	rate := src.SampleRate()
	wave := e.GetWaveform(vis.Center)
	spec := e.GetSpectrum(vis.Center)

	f := &Frame{
		Sequence:   p.sequence,
		Timestamp:  p.now().UnixNano(),
		Kind:       src.Source(),
		Source:     src.Source().String(),
		Channels:   src.ChannelCount(),
		SampleRate: rate,
		Silent:     src.IsSilent(),
		Level:      analysis.RMS(wave),
		Peak:       analysis.Peak(wave),
		Spectrum:   append([]float32(nil), spec...),
	}
	if p.waveform {
		f.Waveform = append([]float32(nil), wave...)
	}
	if p.fftSize > 0 && rate > 0 {
		if rate != p.bandRate {
			p.bands = analysis.DefaultBands(rate)
			p.bandRate = rate
		}
		f.Bands = append([]analysis.FrequencyBand(nil), p.bands...)
		analysis.Bands(f.Bands, spec, rate, p.fftSize)
	}
	return f
}

// Close closes every transport.
func (p *Publisher) Close() error {
	var first error
	for _, nt := range p.transports {
		if err := nt.t.Close(); err != nil {
			p.log.Warnf("close %s: %v", nt.name, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

var _ vis.Visualizer = (*Publisher)(nil)
