// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"audiovis/internal/analysis"
	"audiovis/internal/buffer"
	applog "audiovis/internal/log"
	"audiovis/internal/observe"

	"go.opentelemetry.io/otel/metric"
)

// CaptureState is the lifecycle state of a CaptureProvider.
type CaptureState int32

const (
	StateStarting CaptureState = iota
	StateCapturing
	StateSilent
	StateRestarting
	StateStopped
	StateUnavailable // initial open failed; silent forever
)

func (s CaptureState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateCapturing:
		return "capturing"
	case StateSilent:
		return "silent"
	case StateRestarting:
		return "restarting"
	case StateStopped:
		return "stopped"
	case StateUnavailable:
		return "unavailable"
	}
	return fmt.Sprintf("CaptureState(%d)", int32(s))
}

// CaptureOption configures a CaptureProvider.
type CaptureOption func(*CaptureProvider)

// WithRecorder writes every captured chunk to r. The provider closes r on
// Dispose.
func WithRecorder(r *Recorder) CaptureOption {
	return func(p *CaptureProvider) {
		p.recorder = r
	}
}

// CaptureProvider reads an OS capture stream on its own goroutine and keeps
// per-channel ring buffers and spectra up to date for the getters.
type CaptureProvider struct {
	kind     SourceKind
	opener   StreamOpener
	cfg      ProviderConfig
	channels int

	log     applog.Logger
	metrics *observe.Metrics
	attrs   metric.MeasurementOption

	silence *SilenceDetector
	state   atomic.Int32

	// Guarded by mu. Each chunk updates rings and spectra together so the
	// getters never observe a waveform from one chunk with the spectrum of
	// another.
	mu          sync.Mutex
	rings       [MaxChannels]*buffer.Ring
	analyzers   [MaxChannels]*analysis.SpectrumAnalyzer
	spectra     [MaxChannels][]float32
	mixAnalyzer *analysis.SpectrumAnalyzer
	mixSpectrum []float32
	scratch     []float32 // deinterleave target, grows with chunk size
	mixScratch  []float32 // second channel for the mono mix waveform

	recorder *Recorder

	cancel   context.CancelFunc
	done     chan struct{}
	stream   CaptureStream // handed back by the loop when it exits
	disposed atomic.Bool
}

// NewCaptureProvider opens the first stream and starts the capture loop. An
// open failure is not returned: the provider is marked StateUnavailable and
// reports silence for its whole lifetime. Errors are only returned for an
// invalid configuration.
func NewCaptureProvider(kind SourceKind, opener StreamOpener, cfg ProviderConfig, opts ...CaptureOption) (*CaptureProvider, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("%s provider: %w", kind, err)
	}

	p := &CaptureProvider{
		kind:       kind,
		opener:     opener,
		cfg:        cfg,
		channels:   clampChannels(opener.Channels()),
		log:        applog.Named("capture[" + kind.String() + "]"),
		metrics:    cfg.Metrics,
		attrs:      observe.Source(kind.String()),
		silence:    NewSilenceDetector(cfg.SilenceThreshold, cfg.SilenceTimeout, cfg.Clock),
		done:       make(chan struct{}),
		mixScratch: make([]float32, cfg.WaveformSize),
	}
	for _, opt := range opts {
		opt(p)
	}

	for ch := range p.channels {
		p.rings[ch] = buffer.NewRing(cfg.WaveformSize)
		if p.analyzers[ch], err = analysis.NewSpectrumAnalyzer(cfg.FFTSize, cfg.SampleRate, cfg.Window); err != nil {
			return nil, fmt.Errorf("%s provider: %w", kind, err)
		}
		p.spectra[ch] = make([]float32, p.analyzers[ch].Bins())
	}
	if p.channels > 1 {
		if p.mixAnalyzer, err = analysis.NewSpectrumAnalyzer(cfg.FFTSize, cfg.SampleRate, cfg.Window); err != nil {
			return nil, fmt.Errorf("%s provider: %w", kind, err)
		}
		p.mixSpectrum = make([]float32, p.mixAnalyzer.Bins())
	}

	stream, err := opener.Open()
	if err != nil {
		p.metrics.OpenFailures.Add(context.Background(), 1, p.attrs)
		p.log.Warnf("capture unavailable: %v", err)
		p.state.Store(int32(StateUnavailable))
		p.cancel = func() {}
		close(p.done)
		return p, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.state.Store(int32(StateStarting))
	go p.run(ctx, stream)

	p.log.Debugf("capturing %d channel(s)", p.channels)
	return p, nil
}

func (p *CaptureProvider) Source() SourceKind {
	return p.kind
}

func (p *CaptureProvider) ChannelCount() int {
	return p.channels
}

func (p *CaptureProvider) SampleRate() float64 {
	return p.cfg.SampleRate
}

// State returns the current lifecycle state.
func (p *CaptureProvider) State() CaptureState {
	return CaptureState(p.state.Load())
}

func (p *CaptureProvider) IsSilent() bool {
	if p.State() == StateUnavailable {
		return true
	}
	return p.silence.IsSilent()
}

func (p *CaptureProvider) Update() {
	if p.State() == StateUnavailable {
		return
	}
	if p.silence.Refresh() {
		p.state.CompareAndSwap(int32(StateCapturing), int32(StateSilent))
	}
}

func (p *CaptureProvider) GetWaveform(buf []float32, channel int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case channel == MixChannel:
		n := p.rings[0].Read(buf)
		if p.channels > 1 {
			m := p.rings[1].Read(p.mixScratch[:min(n, len(p.mixScratch))])
			for i := range m {
				buf[i] = (buf[i] + p.mixScratch[i]) * 0.5
			}
		}
		clear(buf[n:])
	case channel >= 0 && channel < p.channels:
		n := p.rings[channel].Read(buf)
		clear(buf[n:])
	default:
		clear(buf)
	}
}

func (p *CaptureProvider) GetSpectrum(buf []float32, channel int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var src []float32
	switch {
	case channel == MixChannel && p.channels > 1:
		src = p.mixSpectrum
	case channel == MixChannel:
		src = p.spectra[0]
	case channel >= 0 && channel < p.channels:
		src = p.spectra[channel]
	}
	n := copy(buf, src)
	clear(buf[n:])
}

// Dispose cancels the capture loop, waits for it to return and only then
// closes the stream and recorder.
func (p *CaptureProvider) Dispose() error {
	if !p.disposed.CompareAndSwap(false, true) {
		return ErrDisposed
	}

	p.cancel()
	<-p.done

	var errs []error
	if p.stream != nil {
		if err := p.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stream: %w", err))
		}
		p.stream = nil
	}
	if p.recorder != nil {
		if err := p.recorder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close recorder: %w", err))
		}
	}

	p.state.Store(int32(StateStopped))
	return errors.Join(errs...)
}

// run is the capture loop. It owns stream until it returns.
func (p *CaptureProvider) run(ctx context.Context, stream CaptureStream) {
	defer close(p.done)

	for {
		chunk, err := stream.Read(ctx)
		if ctx.Err() != nil {
			p.stream = stream
			return
		}
		if err != nil {
			p.log.Warnf("stream failed, restarting: %v", err)
			p.state.Store(int32(StateRestarting))
			p.metrics.StreamRestarts.Add(ctx, 1, p.attrs)
			if cerr := stream.Close(); cerr != nil {
				p.log.Debugf("close failed stream: %v", cerr)
			}

			if stream = p.reopen(ctx); stream == nil {
				return
			}
			p.log.Infof("stream restarted")
			continue
		}

		p.process(ctx, chunk, stream.Channels())
	}
}

// reopen retries Open until it succeeds or ctx is cancelled, sleeping
// RestartDelay between failures. It returns nil on cancellation.
func (p *CaptureProvider) reopen(ctx context.Context) CaptureStream {
	for {
		stream, err := p.opener.Open()
		if err == nil {
			return stream
		}
		p.metrics.OpenFailures.Add(ctx, 1, p.attrs)
		p.log.Debugf("reopen failed: %v", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.cfg.RestartDelay):
		}
	}
}

// process scans chunk for sound and, unless the source is silent, writes it
// into the ring buffers and analyzers.
func (p *CaptureProvider) process(ctx context.Context, chunk []float32, stride int) {
	if p.recorder != nil {
		if err := p.recorder.Write(chunk); err != nil {
			p.log.Errorf("recording: %v", err)
		}
	}

	if p.silence.Scan(chunk) {
		p.silence.Heard()
	} else if p.silence.Refresh() {
		p.state.Store(int32(StateSilent))
		p.metrics.ChunksSkipped.Add(ctx, 1, p.attrs)
		return
	}

	if stride < 1 {
		stride = p.channels
	}
	frames := (len(chunk) + stride - 1) / stride

	p.mu.Lock()
	if cap(p.scratch) < frames {
		p.scratch = make([]float32, frames)
	}
	scratch := p.scratch[:frames]

	for ch := range p.channels {
		// A mono stream feeds every carried channel.
		src := min(ch, stride-1)
		n := buffer.Deinterleave(scratch, chunk, src, stride)
		p.rings[ch].Write(scratch[:n])
		p.analyzers[ch].Feed(scratch[:n])
		p.analyzers[ch].GetMagnitudes(p.spectra[ch])
	}
	if p.mixAnalyzer != nil {
		n := buffer.Mix(scratch, chunk, stride)
		p.mixAnalyzer.Feed(scratch[:n])
		p.mixAnalyzer.GetMagnitudes(p.mixSpectrum)
	}
	p.mu.Unlock()

	p.state.Store(int32(StateCapturing))
	p.metrics.ChunksProcessed.Add(ctx, 1, p.attrs)
}
