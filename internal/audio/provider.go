// SPDX-License-Identifier: MIT
/*
Package audio supplies live waveform and spectrum data for the sources the
visualization engine arbitrates between:

  - LocalProvider pulls samples from the application's own playback tap.
  - CaptureProvider reads an OS capture stream (system loopback or
    microphone) on a background goroutine.

Thread Safety:
  - Update, GetWaveform and GetSpectrum are called from the driver goroutine.
  - Capture goroutines share ring buffers and analyzers with the getters
    behind one short mutex per provider.
  - Silence state is held in atomics.
*/
package audio

import (
	"errors"
	"fmt"
	"time"

	"audiovis/internal/analysis"
	"audiovis/internal/observe"
	"audiovis/pkg/bitint"
)

// MixChannel selects the mono mix of all channels in GetWaveform and
// GetSpectrum.
const MixChannel = -1

// MaxChannels is the widest layout a provider carries. Wider devices are
// opened as stereo.
const MaxChannels = 2

const (
	DefaultWaveformSize     = 512
	DefaultFFTSize          = 1024
	DefaultSampleRate       = 44100
	DefaultSilenceThreshold = 1e-4
	DefaultSilenceTimeout   = time.Second
	DefaultRestartDelay     = 500 * time.Millisecond
	DefaultScanFrames       = 64
)

// ErrDisposed is returned when Dispose runs on a provider more than once.
var ErrDisposed = errors.New("provider already disposed")

// Provider is one monitored audio source.
type Provider interface {
	Source() SourceKind
	ChannelCount() int
	IsSilent() bool

	// SampleRate is the rate the spectrum bins are computed at.
	SampleRate() float64

	// Update re-evaluates silence. Called once per engine tick.
	Update()

	// GetWaveform fills buf with the most recent samples of channel, oldest
	// first. Channels the source does not carry read as zeros.
	GetWaveform(buf []float32, channel int)

	// GetSpectrum fills buf with the latest magnitude bins of channel,
	// lowest frequency first.
	GetSpectrum(buf []float32, channel int)

	// Dispose stops background work and releases OS handles. The provider
	// must not be queried afterwards.
	Dispose() error
}

// ProviderConfig holds the analysis and timing settings shared by every
// provider. Zero fields take the package defaults.
type ProviderConfig struct {
	WaveformSize int
	FFTSize      int
	SampleRate   float64
	Window       analysis.WindowFunc

	SilenceThreshold float32
	SilenceTimeout   time.Duration

	// RestartDelay separates failed attempts to reopen a capture stream.
	RestartDelay time.Duration

	// ScanFrames is how many frames LocalProvider reads per Update to
	// detect silence.
	ScanFrames int

	Clock   Clock
	Metrics *observe.Metrics
}

// DefaultProviderConfig returns the settings used when nothing is configured.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		WaveformSize:     DefaultWaveformSize,
		FFTSize:          DefaultFFTSize,
		SampleRate:       DefaultSampleRate,
		Window:           analysis.Hann,
		SilenceThreshold: DefaultSilenceThreshold,
		SilenceTimeout:   DefaultSilenceTimeout,
		RestartDelay:     DefaultRestartDelay,
		ScanFrames:       DefaultScanFrames,
		Clock:            SystemClock,
	}
}

// withDefaults fills zero fields and validates the result.
func (c ProviderConfig) withDefaults() (ProviderConfig, error) {
	def := DefaultProviderConfig()
	if c.WaveformSize == 0 {
		c.WaveformSize = def.WaveformSize
	}
	if c.FFTSize == 0 {
		c.FFTSize = def.FFTSize
	}
	if c.SampleRate == 0 {
		c.SampleRate = def.SampleRate
	}
	if c.SilenceThreshold == 0 {
		c.SilenceThreshold = def.SilenceThreshold
	}
	if c.SilenceTimeout == 0 {
		c.SilenceTimeout = def.SilenceTimeout
	}
	if c.RestartDelay == 0 {
		c.RestartDelay = def.RestartDelay
	}
	if c.ScanFrames == 0 {
		c.ScanFrames = def.ScanFrames
	}
	if c.Clock == nil {
		c.Clock = def.Clock
	}
	if c.Metrics == nil {
		c.Metrics = observe.DefaultMetrics()
	}

	if c.WaveformSize < 1 {
		return c, fmt.Errorf("waveform size must be positive, got %d", c.WaveformSize)
	}
	if c.FFTSize < 2 || !bitint.IsPowerOfTwo(c.FFTSize) {
		return c, fmt.Errorf("FFT size must be a power of two >= 2, got %d", c.FFTSize)
	}
	if c.SampleRate <= 0 {
		return c, fmt.Errorf("sample rate must be positive, got %g", c.SampleRate)
	}
	if c.ScanFrames < 1 {
		return c, fmt.Errorf("scan frames must be positive, got %d", c.ScanFrames)
	}
	return c, nil
}

// clampChannels limits a device channel count to what providers carry.
func clampChannels(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxChannels:
		return MaxChannels
	}
	return n
}
