// SPDX-License-Identifier: MIT

// Package analysis turns windows of float32 samples into magnitude spectra
// and derived measurements (band energies, RMS level).
package analysis

import (
	"fmt"
	"math/cmplx"

	"audiovis/internal/buffer"
	applog "audiovis/internal/log"
	"audiovis/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Pre-allocated buffers for FFT calculations.
type fftWorkspace struct {
	raw       []float32    // Samples copied out of the sliding window.
	input     []float64    // Windowed input signal.
	fftOutput []complex128 // FFT complex results (size/2 + 1).
	window    []float64    // Pre-calculated window coefficients.
}

// SpectrumAnalyzer keeps a sliding window of the most recent FFT-size samples
// and turns it into a magnitude spectrum on demand.
//
// SpectrumAnalyzer is not safe for concurrent use. Each provider owns its
// analyzers and calls them under the same lock as the paired ring buffer.
type SpectrumAnalyzer struct {
	fftCalculator *fourier.FFT
	fftSize       int
	sampleRate    float64
	windowType    WindowFunc
	scale         float64
	samples       *buffer.Ring
	workspace     fftWorkspace
}

// NewSpectrumAnalyzer creates an analyzer for fftSize-point transforms. The
// size must be a power of two; magnitudes are produced for fftSize/2 bins.
func NewSpectrumAnalyzer(fftSize int, sampleRate float64, windowType WindowFunc) (*SpectrumAnalyzer, error) {
	if !bitint.IsPowerOfTwo(fftSize) || fftSize < 2 {
		return nil, fmt.Errorf("fft size must be a power of 2 and at least 2, got %d", fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	applog.Debugf("analysis: new spectrum analyzer (size %d, sample rate %.1f Hz, window %v)", fftSize, sampleRate, windowType)

	return &SpectrumAnalyzer{
		fftCalculator: fourier.NewFFT(fftSize),
		fftSize:       fftSize,
		sampleRate:    sampleRate,
		windowType:    windowType,
		scale:         2 / float64(fftSize),
		samples:       buffer.NewRing(fftSize),
		workspace: fftWorkspace{
			raw:       make([]float32, fftSize),
			input:     make([]float64, fftSize),
			fftOutput: make([]complex128, fftSize/2+1),
			window:    Coefficients(windowType, fftSize),
		},
	}, nil
}

// Feed pushes samples into the sliding window.
func (a *SpectrumAnalyzer) Feed(samples []float32) {
	a.samples.Write(samples)
}

// Load replaces the window with the given samples. Fewer than Size() samples
// leave the older part of the window zeroed.
func (a *SpectrumAnalyzer) Load(samples []float32) {
	a.samples.Reset()
	a.samples.Write(samples)
}

// Reset clears the sliding window.
func (a *SpectrumAnalyzer) Reset() {
	a.samples.Reset()
}

// GetMagnitudes windows the buffered samples, runs the forward FFT and writes
// the magnitude of each bin into out, lowest frequency first. Bins past
// Bins() are zeroed; a short out receives the lowest bins only.
func (a *SpectrumAnalyzer) GetMagnitudes(out []float32) {
	ws := &a.workspace
	a.samples.Read(ws.raw)
	for i, s := range ws.raw {
		ws.input[i] = float64(s) * ws.window[i]
	}

	a.fftCalculator.Coefficients(ws.fftOutput, ws.input)

	bins := a.Bins()
	for i := range out {
		if i < bins {
			out[i] = float32(cmplx.Abs(ws.fftOutput[i]) * a.scale)
		} else {
			out[i] = 0
		}
	}
}

// FrequencyForBin returns the centre frequency (Hz) of a bin, or 0 when the
// index is out of range.
func (a *SpectrumAnalyzer) FrequencyForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex >= a.Bins() {
		return 0
	}
	return float64(binIndex) * a.sampleRate / float64(a.fftSize)
}

// Bins returns the number of magnitude bins, fftSize/2.
func (a *SpectrumAnalyzer) Bins() int {
	return a.fftSize / 2
}

// Size returns the FFT size.
func (a *SpectrumAnalyzer) Size() int {
	return a.fftSize
}

// SampleRate returns the configured sample rate (Hz).
func (a *SpectrumAnalyzer) SampleRate() float64 {
	return a.sampleRate
}

// Window returns the configured window function.
func (a *SpectrumAnalyzer) Window() WindowFunc {
	return a.windowType
}
