// SPDX-License-Identifier: MIT

// Package utils holds signal generators and small fakes shared by the
// package tests.
package utils

import (
	"math"
	"sync"
)

// GenerateSineWave returns size samples of a sine at frequency Hz with a
// peak amplitude of amplitude.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * amplitude)
	}
	return buffer
}

// GenerateComplexWave returns a 440Hz fundamental with two harmonics,
// scaled to 0.9 full scale.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// Interleave zips equal length channel slices into one interleaved chunk.
// Shorter channels are padded with zeros.
func Interleave(channels ...[]float32) []float32 {
	frames := 0
	for _, ch := range channels {
		frames = max(frames, len(ch))
	}

	out := make([]float32, frames*len(channels))
	for c, ch := range channels {
		for f, s := range ch {
			out[f*len(channels)+c] = s
		}
	}
	return out
}

// FindPeakBin returns the index of the largest magnitude in [startBin, endBin].
func FindPeakBin(magnitudes []float32, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}

// MockTransport records what it is sent instead of transmitting it.
type MockTransport struct {
	mu     sync.Mutex
	sent   []any
	closed bool
}

// Send stores data for later inspection.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	m.sent = append(m.sent, data)
	m.mu.Unlock()
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of everything sent so far.
func (m *MockTransport) Sent() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.sent))
	copy(out, m.sent)
	return out
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
