// SPDX-License-Identifier: MIT
package analysis

import "math"

// FrequencyBand is a named frequency range and its energy for one frame.
type FrequencyBand struct {
	Name   string  `json:"name"`
	LowHz  float64 `json:"low_hz"`
	HighHz float64 `json:"high_hz"`
	Energy float64 `json:"energy"`
}

// DefaultBands returns the band layout used by the meter and publishers.
// The top band is capped at the Nyquist frequency.
func DefaultBands(sampleRate float64) []FrequencyBand {
	return []FrequencyBand{
		{Name: "sub", LowHz: 20, HighHz: 60},
		{Name: "bass", LowHz: 60, HighHz: 250},
		{Name: "lowMid", LowHz: 250, HighHz: 500},
		{Name: "mid", LowHz: 500, HighHz: 2000},
		{Name: "highMid", LowHz: 2000, HighHz: 4000},
		{Name: "treble", LowHz: 4000, HighHz: sampleRate / 2},
	}
}

// Bands fills the Energy of every band from a magnitude spectrum of an
// fftSize-point transform. Energy is the root of the mean squared magnitude
// of the bins falling inside the band; empty bands read zero. Bands must not
// overlap. Bands does not allocate.
func Bands(bands []FrequencyBand, magnitudes []float32, sampleRate float64, fftSize int) {
	for i := range bands {
		bands[i].Energy = 0
	}
	if fftSize <= 0 || sampleRate <= 0 {
		return
	}

	binWidth := sampleRate / float64(fftSize)
	for b := range bands {
		var sum float64
		count := 0
		for i, m := range magnitudes {
			freq := float64(i) * binWidth
			if freq >= bands[b].LowHz && freq < bands[b].HighHz {
				sum += float64(m) * float64(m)
				count++
			}
		}
		if count > 0 {
			bands[b].Energy = math.Sqrt(sum / float64(count))
		}
	}
}

// RMS returns the root mean square level of a waveform.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sumSquare float64
	for _, s := range samples {
		v := float64(s)
		sumSquare += v * v
	}
	return math.Sqrt(sumSquare / float64(len(samples)))
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
