// SPDX-License-Identifier: MIT

// Package transport publishes engine frames to external consumers.
package transport

import (
	"audiovis/internal/analysis"
	"audiovis/internal/audio"
)

// Transport defines a generic interface for sending processed data.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Frame is one published snapshot of the current source. Slices are owned
// by the frame; transports may hold on to it.
type Frame struct {
	Sequence   uint64                   `json:"seq"`
	Timestamp  int64                    `json:"ts"` // Unix nanoseconds
	Kind       audio.SourceKind         `json:"-"`
	Source     string                   `json:"source"`
	Channels   int                      `json:"channels"`
	SampleRate float64                  `json:"sample_rate"`
	Silent     bool                     `json:"silent"`
	Level      float64                  `json:"level"` // RMS of the centre waveform
	Peak       float32                  `json:"peak"`
	Waveform   []float32                `json:"waveform,omitempty"`
	Spectrum   []float32                `json:"spectrum"`
	Bands      []analysis.FrequencyBand `json:"bands,omitempty"`
}
