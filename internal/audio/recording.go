// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const recordBitDepth = 16

// Recorder writes captured chunks to a 16-bit PCM WAV file.
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	encoder *wav.Encoder
	buf     *goaudio.IntBuffer // reused for format conversion
	closed  bool
}

// NewRecorder creates path and writes the WAV header.
func NewRecorder(path string, sampleRate, channels int) (*Recorder, error) {
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, recordBitDepth, channels, 1),
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: recordBitDepth,
		},
	}, nil
}

// Write appends an interleaved chunk. Samples are clamped to [-1, 1].
func (r *Recorder) Write(chunk []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New("recorder closed")
	}

	if cap(r.buf.Data) < len(chunk) {
		r.buf.Data = make([]int, len(chunk))
	}
	r.buf.Data = r.buf.Data[:len(chunk)]
	for i, s := range chunk {
		r.buf.Data[i] = int(math.Round(float64(max(-1, min(1, s))) * math.MaxInt16))
	}

	return r.encoder.Write(r.buf)
}

// Close finalizes the WAV header and closes the file. Further calls are
// no-ops.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.encoder.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}
