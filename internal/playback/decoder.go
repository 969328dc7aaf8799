// SPDX-License-Identifier: MIT

// Package playback decodes local audio files, plays them through PortAudio
// and keeps a Tap of the most recent output for the local playback provider.
package playback

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupportedFormat is returned by Open for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Decoder yields interleaved float32 samples in [-1, 1].
type Decoder interface {
	// Read fills dst with whole frames and returns the number of samples
	// written. It returns io.EOF once the stream is exhausted.
	Read(dst []float32) (int, error)
	SampleRate() int
	Channels() int
	Close() error
}

// decoderFunc builds a Decoder over an open file. It takes ownership of f.
type decoderFunc func(f *os.File) (Decoder, error)

var decoders = map[string]decoderFunc{
	".wav":  newWAVDecoder,
	".wave": newWAVDecoder,
	".mp3":  newMP3Decoder,
	".ogg":  newOggDecoder,
	".oga":  newOggDecoder,
	".flac": newFLACDecoder,
}

// Formats lists the supported file extensions.
func Formats() []string {
	exts := make([]string, 0, len(decoders))
	for ext := range decoders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Open picks a decoder from the file extension.
func Open(path string) (Decoder, error) {
	ext := strings.ToLower(filepath.Ext(path))
	newDecoder, ok := decoders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := newDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if dec.Channels() < 1 || dec.SampleRate() < 1 {
		dec.Close()
		return nil, fmt.Errorf("decode %s: invalid format (%d channels, %d Hz)",
			filepath.Base(path), dec.Channels(), dec.SampleRate())
	}
	return dec, nil
}

// wholeFrames trims n down to a multiple of channels.
func wholeFrames(n, channels int) int {
	return n - n%channels
}

// eofIfEmpty maps a zero-length read to io.EOF.
func eofIfEmpty(n int, err error) (int, error) {
	if n == 0 && (err == nil || errors.Is(err, io.ErrUnexpectedEOF)) {
		return 0, io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}
	return n, err
}
