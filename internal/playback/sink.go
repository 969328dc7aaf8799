// SPDX-License-Identifier: MIT
package playback

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Sink accepts interleaved output. Write blocks until the device has room,
// which paces the player.
type Sink interface {
	Write(samples []float32) error
	Close() error
}

// SinkFunc opens a Sink for a given format.
type SinkFunc func(channels int, sampleRate float64, framesPerBuffer int) (Sink, error)

// OpenPortAudioSink opens a blocking stream on the default output device.
func OpenPortAudioSink(channels int, sampleRate float64, framesPerBuffer int) (Sink, error) {
	buf := make([]float32, framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, sampleRate, framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	return &paSink{stream: stream, buf: buf}, nil
}

type paSink struct {
	stream *portaudio.Stream
	buf    []float32
}

func (s *paSink) Write(samples []float32) error {
	n := copy(s.buf, samples)
	clear(s.buf[n:])
	if err := s.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
		return err
	}
	return nil
}

func (s *paSink) Close() error {
	stopErr := s.stream.Stop()
	if err := s.stream.Close(); err != nil {
		return err
	}
	return stopErr
}
