// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
)

// CaptureStream yields interleaved float32 chunks from an OS input.
type CaptureStream interface {
	// Read blocks until the next chunk is available. The returned slice is
	// only valid until the next Read.
	Read(ctx context.Context) ([]float32, error)
	Channels() int
	Close() error
}

// StreamOpener opens capture streams. CaptureProvider calls Open once at
// construction and again whenever a running stream fails.
type StreamOpener interface {
	Open() (CaptureStream, error)
	Channels() int
}

// DeviceOpener opens blocking PortAudio input streams on one device.
type DeviceOpener struct {
	device          *portaudio.DeviceInfo
	channels        int
	sampleRate      float64
	framesPerBuffer int
	latency         time.Duration
}

// NewDeviceOpener prepares an opener for device. At most MaxChannels
// channels are captured.
func NewDeviceOpener(device *portaudio.DeviceInfo, sampleRate float64, framesPerBuffer int, lowLatency bool) (*DeviceOpener, error) {
	if device == nil {
		return nil, errors.New("nil input device")
	}
	if device.MaxInputChannels < 1 {
		return nil, fmt.Errorf("device %q has no input channels", device.Name)
	}

	latency := device.DefaultHighInputLatency
	if lowLatency {
		latency = device.DefaultLowInputLatency
	}

	return &DeviceOpener{
		device:          device,
		channels:        clampChannels(device.MaxInputChannels),
		sampleRate:      sampleRate,
		framesPerBuffer: framesPerBuffer,
		latency:         latency,
	}, nil
}

func (o *DeviceOpener) Channels() int {
	return o.channels
}

// LimitChannels caps the captured channel count at n (at least one).
func (o *DeviceOpener) LimitChannels(n int) {
	o.channels = min(o.channels, clampChannels(n))
}

// DeviceName returns the name of the device streams are opened on.
func (o *DeviceOpener) DeviceName() string {
	return o.device.Name
}

func (o *DeviceOpener) Open() (CaptureStream, error) {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: o.channels,
			Device:   o.device,
			Latency:  o.latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: o.framesPerBuffer,
		SampleRate:      o.sampleRate,
	}

	buf := make([]float32, o.framesPerBuffer*o.channels)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", o.device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start %q: %w", o.device.Name, err)
	}

	return &deviceStream{stream: stream, buf: buf, channels: o.channels}, nil
}

type deviceStream struct {
	stream   *portaudio.Stream
	buf      []float32
	channels int
}

// Read returns after one buffer period at most, so cancellation is observed
// between buffers.
func (s *deviceStream) Read(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, err
	}
	return s.buf, nil
}

func (s *deviceStream) Channels() int {
	return s.channels
}

func (s *deviceStream) Close() error {
	stopErr := s.stream.Stop()
	if err := s.stream.Close(); err != nil {
		return err
	}
	return stopErr
}
