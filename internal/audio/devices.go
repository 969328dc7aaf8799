// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// ErrNoLoopbackDevice is returned when no input device looks like a system
// loopback source.
var ErrNoLoopbackDevice = errors.New("no loopback input device found")

// loopbackHints are lower-case substrings of device names that expose the
// system output as an input.
var loopbackHints = []string{
	"monitor",
	"loopback",
	"stereo mix",
	"what u hear",
	"wave out mix",
	"blackhole",
	"soundflower",
}

// Device represents an audio device.
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	Loopback          bool
}

// Initialize sets up the PortAudio subsystem.
// This must be called before any audio operations and paired with a Terminate() call.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// paDevicesFunc is swapped out in tests.
var paDevicesFunc = portaudio.Devices

// defaultInputFunc is swapped out in tests.
var defaultInputFunc = portaudio.DefaultInputDevice

// IsLoopbackName reports whether a device name suggests a loopback source.
func IsLoopbackName(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range loopbackHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// HostDevices returns every device PortAudio knows about. PortAudio must be
// initialized.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			Loopback:          info.MaxInputChannels > 0 && IsLoopbackName(info.Name),
		}
	}
	return devices, nil
}

// InputDevice returns the input device whose name contains name
// (case-insensitive), or the system default input when name is empty.
func InputDevice(name string) (*portaudio.DeviceInfo, error) {
	if strings.TrimSpace(name) == "" {
		return defaultInputFunc()
	}

	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(name)
	for _, info := range infos {
		if info.MaxInputChannels > 0 && strings.Contains(strings.ToLower(info.Name), want) {
			return info, nil
		}
	}
	return nil, fmt.Errorf("no input device matching %q", name)
}

// LoopbackDevice returns the named device, or the first input device whose
// name looks like a loopback source when name is empty.
func LoopbackDevice(name string) (*portaudio.DeviceInfo, error) {
	if strings.TrimSpace(name) != "" {
		return InputDevice(name)
	}

	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.MaxInputChannels > 0 && IsLoopbackName(info.Name) {
			return info, nil
		}
	}
	return nil, ErrNoLoopbackDevice
}

// ListDevices writes a description of every device to w.
func ListDevices(w io.Writer) error {
	devices, err := HostDevices()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nAvailable Audio Devices\n\n")

	for _, device := range devices {
		deviceType := ""
		switch {
		case device.MaxInputChannels > 0 && device.MaxOutputChannels > 0:
			deviceType = "Input/Output"
		case device.MaxInputChannels > 0:
			deviceType = "Input"
		case device.MaxOutputChannels > 0:
			deviceType = "Output"
		}
		if device.Loopback {
			deviceType += ", loopback"
		}

		fmt.Fprintf(w, "[%d] %s (%s)\n", device.ID, device.Name, deviceType)
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", device.MaxInputChannels, device.MaxOutputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", device.DefaultSampleRate)
		fmt.Fprintln(w)
	}

	return nil
}
