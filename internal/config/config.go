// SPDX-License-Identifier: MIT
package config

import (
	"path/filepath"
	"time"

	"audiovis/internal/analysis"
	"audiovis/internal/audio"
)

// Defaults and limits for the engine configuration.
const (
	DefaultSampleRate      = 44100 // CD-quality audio
	DefaultFramesPerBuffer = 512   // Balanced latency/performance
	DefaultChannels        = 2     // Stereo capture where the device allows it
	DefaultFPS             = 30
	DefaultWindow          = "hann"
	DefaultWebSocketAddr   = "localhost:8080"
	DefaultUDPTarget       = "127.0.0.1:9090"
	DefaultMetricsAddr     = "localhost:9464"
	DefaultRecordingDir    = "./recordings"

	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
	MaxFPS          = 240
)

// DefaultSourceOrder is the priority used when none is configured.
var DefaultSourceOrder = []string{"local", "loopback", "microphone"}

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug logging.
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	TUI       bool            `yaml:"tui"`       // Run the terminal meter instead of a headless loop.
	Audio     AudioConfig     `yaml:"audio"`
	Sources   SourcesConfig   `yaml:"sources"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Recording RecordingConfig `yaml:"recording"`
}

// AudioConfig holds the stream settings shared by every capture device.
type AudioConfig struct {
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per read; also the playback write size.
	Channels        int     `yaml:"channels"`          // Upper bound on capture channels (1 or 2).
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
}

// SourcesConfig chooses the providers and their priority.
type SourcesConfig struct {
	// Order lists source kinds by priority. The first non-silent one is
	// visualized.
	Order            []string `yaml:"order"`
	LoopbackDevice   string   `yaml:"loopback_device"`   // Substring of the loopback device name; empty auto-detects.
	MicrophoneDevice string   `yaml:"microphone_device"` // Substring of the microphone device name; empty uses the default input.
	LocalFile        string   `yaml:"local_file"`        // Audio file played for the local source.
	Loop             bool     `yaml:"loop"`              // Restart the local file when it ends.
}

// AnalysisConfig sizes the waveform and spectrum and tunes silence detection.
type AnalysisConfig struct {
	WaveformSize     int           `yaml:"waveform_size"`
	FFTSize          int           `yaml:"fft_size"`
	Window           string        `yaml:"window"`
	SilenceThreshold float32       `yaml:"silence_threshold"`
	SilenceTimeout   time.Duration `yaml:"silence_timeout"`
	RestartDelay     time.Duration `yaml:"restart_delay"`
	FPS              int           `yaml:"fps"`
}

// TransportConfig holds settings related to sending frames over the network.
type TransportConfig struct {
	WebSocketEnabled bool   `yaml:"websocket_enabled"`
	WebSocketAddress string `yaml:"websocket_address"`
	UDPEnabled       bool   `yaml:"udp_enabled"`        // Enable sending spectrum packets over UDP.
	UDPTargetAddress string `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	LogFrames        bool   `yaml:"log_frames"`         // Log every published frame at debug level.
	PublishEvery     int    `yaml:"publish_every"`      // Publish one frame in n.
	IncludeWaveform  bool   `yaml:"include_waveform"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// RecordingConfig holds settings related to audio recording functionality.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Enable audio recording to file.
	OutputDir string `yaml:"output_dir"` // Directory to save recorded audio files.
	Source    string `yaml:"source"`     // Capture source to record ("loopback" or "microphone").
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		TUI:      true,
		Audio: AudioConfig{
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			Channels:        DefaultChannels,
		},
		Sources: SourcesConfig{
			Order: append([]string(nil), DefaultSourceOrder...),
			Loop:  true,
		},
		Analysis: AnalysisConfig{
			WaveformSize:     audio.DefaultWaveformSize,
			FFTSize:          audio.DefaultFFTSize,
			Window:           DefaultWindow,
			SilenceThreshold: audio.DefaultSilenceThreshold,
			SilenceTimeout:   audio.DefaultSilenceTimeout,
			RestartDelay:     audio.DefaultRestartDelay,
			FPS:              DefaultFPS,
		},
		Transport: TransportConfig{
			WebSocketAddress: DefaultWebSocketAddr,
			UDPTargetAddress: DefaultUDPTarget,
			PublishEvery:     1,
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddr,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordingDir,
			Source:    "microphone",
		},
	}
}

// SourceOrder parses Sources.Order. The local source is left out when no
// file is configured for it.
func (c *Config) SourceOrder() ([]audio.SourceKind, error) {
	kinds := make([]audio.SourceKind, 0, len(c.Sources.Order))
	for _, name := range c.Sources.Order {
		kind, err := audio.ParseSourceKind(name)
		if err != nil {
			return nil, err
		}
		if kind == audio.LocalPlayback && c.Sources.LocalFile == "" {
			continue
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// ProviderConfig converts the analysis settings for the audio providers.
func (c *Config) ProviderConfig() (audio.ProviderConfig, error) {
	w, err := analysis.ParseWindowFunc(c.Analysis.Window)
	if err != nil {
		return audio.ProviderConfig{}, err
	}
	pc := audio.DefaultProviderConfig()
	pc.WaveformSize = c.Analysis.WaveformSize
	pc.FFTSize = c.Analysis.FFTSize
	pc.SampleRate = c.Audio.SampleRate
	pc.Window = w
	pc.SilenceThreshold = c.Analysis.SilenceThreshold
	pc.SilenceTimeout = c.Analysis.SilenceTimeout
	pc.RestartDelay = c.Analysis.RestartDelay
	return pc, nil
}

// RecordingPath returns a timestamped WAV path inside the recording directory.
func (c *Config) RecordingPath(now time.Time) string {
	name := "recording-" + c.Recording.Source + "-" + now.UTC().Format("02-01-2006-150405") + ".wav"
	return filepath.Join(c.Recording.OutputDir, name)
}
