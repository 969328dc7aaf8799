// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"audiovis/internal/analysis"
	"audiovis/internal/audio"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Analysis.FFTSize != audio.DefaultFFTSize {
		t.Errorf("FFTSize = %d, want %d", cfg.Analysis.FFTSize, audio.DefaultFFTSize)
	}
	if len(cfg.Sources.Order) != len(DefaultSourceOrder) {
		t.Errorf("Order = %v, want %v", cfg.Sources.Order, DefaultSourceOrder)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
tui: false
audio:
  sample_rate: 48000
  channels: 1
sources:
  order: [microphone, loopback]
  microphone_device: USB
analysis:
  waveform_size: 256
  fft_size: 2048
  window: blackman
  silence_threshold: 0.001
  silence_timeout: 2s
  fps: 60
transport:
  udp_enabled: true
  udp_target_address: 10.0.0.2:7000
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.TUI {
		t.Error("tui should be off")
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.Channels != 1 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Audio.FramesPerBuffer != DefaultFramesPerBuffer {
		t.Errorf("unset fields should keep defaults, FramesPerBuffer = %d", cfg.Audio.FramesPerBuffer)
	}
	if cfg.Analysis.SilenceTimeout != 2*time.Second {
		t.Errorf("SilenceTimeout = %v, want 2s", cfg.Analysis.SilenceTimeout)
	}

	order, err := cfg.SourceOrder()
	if err != nil {
		t.Fatalf("SourceOrder: %v", err)
	}
	if len(order) != 2 || order[0] != audio.Microphone || order[1] != audio.SystemLoopback {
		t.Errorf("SourceOrder = %v, want [microphone loopback]", order)
	}

	pc, err := cfg.ProviderConfig()
	if err != nil {
		t.Fatalf("ProviderConfig: %v", err)
	}
	if pc.WaveformSize != 256 || pc.FFTSize != 2048 || pc.SampleRate != 48000 {
		t.Errorf("provider sizes = %d/%d/%v", pc.WaveformSize, pc.FFTSize, pc.SampleRate)
	}
	if pc.Window != analysis.Blackman {
		t.Errorf("Window = %v, want Blackman", pc.Window)
	}
	if pc.SilenceThreshold != 0.001 {
		t.Errorf("SilenceThreshold = %v, want 0.001", pc.SilenceThreshold)
	}
}

func TestSourceOrderSkipsLocalWithoutFile(t *testing.T) {
	cfg := Default()
	order, err := cfg.SourceOrder()
	if err != nil {
		t.Fatalf("SourceOrder: %v", err)
	}
	if len(order) != 2 || order[0] != audio.SystemLoopback {
		t.Errorf("SourceOrder = %v, want [loopback microphone]", order)
	}

	cfg.Sources.LocalFile = "song.mp3"
	order, _ = cfg.SourceOrder()
	if len(order) != 3 || order[0] != audio.LocalPlayback {
		t.Errorf("SourceOrder = %v, want local first", order)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"low sample rate", func(c *Config) { c.Audio.SampleRate = 100 }, "audio.sample_rate"},
		{"zero frames", func(c *Config) { c.Audio.FramesPerBuffer = 0 }, "audio.frames_per_buffer"},
		{"three channels", func(c *Config) { c.Audio.Channels = 3 }, "audio.channels"},
		{"empty order", func(c *Config) { c.Sources.Order = nil }, "sources.order must name"},
		{"unknown source", func(c *Config) { c.Sources.Order = []string{"radio"} }, "unknown source"},
		{"duplicate source", func(c *Config) { c.Sources.Order = []string{"mic", "microphone"} }, "twice"},
		{"waveform not pow2", func(c *Config) { c.Analysis.WaveformSize = 500 }, "analysis.waveform_size 500 must be a power of two (try 256 or 512)"},
		{"fft not pow2", func(c *Config) { c.Analysis.FFTSize = 1000 }, "(try 512 or 1024)"},
		{"fft of one", func(c *Config) { c.Analysis.FFTSize = 1 }, "analysis.fft_size 1 must be a power of two of at least 2 (try 2)"},
		{"unknown window", func(c *Config) { c.Analysis.Window = "triangle" }, "analysis.window"},
		{"negative threshold", func(c *Config) { c.Analysis.SilenceThreshold = -1 }, "silence_threshold"},
		{"zero timeout", func(c *Config) { c.Analysis.SilenceTimeout = 0 }, "silence_timeout"},
		{"zero fps", func(c *Config) { c.Analysis.FPS = 0 }, "analysis.fps"},
		{"udp without port", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = "localhost"
		}, "missing port"},
		{"record local", func(c *Config) {
			c.Recording.Enabled = true
			c.Recording.Source = "local"
		}, "capture source"},
		{"record unused source", func(c *Config) {
			c.Recording.Enabled = true
			c.Sources.Order = []string{"loopback"}
		}, "not in sources.order"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV_SOURCES_ORDER", "mic, loopback")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "192.168.1.5:9000")
	t.Setenv("ENV_SILENCE_TIMEOUT", "250ms")
	t.Setenv("ENV_METRICS_ADDRESS", ":9100")
	t.Setenv("ENV_DEBUG", "not-a-bool")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := strings.Join(cfg.Sources.Order, ","); got != "mic,loopback" {
		t.Errorf("Order = %q, want mic,loopback", got)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "192.168.1.5:9000" {
		t.Errorf("transport = %+v", cfg.Transport)
	}
	if cfg.Analysis.SilenceTimeout != 250*time.Millisecond {
		t.Errorf("SilenceTimeout = %v, want 250ms", cfg.Analysis.SilenceTimeout)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Address != ":9100" {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
	if cfg.Debug {
		t.Error("unparseable ENV_DEBUG should be ignored")
	}
}

func TestRecordingPath(t *testing.T) {
	cfg := Default()
	now := time.Date(2025, 4, 13, 10, 20, 30, 0, time.UTC)
	want := filepath.Join(DefaultRecordingDir, "recording-microphone-13-04-2025-102030.wav")
	if got := cfg.RecordingPath(now); got != want {
		t.Errorf("RecordingPath = %q, want %q", got, want)
	}
}
