// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseArgsRun(t *testing.T) {
	t.Chdir(t.TempDir())

	opts, err := ParseArgs([]string{
		"--headless", "--sources", "mic,loopback", "--fps", "10",
		"--udp", "127.0.0.1:7000", "--record", "-v",
	})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if opts.Command != CommandRun {
		t.Fatalf("Command = %q, want %q", opts.Command, CommandRun)
	}

	cfg := opts.Config
	if cfg.TUI {
		t.Error("--headless should disable the meter")
	}
	if got := strings.Join(cfg.Sources.Order, ","); got != "mic,loopback" {
		t.Errorf("Order = %q", got)
	}
	if cfg.Analysis.FPS != 10 {
		t.Errorf("FPS = %d, want 10", cfg.Analysis.FPS)
	}
	if !cfg.Transport.UDPEnabled || cfg.Transport.UDPTargetAddress != "127.0.0.1:7000" {
		t.Errorf("transport = %+v", cfg.Transport)
	}
	if !cfg.Recording.Enabled || cfg.Recording.Source != "microphone" {
		t.Errorf("recording = %+v", cfg.Recording)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.Transport.WebSocketEnabled || cfg.Metrics.Enabled {
		t.Error("unset flags should not enable publishers")
	}
}

func TestParseArgsFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	content := "analysis:\n  fps: 45\n  fft_size: 512\ntui: false\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	opts, err := ParseArgs([]string{"--config", path, "--fps", "20"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if opts.Config.Analysis.FPS != 20 {
		t.Errorf("FPS = %d, want the flag value 20", opts.Config.Analysis.FPS)
	}
	if opts.Config.Analysis.FFTSize != 512 {
		t.Errorf("FFTSize = %d, want the file value 512", opts.Config.Analysis.FFTSize)
	}
	if opts.Config.TUI {
		t.Error("file setting tui: false should survive unset flags")
	}
}

func TestParseArgsList(t *testing.T) {
	opts, err := ParseArgs([]string{"list", "--tui"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if opts.Command != CommandList || !opts.Browse {
		t.Errorf("opts = %+v, want list with browser", opts)
	}
}

func TestParseArgsErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"invalid fps", []string{"--fps", "0"}, "analysis.fps"},
		{"unknown source", []string{"--sources", "radio"}, "unknown source"},
		{"unknown flag", []string{"--bogus"}, "unknown flag"},
		{"positional argument", []string{"extra"}, "unknown command"},
		{"missing config", []string{"--config", "missing.yaml"}, "failed to read config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArgs(tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("ParseArgs(%v) error = %v, want it to mention %q", tt.args, err, tt.want)
			}
		})
	}
}
