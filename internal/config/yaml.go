// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"audiovis/internal/analysis"
	"audiovis/internal/audio"
	applog "audiovis/internal/log"
	"audiovis/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"config.yaml",
			"audiovis.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not recognized", c.LogLevel))
	}

	// Audio
	check(c.Audio.SampleRate >= MinSampleRate && c.Audio.SampleRate <= MaxSampleRate,
		"audio.sample_rate %v must be between %d and %d", c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	check(c.Audio.FramesPerBuffer > 0 && c.Audio.FramesPerBuffer <= MaxBufferFrames,
		"audio.frames_per_buffer %d must be between 1 and %d", c.Audio.FramesPerBuffer, MaxBufferFrames)
	check(c.Audio.Channels >= 1 && c.Audio.Channels <= audio.MaxChannels,
		"audio.channels %d must be between 1 and %d", c.Audio.Channels, audio.MaxChannels)

	// Sources
	check(len(c.Sources.Order) > 0, "sources.order must name at least one source")
	seen := make(map[audio.SourceKind]bool)
	for _, name := range c.Sources.Order {
		kind, err := audio.ParseSourceKind(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("sources.order: %w", err))
			continue
		}
		check(!seen[kind], "sources.order lists %s twice", kind)
		seen[kind] = true
	}

	// Analysis
	check(bitint.IsPowerOfTwo(c.Analysis.WaveformSize),
		"analysis.waveform_size %d must be a power of two (%s)",
		c.Analysis.WaveformSize, powerOfTwoHint(c.Analysis.WaveformSize))
	check(bitint.IsPowerOfTwo(c.Analysis.FFTSize) && c.Analysis.FFTSize >= 2,
		"analysis.fft_size %d must be a power of two of at least 2 (%s)",
		c.Analysis.FFTSize, powerOfTwoHint(max(c.Analysis.FFTSize, 2)))
	if _, err := analysis.ParseWindowFunc(c.Analysis.Window); err != nil {
		errs = append(errs, fmt.Errorf("analysis.window: %w", err))
	}
	check(c.Analysis.SilenceThreshold >= 0, "analysis.silence_threshold must not be negative")
	check(c.Analysis.SilenceTimeout > 0, "analysis.silence_timeout must be positive")
	check(c.Analysis.RestartDelay >= 0, "analysis.restart_delay must not be negative")
	check(c.Analysis.FPS >= 1 && c.Analysis.FPS <= MaxFPS,
		"analysis.fps %d must be between 1 and %d", c.Analysis.FPS, MaxFPS)

	// Transport
	if c.Transport.UDPEnabled {
		check(strings.Contains(c.Transport.UDPTargetAddress, ":"),
			"transport.udp_target_address '%s' appears invalid (missing port?)", c.Transport.UDPTargetAddress)
	}
	if c.Transport.WebSocketEnabled {
		check(c.Transport.WebSocketAddress != "", "transport.websocket_address must be set when the websocket is enabled")
	}
	check(c.Transport.PublishEvery >= 1, "transport.publish_every must be at least 1")

	if c.Metrics.Enabled {
		check(c.Metrics.Address != "", "metrics.address must be set when metrics are enabled")
	}

	// Recording
	if c.Recording.Enabled {
		kind, err := audio.ParseSourceKind(c.Recording.Source)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("recording.source: %w", err))
		case kind == audio.LocalPlayback:
			errs = append(errs, errors.New("recording.source must be a capture source"))
		case !seen[kind]:
			errs = append(errs, fmt.Errorf("recording.source %s is not in sources.order", kind))
		}
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of the file settings.
// Unparseable values are ignored.
func (cfg *Config) applyEnvOverrides() {
	log := applog.Named("configuration")

	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			log.Debugf("overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		log.Debugf("overriding log_level from env: %s", val)
	}

	// ENV_SOURCES_{...}
	// These select and order the inputs.

	// ENV_SOURCES_ORDER
	if val, ok := os.LookupEnv("ENV_SOURCES_ORDER"); ok {
		cfg.Sources.Order = splitList(val)
		log.Debugf("overriding sources.order from env: %v", cfg.Sources.Order)
	}
	// ENV_SOURCES_LOCAL_FILE
	if val, ok := os.LookupEnv("ENV_SOURCES_LOCAL_FILE"); ok {
		cfg.Sources.LocalFile = val
		log.Debugf("overriding sources.local_file from env: %s", val)
	}
	// ENV_SOURCES_LOOPBACK_DEVICE
	if val, ok := os.LookupEnv("ENV_SOURCES_LOOPBACK_DEVICE"); ok {
		cfg.Sources.LoopbackDevice = val
		log.Debugf("overriding sources.loopback_device from env: %s", val)
	}
	// ENV_SOURCES_MICROPHONE_DEVICE
	if val, ok := os.LookupEnv("ENV_SOURCES_MICROPHONE_DEVICE"); ok {
		cfg.Sources.MicrophoneDevice = val
		log.Debugf("overriding sources.microphone_device from env: %s", val)
	}

	// ENV_SILENCE_TIMEOUT
	if val, ok := os.LookupEnv("ENV_SILENCE_TIMEOUT"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Analysis.SilenceTimeout = dur
			log.Debugf("overriding analysis.silence_timeout from env: %s", dur)
		}
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			log.Debugf("overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		log.Debugf("overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_WEBSOCKET_ADDRESS
	if val, ok := os.LookupEnv("ENV_WEBSOCKET_ADDRESS"); ok {
		cfg.Transport.WebSocketEnabled = true
		cfg.Transport.WebSocketAddress = val
		log.Debugf("overriding transport.websocket_address from env: %s", val)
	}
	// ENV_METRICS_ADDRESS
	if val, ok := os.LookupEnv("ENV_METRICS_ADDRESS"); ok {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = val
		log.Debugf("overriding metrics.address from env: %s", val)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// powerOfTwoHint names the powers of two either side of n.
func powerOfTwoHint(n int) string {
	lo, hi := bitint.PrevPowerOfTwo(n), bitint.NextPowerOfTwo(n)
	if lo == hi {
		return fmt.Sprintf("try %d", hi)
	}
	return fmt.Sprintf("try %d or %d", lo, hi)
}
