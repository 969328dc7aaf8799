// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audiovis/cmd"
	"audiovis/internal/audio"
	"audiovis/internal/config"
	applog "audiovis/internal/log"
	"audiovis/internal/observe"
	"audiovis/internal/playback"
	"audiovis/internal/transport"
	"audiovis/internal/transport/udp"
	"audiovis/internal/tui"
	"audiovis/internal/vis"
	"audiovis/pkg/build"

	"github.com/gordonklaus/portaudio"
	"golang.org/x/sync/errgroup"
)

// main is the entry point for the visualizer.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase:
//   - Initialize build information and parse arguments
//   - Initialize PortAudio and metrics
//   - Execute one-off commands if requested
//   - Build providers in priority order, the engine and its publishers
//
// 2. Concurrent Phase:
//   - Capture goroutines fill the providers
//   - The meter or a headless driver renders frames
//   - Playback, publishers and the metrics endpoint run alongside
//
// 3. Shutdown Phase:
//   - Handle termination signals
//   - Dispose providers, then close publishers
func main() {
	if err := run(); err != nil {
		applog.Fatalf("%v", err)
	}
}

func run() error {
	// ==================== STARTUP PHASE ====================

	if err := build.Initialize(); err != nil {
		applog.Debugf("development build: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		return err
	}
	if opts.Command == "" {
		return nil
	}

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	if opts.Command == cmd.CommandList {
		if opts.Browse {
			return tui.RunDeviceList()
		}
		return audio.ListDevices(os.Stdout)
	}

	cfg := opts.Config
	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}
	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
	}
	if cfg.TUI {
		closeLog, err := redirectLog(cfg.Debug)
		if err != nil {
			return err
		}
		defer closeLog()
	}

	if cfg.Metrics.Enabled {
		shutdown, err := observe.InitProvider()
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				applog.Warnf("metrics shutdown: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg)
	if err != nil {
		return err
	}

	// ==================== CONCURRENT PHASE ====================

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Leaving the render loop ends the program.
		defer stop()
		if cfg.TUI {
			return tui.RunMeter(gctx, app.driver, tui.MeterConfig{
				FPS:     cfg.Analysis.FPS,
				FFTSize: cfg.Analysis.FFTSize,
			})
		}
		return app.driver.Run(gctx, cfg.Analysis.FPS)
	})
	if app.player != nil {
		g.Go(func() error {
			if err := app.player.Run(gctx); err != nil {
				// The local source goes silent; the others keep running.
				applog.Errorf("playback: %v", err)
			}
			return nil
		})
	}
	if app.websocket != nil {
		g.Go(func() error { return app.websocket.Run(gctx) })
	}
	if cfg.Metrics.Enabled {
		g.Go(func() error { return observe.NewServer(cfg.Metrics.Address).Run(gctx) })
	}

	runErr := g.Wait()

	// ==================== SHUTDOWN PHASE ====================

	return errors.Join(runErr, app.close())
}

// app holds everything main wires together.
type app struct {
	engine    *vis.Engine
	driver    *vis.Driver
	player    *playback.Player
	publisher *transport.Publisher
	websocket *transport.WebSocketTransport
}

func newApp(cfg *config.Config) (*app, error) {
	pc, err := cfg.ProviderConfig()
	if err != nil {
		return nil, err
	}
	order, err := cfg.SourceOrder()
	if err != nil {
		return nil, err
	}

	a := &app{}
	var providers []audio.Provider
	for _, kind := range order {
		p, err := a.newProvider(cfg, pc, kind)
		if err != nil {
			applog.Warnf("%s source disabled: %v", kind, err)
			continue
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, errors.New("no audio source could be created")
	}

	frames := &vis.FrameCounter{}
	a.engine, err = vis.NewEngine(frames, vis.Config{
		WaveformSize: pc.WaveformSize,
		SpectrumBins: pc.FFTSize / 2,
	}, providers...)
	if err != nil {
		return nil, errors.Join(err, disposeAll(providers), a.closePlayer())
	}
	a.driver = vis.NewDriver(a.engine, frames, nil)

	if err := a.newPublisher(cfg); err != nil {
		return nil, errors.Join(err, a.close())
	}
	return a, nil
}

// newProvider creates the provider for one source kind.
func (a *app) newProvider(cfg *config.Config, pc audio.ProviderConfig, kind audio.SourceKind) (audio.Provider, error) {
	if kind == audio.LocalPlayback {
		player, err := playback.NewPlayer(cfg.Sources.LocalFile, cfg.Audio.FramesPerBuffer,
			max(pc.WaveformSize, pc.FFTSize), playback.WithLoop(cfg.Sources.Loop))
		if err != nil {
			return nil, err
		}
		pc.SampleRate = float64(player.SampleRate())
		p, err := audio.NewLocalProvider(player.Tap(), pc)
		if err != nil {
			return nil, errors.Join(err, player.Close())
		}
		a.player = player
		return p, nil
	}

	var lookup func(string) (*portaudio.DeviceInfo, error)
	var name string
	if kind == audio.SystemLoopback {
		lookup, name = audio.LoopbackDevice, cfg.Sources.LoopbackDevice
	} else {
		lookup, name = audio.InputDevice, cfg.Sources.MicrophoneDevice
	}
	device, err := lookup(name)
	if err != nil {
		return nil, err
	}
	opener, err := audio.NewDeviceOpener(device, cfg.Audio.SampleRate, cfg.Audio.FramesPerBuffer, cfg.Audio.LowLatency)
	if err != nil {
		return nil, err
	}
	opener.LimitChannels(cfg.Audio.Channels)
	applog.Infof("%s source: %s (%d ch)", kind, opener.DeviceName(), opener.Channels())

	var opts []audio.CaptureOption
	if cfg.Recording.Enabled && cfg.Recording.Source == kind.String() {
		rec, err := newRecorder(cfg, opener.Channels())
		if err != nil {
			return nil, err
		}
		opts = append(opts, audio.WithRecorder(rec))
	}
	return audio.NewCaptureProvider(kind, opener, pc, opts...)
}

func newRecorder(cfg *config.Config, channels int) (*audio.Recorder, error) {
	if err := os.MkdirAll(cfg.Recording.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	path := cfg.RecordingPath(time.Now())
	rec, err := audio.NewRecorder(path, int(cfg.Audio.SampleRate), channels)
	if err != nil {
		return nil, err
	}
	applog.Infof("recording to %s", path)
	return rec, nil
}

// newPublisher attaches a publisher when any transport is configured.
func (a *app) newPublisher(cfg *config.Config) error {
	tc := cfg.Transport
	if !tc.WebSocketEnabled && !tc.UDPEnabled && !tc.LogFrames {
		return nil
	}

	a.publisher = transport.NewPublisher(transport.PublisherConfig{
		Every:    tc.PublishEvery,
		Waveform: tc.IncludeWaveform,
		FFTSize:  cfg.Analysis.FFTSize,
	})
	if tc.WebSocketEnabled {
		a.websocket = transport.NewWebSocketTransport(tc.WebSocketAddress)
		a.publisher.Add("websocket", a.websocket)
	}
	if tc.UDPEnabled {
		t, err := udp.NewTransport(tc.UDPTargetAddress)
		if err != nil {
			return fmt.Errorf("udp transport: %w", err)
		}
		a.publisher.Add("udp", t)
	}
	if tc.LogFrames {
		a.publisher.Add("log", transport.NewLoggingTransport())
	}
	a.engine.AddVisualizer(a.publisher)
	return nil
}

// close disposes providers before closing publishers. The player is closed
// last; after Run has returned that is a no-op.
func (a *app) close() error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Dispose())
	}
	if a.publisher != nil {
		a.engine.RemoveVisualizer(a.publisher)
		errs = append(errs, a.publisher.Close())
	}
	errs = append(errs, a.closePlayer())
	return errors.Join(errs...)
}

func (a *app) closePlayer() error {
	if a.player == nil {
		return nil
	}
	return a.player.Close()
}

func disposeAll(providers []audio.Provider) error {
	var errs []error
	for _, p := range providers {
		errs = append(errs, p.Dispose())
	}
	return errors.Join(errs...)
}

// redirectLog keeps log lines off the meter's screen. Debug runs log to
// audiovis.log; otherwise logs are dropped.
func redirectLog(debug bool) (func(), error) {
	if !debug {
		applog.SetOutput(io.Discard)
		return func() { applog.SetOutput(os.Stderr) }, nil
	}
	f, err := os.OpenFile("audiovis.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	applog.SetOutput(f)
	return func() {
		applog.SetOutput(os.Stderr)
		f.Close()
	}, nil
}
