// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"audiovis/internal/config"
	"audiovis/pkg/build"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Commands selected on the command line.
const (
	CommandRun  = "run"
	CommandList = "list"
)

// Options is the outcome of parsing the command line.
type Options struct {
	Config  *config.Config
	Command string // Empty when cobra handled the invocation itself (help, version).
	Browse  bool   // list: open the interactive device browser
}

// flagValues holds raw flag values; only flags the user set are applied to
// the loaded configuration.
type flagValues struct {
	configPath     string
	sampleRate     float64
	framesPerBuf   int
	lowLatency     bool
	sources        []string
	localFile      string
	loop           bool
	loopbackDevice string
	micDevice      string
	fps            int
	headless       bool
	record         bool
	recordSource   string
	recordDir      string
	websocket      string
	udp            string
	metrics        string
	verbose        bool
}

// ParseArgs parses args (without the program name) and loads the
// configuration they point at.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	var fv flagValues

	load := func(cmd *cobra.Command) error {
		cfg, err := config.LoadConfig(fv.configPath)
		if err != nil {
			return err
		}
		fv.apply(cmd.Flags(), cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid flags: %w", err)
		}
		options.Config = cfg
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         build.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandRun
			return load(cmd)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices and the sources they can feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = CommandList
			return nil
		},
	}
	listCmd.Flags().BoolVar(&options.Browse, "tui", false, "Browse devices interactively")
	rootCmd.AddCommand(listCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&fv.configPath, "config", "f", "",
		"Path to a YAML config file. Defaults to ./config.yaml when present.")
	pf.BoolVarP(&fv.verbose, "verbose", "v", false,
		"Show verbose output")

	// Audio Device Configuration
	f := rootCmd.Flags()
	f.Float64VarP(&fv.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	f.IntVarP(&fv.framesPerBuf, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	f.BoolVarP(&fv.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")

	// Source Configuration
	f.StringSliceVar(&fv.sources, "sources", config.DefaultSourceOrder,
		"Source priority, highest first (local, loopback, microphone)")
	f.StringVar(&fv.localFile, "file", "",
		"Audio file played as the local source (wav, mp3, ogg, flac)")
	f.BoolVar(&fv.loop, "loop", true,
		"Loop the local file")
	f.StringVar(&fv.loopbackDevice, "loopback-device", "",
		"Loopback device name. Auto-detected when empty. Use 'list' to see devices.")
	f.StringVarP(&fv.micDevice, "device", "d", "",
		"Microphone device name. Uses the default input when empty.")

	// Rendering
	f.IntVar(&fv.fps, "fps", config.DefaultFPS,
		"Frames rendered per second")
	f.BoolVar(&fv.headless, "headless", false,
		"Run without the terminal meter")

	// Recording Configuration
	f.BoolVarP(&fv.record, "record", "r", false,
		"Record the captured audio of --record-source")
	f.StringVar(&fv.recordSource, "record-source", "microphone",
		"Capture source to record (loopback or microphone)")
	f.StringVarP(&fv.recordDir, "output", "o", config.DefaultRecordingDir,
		"Directory for recordings, named recording-SOURCE-DD-MM-YYYY-HHMMSS.wav")

	// Publishing
	f.StringVar(&fv.websocket, "websocket", "",
		"Serve frames over a websocket on this address (e.g. localhost:8080)")
	f.StringVar(&fv.udp, "udp", "",
		"Send spectrum packets to this UDP address")
	f.StringVar(&fv.metrics, "metrics", "",
		"Serve Prometheus metrics on this address")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}

// apply copies every flag the user set onto cfg.
func (fv *flagValues) apply(fs *pflag.FlagSet, cfg *config.Config) {
	changed := fs.Changed

	if changed("sample-rate") {
		cfg.Audio.SampleRate = fv.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = fv.framesPerBuf
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = fv.lowLatency
	}
	if changed("sources") {
		cfg.Sources.Order = fv.sources
	}
	if changed("file") {
		cfg.Sources.LocalFile = fv.localFile
	}
	if changed("loop") {
		cfg.Sources.Loop = fv.loop
	}
	if changed("loopback-device") {
		cfg.Sources.LoopbackDevice = fv.loopbackDevice
	}
	if changed("device") {
		cfg.Sources.MicrophoneDevice = fv.micDevice
	}
	if changed("fps") {
		cfg.Analysis.FPS = fv.fps
	}
	if changed("headless") {
		cfg.TUI = !fv.headless
	}
	if changed("record") {
		cfg.Recording.Enabled = fv.record
	}
	if changed("record-source") {
		cfg.Recording.Source = fv.recordSource
	}
	if changed("output") {
		cfg.Recording.OutputDir = fv.recordDir
	}
	if changed("websocket") {
		cfg.Transport.WebSocketEnabled = fv.websocket != ""
		cfg.Transport.WebSocketAddress = fv.websocket
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = fv.udp != ""
		cfg.Transport.UDPTargetAddress = fv.udp
	}
	if changed("metrics") {
		cfg.Metrics.Enabled = fv.metrics != ""
		cfg.Metrics.Address = fv.metrics
	}
	if fv.verbose {
		cfg.LogLevel = "debug"
	}
}
