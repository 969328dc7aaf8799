// SPDX-License-Identifier: MIT
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	applog "audiovis/internal/log"
)

// Player streams one file to a Sink and mirrors the output into a Tap.
type Player struct {
	path            string
	loop            bool
	framesPerBuffer int
	openSink        SinkFunc

	decoder   Decoder
	closeOnce sync.Once
	closeErr  error
	tap       *Tap
	log       applog.Logger
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithLoop restarts the file when it ends.
func WithLoop(loop bool) PlayerOption {
	return func(p *Player) { p.loop = loop }
}

// WithSink replaces the PortAudio output.
func WithSink(open SinkFunc) PlayerOption {
	return func(p *Player) { p.openSink = open }
}

// NewPlayer opens path so the format is known before playback starts. The
// tap keeps tapFrames frames of output.
func NewPlayer(path string, framesPerBuffer, tapFrames int, opts ...PlayerOption) (*Player, error) {
	if framesPerBuffer < 1 {
		return nil, fmt.Errorf("invalid frames per buffer: %d", framesPerBuffer)
	}
	dec, err := Open(path)
	if err != nil {
		return nil, err
	}

	p := &Player{
		path:            path,
		framesPerBuffer: framesPerBuffer,
		openSink:        OpenPortAudioSink,
		decoder:         dec,
		tap:             NewTap(dec.Channels(), float64(dec.SampleRate()), tapFrames),
		log:             applog.Named("player"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Tap returns the output mirror.
func (p *Player) Tap() *Tap { return p.tap }

func (p *Player) Channels() int   { return p.decoder.Channels() }
func (p *Player) SampleRate() int { return p.decoder.SampleRate() }

// Run plays until the file ends (unless looping) or ctx is cancelled. The
// tap is reset on return so the local source reads as silent.
func (p *Player) Run(ctx context.Context) (err error) {
	channels := p.decoder.Channels()
	sink, err := p.openSink(channels, float64(p.decoder.SampleRate()), p.framesPerBuffer)
	if err != nil {
		return errors.Join(err, p.Close())
	}
	defer func() {
		p.tap.Reset()
		err = errors.Join(err, sink.Close(), p.Close())
	}()

	p.log.Infof("playing %s (%d ch, %d Hz)", p.path, channels, p.decoder.SampleRate())
	chunk := make([]float32, p.framesPerBuffer*channels)
	played := 0 // samples since the last rewind
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, rerr := p.decoder.Read(chunk)
		if n > 0 {
			if werr := sink.Write(chunk[:n]); werr != nil {
				return fmt.Errorf("write output: %w", werr)
			}
			p.tap.Write(chunk[:n])
			played += n
		}

		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF):
			if !p.loop {
				p.log.Infof("finished %s", p.path)
				return nil
			}
			if played == 0 {
				return fmt.Errorf("%s has no audio to loop", p.path)
			}
			if err := p.rewind(); err != nil {
				return err
			}
			played = 0
		default:
			return fmt.Errorf("decode: %w", rerr)
		}
	}
}

// Close releases the decoder. Run closes it on return, so Close only matters
// for a player that never runs. Later calls return the first result.
func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.decoder.Close()
	})
	return p.closeErr
}

// rewind reopens the file from the start.
func (p *Player) rewind() error {
	dec, err := Open(p.path)
	if err != nil {
		return fmt.Errorf("rewind: %w", err)
	}
	if dec.Channels() != p.decoder.Channels() {
		dec.Close()
		return fmt.Errorf("rewind: channel count changed from %d to %d", p.decoder.Channels(), dec.Channels())
	}
	p.decoder.Close()
	p.decoder = dec
	p.log.Debugf("looping %s", p.path)
	return nil
}
