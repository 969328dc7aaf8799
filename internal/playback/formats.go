// SPDX-License-Identifier: MIT
package playback

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
)

// --- WAV ---

type wavDecoder struct {
	decoder  *wav.Decoder
	file     *os.File
	channels int
	rate     int
	maxVal   float32
	intBuf   *goaudio.IntBuffer
}

func newWAVDecoder(f *os.File) (Decoder, error) {
	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}
	if err := decoder.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("failed to seek to PCM data: %w", err)
	}

	channels := int(decoder.NumChans)
	rate := int(decoder.SampleRate)
	return &wavDecoder{
		decoder:  decoder,
		file:     f,
		channels: channels,
		rate:     rate,
		maxVal:   float32(goaudio.IntMaxSignedValue(int(decoder.BitDepth))),
		intBuf: &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: channels, SampleRate: rate},
		},
	}, nil
}

func (d *wavDecoder) Read(dst []float32) (int, error) {
	want := wholeFrames(len(dst), d.channels)
	if cap(d.intBuf.Data) < want {
		d.intBuf.Data = make([]int, want)
	}
	d.intBuf.Data = d.intBuf.Data[:want]

	n, err := d.decoder.PCMBuffer(d.intBuf)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("failed to read PCM buffer: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	for i, s := range d.intBuf.Data[:n] {
		dst[i] = float32(s) / d.maxVal
	}
	return n, nil
}

func (d *wavDecoder) SampleRate() int { return d.rate }
func (d *wavDecoder) Channels() int   { return d.channels }
func (d *wavDecoder) Close() error    { return d.file.Close() }

// --- MP3 ---

// go-mp3 always decodes to 16-bit little-endian stereo.
const mp3Channels = 2

type mp3Decoder struct {
	decoder *mp3.Decoder
	file    *os.File
	buf     []byte
}

func newMP3Decoder(f *os.File) (Decoder, error) {
	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}
	return &mp3Decoder{decoder: decoder, file: f}, nil
}

func (d *mp3Decoder) Read(dst []float32) (int, error) {
	want := wholeFrames(len(dst), mp3Channels) * 2
	if cap(d.buf) < want {
		d.buf = make([]byte, want)
	}
	buf := d.buf[:want]

	n, err := io.ReadFull(d.decoder, buf)
	samples := wholeFrames(n/2, mp3Channels)
	for i := range samples {
		dst[i] = float32(int16(binary.LittleEndian.Uint16(buf[2*i:]))) / 32768
	}
	return eofIfEmpty(samples, err)
}

func (d *mp3Decoder) SampleRate() int { return d.decoder.SampleRate() }
func (d *mp3Decoder) Channels() int   { return mp3Channels }
func (d *mp3Decoder) Close() error    { return d.file.Close() }

// --- Ogg Vorbis ---

type oggDecoder struct {
	reader *oggvorbis.Reader
	file   *os.File
}

func newOggDecoder(f *os.File) (Decoder, error) {
	reader, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vorbis decoder: %w", err)
	}
	return &oggDecoder{reader: reader, file: f}, nil
}

func (d *oggDecoder) Read(dst []float32) (int, error) {
	n, err := d.reader.Read(dst[:wholeFrames(len(dst), d.reader.Channels())])
	return eofIfEmpty(n, err)
}

func (d *oggDecoder) SampleRate() int { return d.reader.SampleRate() }
func (d *oggDecoder) Channels() int   { return d.reader.Channels() }
func (d *oggDecoder) Close() error    { return d.file.Close() }

// --- FLAC ---

type flacDecoder struct {
	stream   *flac.Stream
	file     *os.File
	channels int
	scale    float32
	pending  []float32 // decoded samples not yet returned
}

func newFLACDecoder(f *os.File) (Decoder, error) {
	stream, err := flac.New(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create FLAC decoder: %w", err)
	}
	return &flacDecoder{
		stream:   stream,
		file:     f,
		channels: int(stream.Info.NChannels),
		scale:    1 / float32(int64(1)<<(stream.Info.BitsPerSample-1)),
	}, nil
}

func (d *flacDecoder) Read(dst []float32) (int, error) {
	dst = dst[:wholeFrames(len(dst), d.channels)]
	n := 0
	for n < len(dst) {
		if len(d.pending) == 0 {
			fr, err := d.stream.ParseNext()
			if err != nil {
				if err == io.EOF {
					return eofIfEmpty(n, nil)
				}
				return n, fmt.Errorf("failed to parse FLAC frame: %w", err)
			}
			d.interleave(fr.Subframes)
		}
		c := copy(dst[n:], d.pending)
		d.pending = d.pending[c:]
		n += c
	}
	return n, nil
}

// interleave converts one frame's per-channel subframes into pending.
func (d *flacDecoder) interleave(subframes []*frame.Subframe) {
	if len(subframes) == 0 {
		return
	}
	frames := len(subframes[0].Samples)
	need := frames * d.channels
	if cap(d.pending) < need {
		d.pending = make([]float32, need)
	}
	d.pending = d.pending[:need]
	for ch, sub := range subframes[:min(len(subframes), d.channels)] {
		for i, s := range sub.Samples {
			d.pending[i*d.channels+ch] = float32(s) * d.scale
		}
	}
}

func (d *flacDecoder) SampleRate() int { return int(d.stream.Info.SampleRate) }
func (d *flacDecoder) Channels() int   { return d.channels }

func (d *flacDecoder) Close() error {
	d.stream.Close()
	return d.file.Close()
}
