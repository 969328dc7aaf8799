// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

func newTestCapture(t *testing.T, channels int, clock Clock, opts ...CaptureOption) (*CaptureProvider, *fakeOpener) {
	t.Helper()
	o := newFakeOpener(channels)
	p, err := NewCaptureProvider(Microphone, o, testConfig(clock), opts...)
	if err != nil {
		t.Fatalf("NewCaptureProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Dispose() })
	return p, o
}

func TestCaptureStereoChunk(t *testing.T) {
	p, o := newTestCapture(t, 2, newFakeClock())

	if !p.IsSilent() {
		t.Error("provider should be silent before anything is heard")
	}

	o.push(t, []float32{1, -1, 0, 0, 0.5, -0.5, 0.2, -0.2})

	if p.IsSilent() {
		t.Error("provider should be active after a loud chunk")
	}
	if p.State() != StateCapturing {
		t.Errorf("State() = %v, want %v", p.State(), StateCapturing)
	}

	left := []float32{1, 0, 0.5, 0.2}
	right := []float32{-1, 0, -0.5, -0.2}
	buf := make([]float32, 4)

	p.GetWaveform(buf, 0)
	assertSamples(t, "left waveform", buf, left)
	p.GetWaveform(buf, 1)
	assertSamples(t, "right waveform", buf, right)
	p.GetWaveform(buf, MixChannel)
	assertSamples(t, "mix waveform", buf, []float32{0, 0, 0, 0})

	cfg := testConfig(nil)
	spec := make([]float32, 2)
	p.GetSpectrum(spec, 0)
	assertSamples(t, "left spectrum", spec, expectedSpectrum(t, cfg, left))
	p.GetSpectrum(spec, 1)
	assertSamples(t, "right spectrum", spec, expectedSpectrum(t, cfg, right))
	p.GetSpectrum(spec, MixChannel)
	assertSamples(t, "mix spectrum", spec, []float32{0, 0})
}

func TestCaptureBufferLengths(t *testing.T) {
	p, o := newTestCapture(t, 2, newFakeClock())
	o.push(t, []float32{1, -1, 0, 0, 0.5, -0.5, 0.2, -0.2})

	short := make([]float32, 2)
	p.GetWaveform(short, 0)
	assertSamples(t, "short waveform", short, []float32{0.5, 0.2})

	long := []float32{9, 9, 9, 9, 9, 9}
	p.GetWaveform(long, 0)
	assertSamples(t, "long waveform", long, []float32{1, 0, 0.5, 0.2, 0, 0})

	spec := []float32{9, 9, 9, 9}
	p.GetSpectrum(spec, 0)
	if spec[2] != 0 || spec[3] != 0 {
		t.Errorf("bins past Bins() = %v, want zeros", spec[2:])
	}
}

func TestCaptureInvalidChannel(t *testing.T) {
	p, o := newTestCapture(t, 1, newFakeClock())
	o.push(t, []float32{0.5, 0.25, -0.5, 1})

	buf := []float32{9, 9, 9, 9}
	for _, ch := range []int{1, 2, -2} {
		p.GetWaveform(buf, ch)
		assertSamples(t, "waveform", buf, []float32{0, 0, 0, 0})
		p.GetSpectrum(buf, ch)
		assertSamples(t, "spectrum", buf, []float32{0, 0, 0, 0})
	}

	p.GetWaveform(buf, MixChannel)
	assertSamples(t, "mono mix", buf, []float32{0.5, 0.25, -0.5, 1})

	mix := make([]float32, 2)
	left := make([]float32, 2)
	p.GetSpectrum(mix, MixChannel)
	p.GetSpectrum(left, 0)
	assertSamples(t, "mono mix spectrum", mix, left)
}

func TestCaptureSilenceTransitions(t *testing.T) {
	clock := newFakeClock()
	p, o := newTestCapture(t, 2, clock)
	loud := []float32{1, -1, 0, 0, 0.5, -0.5, 0.2, -0.2}
	quiet := make([]float32, 8)
	buf := make([]float32, 4)

	o.push(t, loud)

	// Quiet chunks within the timeout are still processed.
	clock.Advance(500 * time.Millisecond)
	o.push(t, quiet)
	p.GetWaveform(buf, 0)
	assertSamples(t, "left after quiet chunk", buf, []float32{0, 0, 0, 0})

	o.push(t, loud)
	clock.Advance(time.Second)
	p.Update()
	if p.IsSilent() {
		t.Fatal("provider should still be active exactly at the timeout")
	}

	clock.Advance(time.Nanosecond)
	p.Update()
	if !p.IsSilent() {
		t.Fatal("provider should be silent just past the timeout")
	}
	if p.State() != StateSilent {
		t.Errorf("State() = %v, want %v", p.State(), StateSilent)
	}

	// Silent providers skip quiet chunks.
	o.push(t, quiet)
	p.GetWaveform(buf, 0)
	assertSamples(t, "left while silent", buf, []float32{1, 0, 0.5, 0.2})

	o.push(t, []float32{0.3, 0.3, 0, 0, 0, 0, 0, 0})
	if p.IsSilent() {
		t.Error("provider should leave silence on the next loud sample")
	}
	p.GetWaveform(buf, 0)
	assertSamples(t, "left after wake", buf, []float32{0.3, 0, 0, 0})
}

func TestCaptureRestartsFailedStream(t *testing.T) {
	p, o := newTestCapture(t, 2, newFakeClock())
	o.push(t, []float32{1, -1, 0, 0, 0.5, -0.5, 0.2, -0.2})

	o.setFailOpens(2)
	o.fail(t, errors.New("device unplugged"))
	o.push(t, []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8})

	streams := o.streams()
	if len(streams) != 2 {
		t.Fatalf("opened %d streams, want 2", len(streams))
	}
	if !streams[0].closed.Load() {
		t.Error("failed stream was not closed")
	}
	if streams[1].closed.Load() {
		t.Error("replacement stream closed early")
	}

	buf := make([]float32, 4)
	p.GetWaveform(buf, 1)
	assertSamples(t, "right after restart", buf, []float32{0.2, 0.4, 0.6, 0.8})

	if err := p.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if !streams[1].closed.Load() {
		t.Error("Dispose did not close the stream")
	}
}

func TestCaptureUnavailable(t *testing.T) {
	o := newFakeOpener(2)
	o.setFailOpens(1)
	p, err := NewCaptureProvider(SystemLoopback, o, testConfig(newFakeClock()))
	if err != nil {
		t.Fatalf("NewCaptureProvider: %v", err)
	}

	if p.State() != StateUnavailable {
		t.Errorf("State() = %v, want %v", p.State(), StateUnavailable)
	}
	p.Update()
	if !p.IsSilent() {
		t.Error("unavailable provider must report silence")
	}

	buf := []float32{9, 9, 9, 9}
	p.GetWaveform(buf, 0)
	assertSamples(t, "waveform", buf, []float32{0, 0, 0, 0})

	if err := p.Dispose(); err != nil {
		t.Errorf("Dispose: %v", err)
	}
	if p.State() != StateStopped {
		t.Errorf("State() = %v, want %v", p.State(), StateStopped)
	}
}

func TestCaptureDisposeTwice(t *testing.T) {
	o := newFakeOpener(2)
	p, err := NewCaptureProvider(Microphone, o, testConfig(newFakeClock()))
	if err != nil {
		t.Fatalf("NewCaptureProvider: %v", err)
	}

	if err := p.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if !o.streams()[0].closed.Load() {
		t.Error("stream not closed")
	}
	if err := p.Dispose(); !errors.Is(err, ErrDisposed) {
		t.Errorf("second Dispose = %v, want ErrDisposed", err)
	}
}

func TestCaptureDisposeStopsLoopBeforeClose(t *testing.T) {
	p, o := newTestCapture(t, 2, newFakeClock())
	o.push(t, []float32{0.1, 0.2, 0.3, 0.4})
	o.waitReading(t)

	if err := p.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}

	select {
	case <-p.done:
	default:
		t.Fatal("Dispose returned before the capture loop exited")
	}
	s := o.streams()[0]
	if !s.closed.Load() {
		t.Fatal("stream not closed")
	}
	if s.closedDuringRead.Load() {
		t.Error("stream closed while the capture loop was still reading")
	}
	if s.readAfterClose.Load() {
		t.Error("capture loop read from a closed stream")
	}
	if p.State() != StateStopped {
		t.Errorf("State() = %v, want %v", p.State(), StateStopped)
	}
}

func TestCaptureInvalidConfig(t *testing.T) {
	cfg := testConfig(nil)
	cfg.FFTSize = 6
	if _, err := NewCaptureProvider(Microphone, newFakeOpener(1), cfg); err == nil {
		t.Error("expected error for non power of two FFT size")
	}
}

func TestCaptureRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.wav")
	rec, err := NewRecorder(path, testSampleRate, 2)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	o := newFakeOpener(2)
	p, err := NewCaptureProvider(Microphone, o, testConfig(newFakeClock()), WithRecorder(rec))
	if err != nil {
		t.Fatalf("NewCaptureProvider: %v", err)
	}
	o.push(t, []float32{1, -1, 0, 0, 0.5, -0.5, 0.2, -0.2})
	o.push(t, make([]float32, 8))
	if err := p.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recording: %v", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode recording: %v", err)
	}
	if got := len(buf.Data); got != 16 {
		t.Errorf("recorded %d samples, want 16", got)
	}
	if buf.Format.NumChannels != 2 {
		t.Errorf("recorded %d channels, want 2", buf.Format.NumChannels)
	}
}

func TestCaptureStateString(t *testing.T) {
	tests := map[CaptureState]string{
		StateStarting:    "starting",
		StateCapturing:   "capturing",
		StateSilent:      "silent",
		StateRestarting:  "restarting",
		StateStopped:     "stopped",
		StateUnavailable: "unavailable",
		CaptureState(42): "CaptureState(42)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
