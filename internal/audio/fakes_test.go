// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"audiovis/internal/analysis"
	"audiovis/internal/buffer"
)

const (
	testSampleRate = 44100
	testTimeout    = 2 * time.Second
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	now atomic.Int64
}

func newFakeClock() *fakeClock {
	c := &fakeClock{}
	c.now.Store(time.Unix(1_700_000_000, 0).UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time { return time.Unix(0, c.now.Load()) }

func (c *fakeClock) Advance(d time.Duration) { c.now.Add(int64(d)) }

// fakeOpener hands out fakeStreams that share its chunk and error channels,
// so a test keeps feeding the provider across restarts.
type fakeOpener struct {
	channels int

	chunks    chan []float32
	errs      chan error
	processed chan struct{}
	reading   chan struct{} // signalled whenever a Read starts

	mu        sync.Mutex
	failOpens int // remaining Open calls that fail
	opened    []*fakeStream
}

func newFakeOpener(channels int) *fakeOpener {
	return &fakeOpener{
		channels:  channels,
		chunks:    make(chan []float32),
		errs:      make(chan error),
		processed: make(chan struct{}),
		reading:   make(chan struct{}, 1),
	}
}

func (o *fakeOpener) Channels() int { return o.channels }

func (o *fakeOpener) Open() (CaptureStream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failOpens > 0 {
		o.failOpens--
		return nil, errors.New("device busy")
	}
	s := &fakeStream{opener: o}
	o.opened = append(o.opened, s)
	return s, nil
}

func (o *fakeOpener) setFailOpens(n int) {
	o.mu.Lock()
	o.failOpens = n
	o.mu.Unlock()
}

func (o *fakeOpener) streams() []*fakeStream {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeStream(nil), o.opened...)
}

// push delivers chunk and waits until the provider has processed it, which
// is signalled by the next Read call.
func (o *fakeOpener) push(t *testing.T, chunk []float32) {
	t.Helper()
	select {
	case o.chunks <- chunk:
	case <-time.After(testTimeout):
		t.Fatal("timed out delivering chunk")
	}
	select {
	case <-o.processed:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for chunk to be processed")
	}
}

// waitReading waits until the capture goroutine is inside Read.
func (o *fakeOpener) waitReading(t *testing.T) {
	t.Helper()
	select {
	case <-o.reading:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for Read")
	}
}

// fail makes the current Read return err.
func (o *fakeOpener) fail(t *testing.T, err error) {
	t.Helper()
	select {
	case o.errs <- err:
	case <-time.After(testTimeout):
		t.Fatal("timed out delivering stream error")
	}
}

type fakeStream struct {
	opener  *fakeOpener
	pending bool // only touched by the capture goroutine
	closed  atomic.Bool

	// Misuse seen by the stream: a Close racing an in-flight Read, or a
	// Read on a closed stream.
	reads            atomic.Int32
	closedDuringRead atomic.Bool
	readAfterClose   atomic.Bool
}

func (s *fakeStream) Read(ctx context.Context) ([]float32, error) {
	s.reads.Add(1)
	defer s.reads.Add(-1)
	if s.closed.Load() {
		s.readAfterClose.Store(true)
	}
	select {
	case s.opener.reading <- struct{}{}:
	default:
	}

	if s.pending {
		s.pending = false
		select {
		case s.opener.processed <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case c := <-s.opener.chunks:
		s.pending = true
		return c, nil
	case err := <-s.opener.errs:
		return nil, err
	}
}

func (s *fakeStream) Channels() int { return s.opener.channels }

func (s *fakeStream) Close() error {
	if s.reads.Load() > 0 {
		s.closedDuringRead.Store(true)
	}
	s.closed.Store(true)
	return nil
}

// fakeTap is a PlaybackTap over a fixed interleaved buffer.
type fakeTap struct {
	channels int
	samples  []float32
	window   analysis.WindowFunc
	mixCalls int
}

func (f *fakeTap) Channels() int { return f.channels }

func (f *fakeTap) Latest(dst []float32) int {
	n := min(len(dst), len(f.samples))
	n -= n % f.channels
	return copy(dst, f.samples[len(f.samples)-n:])
}

func (f *fakeTap) MixSpectrum(dst []float32, w analysis.WindowFunc) {
	f.mixCalls++
	f.window = w
	size := 2 * len(dst)
	a, err := analysis.NewSpectrumAnalyzer(size, testSampleRate, w)
	if err != nil {
		panic(err)
	}
	mono := make([]float32, size)
	interleaved := make([]float32, size*f.channels)
	n := f.Latest(interleaved)
	m := buffer.Mix(mono, interleaved[:n], f.channels)
	a.Load(mono[:m])
	a.GetMagnitudes(dst)
}

// testConfig returns a config with tiny buffers and a fake clock.
func testConfig(clock Clock) ProviderConfig {
	return ProviderConfig{
		WaveformSize:     4,
		FFTSize:          4,
		SampleRate:       testSampleRate,
		Window:           analysis.Hann,
		SilenceThreshold: 1e-4,
		SilenceTimeout:   time.Second,
		RestartDelay:     time.Millisecond,
		ScanFrames:       4,
		Clock:            clock,
	}
}

// expectedSpectrum runs a fresh analyzer over samples.
func expectedSpectrum(t *testing.T, cfg ProviderConfig, samples []float32) []float32 {
	t.Helper()
	a, err := analysis.NewSpectrumAnalyzer(cfg.FFTSize, cfg.SampleRate, cfg.Window)
	if err != nil {
		t.Fatalf("NewSpectrumAnalyzer: %v", err)
	}
	a.Feed(samples)
	out := make([]float32, a.Bins())
	a.GetMagnitudes(out)
	return out
}

func assertSamples(t *testing.T, what string, got, want []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: len = %d, want %d", what, len(got), len(want))
	}
	for i := range want {
		if d := got[i] - want[i]; d > 1e-6 || d < -1e-6 {
			t.Errorf("%s[%d] = %v, want %v", what, i, got[i], want[i])
		}
	}
}
