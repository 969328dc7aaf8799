// SPDX-License-Identifier: MIT
package buffer

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
)

func sequence(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i + 1)
	}
	return out
}

func TestRingReadBeforeFull(t *testing.T) {
	r := NewRing(4)
	r.Write([]float32{1, 2})

	out := make([]float32, 4)
	if n := r.Read(out); n != 4 {
		t.Fatalf("Read returned %d, want 4", n)
	}
	want := []float32{0, 0, 1, 2}
	if !slices.Equal(out, want) {
		t.Errorf("Read = %v, want %v", out, want)
	}
}

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing(3)
	r.Write([]float32{1, 2, 3})
	r.Write([]float32{4})
	r.Write([]float32{5, 6})

	out := make([]float32, 3)
	r.Read(out)
	if want := []float32{4, 5, 6}; !slices.Equal(out, want) {
		t.Errorf("Read = %v, want %v", out, want)
	}
}

func TestRingReadPartial(t *testing.T) {
	r := NewRing(5)
	r.Write(sequence(7))

	out := []float32{-1, -1, -1}
	if n := r.Read(out[:2]); n != 2 {
		t.Fatalf("Read returned %d, want 2", n)
	}
	if want := []float32{6, 7, -1}; !slices.Equal(out, want) {
		t.Errorf("Read = %v, want %v", out, want)
	}
}

func TestRingReadClampsToCapacity(t *testing.T) {
	r := NewRing(2)
	r.Write([]float32{1, 2, 3})

	out := []float32{-1, -1, -1, -1}
	if n := r.Read(out); n != 2 {
		t.Fatalf("Read returned %d, want 2", n)
	}
	if want := []float32{2, 3, -1, -1}; !slices.Equal(out, want) {
		t.Errorf("Read = %v, want %v", out, want)
	}
}

func TestRingWriteLargerThanCapacity(t *testing.T) {
	r := NewRing(4)
	r.Write([]float32{9})
	r.Write(sequence(10))

	out := make([]float32, 4)
	r.Read(out)
	if want := []float32{7, 8, 9, 10}; !slices.Equal(out, want) {
		t.Errorf("Read = %v, want %v", out, want)
	}
}

func TestRingChunkingIndependence(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for _, capacity := range []int{1, 3, 8, 64, 1000} {
		t.Run(fmt.Sprintf("cap=%d", capacity), func(t *testing.T) {
			for trial := range 20 {
				total := rng.IntN(3*capacity + 5)
				samples := sequence(total)

				r := NewRing(capacity)
				for written := 0; written < total; {
					chunk := 1 + rng.IntN(2*capacity)
					end := min(written+chunk, total)
					r.Write(samples[written:end])
					written = end
				}

				got := make([]float32, capacity)
				r.Read(got)

				want := make([]float32, capacity)
				tail := samples[max(0, total-capacity):]
				copy(want[capacity-len(tail):], tail)

				if !slices.Equal(got, want) {
					t.Fatalf("trial %d (total %d): Read = %v, want %v", trial, total, got, want)
				}
			}
		})
	}
}

func TestRingReset(t *testing.T) {
	r := NewRing(3)
	r.Write([]float32{1, 2, 3})
	r.Reset()

	out := make([]float32, 3)
	r.Read(out)
	if want := []float32{0, 0, 0}; !slices.Equal(out, want) {
		t.Errorf("Read after Reset = %v, want %v", out, want)
	}
}

func TestNewRingMinimumCapacity(t *testing.T) {
	if got := NewRing(0).Cap(); got != 1 {
		t.Errorf("NewRing(0).Cap() = %d, want 1", got)
	}
}

func TestRingHotPathZeroAllocs(t *testing.T) {
	r := NewRing(1024)
	in := sequence(512)
	out := make([]float32, 1024)

	allocs := testing.AllocsPerRun(100, func() {
		r.Write(in)
		r.Read(out)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in ring Write/Read, got %.1f", allocs)
	}
}

func BenchmarkRingWriteRead(b *testing.B) {
	r := NewRing(2048)
	in := sequence(480)
	out := make([]float32, 2048)

	b.ReportAllocs()
	for b.Loop() {
		r.Write(in)
		r.Read(out)
	}
}
