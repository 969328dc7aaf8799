// SPDX-License-Identifier: MIT

// Package buffer holds the sample containers shared by capture providers and
// the spectrum analyzer: a fixed capacity ring of float32 samples and the
// helpers that split interleaved chunks into per-channel streams.
package buffer

// Ring is a fixed capacity circular store that always holds the most recent
// Cap() samples written to it. Slots that were never written read as zero.
//
// Ring is not safe for concurrent use. Providers serialize writers and
// readers with their own lock so that a ring and its paired spectrum are
// always observed together.
type Ring struct {
	data []float32
	pos  int // next write index
}

// NewRing allocates a ring holding capacity samples. A capacity below one is
// raised to one.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{data: make([]float32, capacity)}
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.data)
}

// Write appends samples, overwriting the oldest entries once full. When more
// than Cap() samples are supplied only the newest Cap() are kept.
func (r *Ring) Write(samples []float32) {
	size := len(r.data)
	if len(samples) >= size {
		copy(r.data, samples[len(samples)-size:])
		r.pos = 0
		return
	}

	n := copy(r.data[r.pos:], samples)
	if n < len(samples) {
		copy(r.data, samples[n:])
	}
	r.pos = (r.pos + len(samples)) % size
}

// Read copies the min(Cap(), len(out)) most recent samples into out, oldest
// first, and returns the number copied. Any remainder of out is untouched.
func (r *Ring) Read(out []float32) int {
	size := len(r.data)
	count := len(out)
	if count > size {
		count = size
	}

	start := r.pos - count
	if start < 0 {
		start += size
	}

	n := copy(out[:count], r.data[start:])
	if n < count {
		copy(out[n:count], r.data[:count-n])
	}
	return count
}

// Reset zeroes the ring and rewinds the write cursor.
func (r *Ring) Reset() {
	clear(r.data)
	r.pos = 0
}
