// SPDX-License-Identifier: MIT
package vis

import "sync/atomic"

// FrameSource reports the identity of the frame being rendered. Snapshots
// are recomputed at most once per distinct value.
type FrameSource interface {
	Frame() uint64
}

// FrameCounter is a FrameSource advanced by the Driver.
type FrameCounter struct {
	n atomic.Uint64
}

func (c *FrameCounter) Frame() uint64 {
	return c.n.Load()
}

// Advance moves to the next frame and returns it.
func (c *FrameCounter) Advance() uint64 {
	return c.n.Add(1)
}
