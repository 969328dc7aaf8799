// SPDX-License-Identifier: MIT
package vis

import (
	"context"
	"fmt"
	"time"

	applog "audiovis/internal/log"
	"audiovis/internal/observe"
)

// Driver is the render loop. Each Step advances the frame, updates the
// engine and hands it to every visualizer.
type Driver struct {
	engine  *Engine
	frames  *FrameCounter
	metrics *observe.Metrics
	log     applog.Logger
}

// NewDriver creates a driver that advances frames. frames must be the
// FrameSource the engine was built with.
func NewDriver(engine *Engine, frames *FrameCounter, metrics *observe.Metrics) *Driver {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Driver{
		engine:  engine,
		frames:  frames,
		metrics: metrics,
		log:     applog.Named("driver"),
	}
}

// Engine returns the driven engine.
func (d *Driver) Engine() *Engine {
	return d.engine
}

// Step renders one frame and returns its number.
func (d *Driver) Step() uint64 {
	frame := d.frames.Advance()
	d.engine.Update()
	for _, v := range d.engine.activeVisualizers() {
		v.OnFrame(d.engine)
	}
	d.metrics.FramesRendered.Add(context.Background(), 1)
	return frame
}

// Run steps at fps frames per second until ctx is cancelled.
func (d *Driver) Run(ctx context.Context, fps int) error {
	if fps < 1 {
		return fmt.Errorf("invalid frame rate: %d", fps)
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	d.log.Debugf("running at %d fps", fps)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Step()
		}
	}
}
