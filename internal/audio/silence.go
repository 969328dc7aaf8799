// SPDX-License-Identifier: MIT
package audio

import (
	"sync/atomic"
	"time"
)

// SilenceDetector tracks when a source last produced a sample above the
// threshold. Heard may be called from a capture goroutine while Refresh and
// IsSilent run on the driver goroutine.
//
// A source is silent once more than the timeout has elapsed since the last
// loud sample; at exactly the timeout it is still active. A detector that
// has never heard anything starts out silent.
type SilenceDetector struct {
	threshold float32
	timeout   time.Duration
	clock     Clock

	lastHeard atomic.Int64 // unix nanoseconds, 0 = never
	silent    atomic.Bool
}

// NewSilenceDetector creates a detector. A nil clock means SystemClock.
func NewSilenceDetector(threshold float32, timeout time.Duration, clock Clock) *SilenceDetector {
	if clock == nil {
		clock = SystemClock
	}
	if threshold < 0 {
		threshold = -threshold
	}
	d := &SilenceDetector{
		threshold: threshold,
		timeout:   timeout,
		clock:     clock,
	}
	d.silent.Store(true)
	return d
}

// Scan reports whether any sample's magnitude exceeds the threshold.
func (d *SilenceDetector) Scan(samples []float32) bool {
	t := d.threshold
	for _, s := range samples {
		if s > t || s < -t {
			return true
		}
	}
	return false
}

// Heard records a loud sample now and clears silence immediately.
func (d *SilenceDetector) Heard() {
	d.lastHeard.Store(d.clock.Now().UnixNano())
	d.silent.Store(false)
}

// Refresh re-evaluates the silence timer against the clock and returns the
// new state.
func (d *SilenceDetector) Refresh() bool {
	now := d.clock.Now().UnixNano()
	for {
		last := d.lastHeard.Load()
		silent := last == 0 || now-last > int64(d.timeout)
		d.silent.Store(silent)
		// A concurrent Heard between the load and the store must win.
		if d.lastHeard.Load() == last {
			return silent
		}
		now = d.clock.Now().UnixNano()
	}
}

// IsSilent returns the state computed by the last Refresh or Heard.
func (d *SilenceDetector) IsSilent() bool {
	return d.silent.Load()
}

// LastHeard returns the time of the last loud sample, or the zero time.
func (d *SilenceDetector) LastHeard() time.Time {
	last := d.lastHeard.Load()
	if last == 0 {
		return time.Time{}
	}
	return time.Unix(0, last)
}
