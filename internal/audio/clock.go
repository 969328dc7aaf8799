// SPDX-License-Identifier: MIT
package audio

import "time"

// Clock supplies the time used for silence timing. Tests swap in a manual
// clock; everything else uses SystemClock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}
