// SPDX-License-Identifier: MIT
package vis

import (
	"fmt"
	"strings"
)

// Channel selects which view of the current source a consumer wants.
type Channel int

const (
	Left Channel = iota
	Right
	Center // mean of left and right
)

func (c Channel) String() string {
	switch c {
	case Left:
		return "left"
	case Right:
		return "right"
	case Center:
		return "center"
	}
	return fmt.Sprintf("Channel(%d)", int(c))
}

// ParseChannel maps "left", "right" or "center" (also "l", "r", "c", "mono")
// to a Channel.
func ParseChannel(name string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "left", "l":
		return Left, nil
	case "right", "r":
		return Right, nil
	case "center", "centre", "c", "mono":
		return Center, nil
	}
	return 0, fmt.Errorf("unknown channel %q", name)
}

func (c Channel) valid() bool {
	return c >= Left && c <= Center
}
