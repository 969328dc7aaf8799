// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"strings"
)

// SourceKind identifies where a provider's audio comes from. The set is
// closed; providers are created from configuration at startup.
type SourceKind uint8

const (
	LocalPlayback SourceKind = iota
	SystemLoopback
	Microphone
)

var sourceNames = [...]string{
	LocalPlayback:  "local",
	SystemLoopback: "loopback",
	Microphone:     "microphone",
}

func (k SourceKind) String() string {
	if int(k) < len(sourceNames) {
		return sourceNames[k]
	}
	return fmt.Sprintf("SourceKind(%d)", k)
}

// ParseSourceKind maps a configuration name to a SourceKind. "playback",
// "system" and "mic" are accepted as aliases.
func ParseSourceKind(name string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "local", "playback":
		return LocalPlayback, nil
	case "loopback", "system":
		return SystemLoopback, nil
	case "microphone", "mic":
		return Microphone, nil
	}
	return 0, fmt.Errorf("unknown source %q", name)
}
