// SPDX-License-Identifier: MIT
package transport

import (
	applog "audiovis/internal/log"
)

// LoggingTransport implements the Transport interface by logging a summary
// of each frame at debug level.
type LoggingTransport struct {
	log applog.Logger
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	lt := &LoggingTransport{log: applog.Named("transport[log]")}
	lt.log.Infof("using logging transport")
	return lt
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	switch f := data.(type) {
	case *Frame:
		lt.log.Debugf("frame %d source=%s silent=%t level=%.4f peak=%.4f bins=%d",
			f.Sequence, f.Source, f.Silent, f.Level, f.Peak, len(f.Spectrum))
	default:
		lt.log.Debugf("received %T", data)
	}
	return nil // Logging transport never fails to "send"
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	lt.log.Debugf("close called")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
