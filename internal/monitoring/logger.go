// Package monitoring holds the diagnostic logger shared by the calibration,
// capture and feedback packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger so tests can capture or mute output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Scoped returns a logger that prefixes every line with "[scope] ", e.g. the
// short id of a calibration session. It resolves Logf on every call so a
// later SetLogger still takes effect.
func Scoped(scope string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf("["+scope+"] "+format, v...)
	}
}
