// Package monitoring holds the swappable diagnostic loggers used across the
// navigation stack.
package monitoring

import (
	"fmt"
	"log"
	"sync"
)

// Logf is the package-level logger for state transitions and lifecycle
// events. It defaults to log.Printf but may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// Diagf reports conditions an operator must be able to tell apart from
// ordinary transitions: unhandled sensor configurations, maneuver timeouts,
// dropped bridge messages. Output goes through Logf with a [diag] prefix.
func Diagf(format string, v ...interface{}) {
	Logf("[diag] "+format, v...)
}

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Capture redirects Logf into the returned slice until restore is called.
// Intended for tests asserting on log output.
func Capture() (lines *[]string, restore func()) {
	original := Logf
	var (
		mu  sync.Mutex
		out []string
	)
	Logf = func(format string, v ...interface{}) {
		mu.Lock()
		out = append(out, fmt.Sprintf(format, v...))
		mu.Unlock()
	}
	return &out, func() { Logf = original }
}
