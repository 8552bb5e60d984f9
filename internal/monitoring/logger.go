// Package monitoring holds the swappable diagnostic logger. Operator
// messages go through the standard log package; per-frame detail goes
// through Logf, which is muted until debug output is enabled.
package monitoring

import (
	"log"
	"sync"
)

var (
	mu      sync.Mutex
	debugOn bool
)

// Logf is the package-level diagnostic logger. It is a no-op until
// EnableDebug or SetLogger replaces it.
var Logf func(format string, v ...interface{}) = func(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	mu.Lock()
	defer mu.Unlock()
	if f == nil {
		Logf = func(string, ...interface{}) {}
		debugOn = false
		return
	}
	Logf = f
	debugOn = true
}

// EnableDebug routes Logf to log.Printf when on, and mutes it otherwise.
func EnableDebug(on bool) {
	if on {
		SetLogger(log.Printf)
		return
	}
	SetLogger(nil)
}

// DebugEnabled reports whether Logf currently emits anything.
func DebugEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return debugOn
}
