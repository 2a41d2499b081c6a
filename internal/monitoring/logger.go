// Package monitoring holds the diagnostic logger shared by the sorter's
// library packages.
package monitoring

import (
	"io"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetOutput sends diagnostics to w with the standard timestamp prefix, for
// example to tee transport traffic into a run log file.
func SetOutput(w io.Writer) {
	l := log.New(w, "", log.LstdFlags|log.Lmicroseconds)
	Logf = l.Printf
}
