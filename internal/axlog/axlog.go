// Package axlog provides the compiler's verbose trace output. Every
// pipeline stage that wants to narrate what it's doing takes a *Logger
// instead of touching a package-level switch, so tracing stays out of
// the way unless -v was passed.
package axlog

import (
	"fmt"
	"io"
	"os"
)

// Logger gates Tracef calls on Enabled. The zero value is a disabled
// logger writing to os.Stderr.
type Logger struct {
	Enabled bool
	Out     io.Writer
}

func New(enabled bool) *Logger {
	return &Logger{Enabled: enabled, Out: os.Stderr}
}

func (l *Logger) Tracef(format string, args ...interface{}) {
	if l == nil || !l.Enabled {
		return
	}
	out := l.Out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintf(out, format, args...)
	fmt.Fprintln(out)
}
