// Package obslog is this daemon's structured logging seam.
//
// It wraps github.com/joeycumines/logiface, using the
// github.com/joeycumines/stumpy JSON writer backend, behind the same
// two-function call shape this codebase's ancestor used for its bare
// stderr logger (debug.DropMessage / debug.DropError): a caller that
// used to reach for those two functions now reaches for the equivalent
// methods on a *Logger, with the same "never blocks, never panics on a
// logging failure" contract.
package obslog

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is a structured JSON logger for MAAP daemon diagnostics.
type Logger struct {
	base *logiface.Logger[*stumpy.Event]
}

// New builds a Logger writing newline-delimited JSON to w at the given
// level or more severe. A nil w defaults to os.Stderr.
func New(w io.Writer, level logiface.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		base: logiface.New[*stumpy.Event](
			logiface.WithLevel[*stumpy.Event](level),
			stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		),
	}
}

// Default returns a Logger at informational level writing to stderr,
// matching the ancestor debug package's always-on stderr behavior.
func Default() *Logger {
	return New(os.Stderr, logiface.LevelInformational)
}

// DropMessage logs an informational message with a small set of
// structured fields, best-effort. Mirrors the ancestor's
// debug.DropMessage call shape.
func (l *Logger) DropMessage(msg string, fields map[string]any) {
	if l == nil || l.base == nil {
		return
	}
	b := l.base.Info()
	for k, v := range fields {
		b = b.Interface(k, v)
	}
	b.Log(msg)
}

// DropError logs err at error level alongside msg, best-effort. Mirrors
// the ancestor's debug.DropError call shape.
func (l *Logger) DropError(msg string, err error) {
	if l == nil || l.base == nil {
		return
	}
	b := l.base.Err()
	if err != nil {
		b = b.Err(err)
	}
	b.Log(msg)
}

// Warn logs a warning-level message with structured fields.
func (l *Logger) Warn(msg string, fields map[string]any) {
	if l == nil || l.base == nil {
		return
	}
	b := l.base.Warning()
	for k, v := range fields {
		b = b.Interface(k, v)
	}
	b.Log(msg)
}
