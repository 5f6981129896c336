// Package diag is the optional debug sink of the start-up sequence.
//
// Records carry a counter timestamp that only orders them; there is no clock
// behind it, because the clocks are what is being reconfigured. A nil *Logger
// discards everything, and a failing sink never affects the caller.
package diag

import (
	"fmt"
	"io"
)

// Sink receives formatted diagnostic records.
type Sink interface {
	Record(stamp uint64, msg string)
}

// Logger stamps and forwards records to a Sink.
type Logger struct {
	sink  Sink
	count uint64
}

// New returns a Logger writing to sink. A nil sink yields a nil Logger.
func New(sink Sink) *Logger {
	if sink == nil {
		return nil
	}
	return &Logger{sink: sink}
}

// Logf formats and records one message.
func (l *Logger) Logf(format string, args ...any) {
	if l == nil {
		return
	}
	n := l.count
	l.count = n + 1
	l.sink.Record(n, fmt.Sprintf(format, args...))
}

// Count returns the number of records emitted so far.
func (l *Logger) Count() uint64 {
	if l == nil {
		return 0
	}
	return l.count
}

// WriterSink writes one "[stamp] message" line per record. Write errors are
// dropped.
type WriterSink struct {
	W io.Writer
}

func (s WriterSink) Record(stamp uint64, msg string) {
	fmt.Fprintf(s.W, "[%d] %s\n", stamp, msg)
}

// FuncSink adapts a function to the Sink interface.
type FuncSink func(stamp uint64, msg string)

func (f FuncSink) Record(stamp uint64, msg string) {
	f(stamp, msg)
}
