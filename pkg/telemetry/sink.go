// Package telemetry delivers text report lines to wherever they are
// consumed: a serial port, a log, NATS subjects or websocket clients.
package telemetry

import (
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Sink transmits one line of text. Implementations must not block the
// caller for long; delivery is fire and forget.
type Sink interface {
	Send(line string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(line string) error

func (f SinkFunc) Send(line string) error {
	return f(line)
}

// Discard drops everything.
var Discard Sink = SinkFunc(func(string) error { return nil })

// WriterSink writes newline terminated lines to an io.Writer.
type WriterSink struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Send(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf[:0], line...)
	s.buf = append(s.buf, '\n')
	_, err := s.w.Write(s.buf)
	return err
}

// LogSink writes lines to a structured logger at info level.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Send(line string) error {
	s.log.Info("telemetry", zap.String("line", line))
	return nil
}

// Multi fans a line out to all sinks. Every sink receives the line even
// when an earlier one fails; the errors are joined.
type Multi []Sink

func (m Multi) Send(line string) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
