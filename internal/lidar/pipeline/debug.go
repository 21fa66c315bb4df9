package pipeline

import (
	"io"

	"github.com/sirupsen/logrus"
)

var (
	opsLogger   *logrus.Logger
	diagLogger  *logrus.Logger
	traceLogger *logrus.Logger
)

// SetLogWriters configures the three logging streams for the pipeline package.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	opsLogger = newLogger(ops)
	diagLogger = newLogger(diag)
	traceLogger = newLogger(trace)
}

func newLogger(w io.Writer) *logrus.Logger {
	if w == nil {
		return nil
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	l.SetLevel(logrus.TraceLevel)
	return l
}

func entry(l *logrus.Logger) *logrus.Entry {
	return l.WithField("component", "pipeline")
}

// opsf logs to the ops stream (actionable warnings, errors, data loss).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		entry(opsLogger).Warnf(format, args...)
	}
}

// diagf logs to the diag stream (day-to-day diagnostics, tuning context).
func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		entry(diagLogger).Infof(format, args...)
	}
}

// tracef logs to the trace stream (per-tile state transitions).
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		entry(traceLogger).Tracef(format, args...)
	}
}
