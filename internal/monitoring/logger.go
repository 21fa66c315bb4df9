package monitoring

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger behind Logf. Packages that want tile or
// file context attach it with WithFields instead of formatting it into the
// message.
var Logger = newLogger()

// Logf is the package-level diagnostic logger. It defaults to Logger.Infof but
// may be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = Logger.Infof

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetOutput redirects the structured logger, e.g. to a file or io.Discard.
// A nil writer restores stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	Logger.SetOutput(w)
}

// SetVerbose toggles debug-level output.
func SetVerbose(verbose bool) {
	if verbose {
		Logger.SetLevel(logrus.DebugLevel)
		return
	}
	Logger.SetLevel(logrus.InfoLevel)
}

// WithFields returns a logrus entry carrying the given context.
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return Logger.WithFields(logrus.Fields(fields))
}

// Debugf logs at debug level through the structured logger.
func Debugf(format string, v ...interface{}) {
	Logger.Debugf(format, v...)
}
