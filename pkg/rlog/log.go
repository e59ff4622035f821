// Package rlog provides the runtime's package-level logger.
package rlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the global logger instance used throughout the runtime.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// SetVerbosity maps the runtime configuration's verbosity knob onto a logrus
// level: "high" traces down to Debug, everything else stays at Info.
func SetVerbosity(verbosity string) {
	if verbosity == "high" {
		Logger.SetLevel(logrus.DebugLevel)
	} else {
		Logger.SetLevel(logrus.InfoLevel)
	}
}

// SetOutput sets the log output destination.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// SetJSONFormat enables JSON log format.
func SetJSONFormat() {
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
}

// WithField returns a logger entry with a field attached.
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithSwitch returns a logger entry scoped to a switch.
func WithSwitch(switchID interface{}) *logrus.Entry {
	return Logger.WithField("switch", switchID)
}

// WithGeneration returns a logger entry scoped to a generation number.
func WithGeneration(gen uint64) *logrus.Entry {
	return Logger.WithField("generation", gen)
}
