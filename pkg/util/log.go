package util

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the global logger instance
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// Configure applies a level name and, for the daemon under a log collector,
// JSON output. An unknown level leaves the logger unchanged.
func Configure(level string, json bool) error {
	if err := SetLogLevel(level); err != nil {
		return err
	}
	if json {
		SetJSONFormat()
	}
	return nil
}

// SetLogLevel sets the logging level
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetLogOutput sets the log output destination
func SetLogOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// SetJSONFormat enables JSON log format
func SetJSONFormat() {
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
}

// WithField returns a logger with a field
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithFields returns a logger with multiple fields
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithRoute returns a logger scoped to a VNET route
func WithRoute(vnet, prefix string) *logrus.Entry {
	return Logger.WithFields(logrus.Fields{"vnet": vnet, "prefix": prefix})
}

// WithEndpoint returns a logger with endpoint context
func WithEndpoint(ip string) *logrus.Entry {
	return Logger.WithField("endpoint", ip)
}

// WithComponent returns a logger tagged with the emitting component
// ("nhpool", "health", "loop", ...).
func WithComponent(component string) *logrus.Entry {
	return Logger.WithField("component", component)
}

func Debugf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}
