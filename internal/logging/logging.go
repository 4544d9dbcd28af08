// Package logging builds the logrus loggers used across baton.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/baton/internal/config"
)

// Format names accepted by Options.Format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options configures a logger.
type Options struct {
	// Level is the minimum level to output. See ParseLevel.
	Level string
	// Format is FormatText or FormatJSON.
	Format string
	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
}

// ParseLevel parses a level name. Unknown names fall back to info;
// "off" and "none" silence everything but panics.
func ParseLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "off", "none":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// New creates a logger from opts.
func New(opts Options) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(ParseLevel(opts.Level))
	if opts.Output != nil {
		logger.SetOutput(opts.Output)
	} else {
		logger.SetOutput(os.Stderr)
	}

	if strings.EqualFold(opts.Format, FormatJSON) {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000",
		})
	}
	return logger
}

// FromConfig creates a logger from the logging section. When cfg.File is
// set the log is appended to that file, and the returned close function
// closes it.
func FromConfig(cfg config.LoggingConfig) (*logrus.Logger, func() error, error) {
	opts := Options{Level: cfg.Level, Format: cfg.Format}
	if cfg.File == "" {
		return New(opts), func() error { return nil }, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	opts.Output = f
	return New(opts), f.Close, nil
}

// WithComponent returns an entry tagged with the component field.
func WithComponent(logger logrus.FieldLogger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}

// Discard returns an entry that writes nowhere.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}
