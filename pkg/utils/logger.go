// Package utils provides the logging conventions shared by every mavlink
// component: one process-wide default logger plus small helpers for
// building and tagging loggers with link/connection identity.
package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the package-wide default logger (info level, stdout). A
// Connection given no explicit Logger does not use it: it builds its own
// through NewLogger from its Config's LogLevel/LogOutput.
var Logger *logrus.Logger

func init() {
	Logger = NewLogger("info", "stdout")
}

// WithLink returns an entry pre-tagged with a link identifier (e.g. a
// serial port name or sysid/compid pair), so a multi-vehicle process can
// tell overlapping connections' log lines apart.
func WithLink(logger *logrus.Logger, link string) *logrus.Entry {
	return logger.WithField("link", link)
}

// NewLogger builds a JSON-structured logger for level and output. It is
// the function a mavlink.Config resolves its LogLevel/LogOutput fields
// through at connection-construction time, so callers normally reach it
// indirectly via Config rather than calling it directly.
//
// level is parsed with logrus.ParseLevel; an empty or unrecognised value
// falls back to info. output of "" or "stdout" writes to stdout; any
// other value is opened as an append-only file, falling back to stdout
// with a warning if the open fails.
func NewLogger(level, output string) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(parseLevel(level))
	logger.SetOutput(resolveOutput(logger, output))
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	return logger
}

func parseLevel(level string) logrus.Level {
	if level == "" {
		return logrus.InfoLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func resolveOutput(logger *logrus.Logger, output string) *os.File {
	if output == "" || output == "stdout" {
		return os.Stdout
	}
	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		logger.Warnf("failed to open log file %s, using stdout", output)
		return os.Stdout
	}
	return file
}
