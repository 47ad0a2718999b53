package mavlink

import (
	"io"

	"github.com/sirupsen/logrus"
)

// testLogger returns a logger with output discarded, so tests exercising the
// Warn/Debug logging in the reader and connection don't spam test output.
func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
