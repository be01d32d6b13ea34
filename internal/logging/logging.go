// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Setup sets the level and output of the standard logrus logger. With a
// file the output is appended there; otherwise it goes to stderr. The
// returned func closes the file and is safe to call when there is none.
func Setup(level, file string) (func() error, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if file == "" {
		logrus.SetOutput(os.Stderr)
		return func() error { return nil }, nil
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	logrus.SetOutput(f)
	return f.Close, nil
}

// Discard silences the standard logger. The TUI uses it when no log file is
// configured so log lines do not tear through the alternate screen.
func Discard() {
	logrus.SetOutput(io.Discard)
}

// ParseLevel accepts debug, info, warn and error. Empty means info.
func ParseLevel(level string) (logrus.Level, error) {
	switch level {
	case "":
		return logrus.InfoLevel, nil
	case "debug", "info", "warn", "warning", "error":
		return logrus.ParseLevel(level)
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}
