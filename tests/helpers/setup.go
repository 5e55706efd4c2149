package helpers

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NewTestLogger creates a logger that stays silent during test runs.
func NewTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

// NewDebugLogger creates a verbose logger for diagnosing failing tests.
func NewDebugLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
	})
	return logger
}
