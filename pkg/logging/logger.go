// Package logging standardizes logrus setup: JSON output, level from the
// environment, and an optional service field stamped on every entry.
package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/KainCH/omniasylum-sub001/pkg/config"
)

// Logger is the shared logger handle passed through constructors.
type Logger = *logrus.Logger

// Fields carries structured log fields.
type Fields = logrus.Fields

// Level aliases the logrus level type.
type Level = logrus.Level

const (
	DebugLevel = logrus.DebugLevel
	InfoLevel  = logrus.InfoLevel
	WarnLevel  = logrus.WarnLevel
	ErrorLevel = logrus.ErrorLevel
)

// NewLogger builds a JSON logger at the level from LOG_LEVEL.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(config.GetLogLevel())
	return logger
}

// NewLoggerWithService builds a logger that stamps every entry with a
// service field, so fan-in log pipelines can tell instances apart.
func NewLoggerWithService(serviceName string) *logrus.Logger {
	logger := NewLogger()
	logger.AddHook(serviceHook{name: serviceName})
	return logger
}

type serviceHook struct {
	name string
}

func (h serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h serviceHook) Fire(entry *logrus.Entry) error {
	entry.Data["service"] = h.name
	return nil
}
