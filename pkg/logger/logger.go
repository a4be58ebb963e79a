// ==============================================================================
// LOGGER PACKAGE - pkg/logger/logger.go
// ==============================================================================
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Info(message string, fields map[string]interface{})
	Error(message string, fields map[string]interface{})
	Warn(message string, fields map[string]interface{})
	Debug(message string, fields map[string]interface{})
	Fatal(message string, fields map[string]interface{})
}

type jsonLogger struct {
	entry *logrus.Entry
}

func New(serviceName string) Logger {
	return NewWithWriter(serviceName, os.Stdout)
}

// NewWithWriter builds a JSON logger writing to w. LOG_LEVEL overrides the
// default info level.
func NewWithWriter(serviceName string, w io.Writer) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})
	l.SetLevel(logrus.InfoLevel)
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		l.SetLevel(lvl)
	}

	return &jsonLogger{entry: l.WithField("service", serviceName)}
}

func (l *jsonLogger) with(fields map[string]interface{}) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	return l.entry.WithFields(logrus.Fields(fields))
}

func (l *jsonLogger) Info(message string, fields map[string]interface{}) {
	l.with(fields).Info(message)
}

func (l *jsonLogger) Error(message string, fields map[string]interface{}) {
	l.with(fields).Error(message)
}

func (l *jsonLogger) Warn(message string, fields map[string]interface{}) {
	l.with(fields).Warn(message)
}

func (l *jsonLogger) Debug(message string, fields map[string]interface{}) {
	l.with(fields).Debug(message)
}

func (l *jsonLogger) Fatal(message string, fields map[string]interface{}) {
	l.with(fields).Fatal(message)
}

func NewNop() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (l *nopLogger) Info(message string, fields map[string]interface{})  {}
func (l *nopLogger) Error(message string, fields map[string]interface{}) {}
func (l *nopLogger) Warn(message string, fields map[string]interface{})  {}
func (l *nopLogger) Debug(message string, fields map[string]interface{}) {}
func (l *nopLogger) Fatal(message string, fields map[string]interface{}) {}
