// Package corelog is the runtime's structured-logging collaborator: a
// thin adapter from vm.Logger onto logrus, the same shape the fields
// the original implementation's E_INFO/E_WARNING/E_CRITICAL log taxonomy
// carried, expressed as logrus levels instead of a custom enum.
package corelog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger adapts a *logrus.Logger to vm.Logger.
type Logger struct {
	entry *logrus.Logger
}

// New builds a Logger writing to w (os.Stderr if nil) at the given
// level name ("info", "warn", "error", "debug"); an unrecognised level
// falls back to Info.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return &Logger{entry: l}
}

func (l *Logger) Info(msg string, fields map[string]interface{}) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l *Logger) Warn(msg string, fields map[string]interface{}) {
	l.entry.WithFields(logrus.Fields(fields)).Warn(msg)
}

func (l *Logger) Error(msg string, fields map[string]interface{}) {
	l.entry.WithFields(logrus.Fields(fields)).Error(msg)
}
