package logging

import (
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// PionFactory adapts pion's LoggerFactory onto slog so the WebRTC stack logs
// through the same handler as the rest of the client.
type PionFactory struct {
	Logger *slog.Logger
}

var _ logging.LoggerFactory = (*PionFactory)(nil)

func NewPionFactory(logger *slog.Logger) *PionFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &PionFactory{Logger: logger}
}

func (f *PionFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{log: f.Logger.With("scope", scope)}
}

type pionLogger struct {
	log *slog.Logger
}

func (l *pionLogger) Trace(msg string)                  { l.log.Debug(msg) }
func (l *pionLogger) Tracef(format string, args ...any) { l.log.Debug(fmt.Sprintf(format, args...)) }
func (l *pionLogger) Debug(msg string)                  { l.log.Debug(msg) }
func (l *pionLogger) Debugf(format string, args ...any) { l.log.Debug(fmt.Sprintf(format, args...)) }
func (l *pionLogger) Info(msg string)                   { l.log.Info(msg) }
func (l *pionLogger) Infof(format string, args ...any)  { l.log.Info(fmt.Sprintf(format, args...)) }
func (l *pionLogger) Warn(msg string)                   { l.log.Warn(msg) }
func (l *pionLogger) Warnf(format string, args ...any)  { l.log.Warn(fmt.Sprintf(format, args...)) }
func (l *pionLogger) Error(msg string)                  { l.log.Error(msg) }
func (l *pionLogger) Errorf(format string, args ...any) { l.log.Error(fmt.Sprintf(format, args...)) }
