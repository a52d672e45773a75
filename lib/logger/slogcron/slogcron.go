package slogcron

import (
	"log/slog"

	"github.com/immxrtalbeast/studyroom/lib/logger/sl"
	"github.com/robfig/cron/v3"
)

// Logger adapts *slog.Logger to cron.Logger. cron's Info messages are
// routine scheduler chatter, so they are logged at debug level.
type Logger struct {
	log *slog.Logger
}

var _ cron.Logger = Logger{}

func New(log *slog.Logger) Logger {
	return Logger{log: log}
}

func (l Logger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l Logger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append([]interface{}{sl.Err(err)}, keysAndValues...)...)
}
