// Package log provides leveled, structured logging for all subsystems.
// It is a thin wrapper around logrus that accepts an optional context as
// the first argument, a message, an optional trailing error, and
// alternating key/value pairs in between.
package log

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

type Level uint8

const (
	LevelFatal = Level(logrus.FatalLevel)
	LevelError = Level(logrus.ErrorLevel)
	LevelWarn  = Level(logrus.WarnLevel)
	LevelInfo  = Level(logrus.InfoLevel)
	LevelDebug = Level(logrus.DebugLevel)
	LevelTrace = Level(logrus.TraceLevel)
)

var (
	currentLevel  = LevelInfo
	defaultLogger = logrus.New()
)

func init() {
	defaultLogger.Level = logrus.Level(currentLevel)
}

// SetLevel changes the global log level.
func SetLevel(l Level) {
	currentLevel = l
	defaultLogger.Level = logrus.Level(l)
}

// SetLevelString accepts one of "fatal", "error", "warn", "info",
// "debug", "trace" (case-insensitive). Unknown strings keep the current
// level.
func SetLevelString(l string) {
	if parsed, err := logrus.ParseLevel(l); err == nil {
		SetLevel(Level(parsed))
	}
}

func CurrentLevel() Level { return currentLevel }

// IsGreaterOrEqualTo reports whether the given level would be emitted.
func IsGreaterOrEqualTo(l Level) bool { return currentLevel >= l }

// SetOutput redirects all log output. Used by tests.
func SetOutput(w io.Writer) { defaultLogger.SetOutput(w) }

func Fatal(args ...interface{}) { logAt(logrus.FatalLevel, args...); defaultLogger.Exit(1) }
func Error(args ...interface{}) { logAt(logrus.ErrorLevel, args...) }
func Warn(args ...interface{})  { logAt(logrus.WarnLevel, args...) }
func Info(args ...interface{})  { logAt(logrus.InfoLevel, args...) }
func Debug(args ...interface{}) { logAt(logrus.DebugLevel, args...) }
func Trace(args ...interface{}) { logAt(logrus.TraceLevel, args...) }

func logAt(level logrus.Level, args ...interface{}) {
	if !defaultLogger.IsLevelEnabled(level) {
		return
	}
	msg, fields := parseArgs(args)
	defaultLogger.WithFields(fields).Log(level, msg)
}

// parseArgs splits the argument list into the message, key/value fields
// and an optional error. An initial context.Context is tolerated and
// ignored; it keeps call sites uniform with handlers that have one.
func parseArgs(args []interface{}) (string, logrus.Fields) {
	if len(args) > 0 {
		if _, ok := args[0].(context.Context); ok {
			args = args[1:]
		}
	}
	var msg string
	if len(args) > 0 {
		msg = fmt.Sprint(args[0])
		args = args[1:]
	}
	fields := logrus.Fields{}
	for i := 0; i < len(args); i++ {
		if err, ok := args[i].(error); ok {
			fields["error"] = err.Error()
			continue
		}
		if i+1 < len(args) {
			fields[fmt.Sprint(args[i])] = args[i+1]
			i++
		} else {
			fields["misc"] = fmt.Sprint(args[i])
		}
	}
	return msg, fields
}
