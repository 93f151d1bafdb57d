// Package rlog provides the process-wide logging surface for relaybot.
//
// The call surface (Debug/Info/Warn/Error/Fatal, sprintf-style, a
// package-level default logger, a settable level) follows minimega's
// minilog; the implementation is backed by zap's SugaredLogger instead
// of a hand-rolled formatter/writer.
package rlog

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors minilog's five-level scheme.
type Level int

const (
	_ Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	FATAL
)

func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "fatal":
		return FATAL, nil
	}
	return 0, fmt.Errorf("invalid log level %q", s)
}

func (l Level) zap() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

var (
	atom = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base = newLogger()
	sugar = base.Sugar()
)

func newLogger() *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewConsoleEncoder(cfg)
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), atom)
	return zap.New(core)
}

// SetLevel changes the minimum level that reaches stderr.
func SetLevel(l Level) {
	atom.SetLevel(l.zap())
}

// AddFile tees logging to the named file in addition to stderr.
func AddFile(path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewConsoleEncoder(cfg)
	fileCore := zapcore.NewCore(enc, zapcore.AddSync(f), atom)
	consoleCore := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), atom)
	base = zap.New(zapcore.NewTee(consoleCore, fileCore))
	sugar = base.Sugar()
	return nil
}

func Debug(format string, args ...interface{}) { sugar.Debugf(format, args...) }
func Info(format string, args ...interface{})  { sugar.Infof(format, args...) }
func Warn(format string, args ...interface{})  { sugar.Warnf(format, args...) }
func Error(format string, args ...interface{}) { sugar.Errorf(format, args...) }

// Fatal logs and terminates the process, mirroring minilog.Fatal.
func Fatal(format string, args ...interface{}) {
	sugar.Fatalf(format, args...)
}

// Module logs a message tagged with the module that produced it, used
// when attributing module-transient and module-fatal errors.
func Module(name, format string, args ...interface{}) {
	sugar.Warnf("[%s] "+format, append([]interface{}{name}, args...)...)
}
