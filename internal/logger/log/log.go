// Package log is the process-wide structured logger. Every component logs
// through here instead of fmt.Println or the standard library log package.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/amd-agi/genforge/internal/logger/conf"
)

var global = logrus.New()

func init() {
	_ = Init(conf.DefaultConfig())
}

// Init (re)configures the global logger. Safe to call once at startup.
func Init(cfg *conf.LogConfig) error {
	level, err := logrus.ParseLevel(string(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	global.SetLevel(level)

	if cfg.Format == conf.JSONFormatter {
		global.SetFormatter(&logrus.JSONFormatter{})
	} else {
		global.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stderr
	if cfg.FilePath != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}
	global.SetOutput(out)
	return nil
}

// Global returns the underlying logrus logger for callers that need a
// *logrus.Entry (e.g. to attach request-scoped fields).
func Global() *logrus.Logger {
	return global
}

// Fields is a typed alias for structured log fields.
type Fields = logrus.Fields

func WithFields(fields Fields) *logrus.Entry {
	return global.WithFields(fields)
}

func Trace(args ...interface{}) { global.Trace(args...) }
func Tracef(format string, args ...interface{}) { global.Tracef(format, args...) }

func Debug(args ...interface{})                 { global.Debug(args...) }
func Debugf(format string, args ...interface{}) { global.Debugf(format, args...) }

func Info(args ...interface{})                 { global.Info(args...) }
func Infof(format string, args ...interface{}) { global.Infof(format, args...) }

func Warn(args ...interface{})                 { global.Warn(args...) }
func Warnf(format string, args ...interface{}) { global.Warnf(format, args...) }

func Error(args ...interface{})                 { global.Error(args...) }
func Errorf(format string, args ...interface{}) { global.Errorf(format, args...) }

func Fatal(args ...interface{})                 { global.Fatal(args...) }
func Fatalf(format string, args ...interface{}) { global.Fatalf(format, args...) }
