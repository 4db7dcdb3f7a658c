// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package commons

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging capability every component receives by injection.
// It mirrors the zap sugared logger surface plus a small benchmark helper.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})

	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})

	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})

	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	Fatalf(template string, args ...interface{})

	// Benchmark logs how long the named function took.
	Benchmark(functionName string, duration time.Duration)

	// With returns a child logger carrying the given key/value pairs.
	With(keysAndValues ...interface{}) Logger

	Sync() error
}

type applicationLogger struct {
	*zap.SugaredLogger
}

type loggerOptions struct {
	name       string
	path       string
	level      string
	enableFile bool
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
}

// Option configures NewApplicationLogger.
type Option func(*loggerOptions)

// Name sets the logger name and the log file name.
func Name(name string) Option {
	return func(o *loggerOptions) { o.name = name }
}

// Path sets the directory for the rotated log file and turns file output on.
func Path(path string) Option {
	return func(o *loggerOptions) {
		o.path = path
		o.enableFile = path != ""
	}
}

// Level sets the minimum level: debug, info, warn or error.
func Level(level string) Option {
	return func(o *loggerOptions) { o.level = level }
}

// EnableFile toggles the lumberjack file sink.
func EnableFile(enable bool) Option {
	return func(o *loggerOptions) { o.enableFile = enable }
}

// Rotation overrides the lumberjack rotation limits.
func Rotation(maxSizeMB, maxBackups, maxAgeDays int) Option {
	return func(o *loggerOptions) {
		o.maxSizeMB = maxSizeMB
		o.maxBackups = maxBackups
		o.maxAgeDays = maxAgeDays
	}
}

// NewApplicationLogger builds a zap backed Logger writing to stdout and,
// when a path is configured, to a rotated file.
func NewApplicationLogger(opts ...Option) (Logger, error) {
	o := &loggerOptions{
		name:       "voice-client",
		level:      "info",
		maxSizeMB:  50,
		maxBackups: 3,
		maxAgeDays: 28,
	}
	for _, opt := range opts {
		opt(o)
	}

	level := zap.NewAtomicLevelAt(parseLevel(o.level))
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stdout), level),
	}
	if o.enableFile {
		if o.path != "" {
			if err := os.MkdirAll(o.path, 0o755); err != nil {
				return nil, err
			}
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   filepath.Join(o.path, o.name+".log"),
				MaxSize:    o.maxSizeMB,
				MaxBackups: o.maxBackups,
				MaxAge:     o.maxAgeDays,
				Compress:   true,
			}),
			level,
		))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).Named(o.name)
	return &applicationLogger{SugaredLogger: logger.Sugar()}, nil
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(logger *zap.Logger) Logger {
	return &applicationLogger{SugaredLogger: logger.Sugar()}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger {
	return &applicationLogger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *applicationLogger) Benchmark(functionName string, duration time.Duration) {
	l.SugaredLogger.Debugw("benchmark", "function", functionName, "duration", duration)
}

func (l *applicationLogger) With(keysAndValues ...interface{}) Logger {
	return &applicationLogger{SugaredLogger: l.SugaredLogger.With(keysAndValues...)}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
