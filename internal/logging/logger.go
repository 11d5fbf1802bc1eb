// Package logging builds the zap loggers shared by the service and the CLI.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const timeLayout = "2006-01-02T15:04:05"

// NewLogger builds a sugared logger writing to stdout and, when filepath is set, to that file.
func NewLogger(level string, isProd, isJSON bool, filepath string) (*zap.SugaredLogger, error) {
	log, err := newLogger(level, isProd, isJSON, filepath, nil)
	if err != nil {
		return nil, err
	}
	return log.Sugar(), nil
}

// NewWriterLogger is NewLogger with an additional console core writing to wr.
func NewWriterLogger(level string, wr io.Writer) (*zap.SugaredLogger, error) {
	log, err := newLogger(level, false, false, "", wr)
	if err != nil {
		return nil, err
	}
	return log.Sugar(), nil
}

// NewTestLogger logs only to stdout
func NewTestLogger() *zap.SugaredLogger {
	log, _ := newLogger("debug", false, false, "", nil)
	return log.Sugar()
}

// Security logs a security event at warn level, tagged so alerts can filter on it.
func Security(log *zap.SugaredLogger, msg string, keysAndValues ...interface{}) {
	log.Warnw(msg, append([]interface{}{"security_event", true}, keysAndValues...)...)
}

func newLogger(levelStr string, isProd, isJSON bool, filepath string, extraWriter io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}

	var cores []zapcore.Core

	if filepath != "" {
		fileCore, err := newFileCore(level, isProd, isJSON, filepath)
		if err != nil {
			return nil, err
		}
		cores = append(cores, fileCore)
	}
	if extraWriter != nil {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(extraWriter), level))
	}
	cores = append(cores, newConsoleCore(level, isProd, isJSON))

	core := cores[0]
	if len(cores) > 1 {
		core = zapcore.NewTee(cores...)
	}

	opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if !isProd {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...), nil
}

func newConsoleCore(level zapcore.Level, isProd, isJSON bool) zapcore.Core {
	return zapcore.NewCore(newEncoder(isProd, isJSON), zapcore.AddSync(os.Stdout), level)
}

func newFileCore(level zapcore.Level, isProd, isJSON bool, path string) (zapcore.Core, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o666)
	if err != nil {
		return nil, err
	}
	return zapcore.NewCore(newEncoder(isProd, isJSON), zapcore.AddSync(file), level), nil
}

func newEncoder(isProd, isJSON bool) zapcore.Encoder {
	var cfg zapcore.EncoderConfig
	if isProd {
		cfg = zap.NewProductionEncoderConfig()
	} else {
		cfg = zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	}
	if isJSON {
		return zapcore.NewJSONEncoder(cfg)
	}
	return zapcore.NewConsoleEncoder(cfg)
}
