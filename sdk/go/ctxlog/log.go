// Copyright (C) The Biodivine Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package ctxlog carries a logrus logger in a context.Context, so
// supervisors and dispatchers log with the fields of whoever called
// them instead of sharing a global logger.
package ctxlog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	check "gopkg.in/check.v1"
)

var (
	loggerCtxKey = new(int)
	rootLogger   = logrus.New()
)

const rfc3339NanoFixed = "2006-01-02T15:04:05.000000000Z07:00"

// Context returns a new child context such that FromContext(child)
// returns the given logger.
func Context(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

// FromContext returns the logger suitable for the given context -- the one
// attached by Context() if applicable, otherwise the
// top-level logger with no fields/values.
func FromContext(ctx context.Context) logrus.FieldLogger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerCtxKey).(logrus.FieldLogger); ok {
			return logger
		}
	}
	return rootLogger.WithFields(nil)
}

// New returns a new logger with the indicated format and
// level. Invalid format or level names fall back to "text" and
// "info".
func New(out io.Writer, format, level string) *logrus.Logger {
	logger := logrus.New()
	logger.Out = out
	setFormat(logger, format)
	if lvl, err := ParseLevel(level); err == nil {
		logger.Level = lvl
	} else {
		logger.Level = logrus.InfoLevel
		logger.WithError(err).Warn("using log level info")
	}
	return logger
}

// TestLogger returns a logger that writes to c.Log at debug level.
func TestLogger(c *check.C) *logrus.Logger {
	logger := logrus.New()
	logger.Out = &logWriter{c.Log}
	setFormat(logger, "text")
	logger.Level = logrus.DebugLevel
	return logger
}

// ParseLevel accepts logrus level names as well as the console
// level names used in experiment files ("severe", "fine", "finest",
// ...).
func ParseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "":
		return logrus.InfoLevel, nil
	case "off":
		return logrus.PanicLevel, nil
	case "severe":
		return logrus.ErrorLevel, nil
	case "warning":
		return logrus.WarnLevel, nil
	case "fine":
		return logrus.DebugLevel, nil
	case "finer", "finest", "all":
		return logrus.TraceLevel, nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return 0, fmt.Errorf("unknown log level %q", level)
	}
	return lvl, nil
}

// SetLevel sets the level of the top-level logger returned by
// FromContext when no logger is attached.
func SetLevel(level string) {
	lvl, err := ParseLevel(level)
	if err != nil {
		rootLogger.Fatal(err)
	}
	rootLogger.Level = lvl
}

func setFormat(logger *logrus.Logger, format string) {
	switch format {
	case "text", "":
		logger.Formatter = &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: rfc3339NanoFixed,
			DisableColors:   !isTerminal(logger.Out),
		}
	case "json":
		logger.Formatter = &logrus.JSONFormatter{
			TimestampFormat: rfc3339NanoFixed,
		}
	default:
		logger.WithField("LogFormat", format).Error("unknown log format, using text")
		setFormat(logger, "text")
	}
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

type logWriter struct {
	logfunc func(...interface{})
}

func (tl *logWriter) Write(buf []byte) (int, error) {
	tl.logfunc(strings.TrimSuffix(string(buf), "\n"))
	return len(buf), nil
}
