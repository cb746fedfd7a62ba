// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging provides the printf-style log helpers used across the tool.
// Messages go through a single logrus logger so that partition and phase
// fields can be attached as structured data.
package logging

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	logger   = newLogger(os.Stderr)
	exitFunc = os.Exit
)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(formatterFor(out, false))
	return l
}

func formatterFor(out io.Writer, noColor bool) logrus.Formatter {
	colors := false
	if f, ok := out.(*os.File); ok && !noColor {
		colors = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &logrus.TextFormatter{
		FullTimestamp:    true,
		TimestampFormat:  "2006-01-02 15:04:05",
		ForceColors:      colors,
		DisableColors:    !colors,
		QuoteEmptyFields: true,
	}
}

// SetOutput redirects all log output, e.g. to a buffer in tests.
func SetOutput(out io.Writer) {
	logger.SetOutput(out)
	logger.SetFormatter(formatterFor(out, false))
}

// DisableColor turns off terminal colours even when writing to a TTY.
func DisableColor() {
	logger.SetFormatter(formatterFor(logger.Out, true))
}

// SetLevel parses a logrus level name ("debug", "info", "warn", ...).
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	return nil
}

// WithFields returns an entry carrying structured fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return logger.WithFields(fields)
}

// Debug logs a debug message.
func Debug(f string, a ...any) {
	logger.Debugf(f, a...)
}

// Info logs an informational message.
func Info(f string, a ...any) {
	logger.Infof(f, a...)
}

// Warn logs a warning.
func Warn(f string, a ...any) {
	logger.Warnf(f, a...)
}

// Error logs an error without exiting.
func Error(f string, a ...any) {
	logger.Errorf(f, a...)
}

// Fatal logs an error and exits with status 1.
func Fatal(f string, a ...any) {
	logger.Errorf(f, a...)
	exitFunc(1)
}
