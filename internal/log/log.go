// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package log wraps logrus the way the teacher's subsystems do
// (lg = log.WithField("process", "reduction")), with an optional rotating
// file sink via lumberjack.
package log

import (
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// WithProcess returns an Entry tagged with a "process" field, mirroring the
// per-package loggers scattered through the teacher (agreement, reduction,
// acceptor, ...).
func WithProcess(process string) *logrus.Entry {
	return base.WithField("process", process)
}

// Configure installs a rotating file sink alongside stderr, and sets the
// minimum level. Called once at node startup.
func Configure(level logrus.Level, logPath string, maxSizeMB, maxBackups, maxAgeDays int) error {
	base.SetLevel(level)

	if logPath == "" {
		return nil
	}

	rotator := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}

	base.SetOutput(io.MultiWriter(base.Out, rotator))
	return nil
}
