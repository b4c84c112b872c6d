// Medialib Core
// Copyright (c) 2026 The Medialib Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Medialib Core.
//
// Medialib Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Medialib Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Medialib Core.  If not, see <http://www.gnu.org/licenses/>.

package helpers

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "medialib.log"

// InitLogging points the global logger at a rolling log file in logDir
// plus any extra writers (a console writer, usually).
func InitLogging(logDir string, writers []io.Writer) error {
	err := os.MkdirAll(logDir, 0o750)
	if err != nil {
		return err
	}

	logWriters := []io.Writer{&lumberjack.Logger{
		Filename:   filepath.Join(logDir, logFileName),
		MaxSize:    1,
		MaxBackups: 2,
	}}

	if len(writers) > 0 {
		logWriters = append(logWriters, writers...)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	log.Logger = log.Output(io.MultiWriter(logWriters...)).
		With().Timestamp().Caller().Logger()

	return nil
}

// Verbosity levels exposed by the facade, mapped onto zerolog's global
// level so every package picks them up.
type Verbosity int

const (
	VerbosityError Verbosity = iota
	VerbosityInfo
	VerbosityDebug
)

func SetVerbosity(v Verbosity) {
	switch v {
	case VerbosityDebug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case VerbosityInfo:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
}
