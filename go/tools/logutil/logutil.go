// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logutil builds the process slog.Logger from viper-backed flags.
package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/multigres/dbpool/go/tools/viperutil"
)

// Logger holds the logging configuration values.
type Logger struct {
	level  viperutil.Value[string]
	format viperutil.Value[string]
	output viperutil.Value[string]

	// Stdout and Stderr are the writers used for the "stdout" and "stderr"
	// outputs. Tests replace them.
	Stdout io.Writer
	Stderr io.Writer
}

// NewLogger registers the logging values with reg.
func NewLogger(reg *viperutil.Registry) *Logger {
	return &Logger{
		level: viperutil.Configure(reg, "log-level", viperutil.Options[string]{
			Default:  "info",
			FlagName: "log-level",
			EnvVars:  []string{"DBPOOL_LOG_LEVEL"},
		}),
		format: viperutil.Configure(reg, "log-format", viperutil.Options[string]{
			Default:  "json",
			FlagName: "log-format",
		}),
		output: viperutil.Configure(reg, "log-output", viperutil.Options[string]{
			Default:  "stderr",
			FlagName: "log-output",
		}),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// RegisterFlags registers the logging flags on fs.
func (lg *Logger) RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-level", lg.level.Default(), "Log level (debug, info, warn, error)")
	fs.String("log-format", lg.format.Default(), "Log format (json, text)")
	fs.String("log-output", lg.output.Default(), "Log output (stdout, stderr, or file path)")
	viperutil.BindFlags(fs, lg.level, lg.format, lg.output)
}

// ParseLevel maps a level name to a slog.Level. Unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds a logger from the configured values and installs it as the
// slog default. File outputs are opened on fs; the returned closer closes
// the file (it is a no-op for stdout/stderr).
func (lg *Logger) Setup(fs afero.Fs) (*slog.Logger, io.Closer, error) {
	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)
	switch out := lg.output.Get(); strings.ToLower(out) {
	case "", "stderr":
		w = lg.Stderr
	case "stdout":
		w = lg.Stdout
	default:
		f, err := fs.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log output %q: %w", out, err)
		}
		w, closer = f, f
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(lg.level.Get())}
	var handler slog.Handler
	switch strings.ToLower(lg.format.Get()) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
