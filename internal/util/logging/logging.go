// Copyright 2026 The linux-practice Authors
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

// Package logging provides shared logging utilities for all binaries.
// It configures log/slog as the process-wide default logger so every
// package can log through the standard slog calls.
package logging

import (
	"log/slog"
	"os"
)

// Options configures the logger behavior.
type Options struct {
	// Development enables development mode logging (more verbose, human-readable).
	Development bool

	// Level sets the minimum log level. Defaults to slog.LevelInfo.
	Level slog.Level
}

// DefaultOptions returns the default logging options.
func DefaultOptions() Options {
	return Options{
		Development: false,
		Level:       slog.LevelInfo,
	}
}

// Setup configures the standard library slog logger.
// This must be called early in main() before anything logs.
func Setup(opts Options) *slog.Logger {
	var handler slog.Handler
	if opts.Development {
		// Use text handler for development (more readable)
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: opts.Level,
		})
	} else {
		// Use JSON handler for production (structured, machine-readable)
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: opts.Level,
		})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// SetupDefault sets up logging with default options.
// Convenience function for simple cases.
func SetupDefault() *slog.Logger {
	return Setup(DefaultOptions())
}

// SetupDevelopment sets up logging in development mode.
// Uses text handler and more verbose output.
func SetupDevelopment() *slog.Logger {
	return Setup(Options{
		Development: true,
		Level:       slog.LevelDebug,
	})
}
