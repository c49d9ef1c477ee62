// Package rlog configures ReplayKit's process-wide structured logger.
// Grounded on the teacher's cli/run.go: a verbose flag selects
// slog.LevelDebug over slog.LevelInfo, a text handler writes to
// stderr, and slog.SetDefault installs it; call sites elsewhere use the
// package-level slog.Info/Debug/Warn/Error functions directly, exactly
// as the teacher's engine package does.
package rlog

import (
	"log/slog"
	"os"
)

// Options controls the process-wide logger (§ ambient logging).
type Options struct {
	Verbose bool
	JSON    bool
}

// Configure installs the process-wide slog default logger per Options.
func Configure(opts Options) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}

	slog.SetDefault(slog.New(handler))
}
