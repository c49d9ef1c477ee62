package rlog

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigureSelectsDebugLevelWhenVerbose(t *testing.T) {
	Configure(Options{Verbose: true})
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
}

func TestConfigureDefaultsToInfoLevel(t *testing.T) {
	Configure(Options{Verbose: false})
	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))
}
