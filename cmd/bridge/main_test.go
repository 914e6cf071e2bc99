package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger_ParsesValidLevel(t *testing.T) {
	logger := newLogger("warn")
	assert.True(t, logger.Enabled(nil, slog.LevelWarn))
	assert.False(t, logger.Enabled(nil, slog.LevelInfo))
}

func TestNewLogger_FallsBackToInfoOnGarbage(t *testing.T) {
	logger := newLogger("not-a-level")
	assert.True(t, logger.Enabled(nil, slog.LevelInfo))
}
