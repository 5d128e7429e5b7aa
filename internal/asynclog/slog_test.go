// SPDX-License-Identifier: MIT

package asynclog

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlogHandlerPublishesToRing(t *testing.T) {
	buf, logger := newTestBuf()
	h := NewSlogHandler(logger, slog.LevelInfo)
	slogger := slog.New(h)

	slogger.Info("capture started", "fps", 60)
	logger.Flush()
	logger.Shutdown()

	assert.Contains(t, buf.String(), "capture started")
	assert.Contains(t, buf.String(), "fps=60")
}

func TestSlogHandlerFiltersBelowLevel(t *testing.T) {
	buf, logger := newTestBuf()
	h := NewSlogHandler(logger, slog.LevelWarn)
	slogger := slog.New(h)

	slogger.Debug("should not appear")
	slogger.Warn("should appear")
	logger.Flush()
	logger.Shutdown()

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestSlogHandlerWithAttrsAndGroup(t *testing.T) {
	buf, logger := newTestBuf()
	h := NewSlogHandler(logger, slog.LevelInfo)
	slogger := slog.New(h).With("component", "recorder").WithGroup("pipeline")

	slogger.Info("frame dropped")
	logger.Flush()
	logger.Shutdown()

	out := buf.String()
	assert.Contains(t, out, "pipeline.frame dropped")
	assert.Contains(t, out, "component=recorder")
}

func TestSlogHandlerEnabled(t *testing.T) {
	_, logger := newTestBuf()
	h := NewSlogHandler(logger, slog.LevelWarn)
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
	logger.Shutdown()
}

func TestSlogHandlerDefaultsToInfoLevel(t *testing.T) {
	_, logger := newTestBuf()
	h := NewSlogHandler(logger, nil)
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	logger.Shutdown()
}
