// SPDX-License-Identifier: MIT

package healthmon

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coylemichael/screenrecorder/internal/asynclog"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newLogger() *asynclog.Logger {
	return asynclog.New(nopWriteCloser{io.Discard})
}

func TestMonitorFiresOnStall(t *testing.T) {
	logger := newLogger()
	defer logger.Shutdown()
	logger.Heartbeat("capture")

	var mu sync.Mutex
	var events []StallEvent
	mon := New(Config{
		Logger:           logger,
		PollInterval:     5 * time.Millisecond,
		StallThresholdMs: 1,
		OnStall: func(e StallEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	})

	// Sleep past the 1ms threshold so the heartbeat reads as stalled on the
	// very first poll without needing to sleep out the real threshold.
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = mon.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, "capture", events[0].WorkerID)
	assert.Contains(t, mon.StalledWorkers(), "capture")
}

func TestMonitorDoesNotFireForFreshHeartbeats(t *testing.T) {
	logger := newLogger()
	defer logger.Shutdown()
	logger.Heartbeat("audio")

	var calls int
	mon := New(Config{
		Logger:           logger,
		PollInterval:     5 * time.Millisecond,
		StallThresholdMs: DefaultStallThresholdMs,
		OnStall:          func(StallEvent) { calls++ },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = mon.Run(ctx)

	assert.Zero(t, calls)
	assert.Empty(t, mon.StalledWorkers())
}

func TestMonitorIgnoresInactiveWorkers(t *testing.T) {
	logger := newLogger()
	defer logger.Shutdown()
	logger.Heartbeat("save")
	logger.MarkInactive("save")

	mon := New(Config{Logger: logger, StallThresholdMs: 1})
	mon.poll()
	assert.Empty(t, mon.StalledWorkers())
}

func TestStallEventAsError(t *testing.T) {
	e := StallEvent{WorkerID: "capture", ThresholdMs: 10_000}
	err := e.AsError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture")
}

func TestNameAndDefaults(t *testing.T) {
	logger := newLogger()
	defer logger.Shutdown()
	mon := New(Config{Logger: logger})
	assert.Equal(t, "healthmon", mon.Name())
	assert.Equal(t, DefaultPollInterval, mon.cfg.PollInterval)
	assert.EqualValues(t, DefaultStallThresholdMs, mon.cfg.StallThresholdMs)
}
