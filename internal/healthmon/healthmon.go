// SPDX-License-Identifier: MIT

// Package healthmon implements HealthMonitor (spec §4.10): a dedicated
// long-lived watchdog that polls worker heartbeats on a fixed interval
// and raises a StallDetected event when one goes quiet past its
// threshold, mirroring the teacher's internal/health.ResourceMonitor
// polling loop (MonitorProcess) but sampling AsyncLogger's in-process
// heartbeat table instead of /proc for a PID.
package healthmon

import (
	"context"
	"time"

	"github.com/coylemichael/screenrecorder/internal/asynclog"
	"github.com/coylemichael/screenrecorder/internal/errs"
)

// DefaultPollInterval matches spec §4.10's "polls worker heartbeats
// every 2s".
const DefaultPollInterval = 2 * time.Second

// DefaultStallThresholdMs matches spec §4.10's default stall_threshold.
const DefaultStallThresholdMs = 10_000

// StallEvent is raised once per worker transition into the stalled
// state; the Supervisor subscribes to these via OnStall and treats each
// as a recoverable event (stop + restart), per spec §3's StallDetected.
type StallEvent struct {
	WorkerID    string
	LastBeatMs  int64
	BeatCount   int64
	ThresholdMs int64
	At          time.Time
}

// Config parameterizes a Monitor.
type Config struct {
	// Logger supplies the heartbeat table; required.
	Logger *asynclog.Logger
	// PollInterval defaults to DefaultPollInterval when zero.
	PollInterval time.Duration
	// StallThresholdMs defaults to DefaultStallThresholdMs when zero.
	StallThresholdMs int64
	// OnStall is invoked, from the monitor's own goroutine, once per
	// worker each time it crosses from healthy into stalled. It is
	// never called again for the same worker until a fresh heartbeat
	// clears the stall and it stalls again.
	OnStall func(StallEvent)
}

// Monitor is HealthMonitor: a single dedicated goroutine (spec §4.10's
// "parallel OS thread", realized here as a Go goroutine per the
// teacher's own ResourceMonitor.MonitorProcess convention) that polls
// every tracked worker's heartbeat and fires OnStall on transition.
type Monitor struct {
	cfg     Config
	stalled map[string]bool
}

// New builds a Monitor. Logger must be non-nil.
func New(cfg Config) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StallThresholdMs <= 0 {
		cfg.StallThresholdMs = DefaultStallThresholdMs
	}
	return &Monitor{cfg: cfg, stalled: make(map[string]bool)}
}

// Name implements supervisor.Service.
func (m *Monitor) Name() string { return "healthmon" }

// Run implements supervisor.Service: poll until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *Monitor) poll() {
	if m.cfg.Logger == nil {
		return
	}
	now := time.Now()
	snapshots := m.cfg.Logger.Heartbeats()

	for id, hb := range snapshots {
		// LastBeatMs counts from the logger's init, not the Unix epoch, so
		// the age is measured by the logger itself.
		stalledNow := m.cfg.Logger.IsWorkerStalled(id, m.cfg.StallThresholdMs)
		wasStalled := m.stalled[id]

		switch {
		case stalledNow && !wasStalled:
			m.stalled[id] = true
			if m.cfg.OnStall != nil {
				m.cfg.OnStall(StallEvent{
					WorkerID:    id,
					LastBeatMs:  hb.LastBeatMs,
					BeatCount:   hb.BeatCount,
					ThresholdMs: m.cfg.StallThresholdMs,
					At:          now,
				})
			}
		case !stalledNow:
			m.stalled[id] = false
		}
	}

	// Workers that stopped reporting entirely (removed from the table)
	// no longer need tracking.
	for id := range m.stalled {
		if _, ok := snapshots[id]; !ok {
			delete(m.stalled, id)
		}
	}
}

// StalledWorkers returns the IDs currently considered stalled, for
// diagnostics and the health HTTP endpoint.
func (m *Monitor) StalledWorkers() []string {
	var out []string
	for id, s := range m.stalled {
		if s {
			out = append(out, id)
		}
	}
	return out
}

// AsError renders a StallEvent as the errs taxonomy's KindStallDetected,
// the shape Supervisor-level recovery code consumes (spec §7).
func (e StallEvent) AsError() *errs.Error {
	return errs.New(errs.KindStallDetected, "healthmon.poll",
		"worker "+e.WorkerID+" stalled")
}
