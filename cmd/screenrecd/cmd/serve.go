// SPDX-License-Identifier: MIT

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coylemichael/screenrecorder/internal/config"
	"github.com/coylemichael/screenrecorder/internal/health"
	"github.com/coylemichael/screenrecorder/internal/healthmon"
	"github.com/coylemichael/screenrecorder/internal/lock"
	"github.com/coylemichael/screenrecorder/internal/recorder"
	"github.com/coylemichael/screenrecorder/internal/replaybuf"
	"github.com/coylemichael/screenrecorder/internal/supervisor"
)

// defaultLockPath and defaultHealthAddr follow the teacher's own
// single-instance + health-probe conventions (internal/lock,
// internal/health), re-homed under this daemon's own name.
const (
	defaultLockPath   = "/run/screenrecd/screenrecd.lock"
	defaultHealthAddr = ":9595"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the screenrecd daemon",
	Long: `Start the recorder daemon: load configuration, acquire the
single-instance lock, bring up the replay buffer and its HealthMonitor
watchdog under a Supervisor, and serve /healthz + /metrics.

The daemon starts in replay mode (the default per spec §6): a rolling
in-memory window is kept continuously and saved to disk on demand. A
direct-to-disk Recorder session is started instead when --record is set.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("lock-path", defaultLockPath, "single-instance lock file path")
	serveCmd.Flags().String("health-addr", defaultHealthAddr, "address for the /healthz and /metrics endpoints")
	serveCmd.Flags().Bool("record", false, "record straight to disk instead of keeping a replay window")
	serveCmd.Flags().String("output", "", "output file path in record mode (default <save_dir>/recording.mp4); not used in replay mode")
}

// daemonService implements health.StatusProvider for the serve command,
// reporting the daemon as a single generic health.ServiceInfo entry. No
// health.SystemInfoProvider is attached, so /healthz carries no system
// block.
type daemonService struct {
	name    string
	started time.Time
	healthy func() bool
}

func (d *daemonService) Services() []health.ServiceInfo {
	return []health.ServiceInfo{{
		Name:    d.name,
		State:   "active",
		Uptime:  time.Since(d.started),
		Healthy: d.healthy(),
	}}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	lockPath, _ := cmd.Flags().GetString("lock-path")
	healthAddr, _ := cmd.Flags().GetString("health-addr")
	recordMode, _ := cmd.Flags().GetBool("record")
	output, _ := cmd.Flags().GetString("output")

	fl, err := lock.NewFileLock(lockPath)
	if err != nil {
		return fmt.Errorf("creating lock: %w", err)
	}
	if err := fl.Acquire(10 * time.Second); err != nil {
		return fmt.Errorf("another screenrecd instance holds %s: %w", lockPath, err)
	}
	defer fl.Release()

	cfgPath := resolveConfigPath(cmd)
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.Warn("failed to load configuration; using defaults", slog.String("path", cfgPath), slog.String("error", err.Error()))
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Info("screenrecd starting",
		slog.String("version", version),
		slog.String("quality", string(cfg.Quality)),
		slog.String("output_format", string(cfg.OutputFormat)),
		slog.Int("fps", cfg.FPS),
		slog.Bool("record_mode", recordMode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := supervisor.New(supervisor.DefaultConfig())

	started := time.Now()
	healthy := true

	mon := healthmon.New(healthmon.Config{
		Logger: sharedLogger,
		OnStall: func(e healthmon.StallEvent) {
			logger.Warn("worker stalled",
				slog.String("worker", e.WorkerID),
				slog.Int64("last_beat_ms", e.LastBeatMs),
				slog.Int64("threshold_ms", e.ThresholdMs),
			)
		},
	})
	if err := sup.Add(mon); err != nil {
		return fmt.Errorf("registering health monitor: %w", err)
	}

	if recordMode {
		path := output
		if path == "" {
			path = filepath.Join(cfg.SaveDir, "recording.mp4")
		}
		rec, err := recorder.New(recorder.Config{
			Region:       regionFromConfig(cfg.ReplayCaptureSource),
			Width:        defaultWidth,
			Height:       defaultHeight,
			FPS:          cfg.FPS,
			Quality:      qualityFromConfig(cfg.Quality),
			Codec:        codecFromConfig(cfg.OutputFormat),
			Container:    containerFromConfig(cfg.OutputFormat),
			AudioEnabled: cfg.AudioEnabled,
			AudioSources: audioSourcesFromConfig(cfg.AudioSources),
		}, sharedLogger)
		if err != nil {
			return fmt.Errorf("constructing recorder: %w", err)
		}
		svc := rec.AsService(path)
		if err := sup.Add(svc); err != nil {
			return fmt.Errorf("registering recorder service: %w", err)
		}
	} else {
		rb, err := newReplayBufferFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("constructing replay buffer: %w", err)
		}
		if err := sup.Add(rb); err != nil {
			return fmt.Errorf("registering replay buffer service: %w", err)
		}
		// save_replay/cancel hotkeys are handled by the UI collaborator
		// (spec §4.1) invoking rb.SaveAsync over the daemon's control
		// surface; wiring that RPC/IPC layer is out of serve's scope here.
	}

	ds := &daemonService{name: "screenrecd", started: started, healthy: func() bool { return healthy }}
	healthHandler := health.NewHandler(ds)

	healthReady := make(chan struct{})
	go func() {
		if err := health.ListenAndServeReady(ctx, healthAddr, healthHandler, healthReady); err != nil {
			logger.Error("health endpoint exited", slog.String("error", err.Error()))
		}
	}()
	select {
	case <-healthReady:
		logger.Info("health endpoint listening", slog.String("addr", healthAddr))
	case <-time.After(5 * time.Second):
		logger.Warn("health endpoint did not report ready in time")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := sup.Run(ctx); err != nil {
		return fmt.Errorf("supervisor exited: %w", err)
	}

	sharedLogger.Flush()
	sharedLogger.Shutdown()
	return nil
}

func newReplayBufferFromConfig(cfg *config.Config) (*replaybuf.ReplayBuffer, error) {
	return replaybuf.New(replaybuf.Config{
		Region:          regionFromConfig(cfg.ReplayCaptureSource),
		Width:           defaultWidth,
		Height:          defaultHeight,
		FPS:             cfg.FPS,
		Quality:         qualityFromConfig(cfg.Quality),
		Codec:           codecFromConfig(cfg.OutputFormat),
		ReplayDurationS: float64(cfg.ReplayDurationS),
		AudioEnabled:    cfg.AudioEnabled,
		AudioSources:    audioSourcesFromConfig(cfg.AudioSources),
	}, sharedLogger)
}
