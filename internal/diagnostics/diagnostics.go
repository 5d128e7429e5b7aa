// SPDX-License-Identifier: MIT

// Package diagnostics provides pre-flight and runtime health checks for the
// recorder daemon.
//
// This adapts the teacher's bash-derived system-resource checks
// (LyreBirdAudio's lyrebird-diagnostics.sh, reimplemented in
// internal/diagnostics) into the checks that matter for a capture-encode-mux
// pipeline: can we write the recording to disk, is there room for it, is a
// real hardware encoder backend linked in or only the synthetic test double,
// does the configured replay window fit the ring's memory budget, and is the
// host's clock source steady enough for PTS timestamps.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/coylemichael/screenrecorder/internal/config"
	"github.com/coylemichael/screenrecorder/internal/ring"
	"github.com/coylemichael/screenrecorder/internal/videoenc"
)

// CheckResult represents the result of a single diagnostic check.
type CheckResult struct {
	Name        string        `json:"name"`
	Category    string        `json:"category"`
	Status      CheckStatus   `json:"status"`
	Message     string        `json:"message"`
	Details     string        `json:"details,omitempty"`
	Duration    time.Duration `json:"duration"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

// CheckStatus indicates the result of a check.
type CheckStatus string

const (
	StatusOK       CheckStatus = "OK"
	StatusWarning  CheckStatus = "WARNING"
	StatusCritical CheckStatus = "CRITICAL"
	StatusSkipped  CheckStatus = "SKIPPED"
	StatusError    CheckStatus = "ERROR"
)

// DiagnosticReport contains results from all diagnostic checks.
type DiagnosticReport struct {
	Timestamp  time.Time     `json:"timestamp"`
	Duration   time.Duration `json:"duration"`
	SystemInfo *SystemInfo   `json:"system_info"`
	Checks     []CheckResult `json:"checks"`
	Summary    *Summary      `json:"summary"`
	Healthy    bool          `json:"healthy"`
}

// SystemInfo contains basic system information.
type SystemInfo struct {
	Hostname     string `json:"hostname"`
	OS           string `json:"os"`
	Kernel       string `json:"kernel"`
	Architecture string `json:"architecture"`
	CPUs         int    `json:"cpus"`
	Memory       int64  `json:"memory_bytes"`
	Uptime       string `json:"uptime"`
	GoVersion    string `json:"go_version"`
}

// Summary contains a summary of check results.
type Summary struct {
	Total    int `json:"total"`
	OK       int `json:"ok"`
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
	Skipped  int `json:"skipped"`
	Error    int `json:"error"`
}

// CheckMode determines which checks to run.
type CheckMode string

const (
	ModeQuick CheckMode = "quick" // save_dir + log file writability only
	ModeFull  CheckMode = "full"  // all checks (default)
)

// Diagnostic thresholds, configurable for different deployment scenarios.
const (
	// LogSizeWarningBytes is the threshold for warning about log file sizes (100MB).
	LogSizeWarningBytes = 100 * 1024 * 1024

	// DiskUsageCriticalPercent is the disk usage percentage that triggers critical status.
	DiskUsageCriticalPercent = 95

	// DiskUsageWarningPercent is the disk usage percentage that triggers warning status.
	DiskUsageWarningPercent = 85

	// RingBudgetWarningMultiplier flags a warning when free space on save_dir's
	// filesystem is less than this many times the ring's estimated memory
	// footprint for the configured replay duration.
	RingBudgetWarningMultiplier = 3

	// RingBudgetCriticalMultiplier flags critical status below this multiple.
	RingBudgetCriticalMultiplier = 1
)

// Options configures the diagnostic run. Runner reads only Mode and Config:
// a nil Config falls back to config.DefaultConfig(), and an empty Mode runs
// the full check set.
type Options struct {
	Mode    CheckMode
	Config  *config.Config
	Output  io.Writer
	Verbose bool
}

// DefaultOptions returns default diagnostic options, built around the
// recorder's default Configuration.
func DefaultOptions() Options {
	return Options{
		Mode:   ModeFull,
		Config: config.DefaultConfig(),
		Output: os.Stdout,
	}
}

// Runner executes diagnostic checks.
type Runner struct {
	opts Options
}

// NewRunner creates a new diagnostic runner.
func NewRunner(opts Options) *Runner {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	return &Runner{opts: opts}
}

// Run executes all diagnostic checks and returns a report.
func (r *Runner) Run(ctx context.Context) (*DiagnosticReport, error) {
	start := time.Now()

	report := &DiagnosticReport{
		Timestamp:  start,
		SystemInfo: r.collectSystemInfo(),
		Summary:    &Summary{},
	}

	for _, check := range r.getChecks() {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
			result := check(ctx)
			report.Checks = append(report.Checks, result)

			report.Summary.Total++
			switch result.Status {
			case StatusOK:
				report.Summary.OK++
			case StatusWarning:
				report.Summary.Warning++
			case StatusCritical:
				report.Summary.Critical++
			case StatusSkipped:
				report.Summary.Skipped++
			case StatusError:
				report.Summary.Error++
			}
		}
	}

	report.Duration = time.Since(start)
	report.Healthy = report.Summary.Critical == 0 && report.Summary.Error == 0

	return report, nil
}

func (r *Runner) getChecks() []func(context.Context) CheckResult {
	quick := []func(context.Context) CheckResult{
		r.checkSaveDirWritable,
		r.checkLogFileWritable,
	}

	if r.opts.Mode == ModeQuick {
		return quick
	}

	return append(quick,
		r.checkSaveDirFreeSpace,
		r.checkEncoderBackend,
		r.checkRingMemoryBudget,
		r.checkClockSource,
	)
}

func (r *Runner) collectSystemInfo() *SystemInfo {
	info := &SystemInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUs:         runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}

	if h, err := os.Hostname(); err == nil {
		info.Hostname = h
	}

	if data, err := os.ReadFile("/proc/version"); err == nil {
		parts := strings.Fields(string(data))
		if len(parts) >= 3 {
			info.Kernel = parts[2]
		}
	}

	if data, err := os.ReadFile("/proc/meminfo"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "MemTotal:") {
				fields := strings.Fields(line)
				if len(fields) >= 2 {
					if kb, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
						info.Memory = kb * 1024
					}
				}
				break
			}
		}
	}

	if data, err := os.ReadFile("/proc/uptime"); err == nil {
		fields := strings.Fields(string(data))
		if len(fields) >= 1 {
			if secs, err := strconv.ParseFloat(fields[0], 64); err == nil {
				info.Uptime = formatDuration(time.Duration(secs) * time.Second)
			}
		}
	}

	return info
}

// checkSaveDirWritable verifies the recorder can write files into
// Configuration.save_dir, creating it if it does not yet exist.
func (r *Runner) checkSaveDirWritable(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "Save Directory Writable", Category: "Storage"}

	saveDir := r.opts.Config.SaveDir
	if err := os.MkdirAll(saveDir, 0750); err != nil {
		result.Status = StatusCritical
		result.Message = "Cannot create save_dir"
		result.Details = err.Error()
		result.Suggestions = append(result.Suggestions, "Check permissions on the parent of "+saveDir)
		result.Duration = time.Since(start)
		return result
	}

	probe, err := os.CreateTemp(saveDir, ".screenrecd-diag-*")
	if err != nil {
		result.Status = StatusCritical
		result.Message = "save_dir is not writable"
		result.Details = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	result.Status = StatusOK
	result.Message = "save_dir is writable"
	result.Details = saveDir
	result.Duration = time.Since(start)
	return result
}

// checkSaveDirFreeSpace checks that the filesystem backing save_dir has
// headroom relative to the ring's estimated memory footprint for the
// configured replay duration.
func (r *Runner) checkSaveDirFreeSpace(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "Save Directory Free Space", Category: "Storage"}

	saveDir := r.opts.Config.SaveDir
	var stat syscall.Statfs_t
	if err := syscall.Statfs(saveDir, &stat); err != nil {
		result.Status = StatusError
		result.Message = "Failed to statfs save_dir"
		result.Details = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	// #nosec G115 -- Bsize is always positive on Linux filesystems
	available := stat.Bavail * uint64(stat.Bsize)
	// #nosec G115 -- Bsize is always positive on Linux filesystems
	total := stat.Blocks * uint64(stat.Bsize)
	usedPercent := 0.0
	if total > 0 {
		usedPercent = 100.0 - (float64(available)/float64(total))*100.0
	}

	needed := uint64(estimatedBudgetBytes(r.opts.Config))

	switch {
	case usedPercent > DiskUsageCriticalPercent || (needed > 0 && available < needed*RingBudgetCriticalMultiplier):
		result.Status = StatusCritical
		result.Message = fmt.Sprintf("Disk usage critical: %.1f%% used, %s available", usedPercent, formatBytes(int64(available)))
		result.Suggestions = append(result.Suggestions, "Free up disk space on the save_dir filesystem")
	case usedPercent > DiskUsageWarningPercent || (needed > 0 && available < needed*RingBudgetWarningMultiplier):
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("Disk usage high: %.1f%% used, %s available", usedPercent, formatBytes(int64(available)))
	default:
		result.Status = StatusOK
		result.Message = fmt.Sprintf("%.1f%% used, %s available", usedPercent, formatBytes(int64(available)))
	}

	result.Duration = time.Since(start)
	return result
}

// checkEncoderBackend reports whether the real libav-backed VideoEncoder is
// linked in, or only the deterministic Synthetic test double used when the
// binary is built without the `libav` tag.
func (r *Runner) checkEncoderBackend(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "Encoder Backend", Category: "Encoding"}

	if libavLinked {
		result.Status = StatusOK
		result.Message = "libav hardware/software encoder backend linked"
	} else {
		result.Status = StatusWarning
		result.Message = "built without libav tag: using Synthetic test-double encoder"
		result.Suggestions = append(result.Suggestions, "Rebuild with -tags libav for real capture/encode")
	}

	result.Details = fmt.Sprintf("quality=%s output_format=%s", r.opts.Config.Quality, r.opts.Config.OutputFormat)
	result.Duration = time.Since(start)
	return result
}

// checkRingMemoryBudget estimates the FrameRing's memory footprint for the
// configured replay_duration_s at the configured quality/fps and reports it
// alongside the ring's frame capacity.
func (r *Runner) checkRingMemoryBudget(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "Ring Memory Budget", Category: "Encoding"}

	cfg := r.opts.Config
	geom := ring.Geometry{Width: defaultWidth, Height: defaultHeight}
	fr, err := ring.New(float64(cfg.ReplayDurationS), cfg.FPS, geom)
	if err != nil {
		result.Status = StatusError
		result.Message = "Failed to size a trial FrameRing"
		result.Details = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	budget := estimatedBudgetBytes(cfg)
	result.Status = StatusOK
	result.Message = fmt.Sprintf("replay_duration_s=%d fps=%d capacity=%d frames, ~%s estimated",
		cfg.ReplayDurationS, cfg.FPS, fr.Capacity(), formatBytes(budget))
	if budget > 2*1024*1024*1024 {
		result.Status = StatusWarning
		result.Suggestions = append(result.Suggestions, "Consider a shorter replay_duration_s or lower quality preset")
	}
	result.Duration = time.Since(start)
	return result
}

// checkLogFileWritable verifies the configured log path's directory accepts
// writes and warns if an existing log has grown past LogSizeWarningBytes.
func (r *Runner) checkLogFileWritable(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "Log File Writable", Category: "Logging"}

	logDir := filepath.Dir(r.opts.Config.LogPath)
	if err := os.MkdirAll(logDir, 0750); err != nil {
		result.Status = StatusCritical
		result.Message = "Cannot create log directory"
		result.Details = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	probe, err := os.CreateTemp(logDir, ".screenrecd-diag-*")
	if err != nil {
		result.Status = StatusCritical
		result.Message = "Log directory is not writable"
		result.Details = err.Error()
		result.Duration = time.Since(start)
		return result
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	if info, err := os.Stat(r.opts.Config.LogPath); err == nil {
		if info.Size() > LogSizeWarningBytes {
			result.Status = StatusWarning
			result.Message = fmt.Sprintf("Log file has grown to %s", formatBytes(info.Size()))
			result.Suggestions = append(result.Suggestions, "Check AsyncLogger's RotatingWriter rotation settings")
			result.Duration = time.Since(start)
			return result
		}
	}

	result.Status = StatusOK
	result.Message = "Log directory is writable"
	result.Details = r.opts.Config.LogPath
	result.Duration = time.Since(start)
	return result
}

// checkClockSource reads the kernel's active clocksource. A non-monotonic or
// low-resolution source (e.g. jiffies) degrades PTS accuracy across the
// capture-encode-mux pipeline's shared 100ns clock.
func (r *Runner) checkClockSource(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "Clock Source", Category: "Timing"}

	data, err := os.ReadFile("/sys/devices/system/clocksource/clocksource0/current_clocksource")
	if err != nil {
		result.Status = StatusSkipped
		result.Message = "Clock source unreadable on this platform"
		result.Duration = time.Since(start)
		return result
	}

	source := strings.TrimSpace(string(data))
	switch source {
	case "tsc", "kvm-clock", "hpet", "acpi_pm":
		result.Status = StatusOK
		result.Message = "Clock source: " + source
	case "jiffies":
		result.Status = StatusWarning
		result.Message = "Clock source is jiffies (low resolution, PTS jitter likely)"
		result.Suggestions = append(result.Suggestions, "Use a hypervisor/BIOS clocksource with finer resolution (tsc, hpet)")
	default:
		result.Status = StatusWarning
		result.Message = "Unrecognized clock source: " + source
	}

	result.Duration = time.Since(start)
	return result
}

// estimatedBudgetBytes estimates the FrameRing's memory footprint for the
// configured replay window using the same bitrate model VideoEncoder uses to
// pick its target bitrate.
func estimatedBudgetBytes(cfg *config.Config) int64 {
	quality := qualityFromConfig(cfg.Quality)
	mbps := videoenc.TargetBitrateMbps(quality, defaultWidth, defaultHeight, cfg.FPS)
	bytesPerSecond := mbps * 1_000_000 / 8
	return int64(bytesPerSecond * float64(cfg.ReplayDurationS))
}

func qualityFromConfig(q config.Quality) videoenc.Quality {
	switch q {
	case config.QualityGood:
		return videoenc.QualityGood
	case config.QualityUltra:
		return videoenc.QualityUltra
	case config.QualityLossless:
		return videoenc.QualityLossless
	default:
		return videoenc.QualityHigh
	}
}

// defaultWidth/defaultHeight back the trial FrameRing sizing when no live
// capture geometry is known yet (pre-flight diagnostics run before the
// CaptureSource is opened).
const (
	defaultWidth  = 1920
	defaultHeight = 1080
)

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// PrintReport prints a formatted diagnostic report.
func PrintReport(w io.Writer, report *DiagnosticReport) {
	_, _ = fmt.Fprintf(w, "screenrecd Diagnostics Report\n")
	_, _ = fmt.Fprintf(w, "=============================\n\n")

	_, _ = fmt.Fprintf(w, "System: %s (%s/%s)\n", report.SystemInfo.Hostname, report.SystemInfo.OS, report.SystemInfo.Architecture)
	_, _ = fmt.Fprintf(w, "Kernel: %s\n", report.SystemInfo.Kernel)
	_, _ = fmt.Fprintf(w, "Uptime: %s\n", report.SystemInfo.Uptime)
	_, _ = fmt.Fprintf(w, "Time: %s\n\n", report.Timestamp.Format(time.RFC3339))

	categories := make(map[string][]CheckResult)
	var order []string
	for _, check := range report.Checks {
		if _, seen := categories[check.Category]; !seen {
			order = append(order, check.Category)
		}
		categories[check.Category] = append(categories[check.Category], check)
	}

	for _, category := range order {
		checks := categories[category]
		_, _ = fmt.Fprintf(w, "\n%s\n%s\n", category, strings.Repeat("-", len(category)))
		for _, check := range checks {
			status := "✓"
			switch check.Status {
			case StatusWarning:
				status = "⚠"
			case StatusCritical:
				status = "✗"
			case StatusError:
				status = "!"
			case StatusSkipped:
				status = "○"
			}
			_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", status, check.Name, check.Message)
			if check.Details != "" {
				_, _ = fmt.Fprintf(w, "    %s\n", check.Details)
			}
			for _, suggestion := range check.Suggestions {
				_, _ = fmt.Fprintf(w, "    -> %s\n", suggestion)
			}
		}
	}

	_, _ = fmt.Fprintf(w, "\n\nSummary\n-------\n")
	_, _ = fmt.Fprintf(w, "Total: %d | OK: %d | Warning: %d | Critical: %d | Error: %d | Skipped: %d\n",
		report.Summary.Total, report.Summary.OK, report.Summary.Warning,
		report.Summary.Critical, report.Summary.Error, report.Summary.Skipped)
	_, _ = fmt.Fprintf(w, "Duration: %v\n", report.Duration)

	if report.Healthy {
		_, _ = fmt.Fprintf(w, "\nSystem Status: HEALTHY\n")
	} else {
		_, _ = fmt.Fprintf(w, "\nSystem Status: ISSUES DETECTED\n")
	}
}

// ToJSON converts the report to JSON format.
func (r *DiagnosticReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
