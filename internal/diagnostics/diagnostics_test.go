// SPDX-License-Identifier: MIT

package diagnostics

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coylemichael/screenrecorder/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.SaveDir = filepath.Join(dir, "replays")
	cfg.LogPath = filepath.Join(dir, "log", "screenrecd.log")
	return cfg
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, ModeFull, opts.Mode)
	require.NotNil(t, opts.Config)
	assert.NotNil(t, opts.Output)
	require.NoError(t, opts.Config.Validate())
}

func TestNewRunner(t *testing.T) {
	opts := Options{Mode: ModeQuick, Config: testConfig(t)}
	runner := NewRunner(opts)
	require.NotNil(t, runner)
	assert.Equal(t, ModeQuick, runner.opts.Mode)
}

func TestNewRunnerFillsMissingConfig(t *testing.T) {
	runner := NewRunner(Options{})
	require.NotNil(t, runner.opts.Config)
}

func TestCheckStatusValues(t *testing.T) {
	tests := map[CheckStatus]string{
		StatusOK:       "OK",
		StatusWarning:  "WARNING",
		StatusCritical: "CRITICAL",
		StatusSkipped:  "SKIPPED",
		StatusError:    "ERROR",
	}
	for status, want := range tests {
		assert.Equal(t, want, string(status))
	}
}

func TestRunQuickModeRunsOnlyEssentialChecks(t *testing.T) {
	runner := NewRunner(Options{Mode: ModeQuick, Config: testConfig(t)})
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Checks, 2)
}

func TestRunFullModeRunsAllChecks(t *testing.T) {
	runner := NewRunner(Options{Mode: ModeFull, Config: testConfig(t)})
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Checks, 6)
	assert.NotNil(t, report.SystemInfo)
	assert.NotZero(t, report.Summary.Total)
}

func TestCheckSaveDirWritableCreatesDir(t *testing.T) {
	cfg := testConfig(t)
	runner := NewRunner(Options{Config: cfg})

	result := runner.checkSaveDirWritable(context.Background())
	assert.Equal(t, StatusOK, result.Status)

	_, err := os.Stat(cfg.SaveDir)
	assert.NoError(t, err)
}

func TestCheckSaveDirWritableFailsOnUnwritableParent(t *testing.T) {
	cfg := testConfig(t)
	cfg.SaveDir = "/proc/screenrecd-should-not-be-writable/replays"
	runner := NewRunner(Options{Config: cfg})

	result := runner.checkSaveDirWritable(context.Background())
	assert.Equal(t, StatusCritical, result.Status)
}

func TestCheckSaveDirFreeSpaceReportsOK(t *testing.T) {
	cfg := testConfig(t)
	runner := NewRunner(Options{Config: cfg})
	runner.checkSaveDirWritable(context.Background())

	result := runner.checkSaveDirFreeSpace(context.Background())
	assert.Contains(t, []CheckStatus{StatusOK, StatusWarning, StatusCritical}, result.Status)
	assert.NotEmpty(t, result.Message)
}

func TestCheckEncoderBackendReportsSyntheticByDefault(t *testing.T) {
	runner := NewRunner(Options{Config: testConfig(t)})
	result := runner.checkEncoderBackend(context.Background())

	// This module is always built without the libav tag in this test binary.
	assert.Equal(t, StatusWarning, result.Status)
	assert.Contains(t, result.Message, "Synthetic")
}

func TestCheckRingMemoryBudgetReportsCapacity(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReplayDurationS = 30
	cfg.FPS = 60
	runner := NewRunner(Options{Config: cfg})

	result := runner.checkRingMemoryBudget(context.Background())
	assert.NotEqual(t, StatusError, result.Status)
	assert.Contains(t, result.Message, "capacity=")
}

func TestCheckRingMemoryBudgetWarnsOnLargeWindow(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReplayDurationS = 72000
	cfg.Quality = config.QualityLossless
	cfg.FPS = 240
	runner := NewRunner(Options{Config: cfg})

	result := runner.checkRingMemoryBudget(context.Background())
	assert.Equal(t, StatusWarning, result.Status)
}

func TestCheckLogFileWritable(t *testing.T) {
	cfg := testConfig(t)
	runner := NewRunner(Options{Config: cfg})

	result := runner.checkLogFileWritable(context.Background())
	assert.Equal(t, StatusOK, result.Status)
}

func TestCheckClockSourceSkipsOrReports(t *testing.T) {
	runner := NewRunner(Options{Config: testConfig(t)})
	result := runner.checkClockSource(context.Background())
	assert.Contains(t, []CheckStatus{StatusOK, StatusWarning, StatusSkipped}, result.Status)
}

func TestQualityFromConfigMapsAllEnums(t *testing.T) {
	cases := []config.Quality{
		config.QualityGood,
		config.QualityHigh,
		config.QualityUltra,
		config.QualityLossless,
	}
	for _, q := range cases {
		// Must not panic for any enum value this package recognizes.
		_ = qualityFromConfig(q)
	}
}

func TestPrintReport(t *testing.T) {
	runner := NewRunner(Options{Mode: ModeQuick, Config: testConfig(t)})
	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	PrintReport(&buf, report)
	assert.Contains(t, buf.String(), "screenrecd Diagnostics Report")
	assert.Contains(t, buf.String(), "Summary")
}

func TestToJSON(t *testing.T) {
	runner := NewRunner(Options{Mode: ModeQuick, Config: testConfig(t)})
	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	data, err := report.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"healthy"`)
}
