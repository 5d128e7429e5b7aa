// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0640))
	return path
}

func TestKoanfConfig_LoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, `
quality: ultra
fps: 120
output_format: mp4_h265
replay_duration_s: 45
aspect_ratio: "16:9"
save_dir: `+dir+`
schema_version: 2
replay_capture_source:
  kind: monitor
  monitor_index: 1
`)

	kc, err := NewKoanfConfig(WithYAMLFile(path))
	require.NoError(t, err)

	cfg, err := kc.Load()
	require.NoError(t, err)
	assert.Equal(t, QualityUltra, cfg.Quality)
	assert.Equal(t, 120, cfg.FPS)
	assert.Equal(t, 45, cfg.ReplayDurationS)
	assert.Equal(t, Aspect16x9, cfg.AspectRatio)
	assert.Equal(t, SourceMonitor, cfg.ReplayCaptureSource.Kind)
	assert.Equal(t, 1, cfg.ReplayCaptureSource.MonitorIndex)
}

func TestKoanfConfig_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, `
quality: good
fps: 30
output_format: mp4_h265
replay_duration_s: 10
save_dir: `+dir+`
schema_version: 2
`)

	t.Setenv("SCREENRECD_QUALITY", "lossless")
	t.Setenv("SCREENRECD_FPS", "240")
	t.Setenv("SCREENRECD_REPLAY_DURATION_S", "60")

	kc, err := NewKoanfConfig(WithYAMLFile(path), WithEnvPrefix("SCREENRECD"))
	require.NoError(t, err)

	cfg, err := kc.Load()
	require.NoError(t, err)
	assert.Equal(t, QualityLossless, cfg.Quality)
	assert.Equal(t, 240, cfg.FPS)
	assert.Equal(t, 60, cfg.ReplayDurationS)
}

func TestKoanfConfig_EnvOverridesNestedCaptureSource(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, `
quality: good
fps: 60
output_format: mp4_h265
replay_duration_s: 10
save_dir: `+dir+`
schema_version: 2
replay_capture_source:
  kind: monitor
  monitor_index: 0
`)

	t.Setenv("SCREENRECD_REPLAY_CAPTURE_SOURCE_KIND", "area")
	t.Setenv("SCREENRECD_REPLAY_CAPTURE_SOURCE_AREA_W", "800")
	t.Setenv("SCREENRECD_REPLAY_CAPTURE_SOURCE_AREA_H", "600")

	kc, err := NewKoanfConfig(WithYAMLFile(path), WithEnvPrefix("SCREENRECD"))
	require.NoError(t, err)

	cfg, err := kc.Load()
	require.NoError(t, err)
	assert.Equal(t, SourceArea, cfg.ReplayCaptureSource.Kind)
	assert.Equal(t, 800, cfg.ReplayCaptureSource.Area.W)
	assert.Equal(t, 600, cfg.ReplayCaptureSource.Area.H)
}

func TestKoanfConfig_NoFileUsesEnvAndDefaults(t *testing.T) {
	t.Setenv("SCREENRECD_QUALITY", "high")
	t.Setenv("SCREENRECD_FPS", "60")
	t.Setenv("SCREENRECD_OUTPUT_FORMAT", "mp4_h264")
	t.Setenv("SCREENRECD_REPLAY_DURATION_S", "15")
	t.Setenv("SCREENRECD_SAVE_DIR", t.TempDir())
	t.Setenv("SCREENRECD_SCHEMA_VERSION", "2")

	kc, err := NewKoanfConfig(WithEnvPrefix("SCREENRECD"))
	require.NoError(t, err)

	cfg, err := kc.Load()
	require.NoError(t, err)
	assert.Equal(t, QualityHigh, cfg.Quality)
	assert.Equal(t, FormatMP4H264, cfg.OutputFormat)
}

func TestKoanfConfig_Load_ValidatesConfiguration(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, `
quality: good
fps: 999
output_format: mp4_h265
replay_duration_s: 10
save_dir: `+dir+`
schema_version: 2
`)

	kc, err := NewKoanfConfig(WithYAMLFile(path))
	require.NoError(t, err)

	_, err = kc.Load()
	assert.Error(t, err)
}

func TestKoanfConfig_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, `
quality: good
fps: 30
output_format: mp4_h265
replay_duration_s: 10
save_dir: `+dir+`
schema_version: 2
`)

	kc, err := NewKoanfConfig(WithYAMLFile(path))
	require.NoError(t, err)

	cfg, err := kc.Load()
	require.NoError(t, err)
	assert.Equal(t, QualityGood, cfg.Quality)

	writeYAML(t, dir, `
quality: ultra
fps: 30
output_format: mp4_h265
replay_duration_s: 10
save_dir: `+dir+`
schema_version: 2
`)
	require.NoError(t, kc.Reload())

	cfg, err = kc.Load()
	require.NoError(t, err)
	assert.Equal(t, QualityUltra, cfg.Quality)
}

func TestKoanfConfig_WatchRequiresFilePath(t *testing.T) {
	kc, err := NewKoanfConfig()
	require.NoError(t, err)

	err = kc.Watch(context.Background(), func(string, error) {})
	assert.Error(t, err)
}

func TestKoanfConfig_Getters(t *testing.T) {
	dir := t.TempDir()
	path := writeYAML(t, dir, `
quality: good
fps: 30
output_format: mp4_h265
replay_duration_s: 10
audio_enabled: true
save_dir: `+dir+`
schema_version: 2
`)

	kc, err := NewKoanfConfig(WithYAMLFile(path))
	require.NoError(t, err)

	assert.Equal(t, "good", kc.GetString("quality"))
	assert.Equal(t, 30, kc.GetInt("fps"))
	assert.True(t, kc.GetBool("audio_enabled"))
	assert.True(t, kc.Exists("quality"))
	assert.False(t, kc.Exists("nonexistent"))
	assert.NotEmpty(t, kc.All())
}

func TestKoanfConfig_GetDuration(t *testing.T) {
	// No Config field is a duration today, but the accessor must still be
	// safe on an absent key (returns the zero value) for forward-compatible
	// ambient settings loaded straight via koanf without a Config field yet.
	kc, err := NewKoanfConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), kc.GetDuration("nonexistent_duration"))
}
