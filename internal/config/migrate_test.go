// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_CurrentVersionPassesThrough(t *testing.T) {
	cfg := validConfig()
	data, err := marshalConfig(cfg)
	require.NoError(t, err)

	migrated, err := unmarshalAndMigrate(data)
	require.NoError(t, err)
	assert.Equal(t, cfg.Quality, migrated.Quality)
	assert.Equal(t, CurrentSchemaVersion, migrated.SchemaVersion)
}

func TestMigrate_V1RenamesDurationField(t *testing.T) {
	v1 := `
quality: ultra
fps: 120
output_format: mp4_h265
duration_s: 45
save_dir: /tmp/replays
cancel_key: Escape
save_hotkey: Ctrl+F10
`
	cfg, err := unmarshalAndMigrate([]byte(v1))
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.ReplayDurationS)
	assert.Equal(t, AspectNative, cfg.AspectRatio, "v1 predates aspect_ratio, defaults to native")
	assert.Equal(t, CurrentSchemaVersion, cfg.SchemaVersion)
	assert.NoError(t, cfg.Validate())
}

func TestMigrate_UnversionedTreatedAsV1(t *testing.T) {
	unversioned := `
quality: good
fps: 30
output_format: avi
duration_s: 10
save_dir: /tmp/replays
`
	cfg, err := unmarshalAndMigrate([]byte(unversioned))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.ReplayDurationS)
	assert.NoError(t, cfg.Validate())
}

func TestMigrate_V1MissingFieldsFallBackToDefaults(t *testing.T) {
	v1 := `
duration_s: 0
`
	cfg, err := unmarshalAndMigrate([]byte(v1))
	require.NoError(t, err)
	def := DefaultConfig()
	assert.Equal(t, def.Quality, cfg.Quality)
	assert.Equal(t, def.FPS, cfg.FPS)
	assert.Equal(t, def.OutputFormat, cfg.OutputFormat)
	assert.Equal(t, def.ReplayDurationS, cfg.ReplayDurationS)
	assert.Equal(t, def.SaveDir, cfg.SaveDir)
}

func TestMigrate_FutureVersionRejected(t *testing.T) {
	future := `schema_version: 999
quality: good
`
	_, err := unmarshalAndMigrate([]byte(future))
	assert.Error(t, err)
}

func TestMigrate_InvalidYAML(t *testing.T) {
	_, err := unmarshalAndMigrate([]byte("quality: [unterminated"))
	assert.Error(t, err)
}

func TestLoadConfig_MigratesOldFileOnDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
quality: high
fps: 60
output_format: mp4_h264
duration_s: 20
save_dir: `+dir+`
`), 0640))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.ReplayDurationS)
	assert.Equal(t, CurrentSchemaVersion, cfg.SchemaVersion)
}
