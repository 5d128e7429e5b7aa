// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfigYAML = `quality: high
fps: 60
output_format: mp4_h265
replay_duration_s: 30
save_dir: /tmp/replays
cancel_key: Escape
save_hotkey: Ctrl+F10
schema_version: 2
`

func TestBackupConfig(t *testing.T) {
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(sampleConfigYAML), 0644))

	backupDir := filepath.Join(tmpDir, "backups")

	backupPath, err := BackupConfig(configPath, backupDir)
	require.NoError(t, err)

	_, err = os.Stat(backupPath)
	assert.NoError(t, err, "backup file should exist")

	backupContent, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, sampleConfigYAML, string(backupContent))
}

func TestBackupConfigFileNotFound(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")

	_, err := BackupConfig("/nonexistent/config.yaml", backupDir)
	assert.Error(t, err)
}

func TestBackupConfigDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")

	_, err := BackupConfig(tmpDir, backupDir)
	assert.Error(t, err, "backing up a directory should fail")
}

func TestListBackups(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	require.NoError(t, os.MkdirAll(backupDir, 0755))

	testFiles := []string{
		"config.yaml.2025-12-14T10-00-00.bak",
		"config.yaml.2025-12-14T11-00-00.bak",
		"config.yaml.2025-12-14T12-00-00.bak",
		"other.yaml.2025-12-14T10-00-00.bak",
		"not-a-backup.txt",
	}

	for _, f := range testFiles {
		path := filepath.Join(backupDir, f)
		require.NoError(t, os.WriteFile(path, []byte("test"), 0644))
	}

	backups, err := ListBackups(backupDir, "")
	require.NoError(t, err)
	assert.Len(t, backups, 4, "should find 4 backup files, excluding not-a-backup.txt")

	backups, err = ListBackups(backupDir, "config.yaml")
	require.NoError(t, err)
	assert.Len(t, backups, 3)

	if len(backups) >= 2 {
		assert.False(t, backups[0].Timestamp.Before(backups[1].Timestamp), "backups not sorted newest first")
	}
}

func TestListBackupsNonexistentDir(t *testing.T) {
	backups, err := ListBackups("/nonexistent/backups", "")
	assert.NoError(t, err, "nonexistent backup dir is not an error")
	assert.Nil(t, backups)
}

func TestRestoreBackup(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.MkdirAll(backupDir, 0755))

	backupPath := filepath.Join(backupDir, "config.yaml.2025-12-14T10-00-00.bak")
	require.NoError(t, os.WriteFile(backupPath, []byte(sampleConfigYAML), 0644))

	prevBackup, err := RestoreBackup(backupPath, configPath, backupDir)
	require.NoError(t, err)
	assert.Empty(t, prevBackup, "no previous config existed, so no backup of it should be made")

	restored, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, sampleConfigYAML, string(restored))
}

func TestRestoreBackupWithExistingConfig(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.MkdirAll(backupDir, 0755))

	existingContent := "quality: good\nfps: 30\noutput_format: avi\nreplay_duration_s: 10\nsave_dir: /tmp/old\nschema_version: 2\n"
	require.NoError(t, os.WriteFile(configPath, []byte(existingContent), 0644))

	backupPath := filepath.Join(backupDir, "config.yaml.2025-12-14T10-00-00.bak")
	require.NoError(t, os.WriteFile(backupPath, []byte(sampleConfigYAML), 0644))

	prevBackup, err := RestoreBackup(backupPath, configPath, backupDir)
	require.NoError(t, err)
	assert.NotEmpty(t, prevBackup, "existing config should be backed up before restore")

	_, err = os.Stat(prevBackup)
	assert.NoError(t, err)
}

func TestRestoreBackupInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.MkdirAll(backupDir, 0755))

	backupPath := filepath.Join(backupDir, "config.yaml.2025-12-14T10-00-00.bak")
	require.NoError(t, os.WriteFile(backupPath, []byte("invalid: yaml: content: ["), 0644))

	_, err := RestoreBackup(backupPath, configPath, backupDir)
	assert.Error(t, err)
}

func TestCleanOldBackups(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	require.NoError(t, os.MkdirAll(backupDir, 0755))

	for i := 0; i < 5; i++ {
		name := time.Now().Add(time.Duration(-i) * time.Hour).Format(BackupTimestampFormat)
		path := filepath.Join(backupDir, "config.yaml."+name+BackupSuffix)
		require.NoError(t, os.WriteFile(path, []byte("test"), 0644))
		time.Sleep(10 * time.Millisecond)
	}

	deleted, err := CleanOldBackups(backupDir, "config.yaml", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	remaining, _ := ListBackups(backupDir, "config.yaml")
	assert.Len(t, remaining, 2)
}

func TestCleanOldBackupsNegativeKeep(t *testing.T) {
	tmpDir := t.TempDir()
	_, err := CleanOldBackups(tmpDir, "config.yaml", -1)
	assert.Error(t, err)
}

func TestParseBackupTimestamp(t *testing.T) {
	tests := []struct {
		filename string
		wantErr  bool
	}{
		{"config.yaml.2025-12-14T10-30-00.bak", false},
		// The millisecond-suffixed form BackupConfig writes on a same-second
		// collision.
		{"config.yaml.2025-12-14T10-30-00.000.bak", false},
		{"config.yaml.invalid.bak", true},
		{"config.yaml.bak", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			_, err := parseBackupTimestamp(tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGetBackupDir(t *testing.T) {
	tests := []struct {
		configPath string
		want       string
	}{
		{"/etc/screenrecd/config.yaml", DefaultBackupDir},
		{"/home/user/config.yaml", "/home/user/backups"},
		{"/opt/screenrecd/config.yaml", "/opt/screenrecd/backups"},
	}

	for _, tt := range tests {
		t.Run(tt.configPath, func(t *testing.T) {
			assert.Equal(t, tt.want, GetBackupDir(tt.configPath))
		})
	}
}

func TestBackupBeforeSave(t *testing.T) {
	tmpDir := t.TempDir()
	backupDir := filepath.Join(tmpDir, "backups")
	configPath := filepath.Join(tmpDir, "config.yaml")

	existingContent := "quality: good\nfps: 30\noutput_format: avi\nreplay_duration_s: 10\nsave_dir: " + tmpDir + "\nschema_version: 2\n"
	require.NoError(t, os.WriteFile(configPath, []byte(existingContent), 0644))

	cfg := validConfig()
	cfg.SaveDir = tmpDir
	cfg.Quality = QualityUltra

	backupPath, err := BackupBeforeSave(cfg, configPath, backupDir)
	require.NoError(t, err)
	assert.NotEmpty(t, backupPath)

	newCfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, QualityUltra, newCfg.Quality)
}
