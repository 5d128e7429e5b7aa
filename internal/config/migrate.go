// SPDX-License-Identifier: MIT

package config

import (
	"fmt"

	"go.yaml.in/yaml/v3"
)

// CurrentSchemaVersion is the schema_version this package writes and
// expects on load. Bump it whenever a migration step below is added.
const CurrentSchemaVersion = 2

// marshalConfig serializes cfg to YAML. Kept as a named function (rather
// than inlined at each call site) so migrate.go and config.go share one
// encode path.
func marshalConfig(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// unmarshalAndMigrate parses raw config YAML and upgrades it to
// CurrentSchemaVersion in place, the way the teacher's bash-to-YAML
// importer once upgraded a predecessor on-disk format: a config file
// written by an older build of this daemon must still load cleanly
// after an upgrade, rather than failing validation on a field that
// changed shape.
func unmarshalAndMigrate(data []byte) (*Config, error) {
	// First pass: only schema_version, so we know which migrations (if
	// any) to run before unmarshaling into the current Config shape.
	var versioned struct {
		SchemaVersion int `yaml:"schema_version"`
	}
	if err := yaml.Unmarshal(data, &versioned); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	switch {
	case versioned.SchemaVersion <= 0:
		return migrateFromV1(data)
	case versioned.SchemaVersion == 1:
		return migrateFromV1(data)
	case versioned.SchemaVersion == CurrentSchemaVersion:
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
		return &cfg, nil
	default:
		return nil, fmt.Errorf("config schema_version %d is newer than this build supports (%d)",
			versioned.SchemaVersion, CurrentSchemaVersion)
	}
}

// v1Config is the schema-version-1 (or unversioned, pre-migration) shape:
// replay_duration_s was a top-level "duration_s" field and aspect_ratio
// did not exist yet (every v1 session implicitly captured native aspect).
type v1Config struct {
	Quality             Quality             `yaml:"quality"`
	FPS                 int                 `yaml:"fps"`
	OutputFormat        OutputFormat        `yaml:"output_format"`
	DurationS           int                 `yaml:"duration_s"`
	ReplayCaptureSource CaptureSourceConfig `yaml:"replay_capture_source"`
	AudioEnabled        bool                `yaml:"audio_enabled"`
	AudioSources        []AudioSourceConfig `yaml:"audio_sources"`
	SaveDir             string              `yaml:"save_dir"`
	CancelKey           string              `yaml:"cancel_key"`
	SaveHotkey          string              `yaml:"save_hotkey"`
	LogPath             string              `yaml:"log_path"`
}

// migrateFromV1 upgrades a v1 (or unversioned) document: renames
// duration_s to replay_duration_s and defaults aspect_ratio to native.
func migrateFromV1(data []byte) (*Config, error) {
	var old v1Config
	if err := yaml.Unmarshal(data, &old); err != nil {
		return nil, fmt.Errorf("failed to parse v1 config YAML: %w", err)
	}

	cfg := &Config{
		Quality:             old.Quality,
		FPS:                 old.FPS,
		OutputFormat:        old.OutputFormat,
		ReplayDurationS:     old.DurationS,
		ReplayCaptureSource: old.ReplayCaptureSource,
		AspectRatio:         AspectNative,
		AudioEnabled:        old.AudioEnabled,
		AudioSources:        old.AudioSources,
		SaveDir:             old.SaveDir,
		CancelKey:           old.CancelKey,
		SaveHotkey:          old.SaveHotkey,
		LogPath:             old.LogPath,
		SchemaVersion:       CurrentSchemaVersion,
	}

	// v1 files predate FPS/Quality/OutputFormat validation; fall back to
	// defaults for anything the old file left zero-valued rather than
	// failing the migration outright.
	def := DefaultConfig()
	if cfg.Quality == "" {
		cfg.Quality = def.Quality
	}
	if cfg.FPS == 0 {
		cfg.FPS = def.FPS
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = def.OutputFormat
	}
	if cfg.ReplayDurationS == 0 {
		cfg.ReplayDurationS = def.ReplayDurationS
	}
	if cfg.ReplayCaptureSource.Kind == "" {
		cfg.ReplayCaptureSource = def.ReplayCaptureSource
	}
	if cfg.SaveDir == "" {
		cfg.SaveDir = def.SaveDir
	}
	if cfg.CancelKey == "" {
		cfg.CancelKey = def.CancelKey
	}
	if cfg.SaveHotkey == "" {
		cfg.SaveHotkey = def.SaveHotkey
	}
	if cfg.LogPath == "" {
		cfg.LogPath = def.LogPath
	}

	return cfg, nil
}
