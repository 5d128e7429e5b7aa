// SPDX-License-Identifier: MIT

// Package config implements the Configuration object the UI collaborator
// hands the core at session start (spec §6): quality/fps/output format,
// replay duration and capture source, aspect-ratio cropping, audio source
// list, and the save directory/hotkeys the UI binds. Loading and
// persistence live here per spec §1 ("Configuration loading/persistence
// ... specified only by the interface the core consumes"); the core
// itself only ever sees a validated *Config value.
package config

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
)

// ConfigFilePath is the default location for the configuration file.
const ConfigFilePath = "/etc/screenrecd/config.yaml"

// Quality is the bitrate preset from Configuration.quality (spec §6,
// §4.4). The bitrate math itself lives in internal/videoenc.TargetBitrateMbps;
// this package only validates the enum value selected by the user.
type Quality string

const (
	QualityGood     Quality = "good"
	QualityHigh     Quality = "high"
	QualityUltra    Quality = "ultra"
	QualityLossless Quality = "lossless"
)

func (q Quality) valid() bool {
	switch q {
	case QualityGood, QualityHigh, QualityUltra, QualityLossless:
		return true
	}
	return false
}

// OutputFormat selects container + codec (spec §6).
type OutputFormat string

const (
	FormatMP4H264 OutputFormat = "mp4_h264"
	FormatMP4H265 OutputFormat = "mp4_h265"
	FormatAVI     OutputFormat = "avi"
	FormatWMV     OutputFormat = "wmv"
)

func (f OutputFormat) valid() bool {
	switch f {
	case FormatMP4H264, FormatMP4H265, FormatAVI, FormatWMV:
		return true
	}
	return false
}

// SupportsReplay reports whether f can back the replay (extract-to-file)
// path. Spec §6: "AVI and WMV for the recording path only (no replay
// support)".
func (f OutputFormat) SupportsReplay() bool {
	return f == FormatMP4H264 || f == FormatMP4H265
}

// AspectRatio selects the crop applied to the captured region before
// color conversion (spec §6): "cropping fitted and centered, dimensions
// rounded down to even numbers".
type AspectRatio string

const (
	AspectNative AspectRatio = "native"
	Aspect16x9   AspectRatio = "16:9"
	Aspect9x16   AspectRatio = "9:16"
	Aspect1x1    AspectRatio = "1:1"
	Aspect4x5    AspectRatio = "4:5"
	Aspect16x10  AspectRatio = "16:10"
	Aspect4x3    AspectRatio = "4:3"
	Aspect21x9   AspectRatio = "21:9"
	Aspect32x9   AspectRatio = "32:9"
)

// ratioValues maps every non-native AspectRatio to its width:height ratio.
var ratioValues = map[AspectRatio][2]int{
	Aspect16x9:  {16, 9},
	Aspect9x16:  {9, 16},
	Aspect1x1:   {1, 1},
	Aspect4x5:   {4, 5},
	Aspect16x10: {16, 10},
	Aspect4x3:   {4, 3},
	Aspect21x9:  {21, 9},
	Aspect32x9:  {32, 9},
}

func (a AspectRatio) valid() bool {
	if a == AspectNative {
		return true
	}
	_, ok := ratioValues[a]
	return ok
}

// FitCrop computes the centered crop rectangle of the requested aspect
// ratio that fits inside a srcW x srcH surface, per spec §6: fitted and
// centered, dimensions rounded down to the nearest even number (NV12
// requires even width/height for its 4:2:0 chroma planes). AspectNative
// returns the full surface, still rounded to even dimensions.
func (a AspectRatio) FitCrop(srcW, srcH int) image.Rectangle {
	if srcW <= 0 || srcH <= 0 {
		return image.Rectangle{}
	}
	ratio, ok := ratioValues[a]
	if !ok {
		return image.Rect(0, 0, evenFloor(srcW), evenFloor(srcH))
	}
	rw, rh := ratio[0], ratio[1]

	// Fit the requested ratio inside the source by scaling down whichever
	// dimension overflows first.
	w := srcW
	h := w * rh / rw
	if h > srcH {
		h = srcH
		w = h * rw / rh
	}
	w = evenFloor(w)
	h = evenFloor(h)
	if w <= 0 || h <= 0 {
		return image.Rectangle{}
	}

	x0 := (srcW - w) / 2
	y0 := (srcH - h) / 2
	return image.Rect(x0, y0, x0+w, y0+h)
}

func evenFloor(v int) int {
	if v%2 != 0 {
		v--
	}
	return v
}

// CaptureSourceKind selects how ReplayCaptureSource is interpreted,
// matching capture.RegionKind one-for-one; kept as an independent,
// string-serializable enum here since Configuration is the persisted,
// user-facing shape while capture.Region is the in-process one.
type CaptureSourceKind string

const (
	SourceMonitor     CaptureSourceKind = "monitor"
	SourceAllMonitors CaptureSourceKind = "all_monitors"
	SourceWindow      CaptureSourceKind = "window"
	SourceArea        CaptureSourceKind = "area"
)

func (k CaptureSourceKind) valid() bool {
	switch k {
	case SourceMonitor, SourceAllMonitors, SourceWindow, SourceArea:
		return true
	}
	return false
}

// Rect is a plain, YAML-friendly rectangle for CaptureSourceConfig's
// Area field (image.Rectangle doesn't round-trip cleanly through YAML).
type Rect struct {
	X int `yaml:"x" koanf:"x"`
	Y int `yaml:"y" koanf:"y"`
	W int `yaml:"w" koanf:"w"`
	H int `yaml:"h" koanf:"h"`
}

// CaptureSourceConfig is Configuration.replay_capture_source (spec §6).
type CaptureSourceConfig struct {
	Kind         CaptureSourceKind `yaml:"kind" koanf:"kind"`
	MonitorIndex int               `yaml:"monitor_index" koanf:"monitor_index"`
	WindowHandle uint64            `yaml:"window_handle" koanf:"window_handle"`
	Area         Rect              `yaml:"area" koanf:"area"`
}

func (c CaptureSourceConfig) validate() error {
	if !c.Kind.valid() {
		return fmt.Errorf("replay_capture_source.kind: invalid value %q", c.Kind)
	}
	switch c.Kind {
	case SourceMonitor:
		if c.MonitorIndex < 0 {
			return fmt.Errorf("replay_capture_source.monitor_index must be non-negative")
		}
	case SourceWindow:
		if c.WindowHandle == 0 {
			return fmt.Errorf("replay_capture_source.window_handle must be set for kind=window")
		}
	case SourceArea:
		if c.Area.W <= 0 || c.Area.H <= 0 {
			return fmt.Errorf("replay_capture_source.area must have positive width/height")
		}
	}
	return nil
}

// AudioSourceConfig is one entry of Configuration.audio_sources (spec
// §6): a device endpoint plus its linear gain, expressed as a
// 0..100 percentage the way the UI surfaces it.
type AudioSourceConfig struct {
	DeviceID string `yaml:"device_id" koanf:"device_id"`
	GainPct  int    `yaml:"gain_pct" koanf:"gain_pct"`
}

func (a AudioSourceConfig) validate() error {
	if a.DeviceID == "" {
		return fmt.Errorf("audio_sources: device_id must not be empty")
	}
	if a.GainPct < 0 || a.GainPct > 100 {
		return fmt.Errorf("audio_sources: gain_pct must be in [0, 100]")
	}
	return nil
}

// maxAudioSources mirrors spec §4.5's "1..3 audio capture endpoints".
const maxAudioSources = 3

// Config is the complete Configuration object spec §6 describes.
type Config struct {
	Quality             Quality             `yaml:"quality" koanf:"quality"`
	FPS                 int                 `yaml:"fps" koanf:"fps"`
	OutputFormat        OutputFormat        `yaml:"output_format" koanf:"output_format"`
	ReplayDurationS     int                 `yaml:"replay_duration_s" koanf:"replay_duration_s"`
	ReplayCaptureSource CaptureSourceConfig `yaml:"replay_capture_source" koanf:"replay_capture_source"`
	AspectRatio         AspectRatio         `yaml:"aspect_ratio" koanf:"aspect_ratio"`

	AudioEnabled bool                `yaml:"audio_enabled" koanf:"audio_enabled"`
	AudioSources []AudioSourceConfig `yaml:"audio_sources" koanf:"audio_sources"`

	SaveDir    string `yaml:"save_dir" koanf:"save_dir"`
	CancelKey  string `yaml:"cancel_key" koanf:"cancel_key"`
	SaveHotkey string `yaml:"save_hotkey" koanf:"save_hotkey"`

	// LogPath is an ambient-stack addition (not part of spec
	// §6's control surface, which the UI never configures the log path
	// through) consumed by AsyncLogger/RotatingWriter at daemon startup.
	LogPath string `yaml:"log_path" koanf:"log_path"`

	// SchemaVersion supports forward migration (see migrate.go); config
	// files written by this package always carry the current version.
	SchemaVersion int `yaml:"schema_version" koanf:"schema_version"`
}

// allowedFPS enumerates spec §6's fps enum.
var allowedFPS = map[int]bool{30: true, 60: true, 120: true, 240: true}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	if !c.Quality.valid() {
		return fmt.Errorf("quality: invalid value %q", c.Quality)
	}
	if !allowedFPS[c.FPS] {
		return fmt.Errorf("fps: must be one of 30, 60, 120, 240 (got %d)", c.FPS)
	}
	if !c.OutputFormat.valid() {
		return fmt.Errorf("output_format: invalid value %q", c.OutputFormat)
	}
	if c.ReplayDurationS < 1 || c.ReplayDurationS > 72000 {
		return fmt.Errorf("replay_duration_s: must be in [1, 72000] (got %d)", c.ReplayDurationS)
	}
	if err := c.ReplayCaptureSource.validate(); err != nil {
		return err
	}
	if !c.AspectRatio.valid() {
		return fmt.Errorf("aspect_ratio: invalid value %q", c.AspectRatio)
	}
	if len(c.AudioSources) > maxAudioSources {
		return fmt.Errorf("audio_sources: at most %d entries allowed (got %d)", maxAudioSources, len(c.AudioSources))
	}
	for i, src := range c.AudioSources {
		if err := src.validate(); err != nil {
			return fmt.Errorf("audio_sources[%d]: %w", i, err)
		}
	}
	if c.SaveDir == "" {
		return fmt.Errorf("save_dir: must not be empty")
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults: 60fps
// HEVC/MP4 recording, a 30s replay buffer over every monitor, native
// aspect ratio, and no audio sources configured (audio disabled).
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return &Config{
		Quality:         QualityHigh,
		FPS:             60,
		OutputFormat:    FormatMP4H265,
		ReplayDurationS: 30,
		ReplayCaptureSource: CaptureSourceConfig{
			Kind: SourceAllMonitors,
		},
		AspectRatio:   AspectNative,
		AudioEnabled:  false,
		AudioSources:  nil,
		SaveDir:       filepath.Join(home, "Videos", "Replays"),
		CancelKey:     "Escape",
		SaveHotkey:    "Ctrl+F10",
		LogPath:       "/var/log/screenrecd/screenrecd.log",
		SchemaVersion: CurrentSchemaVersion,
	}
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is operator/administrator supplied (CLI flag or default)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := unmarshalAndMigrate(data)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// atomicFile abstracts file operations used by Save for testability.
type atomicFile interface {
	Write([]byte) (int, error)
	Sync() error
	Chmod(os.FileMode) error
	Close() error
	Name() string
}

// atomicCreateTemp is the injectable temp-file creator used by Save.
type atomicCreateTemp func(dir, pattern string) (atomicFile, error)

func defaultCreateTemp(dir, pattern string) (atomicFile, error) {
	return os.CreateTemp(dir, pattern) // #nosec G304
}

// Save writes the configuration to a YAML file via write-temp-then-rename,
// so a crash mid-write can never leave a partially-written config on disk.
func (c *Config) Save(path string) error {
	return c.saveWith(path, defaultCreateTemp)
}

func (c *Config) saveWith(path string, createTemp atomicCreateTemp) error {
	c.SchemaVersion = CurrentSchemaVersion
	data, err := marshalConfig(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)

	tmpFile, err := createTemp(dir, ".config.*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp config file: %w", err)
	}
	// Config may embed window handles/area geometry but nothing secret;
	// 0640 keeps it out of other users' reach without over-restricting.
	if err := tmpFile.Chmod(0640); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil { // #nosec G703 -- path is operator supplied
		return fmt.Errorf("failed to rename temp config file: %w", err)
	}

	success = true
	return nil
}
