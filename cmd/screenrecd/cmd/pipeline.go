// SPDX-License-Identifier: MIT

package cmd

import (
	"github.com/coylemichael/screenrecorder/internal/audiomix"
	"github.com/coylemichael/screenrecorder/internal/capture"
	"github.com/coylemichael/screenrecorder/internal/config"
	"github.com/coylemichael/screenrecorder/internal/mux"
	"github.com/coylemichael/screenrecorder/internal/videoenc"
)

// defaultWidth/defaultHeight set the encoder and ring geometry for
// Recorder/ReplayBuffer. The Geometry a CaptureSource reports from Open
// does not replace them.
const (
	defaultWidth  = 1920
	defaultHeight = 1080
)

// qualityFromConfig maps Configuration.quality (spec §6) onto videoenc's
// bitrate-table enum; mirrors internal/diagnostics.qualityFromConfig.
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

// codecFromConfig maps Configuration.output_format onto the VideoEncoder's
// codec parameter. AVI/WMV containers carry H.264 (see
// containerFromConfig for the container-level routing); MP4 honors the
// codec its own format name picks.
func codecFromConfig(f config.OutputFormat) videoenc.Codec {
	switch f {
	case config.FormatMP4H264:
		return videoenc.CodecH264
	case config.FormatAVI, config.FormatWMV:
		return videoenc.CodecH264
	default:
		return videoenc.CodecH265
	}
}

// containerFromConfig maps Configuration.output_format onto the mux
// package's container selector, so Recorder.Start can route FormatAVI
// to mux.AVIWriter and FormatWMV to its (currently stubbed)
// mux.WMVWriter instead of always building an MP4 StreamingMuxer.
func containerFromConfig(f config.OutputFormat) mux.ContainerFormat {
	switch f {
	case config.FormatMP4H264:
		return mux.FormatMP4H264
	case config.FormatAVI:
		return mux.FormatAVI
	case config.FormatWMV:
		return mux.FormatWMV
	default:
		return mux.FormatMP4H265
	}
}

// regionFromConfig maps Configuration.replay_capture_source onto
// capture.Region.
func regionFromConfig(c config.CaptureSourceConfig) capture.Region {
	r := capture.Region{MonitorIndex: c.MonitorIndex, WindowHandle: uintptr(c.WindowHandle)}
	switch c.Kind {
	case config.SourceMonitor:
		r.Kind = capture.RegionMonitor
	case config.SourceWindow:
		r.Kind = capture.RegionWindow
	case config.SourceArea:
		r.Kind = capture.RegionArea
		r.Area.Min.X, r.Area.Min.Y = c.Area.X, c.Area.Y
		r.Area.Max.X, r.Area.Max.Y = c.Area.X+c.Area.W, c.Area.Y+c.Area.H
	default:
		r.Kind = capture.RegionAllMonitors
	}
	return r
}

// audioSourcesFromConfig maps Configuration.audio_sources onto
// audiomix.SourceConfig.
func audioSourcesFromConfig(srcs []config.AudioSourceConfig) []audiomix.SourceConfig {
	out := make([]audiomix.SourceConfig, 0, len(srcs))
	for _, s := range srcs {
		out = append(out, audiomix.SourceConfig{DeviceID: s.DeviceID, GainPct: s.GainPct})
	}
	return out
}
