// SPDX-License-Identifier: MIT

// Package mux implements StreamingMuxer (spec §4.7) and BatchMuxer
// (spec §4.8): the container writers that turn EncodedFrame/
// EncodedAudioSample streams into playable files.
//
// MP4 output is grounded on jmylchreest-tvarr's
// internal/daemon/fmp4_muxer.go: fragmented-MP4 box construction via
// github.com/bluenviron/mediacommon/v2's pkg/formats/fmp4 and
// pkg/formats/mp4, with VPS/SPS/PPS (or SPS/PPS) extracted from NAL units
// the same way (pkg/codecs/h265, pkg/codecs/h264). StreamingMuxer writes
// the init segment lazily on first flush and appends a fmp4.Part per
// flush, matching the teacher-of-this-concern's writeInit/writeFragment
// split; BatchMuxer uses the same box vocabulary in one shot (a single
// Init plus a single Part covering the whole sample array).
package mux

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/coylemichael/screenrecorder/internal/errs"
	"github.com/coylemichael/screenrecorder/internal/media"
)

// VideoCodec selects the video codec a container's video track carries.
type VideoCodec int

const (
	VideoCodecH265 VideoCodec = iota
	VideoCodecH264
)

// ContainerFormat is Configuration.output_format (spec §6): container +
// codec together.
type ContainerFormat int

const (
	FormatMP4H264 ContainerFormat = iota
	FormatMP4H265
	FormatAVI
	FormatWMV
)

// VideoConfig describes the video track a muxer writes.
type VideoConfig struct {
	Codec          VideoCodec
	Width          int
	Height         int
	FPS            int
	SequenceHeader media.SequenceHeader // Annex-B VPS+SPS+PPS (H265) or SPS+PPS (H264)
}

// AudioConfig describes the optional AAC audio track a muxer writes.
type AudioConfig struct {
	SampleRate int
	Channels   int
	ASC        []byte // AudioSpecificConfig; defaults used when empty
}

const (
	videoTimeScale        = 90000 // standard mp4 video timebase
	defaultAudioTimeScale = 48000
)

// ticksFromPTS converts a 100-ns pts/duration value into timeScale
// ticks.
func ticksFromPTS(v int64, timeScale uint32) uint32 {
	return uint32(v * int64(timeScale) / media.Clock)
}

// splitAnnexB splits a byte string of concatenated Annex-B NAL units
// (each prefixed by a 00 00 00 01 or 00 00 01 start code) into
// individual NALU byte slices, matching tvarr's dataToAccessUnit helper.
func splitAnnexB(data []byte) [][]byte {
	var nalus [][]byte
	start := -1
	i := 0
	for i < len(data) {
		if i+3 <= len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			if start >= 0 {
				nalus = append(nalus, data[start:i])
			}
			i += 3
			start = i
			continue
		}
		if i+4 <= len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 0 && data[i+3] == 1 {
			if start >= 0 {
				nalus = append(nalus, data[start:i])
			}
			i += 4
			start = i
			continue
		}
		i++
	}
	if start >= 0 && start < len(data) {
		nalus = append(nalus, data[start:])
	}
	return nalus
}

// extractH265Params pulls VPS/SPS/PPS out of a sequence header built
// from concatenated Annex-B NALUs.
func extractH265Params(seqHdr []byte) (vps, sps, pps []byte, err error) {
	for _, nalu := range splitAnnexB(seqHdr) {
		if len(nalu) == 0 {
			continue
		}
		switch h265.NALUType((nalu[0] >> 1) & 0x3F) {
		case h265.NALUType_VPS_NUT:
			vps = nalu
		case h265.NALUType_SPS_NUT:
			sps = nalu
		case h265.NALUType_PPS_NUT:
			pps = nalu
		}
	}
	if len(vps) == 0 || len(sps) == 0 || len(pps) == 0 {
		return nil, nil, nil, fmt.Errorf("H.265 sequence header missing VPS/SPS/PPS")
	}
	return vps, sps, pps, nil
}

// extractH264Params pulls SPS/PPS out of a sequence header built from
// concatenated Annex-B NALUs.
func extractH264Params(seqHdr []byte) (sps, pps []byte, err error) {
	for _, nalu := range splitAnnexB(seqHdr) {
		if len(nalu) == 0 {
			continue
		}
		switch h264.NALUType(nalu[0] & 0x1F) {
		case h264.NALUTypeSPS:
			sps = nalu
		case h264.NALUTypePPS:
			pps = nalu
		}
	}
	if len(sps) == 0 || len(pps) == 0 {
		return nil, nil, fmt.Errorf("H.264 sequence header missing SPS/PPS")
	}
	return sps, pps, nil
}

func videoCodecFromConfig(vc VideoConfig) (mp4.Codec, error) {
	switch vc.Codec {
	case VideoCodecH265:
		vps, sps, pps, err := extractH265Params(vc.SequenceHeader)
		if err != nil {
			return nil, err
		}
		return &mp4.CodecH265{VPS: vps, SPS: sps, PPS: pps}, nil
	case VideoCodecH264:
		sps, pps, err := extractH264Params(vc.SequenceHeader)
		if err != nil {
			return nil, err
		}
		return &mp4.CodecH264{SPS: sps, PPS: pps}, nil
	default:
		return nil, fmt.Errorf("unsupported video codec %v", vc.Codec)
	}
}

func audioCodecFromConfig(ac *AudioConfig) (mp4.Codec, uint32, error) {
	if ac == nil {
		return nil, 0, nil
	}
	cfg := mpeg4audio.AudioSpecificConfig{
		Type:         mpeg4audio.ObjectTypeAACLC,
		SampleRate:   defaultAudioTimeScale,
		ChannelCount: 2,
	}
	if len(ac.ASC) > 0 {
		if err := cfg.Unmarshal(ac.ASC); err != nil {
			return nil, 0, fmt.Errorf("decode AudioSpecificConfig: %w", err)
		}
	} else {
		if ac.SampleRate > 0 {
			cfg.SampleRate = ac.SampleRate
		}
		if ac.Channels > 0 {
			cfg.ChannelCount = ac.Channels
		}
	}
	return &mp4.CodecMPEG4Audio{Config: cfg}, uint32(cfg.SampleRate), nil
}

func videoSampleFromFrame(vc VideoConfig, prevPTS int64, f media.EncodedFrame) (*fmp4.Sample, error) {
	duration := f.Duration
	if duration <= 0 && prevPTS >= 0 {
		duration = f.PTS - prevPTS
	}
	if duration <= 0 {
		duration = media.Clock / int64(vc.FPS)
	}

	sample := &fmp4.Sample{
		Duration:        ticksFromPTS(duration, videoTimeScale),
		IsNonSyncSample: !f.IsKeyframe,
	}

	nalus := splitAnnexB(f.Data)
	if len(nalus) == 0 {
		nalus = [][]byte{f.Data}
	}

	var err error
	switch vc.Codec {
	case VideoCodecH265:
		err = sample.FillH265(0, nalus)
	case VideoCodecH264:
		err = sample.FillH264(0, nalus)
	default:
		err = fmt.Errorf("unsupported video codec %v", vc.Codec)
	}
	if err != nil {
		return nil, err
	}
	return sample, nil
}

func audioSampleFromFrame(timeScale uint32, s media.EncodedAudioSample) *fmp4.Sample {
	duration := s.Duration
	if duration <= 0 {
		duration = media.Clock * 1024 / int64(timeScale)
	}
	return &fmp4.Sample{
		Duration:        ticksFromPTS(duration, timeScale),
		IsNonSyncSample: false,
		Payload:         s.Data,
	}
}

// seekableBuffer adapts a bytes.Buffer to io.WriteSeeker, as required by
// fmp4.Init.Marshal/fmp4.Part.Marshal. Adapted from tvarr's helper of the
// same name: the muxer library needs random-access writes to patch box
// sizes after the fact, even though our own write pattern is append-only.
type seekableBuffer struct {
	*bytes.Buffer
	pos int64
}

func newSeekableBuffer() *seekableBuffer {
	return &seekableBuffer{Buffer: &bytes.Buffer{}}
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
	if int(s.pos) > s.Buffer.Len() {
		s.Buffer.Write(make([]byte, int(s.pos)-s.Buffer.Len()))
	}
	var n int
	var err error
	if int(s.pos) == s.Buffer.Len() {
		n, err = s.Buffer.Write(p)
	} else {
		b := s.Buffer.Bytes()
		n = copy(b[s.pos:], p)
		if n < len(p) {
			var m int
			m, err = s.Buffer.Write(p[n:])
			n += m
		}
	}
	s.pos += int64(n)
	return n, err
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = int64(s.Buffer.Len()) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("negative seek position")
	}
	s.pos = newPos
	return newPos, nil
}

// newInitFailure wraps err as a KindInitFailure error for op.
func newInitFailure(op string, err error) error {
	return errs.Wrap(errs.KindInitFailure, op, err)
}
