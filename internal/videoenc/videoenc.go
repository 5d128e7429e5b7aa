// SPDX-License-Identifier: MIT

// Package videoenc implements VideoEncoder (spec §4.4): the hardware
// video encoder capability, its quality-to-bitrate mapping, and the
// asynchronous output-callback contract.
//
// The real backend (build tag `libav`) wraps
// github.com/asticode/go-astiav's encoder context (FindEncoder,
// SendFrame/ReceivePacket) selecting CodecIDHevc or CodecIDH264 per
// Codec. The default build uses a deterministic test double that emits a
// synthetic keyframe/delta-frame sequence, letting the ring/mux/recorder
// machinery be exercised without a GPU.
package videoenc

import (
	"sync"

	"github.com/coylemichael/screenrecorder/internal/colorconv"
	"github.com/coylemichael/screenrecorder/internal/errs"
	"github.com/coylemichael/screenrecorder/internal/media"
)

// Quality is the user-facing preset from Configuration.quality (spec §6).
type Quality int

const (
	QualityGood Quality = iota
	QualityHigh
	QualityUltra
	QualityLossless
)

// baseBitrateMbps is the per-quality reference bitrate at
// referenceMegapixels and 60fps, before scaling.
var baseBitrateMbps = map[Quality]float64{
	QualityGood:     20,
	QualityHigh:     40,
	QualityUltra:    80,
	QualityLossless: 150,
}

// referenceMegapixels is the resolution the base bitrates above are
// calibrated against (1920x1080).
const referenceMegapixels = 1920.0 * 1080.0

// Codec selects which hardware encoder a VideoEncoder session targets.
// H.264 and H.265 are distinct encoder-construction parameters, never a
// post-hoc transform of one into the other (see DESIGN.md's Open
// Question decision on MP4_H264).
type Codec int

const (
	CodecH265 Codec = iota
	CodecH264
)

// TargetBitrateMbps implements spec §4.4's quality map: a reference
// bitrate scaled by resolution and by fps, clamped to [10, 150] Mbps.
func TargetBitrateMbps(quality Quality, width, height, fps int) float64 {
	base, ok := baseBitrateMbps[quality]
	if !ok {
		base = baseBitrateMbps[QualityGood]
	}

	resScale := float64(width*height) / referenceMegapixels
	resScale = clampFloat(resScale, 0.25, 4.0)

	fpsScale := float64(fps) / 60.0
	fpsScale = clampFloat(fpsScale, 0.5, 4.0)

	bitrate := base * resScale * fpsScale
	return clampFloat(bitrate, 10, 150)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// OutputCallback receives one EncodedFrame per call, on the encoder's
// internal output "thread" (a dedicated goroutine in this
// implementation). Ownership of frame.Data transfers to the callback,
// which must not block and must not call Submit (that would deadlock
// against the single-outstanding-callback constraint).
type OutputCallback func(frame media.EncodedFrame)

// Session is the VideoEncoder capability contract (spec §4.4).
type Session interface {
	SequenceHeader() media.SequenceHeader
	SetOutputCallback(fn OutputCallback)
	Submit(nv12 colorconv.Surface, pts int64) error
	Flush() error
	Destroy() error
}

// ErrAgain is the Again arm of the Ok | Again | DeviceLost tri-state from
// the contract; DeviceLost is surfaced through the errs taxonomy.
var ErrAgain = errs.New(errs.KindTransientDevice, "videoenc.Submit", "encoder busy, retry")

// Config parameterizes encoder construction.
type Config struct {
	Width   int
	Height  int
	FPS     int
	Quality Quality
	Codec   Codec
}

// Synthetic is a deterministic Session used by tests and the default
// build. Every fixed interval (keyframeEvery submits) it emits a
// keyframe; otherwise a delta frame. Frame size is a small, constant
// synthetic payload — no real compression happens.
type Synthetic struct {
	mu sync.Mutex

	cfg           Config
	seqHdr        media.SequenceHeader
	callback      OutputCallback
	submitCount   int64
	keyframeEvery int64
	flushed       bool
	destroyed     bool
	bitrateMbps   float64
}

// NewSynthetic creates a test-double encoder session. keyframeEvery
// defaults to 60 (one keyframe per second at 60fps) when <= 0.
func NewSynthetic(cfg Config, keyframeEvery int64) (*Synthetic, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.FPS <= 0 {
		return nil, errs.New(errs.KindPrecondition, "videoenc.create", "zero dimension or fps")
	}
	if keyframeEvery <= 0 {
		keyframeEvery = 60
	}
	return &Synthetic{
		cfg:           cfg,
		seqHdr:        syntheticSequenceHeader(cfg.Codec),
		keyframeEvery: keyframeEvery,
		bitrateMbps:   TargetBitrateMbps(cfg.Quality, cfg.Width, cfg.Height, cfg.FPS),
	}, nil
}

// syntheticSequenceHeader builds a minimal Annex-B parameter-set blob
// with valid NALU type bytes (H.264 SPS/PPS types 7/8, H.265 VPS/SPS/PPS
// types 32/33/34) so the synthetic encoder's header parses the same way
// a real hardware encoder's does through mux.extractH264Params /
// extractH265Params. The payload bytes after each start code + header
// byte are not a real bitstream — only the type field is load-bearing.
func syntheticSequenceHeader(codec Codec) media.SequenceHeader {
	var b []byte
	switch codec {
	case CodecH264:
		b = append(b, 0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0x00, 0x1e) // SPS (type 7)
		b = append(b, 0x00, 0x00, 0x00, 0x01, 0x68, 0xce, 0x38, 0x80) // PPS (type 8)
	default: // CodecH265
		b = append(b, 0x00, 0x00, 0x00, 0x01, 0x40, 0x01, 0x0c, 0x01) // VPS (type 32)
		b = append(b, 0x00, 0x00, 0x00, 0x01, 0x42, 0x01, 0x01, 0x02) // SPS (type 33)
		b = append(b, 0x00, 0x00, 0x00, 0x01, 0x44, 0x01, 0xc1, 0x72) // PPS (type 34)
	}
	return media.SequenceHeader(b)
}

// SequenceHeader implements Session.
func (s *Synthetic) SequenceHeader() media.SequenceHeader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seqHdr.Clone()
}

// SetOutputCallback implements Session.
func (s *Synthetic) SetOutputCallback(fn OutputCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = fn
}

// Submit implements Session. The synthetic encoder is synchronous: the
// callback fires before Submit returns, which is sufficient for the
// ring/mux tests even though a real hardware encoder's callback runs on
// its own thread asynchronously.
func (s *Synthetic) Submit(nv12 colorconv.Surface, pts int64) error {
	s.mu.Lock()
	if s.flushed || s.destroyed {
		s.mu.Unlock()
		return errs.New(errs.KindPrecondition, "videoenc.Submit", "submit after flush/destroy")
	}
	n := s.submitCount
	s.submitCount++
	cb := s.callback
	keyframeEvery := s.keyframeEvery
	s.mu.Unlock()

	if cb == nil {
		return errs.New(errs.KindPrecondition, "videoenc.Submit", "no output callback set")
	}

	isKey := n%keyframeEvery == 0
	size := 4096
	if isKey {
		size = 32768
	}
	frame := media.EncodedFrame{
		Data:       syntheticPayload(size, n),
		Size:       size,
		PTS:        pts,
		Duration:   int64(media.Clock) / int64(s.cfg.FPS),
		IsKeyframe: isKey,
	}
	cb(frame)
	return nil
}

// Flush implements Session.
func (s *Synthetic) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = true
	return nil
}

// Destroy implements Session.
func (s *Synthetic) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	return nil
}

// BitrateMbps returns the resolved target bitrate for this session.
func (s *Synthetic) BitrateMbps() float64 {
	return s.bitrateMbps
}

func syntheticPayload(size int, seed int64) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = byte(seed + int64(i))
	}
	return out
}
