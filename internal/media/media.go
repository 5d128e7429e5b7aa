// SPDX-License-Identifier: MIT

// Package media defines the access-unit types that flow between the
// capture/encode producers, the FrameRing, and the muxers.
//
// Timestamps throughout this package run on a 100-ns clock (the same unit
// Windows media APIs use), matching the platform pts the capture source
// reports; muxers translate into their own container timebase on write.
package media

// Clock is the tick resolution all pts/duration fields are expressed in:
// 100 nanoseconds per unit, i.e. 10,000,000 units per second.
const Clock = 10_000_000

// EncodedFrame is one compressed video access unit produced by a
// VideoEncoder.
//
// Ownership: created by the encoder's output callback; moved into a
// FrameRing or handed to a StreamingMuxer on receipt; the holder is
// responsible for it until it is evicted, drained (deep-copied out), or
// the owning session shuts down.
type EncodedFrame struct {
	Data       []byte
	Size       int
	PTS        int64 // 100-ns units, monotonically non-decreasing
	Duration   int64 // 100-ns units
	IsKeyframe bool
}

// Clone returns a deep copy of f, suitable for handing to a caller that
// must outlive the ring slot f currently occupies.
func (f EncodedFrame) Clone() EncodedFrame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return EncodedFrame{
		Data:       data,
		Size:       f.Size,
		PTS:        f.PTS,
		Duration:   f.Duration,
		IsKeyframe: f.IsKeyframe,
	}
}

// EncodedAudioSample is one AAC access unit produced by an AudioMixer.
// Same shape as EncodedFrame minus IsKeyframe; every AAC sample is
// independently decodable given the stream's sequence header.
type EncodedAudioSample struct {
	Data     []byte
	Size     int
	PTS      int64 // 100-ns units, same clock as video
	Duration int64 // 100-ns units
}

// Clone returns a deep copy of s.
func (s EncodedAudioSample) Clone() EncodedAudioSample {
	data := make([]byte, len(s.Data))
	copy(data, s.Data)
	return EncodedAudioSample{
		Data:     data,
		Size:     s.Size,
		PTS:      s.PTS,
		Duration: s.Duration,
	}
}

// SequenceHeader is opaque codec-initialization bytes (VPS/SPS/PPS for
// HEVC, SPS/PPS for H.264) needed by a decoder before any sample. It is
// constant for the life of an encoder session and re-emitted after a
// reset.
type SequenceHeader []byte

// Clone returns a copy of h.
func (h SequenceHeader) Clone() SequenceHeader {
	out := make(SequenceHeader, len(h))
	copy(out, h)
	return out
}
