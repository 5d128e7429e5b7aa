// SPDX-License-Identifier: MIT

package mux

import (
	"encoding/binary"
	"os"

	"github.com/coylemichael/screenrecorder/internal/errs"
	"github.com/coylemichael/screenrecorder/internal/media"
)

// AVIWriter is a minimal RIFF/movi AVI writer for FormatAVI (spec §6).
// Recording-path only; AVI output never feeds replay saves (spec
// Non-goal: "no replay support" for AVI/WMV).
type AVIWriter struct {
	videoConfig VideoConfig
	frames      [][]byte
	keyframes   []bool
}

// NewAVIWriter prepares an in-memory AVI writer for videoConfig.
func NewAVIWriter(videoConfig VideoConfig) (*AVIWriter, error) {
	if videoConfig.Width <= 0 || videoConfig.Height <= 0 || videoConfig.FPS <= 0 {
		return nil, errs.New(errs.KindPrecondition, "mux.AVIWriter.create", "zero dimension or fps")
	}
	return &AVIWriter{videoConfig: videoConfig}, nil
}

// WriteVideo buffers one encoded video frame. AVI has no fragmented
// write path in this implementation — the whole clip is assembled and
// written on Close.
func (w *AVIWriter) WriteVideo(f media.EncodedFrame) error {
	w.frames = append(w.frames, f.Data)
	w.keyframes = append(w.keyframes, f.IsKeyframe)
	return nil
}

// Close assembles the RIFF/AVI/hdrl/movi structure and writes it to
// path.
func (w *AVIWriter) Close(path string) error {
	if len(w.frames) == 0 {
		return errs.New(errs.KindPrecondition, "mux.AVIWriter.Close", "no frames written")
	}

	movi := buildMoviChunk(w.frames)
	hdrl := buildHdrlChunk(w.videoConfig, len(w.frames))

	var riffBody []byte
	riffBody = append(riffBody, hdrl...)
	riffBody = append(riffBody, movi...)

	out := make([]byte, 0, len(riffBody)+12)
	out = append(out, []byte("RIFF")...)
	out = appendUint32(out, uint32(len(riffBody)+4))
	out = append(out, []byte("AVI ")...)
	out = append(out, riffBody...)

	f, err := os.Create(path)
	if err != nil {
		return newInitFailure("mux.AVIWriter.Close", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(out); err != nil {
		return err
	}
	return nil
}

func buildHdrlChunk(vc VideoConfig, frameCount int) []byte {
	avih := make([]byte, 0, 56)
	avih = appendUint32(avih, uint32(media.Clock/int64(vc.FPS)/10)) // micro-sec per frame
	avih = appendUint32(avih, 0)                                    // max bytes/sec (unknown)
	avih = appendUint32(avih, 0)                                    // padding granularity
	avih = appendUint32(avih, 0x10)                                 // flags: AVIF_HASINDEX
	avih = appendUint32(avih, uint32(frameCount))
	avih = appendUint32(avih, 0) // initial frames
	avih = appendUint32(avih, 1) // streams
	avih = appendUint32(avih, 0) // suggested buffer size
	avih = appendUint32(avih, uint32(vc.Width))
	avih = appendUint32(avih, uint32(vc.Height))
	avih = append(avih, make([]byte, 16)...) // reserved

	var hdrl []byte
	hdrl = append(hdrl, []byte("LIST")...)
	hdrl = appendUint32(hdrl, uint32(4+8+len(avih)))
	hdrl = append(hdrl, []byte("hdrl")...)
	hdrl = append(hdrl, []byte("avih")...)
	hdrl = appendUint32(hdrl, uint32(len(avih)))
	hdrl = append(hdrl, avih...)
	return hdrl
}

func buildMoviChunk(frames [][]byte) []byte {
	var body []byte
	for _, data := range frames {
		body = append(body, []byte("00dc")...)
		body = appendUint32(body, uint32(len(data)))
		body = append(body, data...)
		if len(data)%2 == 1 {
			body = append(body, 0) // word-align pad
		}
	}

	var movi []byte
	movi = append(movi, []byte("LIST")...)
	movi = appendUint32(movi, uint32(4+len(body)))
	movi = append(movi, []byte("movi")...)
	movi = append(movi, body...)
	return movi
}

func appendUint32(b []byte, v uint32) []byte {
	tmp := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp, v)
	return append(b, tmp...)
}
