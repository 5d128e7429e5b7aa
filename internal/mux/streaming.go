// SPDX-License-Identifier: MIT

package mux

import (
	"os"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"

	"github.com/coylemichael/screenrecorder/internal/errs"
	"github.com/coylemichael/screenrecorder/internal/media"
)

const (
	videoTrackID = 1
	audioTrackID = 2
)

// StreamingMuxer is the container writer used by Recorder (spec §4.7):
// it appends samples as they arrive and finalizes a playable file on
// Close.
type StreamingMuxer struct {
	mu sync.Mutex

	file           *os.File
	videoConfig    VideoConfig
	audioConfig    *AudioConfig
	audioTimeScale uint32

	initWritten bool
	seqNum      uint32

	videoBaseTime uint64
	audioBaseTime uint64
	lastVideoPTS  int64

	pendingVideo []*fmp4.Sample
	pendingAudio []*fmp4.Sample

	closed bool
}

// NewStreamingMuxer creates path and prepares to write an fMP4 stream
// into it. Fails with KindInitFailure if the file cannot be created or
// the video sequence header cannot be parsed.
func NewStreamingMuxer(path string, videoConfig VideoConfig, audioConfig *AudioConfig) (*StreamingMuxer, error) {
	if videoConfig.Width <= 0 || videoConfig.Height <= 0 || videoConfig.FPS <= 0 {
		return nil, errs.New(errs.KindPrecondition, "mux.StreamingMuxer.create", "zero dimension or fps")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, newInitFailure("mux.StreamingMuxer.create", err)
	}

	return &StreamingMuxer{
		file:           f,
		videoConfig:    videoConfig,
		audioConfig:    audioConfig,
		audioTimeScale: defaultAudioTimeScale,
		seqNum:         1,
		lastVideoPTS:   -1,
	}, nil
}

// WriteVideo appends a video sample. A pts lower than the previous video
// sample's is rejected; an equal pts is accepted.
func (m *StreamingMuxer) WriteVideo(f media.EncodedFrame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errs.New(errs.KindPrecondition, "mux.WriteVideo", "muxer closed")
	}
	if m.lastVideoPTS >= 0 && f.PTS < m.lastVideoPTS {
		return errs.New(errs.KindPrecondition, "mux.WriteVideo", "backward video pts rejected")
	}

	sample, err := videoSampleFromFrame(m.videoConfig, m.lastVideoPTS, f)
	if err != nil {
		return errs.Wrap(errs.KindInitFailure, "mux.WriteVideo", err)
	}
	m.pendingVideo = append(m.pendingVideo, sample)
	m.lastVideoPTS = f.PTS
	return nil
}

// WriteAudio appends an audio sample.
func (m *StreamingMuxer) WriteAudio(s media.EncodedAudioSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errs.New(errs.KindPrecondition, "mux.WriteAudio", "muxer closed")
	}
	m.pendingAudio = append(m.pendingAudio, audioSampleFromFrame(m.audioTimeScale, s))
	return nil
}

// Flush writes any buffered samples as a fragment, writing the init
// segment first if this is the first flush.
func (m *StreamingMuxer) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

func (m *StreamingMuxer) flushLocked() error {
	if !m.initWritten {
		if err := m.writeInitLocked(); err != nil {
			return err
		}
		m.initWritten = true
	}
	if len(m.pendingVideo) == 0 && len(m.pendingAudio) == 0 {
		return nil
	}
	return m.writeFragmentLocked()
}

func (m *StreamingMuxer) writeInitLocked() error {
	videoCodec, err := videoCodecFromConfig(m.videoConfig)
	if err != nil {
		return errs.Wrap(errs.KindInitFailure, "mux.writeInit", err)
	}

	init := &fmp4.Init{
		Tracks: []*fmp4.InitTrack{
			{ID: videoTrackID, TimeScale: videoTimeScale, Codec: videoCodec},
		},
	}

	if m.audioConfig != nil {
		audioCodec, timeScale, err := audioCodecFromConfig(m.audioConfig)
		if err != nil {
			return errs.Wrap(errs.KindInitFailure, "mux.writeInit", err)
		}
		m.audioTimeScale = timeScale
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{ID: audioTrackID, TimeScale: timeScale, Codec: audioCodec})
	}

	buf := newSeekableBuffer()
	if err := init.Marshal(buf); err != nil {
		return errs.Wrap(errs.KindInitFailure, "mux.writeInit", err)
	}
	_, err = m.file.Write(buf.Bytes())
	return err
}

func (m *StreamingMuxer) writeFragmentLocked() error {
	part := &fmp4.Part{SequenceNumber: m.seqNum}

	if len(m.pendingVideo) > 0 {
		part.Tracks = append(part.Tracks, &fmp4.PartTrack{
			ID:       videoTrackID,
			BaseTime: m.videoBaseTime,
			Samples:  m.pendingVideo,
		})
		for _, s := range m.pendingVideo {
			m.videoBaseTime += uint64(s.Duration)
		}
		m.pendingVideo = nil
	}

	if len(m.pendingAudio) > 0 {
		part.Tracks = append(part.Tracks, &fmp4.PartTrack{
			ID:       audioTrackID,
			BaseTime: m.audioBaseTime,
			Samples:  m.pendingAudio,
		})
		for _, s := range m.pendingAudio {
			m.audioBaseTime += uint64(s.Duration)
		}
		m.pendingAudio = nil
	}

	buf := newSeekableBuffer()
	if err := part.Marshal(buf); err != nil {
		return err
	}
	_, err := m.file.Write(buf.Bytes())
	m.seqNum++
	return err
}

// Close flushes any remaining samples, writing finalization atoms, and
// returns success iff the file is playable.
func (m *StreamingMuxer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	if err := m.flushLocked(); err != nil {
		_ = m.file.Close()
		m.closed = true
		return err
	}
	m.closed = true
	return m.file.Close()
}

// Abort releases resources, leaving the file flushed to disk but
// unplayable (no guarantee the init segment or final fragment landed).
func (m *StreamingMuxer) Abort() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.file.Close()
}
