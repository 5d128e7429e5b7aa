package mux

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coylemichael/screenrecorder/internal/errs"
	"github.com/coylemichael/screenrecorder/internal/media"
)

func h264VideoConfig() VideoConfig {
	return VideoConfig{
		Codec:          VideoCodecH264,
		Width:          1920,
		Height:         1080,
		FPS:            30,
		SequenceHeader: fakeH264SeqHdr(),
	}
}

func TestNewStreamingMuxerRejectsZeroDims(t *testing.T) {
	_, err := NewStreamingMuxer(filepath.Join(t.TempDir(), "out.mp4"), VideoConfig{}, nil)
	require.True(t, errs.Is(err, errs.KindPrecondition))
}

func TestStreamingMuxerWriteAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp4")
	m, err := NewStreamingMuxer(path, h264VideoConfig(), nil)
	require.NoError(t, err)

	for i := int64(0); i < 5; i++ {
		err := m.WriteVideo(media.EncodedFrame{
			Data:       []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88},
			PTS:        i * media.Clock / 30,
			Duration:   media.Clock / 30,
			IsKeyframe: i == 0,
		})
		require.NoError(t, err)
	}
	require.NoError(t, m.Flush())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close()) // idempotent
}

func TestStreamingMuxerRejectsBackwardPTS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp4")
	m, err := NewStreamingMuxer(path, h264VideoConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, m.WriteVideo(media.EncodedFrame{
		Data: []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88}, PTS: 1000, IsKeyframe: true,
	}))
	err = m.WriteVideo(media.EncodedFrame{
		Data: []byte{0x00, 0x00, 0x00, 0x01, 0x41, 0x88}, PTS: 500,
	})
	require.True(t, errs.Is(err, errs.KindPrecondition))
	require.NoError(t, m.Abort())
}

func TestStreamingMuxerWriteAfterCloseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp4")
	m, err := NewStreamingMuxer(path, h264VideoConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	err = m.WriteVideo(media.EncodedFrame{Data: []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88}, IsKeyframe: true})
	require.True(t, errs.Is(err, errs.KindPrecondition))
}

func TestStreamingMuxerWithAudio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp4")
	m, err := NewStreamingMuxer(path, h264VideoConfig(), &AudioConfig{SampleRate: 48000, Channels: 2})
	require.NoError(t, err)

	require.NoError(t, m.WriteVideo(media.EncodedFrame{
		Data: []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88}, IsKeyframe: true, Duration: media.Clock / 30,
	}))
	require.NoError(t, m.WriteAudio(media.EncodedAudioSample{
		Data: make([]byte, 2048), Size: 2048, Duration: media.Clock * 1024 / 48000,
	}))
	require.NoError(t, m.Flush())
	require.NoError(t, m.Close())
}

func TestStreamingMuxerMultipleFragments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mp4")
	m, err := NewStreamingMuxer(path, h264VideoConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, m.WriteVideo(media.EncodedFrame{
		Data: []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88}, IsKeyframe: true, Duration: media.Clock / 30,
	}))
	require.NoError(t, m.Flush())

	require.NoError(t, m.WriteVideo(media.EncodedFrame{
		Data: []byte{0x00, 0x00, 0x00, 0x01, 0x41, 0x88}, PTS: media.Clock / 30, Duration: media.Clock / 30,
	}))
	require.NoError(t, m.Flush())

	require.NoError(t, m.Close())
}
