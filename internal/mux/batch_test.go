package mux

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coylemichael/screenrecorder/internal/errs"
	"github.com/coylemichael/screenrecorder/internal/media"
)

func TestBatchMuxerRejectsEmptySamples(t *testing.T) {
	b := NewBatchMuxer()
	err := b.WriteFile(filepath.Join(t.TempDir(), "clip.mp4"), h264VideoConfig(), nil, nil, nil)
	require.True(t, errs.Is(err, errs.KindPrecondition))
}

func TestBatchMuxerRejectsNonKeyframeFirst(t *testing.T) {
	b := NewBatchMuxer()
	samples := []media.EncodedFrame{{Data: []byte{0x00, 0x00, 0x00, 0x01, 0x41, 0x88}, IsKeyframe: false}}
	err := b.WriteFile(filepath.Join(t.TempDir(), "clip.mp4"), h264VideoConfig(), samples, nil, nil)
	require.True(t, errs.Is(err, errs.KindPrecondition))
}

func TestBatchMuxerWritesVideoOnlyClip(t *testing.T) {
	b := NewBatchMuxer()
	path := filepath.Join(t.TempDir(), "clip.mp4")

	samples := make([]media.EncodedFrame, 0, 30)
	for i := int64(0); i < 30; i++ {
		samples = append(samples, media.EncodedFrame{
			Data:       []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88, byte(i)},
			PTS:        i * media.Clock / 30,
			Duration:   media.Clock / 30,
			IsKeyframe: i == 0,
		})
	}

	err := b.WriteFile(path, h264VideoConfig(), samples, nil, nil)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestBatchMuxerWritesVideoAndAudio(t *testing.T) {
	b := NewBatchMuxer()
	path := filepath.Join(t.TempDir(), "clip.mp4")

	samples := []media.EncodedFrame{
		{Data: []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88}, IsKeyframe: true, Duration: media.Clock / 30},
		{Data: []byte{0x00, 0x00, 0x00, 0x01, 0x41, 0x88}, PTS: media.Clock / 30, Duration: media.Clock / 30},
	}
	audio := []media.EncodedAudioSample{
		{Data: make([]byte, 2048), Size: 2048, Duration: media.Clock * 1024 / 48000},
	}

	err := b.WriteFile(path, h264VideoConfig(), samples, &AudioConfig{SampleRate: 48000, Channels: 2}, audio)
	require.NoError(t, err)
}

func TestBatchMuxerBadSequenceHeaderFails(t *testing.T) {
	b := NewBatchMuxer()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	cfg := VideoConfig{Codec: VideoCodecH264, Width: 1920, Height: 1080, FPS: 30, SequenceHeader: []byte{0x00}}
	samples := []media.EncodedFrame{{Data: []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88}, IsKeyframe: true}}

	err := b.WriteFile(path, cfg, samples, nil, nil)
	require.True(t, errs.Is(err, errs.KindInitFailure))
}
