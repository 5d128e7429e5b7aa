package mux

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coylemichael/screenrecorder/internal/errs"
	"github.com/coylemichael/screenrecorder/internal/media"
)

func aviVideoConfig() VideoConfig {
	return VideoConfig{Codec: VideoCodecH264, Width: 640, Height: 480, FPS: 30}
}

func TestNewAVIWriterRejectsZeroDims(t *testing.T) {
	_, err := NewAVIWriter(VideoConfig{})
	require.True(t, errs.Is(err, errs.KindPrecondition))
}

func TestAVIWriterCloseWithNoFramesFails(t *testing.T) {
	w, err := NewAVIWriter(aviVideoConfig())
	require.NoError(t, err)
	err = w.Close(filepath.Join(t.TempDir(), "out.avi"))
	require.True(t, errs.Is(err, errs.KindPrecondition))
}

func TestAVIWriterProducesRIFFHeader(t *testing.T) {
	w, err := NewAVIWriter(aviVideoConfig())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, w.WriteVideo(media.EncodedFrame{
			Data:       []byte{0x01, 0x02, 0x03},
			IsKeyframe: i == 0,
		}))
	}

	path := filepath.Join(t.TempDir(), "out.avi")
	require.NoError(t, w.Close(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 12)
	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, "AVI ", string(data[8:12]))
}

func TestAVIWriterPadsOddLengthFrames(t *testing.T) {
	w, err := NewAVIWriter(aviVideoConfig())
	require.NoError(t, err)
	require.NoError(t, w.WriteVideo(media.EncodedFrame{Data: []byte{0x01, 0x02, 0x03}, IsKeyframe: true}))

	path := filepath.Join(t.TempDir(), "out.avi")
	require.NoError(t, w.Close(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}
