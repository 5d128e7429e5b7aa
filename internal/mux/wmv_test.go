package mux

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coylemichael/screenrecorder/internal/errs"
)

func TestNewWMVWriterAlwaysFails(t *testing.T) {
	w, err := NewWMVWriter(VideoConfig{Width: 1920, Height: 1080, FPS: 30})
	require.Nil(t, w)
	require.True(t, errs.Is(err, errs.KindInitFailure))
}
