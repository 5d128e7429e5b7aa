package colorconv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coylemichael/screenrecorder/internal/errs"
)

func solidBGRA(w, h int, b, g, r, a byte) []byte {
	out := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		out[i*4+0] = b
		out[i*4+1] = g
		out[i*4+2] = r
		out[i*4+3] = a
	}
	return out
}

func TestConvertZeroDimension(t *testing.T) {
	c := NewCPUConverter()
	_, err := c.Convert(Surface{Width: 0, Height: 4})
	require.True(t, errs.Is(err, errs.KindPrecondition))
}

func TestConvertShortBuffer(t *testing.T) {
	c := NewCPUConverter()
	_, err := c.Convert(Surface{Width: 4, Height: 4, Data: make([]byte, 4)})
	require.True(t, errs.Is(err, errs.KindPrecondition))
}

func TestConvertBlackFrameIsZeroLuma(t *testing.T) {
	c := NewCPUConverter()
	in := Surface{Width: 4, Height: 4, Data: solidBGRA(4, 4, 0, 0, 0, 255)}
	out, err := c.Convert(in)
	require.NoError(t, err)
	require.Equal(t, 4, out.Width)
	require.Equal(t, 4, out.Height)

	ySize := 4 * 4
	for _, y := range out.Data[:ySize] {
		require.Equal(t, byte(0), y)
	}
}

func TestConvertWhiteFrameIsMaxLuma(t *testing.T) {
	c := NewCPUConverter()
	in := Surface{Width: 2, Height: 2, Data: solidBGRA(2, 2, 255, 255, 255, 255)}
	out, err := c.Convert(in)
	require.NoError(t, err)

	ySize := 2 * 2
	for _, y := range out.Data[:ySize] {
		require.GreaterOrEqual(t, y, byte(250))
	}
}

func TestConvertReusesScratchBuffer(t *testing.T) {
	c := NewCPUConverter()
	in := Surface{Width: 8, Height: 8, Data: solidBGRA(8, 8, 10, 20, 30, 255)}

	out1, err := c.Convert(in)
	require.NoError(t, err)
	scratchPtr := &c.scratch[0]

	out2, err := c.Convert(in)
	require.NoError(t, err)
	require.Same(t, scratchPtr, &c.scratch[0])
	require.Equal(t, out1.Data, out2.Data)
}
