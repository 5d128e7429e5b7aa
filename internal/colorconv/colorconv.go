// SPDX-License-Identifier: MIT

// Package colorconv implements ColorConverter (spec §4.3): an on-GPU
// BGRA→NV12 transform sitting between CaptureSource and VideoEncoder.
//
// The real backend (build tag `libav`) uses
// github.com/asticode/go-astiav's SoftwareScaleContext to do the
// conversion on whichever device the encoder is bound to. The default
// build uses a pure-Go CPU reference implementation — slow, but bit-exact
// and dependency-free, so tests can assert on pixel values without cgo.
package colorconv

import (
	"github.com/coylemichael/screenrecorder/internal/capture"
	"github.com/coylemichael/screenrecorder/internal/errs"
)

// Surface is an opaque GPU (or, for the reference implementation,
// host-memory) image buffer.
type Surface struct {
	Handle capture.GPUHandle
	Width  int
	Height int
	// Data holds the raw plane bytes for the reference implementation.
	// A real GPU-backed converter leaves this nil and resolves Handle
	// against its own surface pool instead.
	Data []byte
}

// Converter is the ColorConverter capability contract. Convert failures
// are fatal for the owning session (spec §4.3).
type Converter interface {
	Convert(bgra Surface) (nv12 Surface, err error)
}

// CPUConverter is a pure-Go BGRA→NV12 reference implementation. It
// reuses an internal scratch buffer across calls the way the contract
// requires ("reusing internally owned intermediate surfaces"), so
// repeated conversions at a fixed resolution do not allocate.
type CPUConverter struct {
	scratch []byte
}

// NewCPUConverter creates a reference ColorConverter.
func NewCPUConverter() *CPUConverter {
	return &CPUConverter{}
}

// Convert performs a BT.601-ish full-range BGRA→NV12 conversion on the
// CPU. Input must have 4 bytes/pixel (B,G,R,A); output is NV12 (one Y
// plane, one interleaved UV plane at half resolution).
func (c *CPUConverter) Convert(bgra Surface) (Surface, error) {
	if bgra.Width <= 0 || bgra.Height <= 0 {
		return Surface{}, errs.New(errs.KindPrecondition, "colorconv.Convert", "zero dimension")
	}
	if len(bgra.Data) < bgra.Width*bgra.Height*4 {
		return Surface{}, errs.New(errs.KindPrecondition, "colorconv.Convert", "short BGRA buffer")
	}

	w, h := bgra.Width, bgra.Height
	ySize := w * h
	uvSize := (w / 2) * (h / 2) * 2
	need := ySize + uvSize
	if cap(c.scratch) < need {
		c.scratch = make([]byte, need)
	}
	out := c.scratch[:need]

	yPlane := out[:ySize]
	uvPlane := out[ySize:need]

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			off := (row*w + col) * 4
			b := int(bgra.Data[off+0])
			g := int(bgra.Data[off+1])
			r := int(bgra.Data[off+2])
			yPlane[row*w+col] = clampByte((77*r + 150*g + 29*b) >> 8)
		}
	}

	for row := 0; row < h; row += 2 {
		for col := 0; col < w; col += 2 {
			off := (row*w + col) * 4
			b := int(bgra.Data[off+0])
			g := int(bgra.Data[off+1])
			r := int(bgra.Data[off+2])
			u := clampByte(((-43*r - 84*g + 127*b) >> 8) + 128)
			v := clampByte(((127*r - 106*g - 21*b) >> 8) + 128)
			idx := (row/2)*w + col
			uvPlane[idx] = u
			uvPlane[idx+1] = v
		}
	}

	return Surface{
		Handle: bgra.Handle,
		Width:  w,
		Height: h,
		Data:   out,
	}, nil
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
