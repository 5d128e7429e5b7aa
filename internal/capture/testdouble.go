// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"sync"
	"time"

	"github.com/coylemichael/screenrecorder/internal/errs"
	"github.com/coylemichael/screenrecorder/internal/media"
)

// Synthetic is a deterministic Source used by tests and by the default
// (no cgo) build. It produces frames at a fixed synthetic frame rate
// with monotonically increasing pts on the 100-ns clock, and lets tests
// inject AccessLost/Fatal transitions or a pause (to exercise stall
// detection).
type Synthetic struct {
	mu sync.Mutex

	fps      int
	opened   bool
	accessLost bool
	fatal    error
	frameNum int64
	paused   bool

	geom Geometry
}

// NewSynthetic creates a test double that generates frames at fps.
func NewSynthetic(fps int) *Synthetic {
	return &Synthetic{fps: fps}
}

// Open implements Source.
func (s *Synthetic) Open(_ context.Context, region Region) (Geometry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if region.Kind == RegionArea {
		dx := region.Area.Dx()
		dy := region.Area.Dy()
		if dx <= 0 || dy <= 0 {
			return Geometry{}, errs.New(errs.KindPrecondition, "capture.Open", "zero-area region")
		}
		s.geom = Geometry{Width: dx, Height: dy, RefreshRate: s.fps}
	} else {
		s.geom = Geometry{Width: 1920, Height: 1080, RefreshRate: s.fps}
	}
	s.opened = true
	s.frameNum = 0
	return s.geom, nil
}

// AcquireFrame implements Source.
func (s *Synthetic) AcquireFrame(ctx context.Context, timeout time.Duration) (Frame, error) {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return Frame{}, errs.New(errs.KindFatal, "capture.AcquireFrame", "not open")
	}
	if s.fatal != nil {
		err := s.fatal
		s.mu.Unlock()
		return Frame{}, errs.Wrap(errs.KindFatal, "capture.AcquireFrame", err)
	}
	if s.accessLost {
		s.mu.Unlock()
		return Frame{}, errs.New(errs.KindTransientDevice, "capture.AcquireFrame", "access lost")
	}
	if s.paused {
		s.mu.Unlock()
		select {
		case <-time.After(timeout):
			return Frame{}, ErrTimeout
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}
	n := s.frameNum
	s.frameNum++
	fps := s.fps
	s.mu.Unlock()

	pts := n * int64(media.Clock) / int64(fps)
	return Frame{Handle: GPUHandle(n + 1), PTS: pts}, nil
}

// Reinitialize implements Source.
func (s *Synthetic) Reinitialize(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accessLost {
		return errs.New(errs.KindPrecondition, "capture.Reinitialize", "not in AccessLost state")
	}
	s.accessLost = false
	return nil
}

// Close implements Source.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	return nil
}

// SetAccessLost forces the next AcquireFrame calls to report AccessLost
// until Reinitialize succeeds.
func (s *Synthetic) SetAccessLost(lost bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessLost = lost
}

// SetFatal forces every subsequent AcquireFrame to fail fatally.
func (s *Synthetic) SetFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fatal = err
}

// SetPaused simulates a stalled producer: AcquireFrame blocks until
// timeout instead of returning a frame, without advancing frameNum.
func (s *Synthetic) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}
