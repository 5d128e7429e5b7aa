// SPDX-License-Identifier: MIT

// Package capture defines CaptureSource, the desktop-duplication
// capability interface (spec §4.2), plus a deterministic in-memory test
// double used by the default (no cgo) build.
//
// A real implementation lives behind the `libav` build tag and backs
// CaptureSource with platform desktop-duplication APIs via
// github.com/asticode/go-astiav's device-enumeration primitives; it is
// not required for `go test` to exercise the pipeline.
package capture

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/coylemichael/screenrecorder/internal/errs"
)

// ErrTimeout is returned by AcquireFrame when no frame arrives within the
// requested timeout. This is an expected, routine outcome, not a failure
// classified under the error taxonomy.
var ErrTimeout = errors.New("capture: acquire timeout")

// RegionKind selects how a CaptureRegion is interpreted, matching
// Configuration.replay_capture_source (spec §6).
type RegionKind int

const (
	RegionMonitor RegionKind = iota
	RegionAllMonitors
	RegionWindow
	RegionArea
)

// Region is the CaptureRegion the UI collaborator supplies at open time.
type Region struct {
	Kind         RegionKind
	MonitorIndex int
	WindowHandle uintptr
	Area         image.Rectangle
}

// GPUHandle is an opaque reference to a captured surface. The real
// backend stores a platform surface/texture handle here; the test
// double stores a synthetic counter.
type GPUHandle uintptr

// Frame is one captured surface tagged with the platform's pts, per
// spec §3's CaptureState/Frame description.
type Frame struct {
	Handle GPUHandle
	PTS    int64 // 100-ns units, platform-reported, opaque monotonic
}

// Geometry is the resolved capture geometry reported by Open.
type Geometry struct {
	Width       int
	Height      int
	RefreshRate int
}

// Source is the CaptureSource capability contract (spec §4.2).
//
// AcquireFrame's error is classified via errs.Is: errs.KindTransientDevice
// for AccessLost (recoverable, bounded retry), errs.KindFatal for
// unrecoverable failures, and ErrTimeout (unwrapped) when no frame
// arrived in time.
type Source interface {
	Open(ctx context.Context, region Region) (Geometry, error)
	AcquireFrame(ctx context.Context, timeout time.Duration) (Frame, error)
	Reinitialize(ctx context.Context) error
	Close() error
}

// maxAccessLostRetries and retryInterval implement spec §4.2's bounded
// retry policy: "AccessLost is recoverable with bounded retry (up to 10
// attempts, 100ms apart)".
const (
	maxAccessLostRetries = 10
	retryInterval        = 100 * time.Millisecond
)

// RecoverFromAccessLost retries src.Reinitialize up to
// maxAccessLostRetries times, 100ms apart, per spec §4.2. It returns nil
// on the first success, or a KindFatal error if every attempt fails.
func RecoverFromAccessLost(ctx context.Context, src Source) error {
	var lastErr error
	for attempt := 0; attempt < maxAccessLostRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryInterval):
			case <-ctx.Done():
				return errs.Wrap(errs.KindFatal, "capture.Reinitialize", ctx.Err())
			}
		}
		if err := src.Reinitialize(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return errs.Wrap(errs.KindFatal, "capture.Reinitialize", lastErr)
}
