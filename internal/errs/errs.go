// SPDX-License-Identifier: MIT

// Package errs implements the behavioral error taxonomy from spec §7:
// errors are classified by what the caller must do about them, not by
// which component raised them. Leaf components (CaptureSource,
// ColorConverter, VideoEncoder, AudioMixer, FrameRing, the muxers) return
// a Kind; mid-level orchestrators (ReplayBuffer, Recorder) log and
// propagate; the Supervisor is the only place a Kind becomes a
// user-visible message or a lifecycle transition.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a behavioral error classification. The zero value is never
// used directly — always construct via New/Wrap.
type Kind int

const (
	// KindPrecondition: invalid parameters (zero dimension, duration<=0,
	// bad region). Reported synchronously; no state change.
	KindPrecondition Kind = iota
	// KindInitFailure: capture, encoder, or muxer cannot be brought up.
	// State transitions to Error; partial resources released.
	KindInitFailure
	// KindTransientDevice: AccessLost or equivalent; handled by bounded
	// retry inside the affected component.
	KindTransientDevice
	// KindDeviceLost: encoder or GPU session irrecoverable; bubbles to
	// the Supervisor as a restart request for the whole pipeline.
	KindDeviceLost
	// KindAudioError: the audio path fails while video can proceed;
	// logged and surfaced to the UI once; video continues.
	KindAudioError
	// KindStallDetected: raised by HealthMonitor; a recoverable event
	// the Supervisor handles by stop+restart.
	KindStallDetected
	// KindAllocFailure: ring insert drops the frame and increments a
	// counter; ring extract unwinds partial allocations and fails the
	// save.
	KindAllocFailure
	// KindFatal: anything not classified above; the Supervisor tears the
	// session down to Idle and reports to the UI.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindPrecondition:
		return "Precondition"
	case KindInitFailure:
		return "InitFailure"
	case KindTransientDevice:
		return "TransientDeviceError"
	case KindDeviceLost:
		return "DeviceLost"
	case KindAudioError:
		return "AudioError"
	case KindStallDetected:
		return "StallDetected"
	case KindAllocFailure:
		return "AllocFailure"
	case KindFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Error is a behaviorally-typed error: Kind drives what the caller does,
// Op names the failing operation, and Err (optional) wraps the
// underlying cause for errors.Is/errors.As.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a Kind-classified error with no wrapped cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Wrap classifies err as kind, recording op for context.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err, or KindFatal if err isn't a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}
