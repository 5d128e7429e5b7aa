package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapAndIs(t *testing.T) {
	cause := errors.New("device unplugged")
	err := Wrap(KindDeviceLost, "VideoEncoder.submit", cause)

	require.True(t, Is(err, KindDeviceLost))
	require.False(t, Is(err, KindAudioError))
	require.ErrorIs(t, err, cause)
}

func TestWrapNil(t *testing.T) {
	require.Nil(t, Wrap(KindFatal, "op", nil))
}

func TestKindOf(t *testing.T) {
	err := New(KindStallDetected, "HealthMonitor.poll", "no heartbeat")
	require.Equal(t, KindStallDetected, KindOf(err))
	require.Equal(t, KindFatal, KindOf(errors.New("plain error")))
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindPrecondition:    "Precondition",
		KindInitFailure:     "InitFailure",
		KindTransientDevice: "TransientDeviceError",
		KindDeviceLost:      "DeviceLost",
		KindAudioError:      "AudioError",
		KindStallDetected:   "StallDetected",
		KindAllocFailure:    "AllocFailure",
		KindFatal:           "Fatal",
	}
	for kind, want := range cases {
		require.Equal(t, want, kind.String())
	}
}
