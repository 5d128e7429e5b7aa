package asynclog

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func newTestBuf() (*nopCloser, *Logger) {
	buf := &nopCloser{&bytes.Buffer{}}
	return buf, New(buf)
}

func TestLogIsNonBlockingAndDrained(t *testing.T) {
	buf, l := newTestBuf()
	defer l.Shutdown()

	l.Log("hello %d", 42)
	l.Flush()

	require.Contains(t, buf.String(), "hello 42")
}

func TestHeartbeatTracksCountAndTime(t *testing.T) {
	_, l := newTestBuf()
	defer l.Shutdown()

	l.Heartbeat("capture")
	l.Heartbeat("capture")

	snaps := l.Heartbeats()
	require.Equal(t, int64(2), snaps["capture"].BeatCount)
	require.True(t, snaps["capture"].Active)
}

func TestIsWorkerStalled(t *testing.T) {
	_, l := newTestBuf()
	defer l.Shutdown()

	l.Heartbeat("capture")
	require.False(t, l.IsWorkerStalled("capture", 10_000))

	// Force staleness by backdating start.
	l.start = time.Now().Add(-20 * time.Second)
	require.True(t, l.IsWorkerStalled("capture", 10_000))
}

func TestMarkInactiveSuppressesStall(t *testing.T) {
	_, l := newTestBuf()
	defer l.Shutdown()

	l.Heartbeat("audio")
	l.MarkInactive("audio")
	l.start = time.Now().Add(-time.Minute)
	require.False(t, l.IsWorkerStalled("audio", 10_000))
}

func TestLogDropsWhenRingFull(t *testing.T) {
	// Use a writer that blocks drains by never being read until after the
	// flood, forcing the ring to fill.
	pr, pw := io.Pipe()
	defer pr.Close()
	l := New(pw)
	defer func() {
		go io.Copy(io.Discard, pr) //nolint:errcheck
		l.Shutdown()
	}()

	for i := 0; i < ringCapacity*3; i++ {
		l.Log("flood %d", i)
	}

	require.Greater(t, l.dropped.Load(), uint64(0))
}

func TestHeartbeatSummaryLineFormat(t *testing.T) {
	buf, l := newTestBuf()
	l.Heartbeat("capture")
	l.emitHeartbeatSummary()
	l.Shutdown()

	require.True(t, strings.Contains(buf.String(), "worker=capture"))
	require.True(t, strings.Contains(buf.String(), "status=OK"))
}
