package audiomix

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coylemichael/screenrecorder/internal/errs"
)

func TestNewRejectsZeroSources(t *testing.T) {
	_, err := New(Config{})
	require.True(t, errs.Is(err, errs.KindPrecondition))
}

func TestNewRejectsTooManySources(t *testing.T) {
	_, err := New(Config{Sources: []SourceConfig{{}, {}, {}, {}}})
	require.True(t, errs.Is(err, errs.KindPrecondition))
}

func TestReadSampleProducesIncreasingPTS(t *testing.T) {
	m, err := New(Config{Sources: []SourceConfig{{DeviceID: "mic0", GainPct: 80}}})
	require.NoError(t, err)

	var lastPTS int64 = -1
	for i := 0; i < 5; i++ {
		s, err := m.ReadSample(context.Background())
		require.NoError(t, err)
		require.Greater(t, s.PTS, lastPTS)
		lastPTS = s.PTS
		require.Equal(t, len(s.Data), s.Size)
	}
}

func TestOneSourceFailsOthersContinue(t *testing.T) {
	m, err := New(Config{
		Sources: []SourceConfig{
			{DeviceID: "mic0"},
			{DeviceID: "bad-device"},
		},
	}, WithSourceOpener(func(sc SourceConfig) error {
		if sc.DeviceID == "bad-device" {
			return errors.New("device busy")
		}
		return nil
	}))
	require.NoError(t, err)

	res := m.Open(context.Background(), Config{Sources: []SourceConfig{
		{DeviceID: "mic0"}, {DeviceID: "bad-device"},
	}})
	require.Len(t, res.Opened, 1)
	require.Len(t, res.Failed, 1)
	require.True(t, errs.Is(res.Failed[0].Err, errs.KindAudioError))

	// The remaining source still produces samples.
	_, err = m.ReadSample(context.Background())
	require.NoError(t, err)
}

func TestAACUnavailableDegradesVideoOnly(t *testing.T) {
	m, err := New(Config{Sources: []SourceConfig{{DeviceID: "mic0"}}}, WithAACUnavailable())
	require.NoError(t, err)

	_, err = m.ReadSample(context.Background())
	require.True(t, errs.Is(err, errs.KindAudioError))
}

func TestGainClamping(t *testing.T) {
	require.Equal(t, 1.0, SourceConfig{GainPct: 150}.Gain())
	require.Equal(t, 0.0, SourceConfig{GainPct: -10}.Gain())
	require.InDelta(t, 0.5, SourceConfig{GainPct: 50}.Gain(), 0.001)
}
