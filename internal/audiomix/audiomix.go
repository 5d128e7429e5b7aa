// SPDX-License-Identifier: MIT

// Package audiomix implements AudioMixer (spec §4.5): 1..3 device
// endpoints resampled to a common rate, summed with clamping, and
// AAC-encoded into EncodedAudioSamples.
//
// The real backend (build tag `libav`) uses
// github.com/asticode/go-astiav's SoftwareResampleContext for resampling
// and its AAC encoder (CodecIDAac) for encoding. The default build uses a
// pure-Go sine-wave synthetic source and a fixed-size fake AAC payload,
// so the ring/mux/replaybuf machinery can be exercised without a real
// audio device or codec.
package audiomix

import (
	"context"
	"math"
	"sync"

	"github.com/coylemichael/screenrecorder/internal/errs"
	"github.com/coylemichael/screenrecorder/internal/media"
)

const (
	// TargetSampleRate is the common rate every source is resampled to.
	TargetSampleRate = 48000
	// TargetChannels is stereo output, per spec §4.5.
	TargetChannels = 2
	// samplesPerAACFrame is the canonical AAC frame size (1024 samples).
	samplesPerAACFrame = 1024
)

// SourceConfig is one configured audio endpoint: Configuration's
// audio_sources[0..2] (spec §6), device_id plus gain_pct (0..100).
type SourceConfig struct {
	DeviceID string
	GainPct  int
}

// Gain returns the configured gain as a linear 0.0..1.0 factor.
func (s SourceConfig) Gain() float64 {
	g := float64(s.GainPct) / 100
	if g < 0 {
		return 0
	}
	if g > 1 {
		return 1
	}
	return g
}

// Config parameterizes mixer construction. 1..3 Sources, per spec §4.5.
type Config struct {
	Sources []SourceConfig
}

// OpenResult reports which configured sources actually opened. Per spec
// §4.5, a source that fails to open is logged and skipped — it never
// fails mixer construction outright.
type OpenResult struct {
	Opened []SourceConfig
	Failed []SourceFailure
	AACOK  bool
}

// SourceFailure pairs a source with its open error.
type SourceFailure struct {
	Source SourceConfig
	Err    error
}

// source tracks one opened endpoint's synthetic oscillator phase.
type source struct {
	cfg   SourceConfig
	phase float64
	freq  float64
}

// Mixer is a deterministic AudioMixer test double. It generates a
// synthetic sine tone per opened source (distinct frequency each, so
// tests can distinguish mixed channels), mixes with gain and clamping,
// and emits fixed-size fake-AAC frames at the canonical 1024-sample
// cadence.
type Mixer struct {
	mu sync.Mutex

	sources     []source
	aacOK       bool
	frameNum    int64
	frameTicks  int64 // Duration of one AAC frame, 100-ns units
	openSources func(SourceConfig) error // test hook, nil = always succeeds
}

// Option configures a Mixer.
type Option func(*Mixer)

// WithSourceOpener overrides the open check per source, letting tests
// simulate a device that fails to open.
func WithSourceOpener(fn func(SourceConfig) error) Option {
	return func(m *Mixer) { m.openSources = fn }
}

// WithAACUnavailable simulates an AAC encoder that cannot be brought up.
func WithAACUnavailable() Option {
	return func(m *Mixer) { m.aacOK = false }
}

// New constructs a Mixer from cfg.
func New(cfg Config, opts ...Option) (*Mixer, error) {
	if len(cfg.Sources) == 0 || len(cfg.Sources) > 3 {
		return nil, errs.New(errs.KindPrecondition, "audiomix.create", "need 1..3 sources")
	}
	m := &Mixer{
		aacOK:      true,
		frameTicks: int64(samplesPerAACFrame) * media.Clock / TargetSampleRate,
	}
	for _, opt := range opts {
		opt(m)
	}

	baseFreq := 220.0
	for i, sc := range cfg.Sources {
		if m.openSources != nil {
			if err := m.openSources(sc); err != nil {
				continue
			}
		}
		m.sources = append(m.sources, source{cfg: sc, freq: baseFreq * float64(i+1)})
	}

	return m, nil
}

// Open reports which sources opened and whether AAC encoding is
// available, per spec §4.5's "log and continue" failure semantics.
func (m *Mixer) Open(_ context.Context, cfg Config) OpenResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := OpenResult{AACOK: m.aacOK}
	opened := make(map[string]bool, len(m.sources))
	for _, s := range m.sources {
		opened[s.cfg.DeviceID] = true
		res.Opened = append(res.Opened, s.cfg)
	}
	for _, sc := range cfg.Sources {
		if !opened[sc.DeviceID] {
			res.Failed = append(res.Failed, SourceFailure{
				Source: sc,
				Err:    errs.New(errs.KindAudioError, "audiomix.Open", "device failed to open: "+sc.DeviceID),
			})
		}
	}
	return res
}

// ReadSample produces the next mixed, AAC-encoded audio sample. Returns
// an AudioError-classified error if the AAC encoder is unavailable —
// callers treat this as "continue video-only" rather than fatal.
func (m *Mixer) ReadSample(_ context.Context) (media.EncodedAudioSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.aacOK {
		return media.EncodedAudioSample{}, errs.New(errs.KindAudioError, "audiomix.ReadSample", "AAC encoder unavailable")
	}
	if len(m.sources) == 0 {
		return media.EncodedAudioSample{}, errs.New(errs.KindAudioError, "audiomix.ReadSample", "no audio sources open")
	}

	pcm := make([]float64, samplesPerAACFrame)
	for i := range m.sources {
		src := &m.sources[i]
		gain := src.cfg.Gain()
		step := 2 * math.Pi * src.freq / TargetSampleRate
		for n := 0; n < samplesPerAACFrame; n++ {
			pcm[n] += gain * math.Sin(src.phase+step*float64(n))
		}
		src.phase += step * samplesPerAACFrame
	}
	for n := range pcm {
		if pcm[n] > 1 {
			pcm[n] = 1
		} else if pcm[n] < -1 {
			pcm[n] = -1
		}
	}

	payload := encodeSyntheticAAC(pcm)
	n := m.frameNum
	m.frameNum++

	return media.EncodedAudioSample{
		Data:     payload,
		Size:     len(payload),
		PTS:      n * m.frameTicks,
		Duration: m.frameTicks,
	}, nil
}

// encodeSyntheticAAC quantizes pcm to 16-bit and returns it as the
// sample payload — not a real AAC bitstream, but a deterministic stand-in
// sized like one so downstream muxing logic can be exercised.
func encodeSyntheticAAC(pcm []float64) []byte {
	out := make([]byte, len(pcm)*2)
	for i, v := range pcm {
		q := int16(v * 32767)
		out[i*2] = byte(q)
		out[i*2+1] = byte(q >> 8)
	}
	return out
}
