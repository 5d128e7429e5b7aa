// SPDX-License-Identifier: MIT

// Package replaybuf implements ReplayBuffer (spec §4.9): it owns a
// CaptureSource, ColorConverter, VideoEncoder, AudioMixer, and a video
// plus audio ring, and exposes SaveAsync to snapshot the rings to a
// file via BatchMuxer without ever blocking the capture or encoder
// callback paths.
//
// Lifecycle and worker-loop shape are grounded on the teacher's
// internal/stream/manager.go Manager: an atomic.Value state field, a
// mutex protecting the mutable session resources, a context-driven Run
// loop, and heartbeat-per-iteration workers — generalized here to two
// workers (captureWorker, audioWorker) instead of one FFmpeg child
// process.
package replaybuf

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coylemichael/screenrecorder/internal/asynclog"
	"github.com/coylemichael/screenrecorder/internal/audiomix"
	"github.com/coylemichael/screenrecorder/internal/capture"
	"github.com/coylemichael/screenrecorder/internal/colorconv"
	"github.com/coylemichael/screenrecorder/internal/errs"
	"github.com/coylemichael/screenrecorder/internal/media"
	"github.com/coylemichael/screenrecorder/internal/mux"
	"github.com/coylemichael/screenrecorder/internal/ring"
	"github.com/coylemichael/screenrecorder/internal/videoenc"
)

// State is ReplayBuffer's PipelineState (spec §3).
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateStopping
	StateStalled
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateStalled:
		return "stalled"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Config parameterizes a ReplayBuffer session.
type Config struct {
	Region          capture.Region
	Width, Height   int
	FPS             int
	Quality         videoenc.Quality
	Codec           videoenc.Codec
	ReplayDurationS float64
	AudioEnabled    bool
	AudioSources    []audiomix.SourceConfig

	CaptureSource  capture.Source   // nil = built internally from a Synthetic double
	VideoEncoder   videoenc.Session // nil = built internally from Synthetic
	ColorConverter colorconv.Converter
}

// NotifyFunc is the out-of-band save completion callback delivered to
// the UI (spec §4.9 save_async's notify parameter).
type NotifyFunc func(success bool, path string, err error)

// ReplayBuffer maintains the rolling ring and serves save requests.
type ReplayBuffer struct {
	cfg Config

	log *asynclog.Logger

	state atomic.Value // State

	mu            sync.Mutex
	videoRing     *ring.FrameRing
	audioRing     *ring.AudioRing
	captureSrc    capture.Source
	converter     colorconv.Converter
	encoder       videoenc.Session
	audioMixer    *audiomix.Mixer
	stopRequested atomic.Bool
	wg            sync.WaitGroup
	cancel        context.CancelFunc
}

// New validates cfg and constructs a ReplayBuffer in StateIdle. No
// workers run until Start.
func New(cfg Config, log *asynclog.Logger) (*ReplayBuffer, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.FPS <= 0 {
		return nil, errs.New(errs.KindPrecondition, "replaybuf.New", "zero dimension or fps")
	}
	if cfg.ReplayDurationS <= 0 {
		return nil, errs.New(errs.KindPrecondition, "replaybuf.New", "replay duration must be positive")
	}
	if cfg.AudioEnabled && (len(cfg.AudioSources) == 0 || len(cfg.AudioSources) > 3) {
		return nil, errs.New(errs.KindPrecondition, "replaybuf.New", "audio enabled needs 1..3 sources")
	}

	rb := &ReplayBuffer{cfg: cfg, log: log}
	rb.state.Store(StateIdle)
	return rb, nil
}

// State returns the current pipeline state.
func (rb *ReplayBuffer) State() State {
	v := rb.state.Load()
	if v == nil {
		return StateIdle
	}
	return v.(State)
}

func (rb *ReplayBuffer) setState(s State) { rb.state.Store(s) }

// Start brings the pipeline up: opens the capture source, constructs
// rings sized from Config, and launches captureWorker/audioWorker.
func (rb *ReplayBuffer) Start(ctx context.Context) error {
	if rb.State() != StateIdle {
		return errs.New(errs.KindPrecondition, "replaybuf.Start", "not idle")
	}
	rb.setState(StateStarting)

	geom := ring.Geometry{Width: rb.cfg.Width, Height: rb.cfg.Height, FPS: rb.cfg.FPS, Quality: qualityString(rb.cfg.Quality)}
	videoRing, err := ring.New(rb.cfg.ReplayDurationS, rb.cfg.FPS, geom)
	if err != nil {
		rb.setState(StateError)
		return errs.Wrap(errs.KindInitFailure, "replaybuf.Start", err)
	}

	var audioRing *ring.AudioRing
	if rb.cfg.AudioEnabled {
		// Audio frame rate is approximated as 48000/1024 AAC frames/sec for
		// ring sizing; the audio ring's span policy mirrors the video one.
		audioRing, err = ring.NewAudio(rb.cfg.ReplayDurationS, audiomix.TargetSampleRate/1024)
		if err != nil {
			rb.setState(StateError)
			return errs.Wrap(errs.KindInitFailure, "replaybuf.Start", err)
		}
	}

	src := rb.cfg.CaptureSource
	if src == nil {
		src = capture.NewSynthetic(rb.cfg.FPS)
	}
	if _, err := src.Open(ctx, rb.cfg.Region); err != nil {
		rb.setState(StateError)
		return errs.Wrap(errs.KindInitFailure, "replaybuf.Start", err)
	}

	converter := rb.cfg.ColorConverter
	if converter == nil {
		converter = colorconv.NewCPUConverter()
	}

	encoder := rb.cfg.VideoEncoder
	if encoder == nil {
		enc, err := videoenc.NewSynthetic(videoenc.Config{
			Width: rb.cfg.Width, Height: rb.cfg.Height, FPS: rb.cfg.FPS,
			Quality: rb.cfg.Quality, Codec: rb.cfg.Codec,
		}, 0)
		if err != nil {
			_ = src.Close()
			rb.setState(StateError)
			return errs.Wrap(errs.KindInitFailure, "replaybuf.Start", err)
		}
		encoder = enc
	}
	videoRing.SetSequenceHeader(encoder.SequenceHeader())
	encoder.SetOutputCallback(func(f media.EncodedFrame) {
		videoRing.Add(f)
	})

	var mixer *audiomix.Mixer
	if rb.cfg.AudioEnabled {
		m, err := audiomix.New(audiomix.Config{Sources: rb.cfg.AudioSources})
		if err != nil {
			rb.log.Log("replaybuf: audio mixer init failed: %v", err)
		} else {
			res := m.Open(ctx, audiomix.Config{Sources: rb.cfg.AudioSources})
			for _, f := range res.Failed {
				rb.log.Log("replaybuf: audio source %s failed to open: %v", f.Source.DeviceID, f.Err)
			}
			if !res.AACOK {
				rb.log.Log("replaybuf: AAC encoder unavailable, continuing video-only")
			}
			mixer = m
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())

	rb.mu.Lock()
	rb.videoRing = videoRing
	rb.audioRing = audioRing
	rb.captureSrc = src
	rb.converter = converter
	rb.encoder = encoder
	rb.audioMixer = mixer
	rb.cancel = cancel
	rb.mu.Unlock()

	rb.stopRequested.Store(false)
	rb.wg.Add(1)
	go rb.captureWorker(runCtx)
	if mixer != nil {
		rb.wg.Add(1)
		go rb.audioWorker(runCtx)
	}

	rb.setState(StateActive)
	return nil
}

// captureWorker is spec §4.9's CaptureWorker: acquire → convert →
// submit, heartbeat once per iteration. The default (cgo-free)
// CaptureSource paces frames immediately rather than blocking until
// vsync, so the worker imposes its own fps-matched cadence via ticker.
func (rb *ReplayBuffer) captureWorker(ctx context.Context) {
	defer rb.wg.Done()
	defer rb.log.MarkInactive("replaybuf.capture")

	interval := time.Second / time.Duration(rb.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !rb.stopRequested.Load() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := rb.captureSrc.AcquireFrame(ctx, interval)
		if err != nil {
			if err == capture.ErrTimeout {
				continue
			}
			switch errs.KindOf(err) {
			case errs.KindTransientDevice:
				rb.log.Log("replaybuf: capture access lost, recovering: %v", err)
				if rerr := capture.RecoverFromAccessLost(ctx, rb.captureSrc); rerr != nil {
					rb.log.Log("replaybuf: capture recovery failed: %v", rerr)
					rb.setState(StateStalled)
					return
				}
				rb.log.Log("replaybuf: capture recovered")
				continue
			default:
				rb.log.Log("replaybuf: capture fatal: %v", err)
				rb.setState(StateError)
				return
			}
		}

		bgra := colorconv.Surface{
			Handle: frame.Handle,
			Width:  rb.cfg.Width,
			Height: rb.cfg.Height,
			Data:   syntheticBGRA(rb.cfg.Width, rb.cfg.Height, int64(frame.Handle)),
		}
		nv12, err := rb.converter.Convert(bgra)
		if err != nil {
			rb.log.Log("replaybuf: color convert fatal: %v", err)
			rb.setState(StateError)
			return
		}

		if err := rb.encoder.Submit(nv12, frame.PTS); err != nil {
			if errs.KindOf(err) == errs.KindTransientDevice {
				rb.log.Log("replaybuf: encoder busy, dropping frame")
				continue
			}
			rb.log.Log("replaybuf: encoder fatal: %v", err)
			rb.setState(StateError)
			return
		}

		rb.log.Heartbeat("replaybuf.capture")
	}
}

// audioWorker is spec §4.9's AudioWorker: read mixed audio → push to the
// audio ring, heartbeat once per iteration. Paced the same way as
// captureWorker, at the canonical AAC frame cadence.
func (rb *ReplayBuffer) audioWorker(ctx context.Context) {
	defer rb.wg.Done()
	defer rb.log.MarkInactive("replaybuf.audio")

	frameDuration := 1024 * time.Second / time.Duration(audiomix.TargetSampleRate)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for !rb.stopRequested.Load() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sample, err := rb.audioMixer.ReadSample(ctx)
		if err != nil {
			rb.log.Log("replaybuf: audio read failed, video continues: %v", err)
			return
		}

		rb.audioRing.Add(sample)
		rb.log.Heartbeat("replaybuf.audio")
	}
}

// Stop halts both workers, waits up to 10s, then tears resources down.
// Idempotent.
func (rb *ReplayBuffer) Stop() error {
	if rb.State() != StateActive && rb.State() != StateStalled {
		return nil
	}
	rb.setState(StateStopping)
	rb.stopRequested.Store(true)

	rb.mu.Lock()
	cancel := rb.cancel
	encoder := rb.encoder
	captureSrc := rb.captureSrc
	rb.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() { rb.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		rb.setState(StateStalled)
		return errs.New(errs.KindFatal, "replaybuf.Stop", "workers did not exit within 10s")
	}

	var firstErr error
	if encoder != nil {
		if err := encoder.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := encoder.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if captureSrc != nil {
		if err := captureSrc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	rb.setState(StateIdle)
	return firstErr
}

// SaveAsync snapshots both rings via DrainForExtract/DrainSince on a
// short-lived save goroutine, muxes them with BatchMuxer, and delivers
// notify out-of-band. It never blocks the capture or callback threads.
func (rb *ReplayBuffer) SaveAsync(path string, notify NotifyFunc) {
	rb.mu.Lock()
	videoRing := rb.videoRing
	audioRing := rb.audioRing
	rb.mu.Unlock()

	if videoRing == nil {
		notify(false, path, errs.New(errs.KindPrecondition, "replaybuf.SaveAsync", "not started"))
		return
	}

	go func() {
		videoSamples, firstPTS, err := videoRing.DrainForExtract()
		if err != nil {
			notify(false, path, err)
			return
		}

		var audioSamples []media.EncodedAudioSample
		var audioCfg *mux.AudioConfig
		if audioRing != nil {
			if samples, aerr := audioRing.DrainSince(firstPTS); aerr == nil {
				audioSamples = samples
				audioCfg = &mux.AudioConfig{SampleRate: audiomix.TargetSampleRate, Channels: audiomix.TargetChannels}
			} else if aerr != ring.ErrEmpty {
				rb.log.Log("replaybuf: audio drain failed, shipping video-only: %v", aerr)
			}
		}

		videoCfg := mux.VideoConfig{
			Codec:          muxCodecFrom(rb.cfg.Codec),
			Width:          rb.cfg.Width,
			Height:         rb.cfg.Height,
			FPS:            rb.cfg.FPS,
			SequenceHeader: videoRing.SequenceHeader(),
		}

		batch := mux.NewBatchMuxer()
		if err := batch.WriteFile(path, videoCfg, videoSamples, audioCfg, audioSamples); err != nil {
			notify(false, path, err)
			return
		}
		notify(true, path, nil)
	}()
}

func muxCodecFrom(c videoenc.Codec) mux.VideoCodec {
	if c == videoenc.CodecH264 {
		return mux.VideoCodecH264
	}
	return mux.VideoCodecH265
}

func qualityString(q videoenc.Quality) string {
	switch q {
	case videoenc.QualityGood:
		return "good"
	case videoenc.QualityHigh:
		return "high"
	case videoenc.QualityUltra:
		return "ultra"
	case videoenc.QualityLossless:
		return "lossless"
	default:
		return "good"
	}
}

// syntheticBGRA fills a deterministic BGRA buffer for the given capture
// handle. The default (cgo-free) CaptureSource reports only an opaque
// GPUHandle — a real desktop-duplication backend resolves that handle
// against its own GPU surface pool, but the reference ColorConverter
// needs host-memory pixels to convert, so the default build synthesizes
// them here instead.
func syntheticBGRA(width, height int, seed int64) []byte {
	out := make([]byte, width*height*4)
	for i := range out {
		out[i] = byte(seed + int64(i))
	}
	return out
}

// Name identifies this ReplayBuffer to a supervisor.Supervisor.
func (rb *ReplayBuffer) Name() string { return "replaybuf" }

// Run adapts the Start/Stop pair onto the supervisor.Service shape: it
// starts the pipeline, blocks until ctx is cancelled, then stops it.
// Run returns early only when Start fails; a worker that fails or stalls
// after Start does not make Run return. A failed Start leaves the
// pipeline in StateError, and Start refuses any state but StateIdle, so
// calling Run again on the same ReplayBuffer fails as well.
func (rb *ReplayBuffer) Run(ctx context.Context) error {
	if err := rb.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return rb.Stop()
}

// DroppedOnAlloc reports how many video-ring extracts failed because a
// drain-time allocation failed (spec §6 Observability).
func (rb *ReplayBuffer) DroppedOnAlloc() uint64 {
	rb.mu.Lock()
	videoRing := rb.videoRing
	rb.mu.Unlock()
	if videoRing == nil {
		return 0
	}
	return videoRing.Stats().DroppedOnAlloc
}
