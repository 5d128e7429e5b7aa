// SPDX-License-Identifier: MIT

// Package recorder implements Recorder (spec §4.9): the same
// capture/convert/encode pipeline as ReplayBuffer, but the encoder's
// output callback writes straight into a container sink (a
// StreamingMuxer for MP4, an AVIWriter for FormatAVI) instead of a ring,
// producing a playable file for the lifetime of the recording session
// rather than a rolling in-memory window.
package recorder

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
	"github.com/coylemichael/screenrecorder/internal/videoenc"
)

// State is Recorder's PipelineState (spec §3), identical in shape to
// ReplayBuffer's.
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

// flushInterval is how often the streaming muxer is asked to write a
// fragment for buffered samples; spec §4.7 leaves fragment cadence
// unspecified beyond "append as they arrive", so this mirrors a typical
// low-latency streaming cadence.
const flushInterval = time.Second

// Config parameterizes a Recorder session.
type Config struct {
	Region          capture.Region
	Width, Height   int
	FPS             int
	Quality         videoenc.Quality
	Codec           videoenc.Codec
	Container       mux.ContainerFormat
	AudioEnabled    bool
	AudioSources    []audiomix.SourceConfig

	CaptureSource  capture.Source
	VideoEncoder   videoenc.Session
	ColorConverter colorconv.Converter
}

// sink is the subset of a container writer's contract Recorder drives:
// both *mux.StreamingMuxer and the AVI adapter below satisfy it, letting
// Start pick a container without the rest of the pipeline caring which
// one it got.
type sink interface {
	WriteVideo(media.EncodedFrame) error
	WriteAudio(media.EncodedAudioSample) error
	Flush() error
	Close() error
}

// aviSink adapts *mux.AVIWriter (which buffers every frame and assembles
// the file only on Close(path)) onto the sink interface. AVI carries no
// audio track in this implementation (spec §6 lists AVI as a recording
// format but the pack's RIFF/movi writer never gained an audio chunk
// type), so WriteAudio is a no-op here; Recorder.Start does not spawn an
// audio worker at all when the container is AVI/WMV, so this path is
// never exercised in practice — it exists so aviSink satisfies sink.
type aviSink struct {
	w    *mux.AVIWriter
	path string
}

func (s *aviSink) WriteVideo(f media.EncodedFrame) error    { return s.w.WriteVideo(f) }
func (s *aviSink) WriteAudio(media.EncodedAudioSample) error { return nil }
func (s *aviSink) Flush() error                             { return nil }
func (s *aviSink) Close() error                             { return s.w.Close(s.path) }

func (c Config) validate() error {
	if c.Width <= 0 || c.Height <= 0 || c.FPS <= 0 {
		return errs.New(errs.KindPrecondition, "recorder.New", "zero dimension or fps")
	}
	if c.AudioEnabled && (len(c.AudioSources) == 0 || len(c.AudioSources) > 3) {
		return errs.New(errs.KindPrecondition, "recorder.New", "audio enabled needs 1..3 sources")
	}
	return nil
}

// Recorder owns a capture/encode pipeline that writes straight to a
// StreamingMuxer for the duration of a recording session.
type Recorder struct {
	cfg Config
	log *asynclog.Logger

	state atomic.Value // State

	mu            sync.Mutex
	muxer         sink
	captureSrc    capture.Source
	converter     colorconv.Converter
	encoder       videoenc.Session
	audioMixer    *audiomix.Mixer
	stopRequested atomic.Bool
	wg            sync.WaitGroup
	cancel        context.CancelFunc
}

// New validates cfg and constructs a Recorder in StateIdle.
func New(cfg Config, log *asynclog.Logger) (*Recorder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rec := &Recorder{cfg: cfg, log: log}
	rec.state.Store(StateIdle)
	return rec, nil
}

// State returns the current pipeline state.
func (rec *Recorder) State() State {
	v := rec.state.Load()
	if v == nil {
		return StateIdle
	}
	return v.(State)
}

func (rec *Recorder) setState(s State) { rec.state.Store(s) }

// Start opens the capture source and a StreamingMuxer at path, builds
// default collaborators for anything not supplied, and launches the
// capture/audio workers.
func (rec *Recorder) Start(ctx context.Context, path string) error {
	if rec.State() != StateIdle {
		return errs.New(errs.KindPrecondition, "recorder.Start", "not idle")
	}
	rec.setState(StateStarting)

	src := rec.cfg.CaptureSource
	if src == nil {
		src = capture.NewSynthetic(rec.cfg.FPS)
	}
	if _, err := src.Open(ctx, rec.cfg.Region); err != nil {
		rec.setState(StateError)
		return errs.Wrap(errs.KindInitFailure, "recorder.Start", err)
	}

	converter := rec.cfg.ColorConverter
	if converter == nil {
		converter = colorconv.NewCPUConverter()
	}

	encoder := rec.cfg.VideoEncoder
	if encoder == nil {
		enc, err := videoenc.NewSynthetic(videoenc.Config{
			Width: rec.cfg.Width, Height: rec.cfg.Height, FPS: rec.cfg.FPS,
			Quality: rec.cfg.Quality, Codec: rec.cfg.Codec,
		}, 0)
		if err != nil {
			_ = src.Close()
			rec.setState(StateError)
			return errs.Wrap(errs.KindInitFailure, "recorder.Start", err)
		}
		encoder = enc
	}

	// AVI (and the still-unimplemented WMV) carry no audio track in this
	// implementation, so the audio mixer and its worker are only built
	// for containers that can actually receive the samples.
	containerSupportsAudio := rec.cfg.Container == mux.FormatMP4H264 || rec.cfg.Container == mux.FormatMP4H265

	var mixer *audiomix.Mixer
	var audioCfg *mux.AudioConfig
	if rec.cfg.AudioEnabled && containerSupportsAudio {
		m, err := audiomix.New(audiomix.Config{Sources: rec.cfg.AudioSources})
		if err != nil {
			rec.log.Log("recorder: audio mixer init failed: %v", err)
		} else {
			res := m.Open(ctx, audiomix.Config{Sources: rec.cfg.AudioSources})
			for _, f := range res.Failed {
				rec.log.Log("recorder: audio source %s failed to open: %v", f.Source.DeviceID, f.Err)
			}
			if !res.AACOK {
				rec.log.Log("recorder: AAC encoder unavailable, continuing video-only")
			} else {
				mixer = m
				audioCfg = &mux.AudioConfig{SampleRate: audiomix.TargetSampleRate, Channels: audiomix.TargetChannels}
			}
		}
	} else if rec.cfg.AudioEnabled {
		rec.log.Log("recorder: audio not supported for this container, continuing video-only")
	}

	videoCfg := mux.VideoConfig{
		Codec:          muxCodecFrom(rec.cfg.Codec),
		Width:          rec.cfg.Width,
		Height:         rec.cfg.Height,
		FPS:            rec.cfg.FPS,
		SequenceHeader: encoder.SequenceHeader(),
	}

	var muxer sink
	var err error
	switch rec.cfg.Container {
	case mux.FormatAVI:
		var w *mux.AVIWriter
		w, err = mux.NewAVIWriter(videoCfg)
		if err == nil {
			muxer = &aviSink{w: w, path: path}
		}
	case mux.FormatWMV:
		_, err = mux.NewWMVWriter(videoCfg)
	default:
		muxer, err = mux.NewStreamingMuxer(path, videoCfg, audioCfg)
	}
	if err != nil {
		_ = encoder.Destroy()
		_ = src.Close()
		rec.setState(StateError)
		return err
	}

	encoder.SetOutputCallback(func(f media.EncodedFrame) {
		if werr := muxer.WriteVideo(f); werr != nil {
			rec.log.Log("recorder: write video sample failed: %v", werr)
		}
	})

	runCtx, cancel := context.WithCancel(context.Background())

	rec.mu.Lock()
	rec.muxer = muxer
	rec.captureSrc = src
	rec.converter = converter
	rec.encoder = encoder
	rec.audioMixer = mixer
	rec.cancel = cancel
	rec.mu.Unlock()

	rec.stopRequested.Store(false)
	rec.wg.Add(1)
	go rec.captureWorker(runCtx)
	if mixer != nil {
		rec.wg.Add(1)
		go rec.audioWorker(runCtx)
	}
	rec.wg.Add(1)
	go rec.flushWorker(runCtx)

	rec.setState(StateActive)
	return nil
}

func (rec *Recorder) captureWorker(ctx context.Context) {
	defer rec.wg.Done()
	defer rec.log.MarkInactive("recorder.capture")

	interval := time.Second / time.Duration(rec.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !rec.stopRequested.Load() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := rec.captureSrc.AcquireFrame(ctx, interval)
		if err != nil {
			if err == capture.ErrTimeout {
				continue
			}
			switch errs.KindOf(err) {
			case errs.KindTransientDevice:
				rec.log.Log("recorder: capture access lost, recovering: %v", err)
				if rerr := capture.RecoverFromAccessLost(ctx, rec.captureSrc); rerr != nil {
					rec.log.Log("recorder: capture recovery failed: %v", rerr)
					rec.setState(StateStalled)
					return
				}
				continue
			default:
				rec.log.Log("recorder: capture fatal: %v", err)
				rec.setState(StateError)
				return
			}
		}

		bgra := colorconv.Surface{
			Handle: frame.Handle,
			Width:  rec.cfg.Width,
			Height: rec.cfg.Height,
			Data:   syntheticBGRA(rec.cfg.Width, rec.cfg.Height, int64(frame.Handle)),
		}
		nv12, err := rec.converter.Convert(bgra)
		if err != nil {
			rec.log.Log("recorder: color convert fatal: %v", err)
			rec.setState(StateError)
			return
		}

		if err := rec.encoder.Submit(nv12, frame.PTS); err != nil {
			if errs.KindOf(err) == errs.KindTransientDevice {
				rec.log.Log("recorder: encoder busy, dropping frame")
				continue
			}
			rec.log.Log("recorder: encoder fatal: %v", err)
			rec.setState(StateError)
			return
		}

		rec.log.Heartbeat("recorder.capture")
	}
}

func (rec *Recorder) audioWorker(ctx context.Context) {
	defer rec.wg.Done()
	defer rec.log.MarkInactive("recorder.audio")

	frameDuration := 1024 * time.Second / time.Duration(audiomix.TargetSampleRate)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for !rec.stopRequested.Load() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sample, err := rec.audioMixer.ReadSample(ctx)
		if err != nil {
			rec.log.Log("recorder: audio read failed, video continues: %v", err)
			return
		}

		rec.mu.Lock()
		muxer := rec.muxer
		rec.mu.Unlock()
		if werr := muxer.WriteAudio(sample); werr != nil {
			rec.log.Log("recorder: write audio sample failed: %v", werr)
		}
		rec.log.Heartbeat("recorder.audio")
	}
}

// flushWorker periodically asks the muxer to write buffered samples as
// a fragment so the file on disk stays close to current.
func (rec *Recorder) flushWorker(ctx context.Context) {
	defer rec.wg.Done()
	defer rec.log.MarkInactive("recorder.flush")

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for !rec.stopRequested.Load() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		rec.mu.Lock()
		muxer := rec.muxer
		rec.mu.Unlock()
		if err := muxer.Flush(); err != nil {
			rec.log.Log("recorder: periodic flush failed: %v", err)
		}
		rec.log.Heartbeat("recorder.flush")
	}
}

// Stop halts all workers, waits up to 10s, flushes and destroys the
// encoder, then closes the muxer so the file is finalized and
// playable. Idempotent.
func (rec *Recorder) Stop() error {
	if rec.State() != StateActive && rec.State() != StateStalled {
		return nil
	}
	rec.setState(StateStopping)
	rec.stopRequested.Store(true)

	rec.mu.Lock()
	cancel := rec.cancel
	encoder := rec.encoder
	captureSrc := rec.captureSrc
	muxer := rec.muxer
	rec.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() { rec.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		rec.setState(StateStalled)
		return errs.New(errs.KindFatal, "recorder.Stop", "workers did not exit within 10s")
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
	if muxer != nil {
		if err := muxer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if captureSrc != nil {
		if err := captureSrc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	rec.setState(StateIdle)
	return firstErr
}

func muxCodecFrom(c videoenc.Codec) mux.VideoCodec {
	if c == videoenc.CodecH264 {
		return mux.VideoCodecH264
	}
	return mux.VideoCodecH265
}

// syntheticBGRA fills a deterministic BGRA buffer for the given capture
// handle, matching replaybuf's rationale: the default CaptureSource
// reports only an opaque handle, no pixel data.
func syntheticBGRA(width, height int, seed int64) []byte {
	out := make([]byte, width*height*4)
	for i := range out {
		out[i] = byte(seed + int64(i))
	}
	return out
}

// Service adapts a Recorder bound to a fixed output path onto the
// supervisor.Service shape (Run(ctx) error, Name() string). Start takes
// a path because each recording session needs one, but a
// supervisor.Supervisor only knows how to Run and restart a
// zero-argument service, so the path is captured here instead.
type Service struct {
	rec  *Recorder
	path string
}

// AsService returns a supervisor.Service that runs rec against path.
func (rec *Recorder) AsService(path string) *Service {
	return &Service{rec: rec, path: path}
}

func (s *Service) Name() string { return "recorder" }

func (s *Service) Run(ctx context.Context) error {
	if err := s.rec.Start(ctx, s.path); err != nil {
		return err
	}
	<-ctx.Done()
	return s.rec.Stop()
}
