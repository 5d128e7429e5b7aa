// SPDX-License-Identifier: MIT

package mux

import (
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"

	"github.com/coylemichael/screenrecorder/internal/errs"
	"github.com/coylemichael/screenrecorder/internal/media"
)

// BatchMuxer writes a complete sample array to a file in one shot (spec
// §4.8). It is used only by ReplayBuffer's save path; there is no
// persistent state between calls.
type BatchMuxer struct{}

// NewBatchMuxer creates a BatchMuxer. It carries no state — every field
// a StreamingMuxer accumulates across calls is instead passed directly
// to WriteFile.
func NewBatchMuxer() *BatchMuxer {
	return &BatchMuxer{}
}

// WriteFile writes samples (which must start with an IDR — the caller,
// FrameRing.DrainForExtract, guarantees this) plus optional audioSamples
// into path as a single-fragment fMP4 file.
func (BatchMuxer) WriteFile(
	path string,
	videoConfig VideoConfig,
	samples []media.EncodedFrame,
	audioConfig *AudioConfig,
	audioSamples []media.EncodedAudioSample,
) error {
	if len(samples) == 0 {
		return errs.New(errs.KindPrecondition, "mux.BatchMuxer.WriteFile", "empty sample array")
	}
	if !samples[0].IsKeyframe {
		return errs.New(errs.KindPrecondition, "mux.BatchMuxer.WriteFile", "first sample is not a keyframe")
	}

	videoCodec, err := videoCodecFromConfig(videoConfig)
	if err != nil {
		return errs.Wrap(errs.KindInitFailure, "mux.BatchMuxer.WriteFile", err)
	}

	init := &fmp4.Init{
		Tracks: []*fmp4.InitTrack{
			{ID: videoTrackID, TimeScale: videoTimeScale, Codec: videoCodec},
		},
	}

	part := &fmp4.Part{SequenceNumber: 1}

	var videoSamples []*fmp4.Sample
	prevPTS := int64(-1)
	for _, f := range samples {
		s, err := videoSampleFromFrame(videoConfig, prevPTS, f)
		if err != nil {
			return errs.Wrap(errs.KindInitFailure, "mux.BatchMuxer.WriteFile", err)
		}
		videoSamples = append(videoSamples, s)
		prevPTS = f.PTS
	}
	part.Tracks = append(part.Tracks, &fmp4.PartTrack{ID: videoTrackID, Samples: videoSamples})

	var audioTimeScale uint32
	if audioConfig != nil && len(audioSamples) > 0 {
		audioCodec, timeScale, err := audioCodecFromConfig(audioConfig)
		if err != nil {
			return errs.Wrap(errs.KindInitFailure, "mux.BatchMuxer.WriteFile", err)
		}
		audioTimeScale = timeScale
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{ID: audioTrackID, TimeScale: timeScale, Codec: audioCodec})

		var aSamples []*fmp4.Sample
		for _, s := range audioSamples {
			aSamples = append(aSamples, audioSampleFromFrame(audioTimeScale, s))
		}
		part.Tracks = append(part.Tracks, &fmp4.PartTrack{ID: audioTrackID, Samples: aSamples})
	}

	f, err := os.Create(path)
	if err != nil {
		return newInitFailure("mux.BatchMuxer.WriteFile", err)
	}
	defer func() { _ = f.Close() }()

	initBuf := newSeekableBuffer()
	if err := init.Marshal(initBuf); err != nil {
		return errs.Wrap(errs.KindInitFailure, "mux.BatchMuxer.WriteFile", err)
	}
	if _, err := f.Write(initBuf.Bytes()); err != nil {
		return err
	}

	partBuf := newSeekableBuffer()
	if err := part.Marshal(partBuf); err != nil {
		return errs.Wrap(errs.KindInitFailure, "mux.BatchMuxer.WriteFile", err)
	}
	if _, err := f.Write(partBuf.Bytes()); err != nil {
		return err
	}

	return nil
}
