// SPDX-License-Identifier: MIT

package ring

import (
	"sync"

	"github.com/coylemichael/screenrecorder/internal/media"
)

// AudioRing is FrameRing's audio counterpart (spec §4.6's "a parallel
// audio ring sized by duration"): the same span-then-capacity eviction
// policy, but over media.EncodedAudioSample, and without the
// keyframe-anchoring DrainForExtract needs — every AAC sample is
// independently decodable, so extraction only needs to align the audio
// clip with the video clip's chosen start pts.
type AudioRing struct {
	mu sync.Mutex

	slots   []media.EncodedAudioSample
	head    int
	tail    int
	count   int
	maxSpan int64

	memBytes int64
	evicted  uint64
}

// NewAudio builds an AudioRing sized the same way as New: capacity
// ceil(duration_s*rate*1.5) clamped to [128,100000], where rate is
// samples (AAC frames) per second rather than video fps.
func NewAudio(durationSeconds float64, framesPerSecond int) (*AudioRing, error) {
	r, err := New(durationSeconds, framesPerSecond, Geometry{})
	if err != nil {
		return nil, err
	}
	return &AudioRing{
		slots:   make([]media.EncodedAudioSample, len(r.slots)),
		maxSpan: r.maxSpan,
	}, nil
}

// Add inserts sample, evicting by span and then by capacity.
func (r *AudioRing) Add(sample media.EncodedAudioSample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := len(r.slots)
	for r.count > 0 && sample.PTS-r.slots[r.tail].PTS > r.maxSpan {
		r.memBytes -= int64(r.slots[r.tail].Size)
		r.slots[r.tail] = media.EncodedAudioSample{}
		r.tail = (r.tail + 1) % c
		r.count--
		r.evicted++
	}
	for r.count >= c {
		r.memBytes -= int64(r.slots[r.tail].Size)
		r.slots[r.tail] = media.EncodedAudioSample{}
		r.tail = (r.tail + 1) % c
		r.count--
		r.evicted++
	}

	r.slots[r.head] = sample
	r.head = (r.head + 1) % c
	r.count++
	r.memBytes += int64(sample.Size)
}

// DrainSince deep-copies every held sample with pts >= sinceVideoPTS,
// rebasing each copy's pts to sinceVideoPTS so it lines up with the
// video clip BatchMuxer is about to write.
func (r *AudioRing) DrainSince(sinceVideoPTS int64) ([]media.EncodedAudioSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil, ErrEmpty
	}

	c := len(r.slots)
	out := make([]media.EncodedAudioSample, 0, r.count)
	for i, idx := 0, r.tail; i < r.count; i, idx = i+1, (idx+1)%c {
		src := r.slots[idx]
		if src.PTS < sinceVideoPTS {
			continue
		}
		data := make([]byte, len(src.Data))
		copy(data, src.Data)
		out = append(out, media.EncodedAudioSample{
			Data:     data,
			Size:     src.Size,
			PTS:      src.PTS - sinceVideoPTS,
			Duration: src.Duration,
		})
	}
	return out, nil
}

// Count returns the number of samples currently held.
func (r *AudioRing) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Clear evicts every held sample.
func (r *AudioRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := len(r.slots)
	for r.count > 0 {
		r.slots[r.tail] = media.EncodedAudioSample{}
		r.tail = (r.tail + 1) % c
		r.count--
	}
	r.head, r.tail, r.memBytes = 0, 0, 0
}
