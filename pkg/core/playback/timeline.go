package playback

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/vango-go/vai-mentor/pkg/core/audio"
)

// ErrTimelineClosed is returned by Play and Read after Close.
var ErrTimelineClosed = errors.New("playback: timeline closed")

// Timeline is a software mixer implementing Output. Its clock is the number of
// sample frames rendered so far; a device sink advances it by pulling signed
// 16-bit little-endian PCM through Read. When nothing is scheduled it renders
// silence so the clock keeps moving.
type Timeline struct {
	sampleRate int
	channels   int

	mu       sync.Mutex
	rendered int64
	voices   []*timelineVoice
	closed   bool
	mix      []float32
}

type timelineVoice struct {
	t       *Timeline
	start   int64
	frame   *audio.Frame
	onEnded func()
}

// NewTimeline returns a timeline rendering at the given format.
func NewTimeline(format audio.Format) *Timeline {
	rate := format.SampleRate
	if rate <= 0 {
		rate = audio.OutputSampleRate
	}
	ch := format.Channels
	if ch <= 0 {
		ch = 1
	}
	return &Timeline{sampleRate: rate, channels: ch}
}

// Format returns the PCM layout produced by Read.
func (t *Timeline) Format() audio.Format {
	return audio.Format{SampleRate: t.sampleRate, Channels: t.channels, BitsPerSample: 16}
}

// CurrentTime returns the output clock in seconds.
func (t *Timeline) CurrentTime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.rendered) / float64(t.sampleRate)
}

// Play schedules frame to start at time at. A start time already in the past
// begins immediately.
func (t *Timeline) Play(frame *audio.Frame, at float64, onEnded func()) (Voice, error) {
	if frame == nil {
		return nil, fmt.Errorf("playback: nil frame")
	}
	if frame.SampleRate != t.sampleRate {
		return nil, fmt.Errorf("playback: frame rate %d does not match output rate %d", frame.SampleRate, t.sampleRate)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTimelineClosed
	}
	start := int64(math.Round(at * float64(t.sampleRate)))
	if start < t.rendered {
		start = t.rendered
	}
	v := &timelineVoice{t: t, start: start, frame: frame, onEnded: onEnded}
	t.voices = append(t.voices, v)
	return v, nil
}

// Stop removes the voice without firing its ended callback.
func (v *timelineVoice) Stop() {
	v.t.mu.Lock()
	defer v.t.mu.Unlock()
	v.t.removeLocked(v)
}

// Read renders the next len(p)/(2*channels) sample frames.
func (t *Timeline) Read(p []byte) (int, error) {
	width := 2 * t.channels
	frames := len(p) / width
	if frames == 0 {
		return 0, nil
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.EOF
	}

	n := frames * t.channels
	if cap(t.mix) < n {
		t.mix = make([]float32, n)
	}
	mix := t.mix[:n]
	clear(mix)

	from := t.rendered
	to := from + int64(frames)
	var ended []func()
	kept := t.voices[:0]
	for _, v := range t.voices {
		length := int64(v.frame.Len())
		vs, ve := v.start, v.start+length
		lo, hi := max(vs, from), min(ve, to)
		for i := lo; i < hi; i++ {
			src := int(i - vs)
			dst := int(i-from) * t.channels
			for ch := 0; ch < t.channels; ch++ {
				mix[dst+ch] += v.frame.Data[min(ch, len(v.frame.Data)-1)][src]
			}
		}
		if ve <= to {
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
			continue
		}
		kept = append(kept, v)
	}
	clear(t.voices[len(kept):])
	t.voices = kept
	t.rendered = to
	pcm := audio.FloatToPCM16(mix)
	t.mu.Unlock()

	copy(p, pcm)
	for _, fn := range ended {
		fn()
	}
	return frames * width, nil
}

// Active returns the number of voices not yet finished.
func (t *Timeline) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.voices)
}

// Close stops every voice and makes subsequent reads return io.EOF.
func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.voices = nil
	return nil
}

func (t *Timeline) removeLocked(v *timelineVoice) {
	for i, cur := range t.voices {
		if cur == v {
			t.voices = append(t.voices[:i], t.voices[i+1:]...)
			return
		}
	}
}
