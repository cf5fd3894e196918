// Package playback schedules decoded speech frames back to back on an output
// clock and cancels everything queued when the model is interrupted.
package playback

import (
	"fmt"
	"math"
	"sync"

	"github.com/vango-go/vai-mentor/pkg/core/audio"
)

// Output is an audio output with its own monotonic clock, in seconds.
// Play must not invoke onEnded synchronously, and onEnded must be called
// without holding any lock that Voice.Stop acquires.
type Output interface {
	CurrentTime() float64
	Play(frame *audio.Frame, at float64, onEnded func()) (Voice, error)
	Close() error
}

// Voice is one scheduled or playing frame.
type Voice interface {
	Stop()
}

// Scheduler places frames gaplessly in arrival order.
type Scheduler struct {
	out Output

	mu       sync.Mutex
	cursor   float64
	nextID   uint64
	inflight map[uint64]Voice
}

// NewScheduler returns a scheduler bound to out.
func NewScheduler(out Output) *Scheduler {
	return &Scheduler{
		out:      out,
		inflight: make(map[uint64]Voice),
	}
}

// ScheduleFrame starts frame at max(cursor, now) and advances the cursor by
// the frame's duration. It returns the start time on the output clock.
func (s *Scheduler) ScheduleFrame(frame *audio.Frame) (float64, error) {
	if s == nil || s.out == nil {
		return 0, fmt.Errorf("playback: scheduler has no output")
	}
	if frame == nil {
		return 0, fmt.Errorf("playback: nil frame")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := math.Max(s.cursor, s.out.CurrentTime())
	id := s.nextID
	s.nextID++

	voice, err := s.out.Play(frame, start, func() { s.ended(id) })
	if err != nil {
		return 0, fmt.Errorf("playback: start voice: %w", err)
	}
	s.inflight[id] = voice
	s.cursor = start + frame.Duration()
	return start, nil
}

// Interrupt stops and forgets every in-flight voice and resets the cursor.
func (s *Scheduler) Interrupt() {
	if s == nil {
		return
	}
	s.mu.Lock()
	voices := make([]Voice, 0, len(s.inflight))
	for id, v := range s.inflight {
		voices = append(voices, v)
		delete(s.inflight, id)
	}
	s.cursor = 0
	s.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
}

// InFlight returns the number of voices scheduled or playing.
func (s *Scheduler) InFlight() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Cursor returns the time at which the next frame would start if it arrived
// before the output clock passes it.
func (s *Scheduler) Cursor() float64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Scheduler) ended(id uint64) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}
