package capture

import (
	"io"
	"sync"
	"time"
)

// Silence is a Source that produces zero samples in real time. It stands in
// for a microphone when running headless.
type Silence struct {
	rate int

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
	last    time.Time
}

// NewSilence returns a silent source at sampleRate.
func NewSilence(sampleRate int) *Silence {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Silence{rate: sampleRate, closeCh: make(chan struct{}), last: time.Now()}
}

// ReadSamples waits long enough for len(buf) samples to elapse, then fills
// buf with zeros.
func (s *Silence) ReadSamples(buf []float32) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	wait := time.Duration(len(buf)) * time.Second / time.Duration(s.rate)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.EOF
	}
	due := s.last.Add(wait)
	s.last = due
	s.mu.Unlock()

	timer := time.NewTimer(time.Until(due))
	defer timer.Stop()
	select {
	case <-s.closeCh:
		return 0, io.EOF
	case <-timer.C:
	}
	clear(buf)
	return len(buf), nil
}

// Close releases the source; blocked reads return io.EOF.
func (s *Silence) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.closeCh)
	}
	return nil
}
