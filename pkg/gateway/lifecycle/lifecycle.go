// Package lifecycle coordinates status server shutdown with the live status
// streams it is serving. Hijacked websocket connections are invisible to
// http.Server.Shutdown, so streams register here and are told to close.
package lifecycle

import (
	"context"
	"sync"
)

// Lifecycle is shared by the readiness check and /v1/live. Once drained,
// /readyz reports 503, new streams are refused, and open streams see
// Draining fire. The zero value is ready to use; a nil Lifecycle never
// drains and tracks nothing.
type Lifecycle struct {
	mu       sync.Mutex
	draining bool
	drain    chan struct{}
	streams  int
	released chan struct{}
}

func (l *Lifecycle) initLocked() {
	if l.drain == nil {
		l.drain = make(chan struct{})
	}
	if l.released == nil {
		l.released = make(chan struct{})
	}
}

// Drain starts shutdown. It is idempotent.
func (l *Lifecycle) Drain() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.initLocked()
	if !l.draining {
		l.draining = true
		close(l.drain)
	}
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.draining
}

// Draining is closed by Drain. For a nil Lifecycle it never fires.
func (l *Lifecycle) Draining() <-chan struct{} {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.initLocked()
	return l.drain
}

// Track registers an open stream. It reports false once draining has
// started; otherwise the caller must call release when the stream ends.
func (l *Lifecycle) Track() (release func(), ok bool) {
	if l == nil {
		return func() {}, true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.draining {
		return nil, false
	}
	l.initLocked()
	l.streams++

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.streams--
			close(l.released)
			l.released = make(chan struct{})
		})
	}, true
}

// Active returns the number of tracked streams.
func (l *Lifecycle) Active() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streams
}

// Wait blocks until every tracked stream has been released or ctx is done.
func (l *Lifecycle) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	for {
		l.mu.Lock()
		l.initLocked()
		if l.streams == 0 {
			l.mu.Unlock()
			return nil
		}
		released := l.released
		l.mu.Unlock()

		select {
		case <-released:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
