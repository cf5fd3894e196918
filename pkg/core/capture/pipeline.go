// Package capture slices a live microphone stream into fixed-size frames,
// encodes them, and hands each one to the remote session.
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/vango-go/vai-mentor/pkg/core/audio"
	"github.com/vango-go/vai-mentor/pkg/core/remote"
)

// Source is a live mono stream of float samples in [-1, 1]. ReadSamples
// blocks until at least one sample is available; it returns io.EOF (or
// another error) once the stream has been released.
type Source interface {
	ReadSamples(buf []float32) (int, error)
	Close() error
}

// EmitFunc receives each encoded frame. It must not block.
type EmitFunc func(remote.Media)

// LevelFunc observes the RMS level of each emitted frame.
type LevelFunc func(rms float64)

// Config controls framing.
type Config struct {
	// FrameSize is the number of samples per emitted frame. Default: 4096.
	FrameSize int
	// Format is the capture format; only SampleRate is used for the MIME type.
	Format audio.Format
	// OnLevel is optional.
	OnLevel LevelFunc
}

// Pipeline reads a Source on its own goroutine and emits one frame per
// FrameSize samples, in capture order.
type Pipeline struct {
	src    Source
	emit   EmitFunc
	cfg    Config
	mime   string
	logger *zap.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	frames  int64
	err     error

	done chan struct{}
}

// New returns a pipeline that is not yet running.
func New(src Source, emit EmitFunc, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = audio.DefaultFrameSize
	}
	if cfg.Format.SampleRate <= 0 {
		cfg.Format = audio.InputFormat()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		src:    src,
		emit:   emit,
		cfg:    cfg,
		mime:   cfg.Format.MIMEType(),
		logger: logger.With(zap.String("component", "capture")),
		done:   make(chan struct{}),
	}
}

// Start begins reading the source. Calling Start more than once, or after
// Stop, returns an error.
func (p *Pipeline) Start() error {
	if p == nil || p.src == nil || p.emit == nil {
		return fmt.Errorf("capture: pipeline needs a source and an emit func")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return fmt.Errorf("capture: pipeline already started")
	}
	p.started = true
	go p.run()
	return nil
}

// Stop disconnects the pipeline from its source. No frame is emitted after
// Stop returns. The source is left open; its owner releases it.
func (p *Pipeline) Stop() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

// Done is closed when the read loop has exited.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Frames returns the number of frames emitted so far.
func (p *Pipeline) Frames() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// Err returns the source failure that ended the read loop, if any.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Pipeline) run() {
	defer close(p.done)

	frame := make([]float32, 0, p.cfg.FrameSize)
	buf := make([]float32, p.cfg.FrameSize)
	for {
		n, err := p.src.ReadSamples(buf)
		for off := 0; off < n; {
			take := min(p.cfg.FrameSize-len(frame), n-off)
			frame = append(frame, buf[off:off+take]...)
			off += take
			if len(frame) == p.cfg.FrameSize {
				if !p.emitFrame(frame) {
					return
				}
				frame = frame[:0]
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !p.isStopped() {
				p.mu.Lock()
				p.err = err
				p.mu.Unlock()
				p.logger.Warn("microphone read failed", zap.Error(err))
			}
			return
		}
		if p.isStopped() {
			return
		}
	}
}

func (p *Pipeline) emitFrame(samples []float32) bool {
	pcm := audio.FloatToPCM16(samples)
	media := remote.Media{Data: audio.EncodeSamples(pcm), MIMEType: p.mime}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.emit(media)
	p.frames++
	if p.cfg.OnLevel != nil {
		p.cfg.OnLevel(audio.CalculateRMSEnergy(pcm))
	}
	return true
}

func (p *Pipeline) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
