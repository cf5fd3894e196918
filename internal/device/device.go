// Package device opens the local microphone and speaker for a live session.
//
// Backends:
//   - malgo: miniaudio capture (float32) and an oto speaker pulling the
//     playback timeline; needs cgo
//   - ffmpeg: ffmpeg subprocess capture and an ffplay sink fed every tick
//   - none: a silent microphone and a simulated speaker, for headless runs
package device

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vango-go/vai-mentor/pkg/core/audio"
	"github.com/vango-go/vai-mentor/pkg/core/capture"
	"github.com/vango-go/vai-mentor/pkg/core/playback"
)

// Backend names a device implementation.
type Backend string

const (
	BackendMalgo  Backend = "malgo"
	BackendFFmpeg Backend = "ffmpeg"
	BackendNone   Backend = "none"
)

// Devices opens one microphone and one output per session. The context only
// bounds opening; the returned handles live until closed.
type Devices interface {
	OpenMicrophone(ctx context.Context, format audio.Format) (capture.Source, error)
	OpenOutput(ctx context.Context, format audio.Format) (playback.Output, error)
	Close() error
}

// Open returns the devices for backend.
func Open(backend Backend, logger *zap.Logger) (Devices, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "device"), zap.String("backend", string(backend)))
	switch Backend(strings.ToLower(strings.TrimSpace(string(backend)))) {
	case BackendMalgo:
		return newMalgoDevices(logger)
	case BackendFFmpeg:
		return newFFmpegDevices(logger)
	case BackendNone, "":
		return &noneDevices{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q (want malgo, ffmpeg, or none)", backend)
	}
}

// drainedOutput is a timeline whose PCM is pushed to a sink by a drain
// goroutine. Closing it stops the drain and closes the sink.
type drainedOutput struct {
	*playback.Timeline

	cancel    context.CancelFunc
	done      chan struct{}
	closeSink func() error
	closeOnce sync.Once
	closeErr  error
}

func startDrained(t *playback.Timeline, sink io.Writer, closeSink func() error, logger *zap.Logger) *drainedOutput {
	ctx, cancel := context.WithCancel(context.Background())
	o := &drainedOutput{
		Timeline:  t,
		cancel:    cancel,
		done:      make(chan struct{}),
		closeSink: closeSink,
	}
	go func() {
		defer close(o.done)
		if err := playback.Drain(ctx, t, sink, playback.DefaultTick); err != nil {
			logger.Warn("audio output stopped", zap.Error(err))
		}
	}()
	return o
}

func (o *drainedOutput) Close() error {
	o.closeOnce.Do(func() {
		o.cancel()
		_ = o.Timeline.Close()
		<-o.done
		if o.closeSink != nil {
			o.closeErr = o.closeSink()
		}
	})
	return o.closeErr
}
