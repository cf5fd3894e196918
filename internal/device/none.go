package device

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/vango-go/vai-mentor/pkg/core/audio"
	"github.com/vango-go/vai-mentor/pkg/core/capture"
	"github.com/vango-go/vai-mentor/pkg/core/playback"
)

// noneDevices records nothing and plays nothing, but keeps real-time clocks
// so sessions behave as they would with hardware.
type noneDevices struct {
	logger *zap.Logger
}

func (d *noneDevices) OpenMicrophone(_ context.Context, format audio.Format) (capture.Source, error) {
	return capture.NewSilence(format.SampleRate), nil
}

func (d *noneDevices) OpenOutput(_ context.Context, format audio.Format) (playback.Output, error) {
	return startDrained(playback.NewTimeline(format), io.Discard, nil, d.logger), nil
}

func (d *noneDevices) Close() error { return nil }
