//go:build cgo

package device

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/vango-go/vai-mentor/pkg/core/audio"
	"github.com/vango-go/vai-mentor/pkg/core/capture"
	"github.com/vango-go/vai-mentor/pkg/core/playback"
)

// speakerBuffer is how much audio oto keeps queued ahead of the device.
const speakerBuffer = 100 * time.Millisecond

// micBufferSeconds bounds unread microphone audio; older samples are dropped.
const micBufferSeconds = 2

type malgoDevices struct {
	logger *zap.Logger
	ctx    *malgo.AllocatedContext

	// oto allows a single context per process, so it is created on first
	// use and shared by every session.
	otoOnce   sync.Once
	otoCtx    *oto.Context
	otoFormat audio.Format
	otoErr    error
}

func newMalgoDevices(logger *zap.Logger) (*malgoDevices, error) {
	cfg := malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}
	ctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &malgoDevices{logger: logger, ctx: ctx}, nil
}

func (d *malgoDevices) OpenMicrophone(_ context.Context, format audio.Format) (capture.Source, error) {
	m := &malgoMic{limit: format.SampleRate * micBufferSeconds}
	m.cond = sync.NewCond(&m.mu)

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.PeriodSizeInMilliseconds = 20

	device, err := malgo.InitDevice(d.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) { m.push(audio.BytesToFloat32LE(input)) },
	})
	if err != nil {
		return nil, fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	m.device = device
	return m, nil
}

func (d *malgoDevices) OpenOutput(_ context.Context, format audio.Format) (playback.Output, error) {
	d.otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: max(format.Channels, 1),
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   speakerBuffer,
		})
		if err != nil {
			d.otoErr = fmt.Errorf("init speaker: %w", err)
			return
		}
		<-ready
		d.otoCtx = ctx
		d.otoFormat = format
	})
	if d.otoErr != nil {
		return nil, d.otoErr
	}
	if format.SampleRate != d.otoFormat.SampleRate || max(format.Channels, 1) != max(d.otoFormat.Channels, 1) {
		return nil, fmt.Errorf("speaker already opened at %d Hz x %d", d.otoFormat.SampleRate, d.otoFormat.Channels)
	}

	t := playback.NewTimeline(format)
	player := d.otoCtx.NewPlayer(t)
	player.Play()
	return &speakerOutput{Timeline: t, player: player}, nil
}

func (d *malgoDevices) Close() error {
	if d.ctx == nil {
		return nil
	}
	err := d.ctx.Uninit()
	d.ctx.Free()
	d.ctx = nil
	return err
}

// speakerOutput lets oto pull PCM from the timeline. The timeline's clock
// advances as the device consumes audio.
type speakerOutput struct {
	*playback.Timeline
	player    *oto.Player
	closeOnce sync.Once
}

func (s *speakerOutput) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.Timeline.Close()
		err = s.player.Close()
	})
	return err
}

// malgoMic buffers samples delivered by the capture callback.
type malgoMic struct {
	device *malgo.Device

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []float32
	limit  int
	closed bool
}

func (m *malgoMic) push(samples []float32) {
	m.mu.Lock()
	m.buf = append(m.buf, samples...)
	if over := len(m.buf) - m.limit; m.limit > 0 && over > 0 {
		m.buf = append(m.buf[:0], m.buf[over:]...)
	}
	m.mu.Unlock()
	m.cond.Signal()
}

func (m *malgoMic) ReadSamples(p []float32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.buf) == 0 && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return 0, io.EOF
	}
	n := copy(p, m.buf)
	m.buf = m.buf[n:]
	return n, nil
}

func (m *malgoMic) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()

	if m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
	}
	return nil
}
