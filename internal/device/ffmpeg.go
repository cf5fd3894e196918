package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/vango-go/vai-mentor/pkg/core/audio"
	"github.com/vango-go/vai-mentor/pkg/core/capture"
	"github.com/vango-go/vai-mentor/pkg/core/playback"
)

type ffmpegDevices struct {
	logger *zap.Logger
}

func newFFmpegDevices(logger *zap.Logger) (*ffmpegDevices, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for mic capture (install ffmpeg and ensure it is in PATH)")
	}
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}
	return &ffmpegDevices{logger: logger}, nil
}

func (d *ffmpegDevices) OpenMicrophone(ctx context.Context, format audio.Format) (capture.Source, error) {
	args, err := micFFmpegArgs(runtime.GOOS, format.SampleRate)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg mic capture: %w", err)
	}
	d.logger.Debug("ffmpeg mic capture started", zap.Int("pid", cmd.Process.Pid))
	return &ffmpegMic{cmd: cmd, stdout: stdout}, nil
}

func (d *ffmpegDevices) OpenOutput(_ context.Context, format audio.Format) (playback.Output, error) {
	cmd := exec.Command("ffplay", ffplayArgs(format)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffplay: %w", err)
	}
	closeSink := func() error {
		_ = stdin.Close()
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = cmd.Wait()
		return nil
	}
	return startDrained(playback.NewTimeline(format), stdin, closeSink, d.logger), nil
}

func (d *ffmpegDevices) Close() error { return nil }

func micFFmpegArgs(goos string, sampleRate int) ([]string, error) {
	if sampleRate <= 0 {
		sampleRate = audio.InputSampleRate
	}
	var input []string
	switch goos {
	case "darwin":
		input = []string{"-f", "avfoundation", "-i", ":0"}
	case "linux":
		input = []string{"-f", "pulse", "-i", "default"}
	default:
		return nil, fmt.Errorf("mic capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	args = append(args, "-ac", "1", "-ar", strconv.Itoa(sampleRate), "-f", "f32le", "-")
	return args, nil
}

func ffplayArgs(format audio.Format) []string {
	channels := format.Channels
	if channels <= 0 {
		channels = 1
	}
	return []string{
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(format.SampleRate),
		"-ac", strconv.Itoa(channels),
		"-i", "pipe:0",
	}
}

// ffmpegMic reads f32le samples from an ffmpeg subprocess.
type ffmpegMic struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser

	mu      sync.Mutex
	pending []byte
	raw     []byte

	closeOnce sync.Once
}

func (m *ffmpegMic) ReadSamples(buf []float32) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	want := len(buf)*4 - len(m.pending)
	if cap(m.raw) < want {
		m.raw = make([]byte, want)
	}
	n, err := m.stdout.Read(m.raw[:want])
	m.pending = append(m.pending, m.raw[:n]...)

	whole := len(m.pending) / 4 * 4
	samples := audio.BytesToFloat32LE(m.pending[:whole])
	copy(buf, samples)
	m.pending = append(m.pending[:0], m.pending[whole:]...)
	return len(samples), err
}

func (m *ffmpegMic) Close() error {
	m.closeOnce.Do(func() {
		if m.cmd != nil && m.cmd.Process != nil {
			_ = m.cmd.Process.Kill()
			_ = m.cmd.Wait()
		}
	})
	return nil
}
