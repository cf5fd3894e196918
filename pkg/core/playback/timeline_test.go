package playback

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-mentor/pkg/core/audio"
)

func constFrame(samples int, v float32) *audio.Frame {
	data := make([]float32, samples)
	for i := range data {
		data[i] = v
	}
	return &audio.Frame{SampleRate: audio.OutputSampleRate, Channels: 1, Data: [][]float32{data}}
}

func readSamples(t *testing.T, tl *Timeline, n int) []int16 {
	t.Helper()
	buf := make([]byte, n*2)
	got, err := tl.Read(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), got)
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return out
}

func TestTimeline_ClockAdvancesWithReads(t *testing.T) {
	tl := NewTimeline(audio.OutputFormat())
	assert.Equal(t, 0.0, tl.CurrentTime())

	readSamples(t, tl, 2400)
	assert.InDelta(t, 0.1, tl.CurrentTime(), 1e-9)
}

func TestTimeline_RendersVoiceAtItsStartOffset(t *testing.T) {
	tl := NewTimeline(audio.OutputFormat())

	var ended atomic.Int32
	_, err := tl.Play(constFrame(4, 0.5), 2.0/24000.0, func() { ended.Add(1) })
	require.NoError(t, err)

	got := readSamples(t, tl, 8)
	assert.Equal(t, []int16{0, 0, 16384, 16384, 16384, 16384, 0, 0}, got)
	assert.Equal(t, int32(1), ended.Load())
	assert.Equal(t, 0, tl.Active())
}

func TestTimeline_VoiceSpanningReads(t *testing.T) {
	tl := NewTimeline(audio.OutputFormat())

	var ended atomic.Int32
	_, err := tl.Play(constFrame(6, 0.25), 0, func() { ended.Add(1) })
	require.NoError(t, err)

	first := readSamples(t, tl, 4)
	assert.Equal(t, []int16{8192, 8192, 8192, 8192}, first)
	assert.Equal(t, int32(0), ended.Load())

	second := readSamples(t, tl, 4)
	assert.Equal(t, []int16{8192, 8192, 0, 0}, second)
	assert.Equal(t, int32(1), ended.Load())
}

func TestTimeline_PastStartBeginsImmediately(t *testing.T) {
	tl := NewTimeline(audio.OutputFormat())
	readSamples(t, tl, 10)

	_, err := tl.Play(constFrame(2, 0.5), 0, nil)
	require.NoError(t, err)

	got := readSamples(t, tl, 3)
	assert.Equal(t, []int16{16384, 16384, 0}, got)
}

func TestTimeline_StopSilencesWithoutEndedCallback(t *testing.T) {
	tl := NewTimeline(audio.OutputFormat())

	var ended atomic.Int32
	v, err := tl.Play(constFrame(100, 0.5), 0, func() { ended.Add(1) })
	require.NoError(t, err)
	v.Stop()
	v.Stop()

	got := readSamples(t, tl, 4)
	assert.Equal(t, []int16{0, 0, 0, 0}, got)
	assert.Equal(t, int32(0), ended.Load())
}

func TestTimeline_MixesOverlappingVoicesWithSaturation(t *testing.T) {
	tl := NewTimeline(audio.OutputFormat())
	_, _ = tl.Play(constFrame(2, 0.75), 0, nil)
	_, _ = tl.Play(constFrame(2, 0.75), 0, nil)

	got := readSamples(t, tl, 2)
	assert.Equal(t, []int16{32767, 32767}, got)
}

func TestTimeline_RejectsMismatchedRate(t *testing.T) {
	tl := NewTimeline(audio.OutputFormat())
	frame := constFrame(2, 0.1)
	frame.SampleRate = 16000
	_, err := tl.Play(frame, 0, nil)
	assert.Error(t, err)
}

func TestTimeline_CloseEndsReads(t *testing.T) {
	tl := NewTimeline(audio.OutputFormat())
	_, _ = tl.Play(constFrame(10, 0.5), 0, nil)
	require.NoError(t, tl.Close())

	_, err := tl.Read(make([]byte, 4))
	assert.ErrorIs(t, err, io.EOF)

	_, err = tl.Play(constFrame(1, 0.5), 0, nil)
	assert.ErrorIs(t, err, ErrTimelineClosed)
}

func TestTimeline_WithScheduler(t *testing.T) {
	tl := NewTimeline(audio.OutputFormat())
	s := NewScheduler(tl)

	_, err := s.ScheduleFrame(constFrame(3, 0.5))
	require.NoError(t, err)
	start, err := s.ScheduleFrame(constFrame(3, -0.5))
	require.NoError(t, err)
	assert.InDelta(t, 3.0/24000.0, start, 1e-12)

	got := readSamples(t, tl, 7)
	assert.Equal(t, []int16{16384, 16384, 16384, -16384, -16384, -16384, 0}, got)
	assert.Equal(t, 0, s.InFlight())
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Len()
}

func TestDrain_PullsUntilCancelled(t *testing.T) {
	tl := NewTimeline(audio.OutputFormat())
	sink := &lockedBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Drain(ctx, tl, sink, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return sink.Len() > 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Drain did not return after cancel")
	}
	assert.Greater(t, tl.CurrentTime(), 0.0)
	assert.Equal(t, 0, sink.Len()%2)
}

func TestDrain_ReturnsWhenTimelineCloses(t *testing.T) {
	tl := NewTimeline(audio.OutputFormat())
	done := make(chan error, 1)
	go func() { done <- Drain(context.Background(), tl, io.Discard, 5*time.Millisecond) }()

	require.NoError(t, tl.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Drain did not return after Close")
	}
}
