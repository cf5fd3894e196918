package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vango-go/vai-mentor/pkg/core"
)

// Frame is a decoded, playable block of audio: per-channel float samples in [-1, 1].
type Frame struct {
	SampleRate int
	Channels   int
	Data       [][]float32
}

// Len returns the number of sample frames (samples per channel).
func (f *Frame) Len() int {
	if f == nil || len(f.Data) == 0 {
		return 0
	}
	return len(f.Data[0])
}

// Duration returns the playback length in seconds.
func (f *Frame) Duration() float64 {
	if f == nil || f.SampleRate <= 0 {
		return 0
	}
	return float64(f.Len()) / float64(f.SampleRate)
}

// EncodeSamples returns the standard base64 text form of raw PCM bytes.
func EncodeSamples(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeSamples is the inverse of EncodeSamples.
func DecodeSamples(text string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, core.NewDecodeError("audio payload is not valid base64", err)
	}
	return pcm, nil
}

// DecodeToAudioFrames interprets pcm as interleaved signed 16-bit little-endian
// samples and returns a playable frame with samples normalized by 1/32768.
func DecodeToAudioFrames(pcm []byte, sampleRate, channels int) (*Frame, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, core.NewUnsupportedFormatError(fmt.Sprintf("invalid layout: rate=%d channels=%d", sampleRate, channels))
	}
	width := 2 * channels
	if len(pcm)%width != 0 {
		return nil, core.NewUnsupportedFormatError(fmt.Sprintf("pcm length %d is not a multiple of frame width %d", len(pcm), width))
	}

	n := len(pcm) / width
	frame := &Frame{
		SampleRate: sampleRate,
		Channels:   channels,
		Data:       make([][]float32, channels),
	}
	for ch := range frame.Data {
		frame.Data[ch] = make([]float32, n)
	}
	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[off:]))
			frame.Data[ch][i] = float32(sample) / 32768.0
		}
	}
	return frame, nil
}

// FloatToPCM16 converts float samples to signed 16-bit little-endian PCM as
// round(f*32767). Samples outside [-1, 1] saturate at full scale.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		switch {
		case math.IsNaN(v):
			v = 0
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(math.Round(v*32767))))
	}
	return out
}

// BytesToFloat32LE reinterprets little-endian IEEE-754 float32 bytes as samples.
// A trailing partial sample is ignored.
func BytesToFloat32LE(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
