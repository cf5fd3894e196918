package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-mentor/pkg/core"
)

func pcmFromSamples(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestProperty_EncodeDecodeRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("DecodeSamples(EncodeSamples(b)) == b", prop.ForAll(
		func(b []byte) bool {
			decoded, err := DecodeSamples(EncodeSamples(b))
			if err != nil {
				t.Logf("decode failed: %v", err)
				return false
			}
			return bytes.Equal(decoded, b)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}

func TestDecodeSamples_InvalidBase64(t *testing.T) {
	_, err := DecodeSamples("not base64!!")
	require.Error(t, err)
	assert.True(t, core.IsType(err, core.ErrDecode))
}

func TestEncodeSamples_Empty(t *testing.T) {
	assert.Equal(t, "", EncodeSamples(nil))
	decoded, err := DecodeSamples("")
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestDecodeToAudioFrames_Mono(t *testing.T) {
	pcm := pcmFromSamples(0, 16384, -32768, 32767)

	frame, err := DecodeToAudioFrames(pcm, OutputSampleRate, 1)
	require.NoError(t, err)

	require.Len(t, frame.Data, 1)
	require.Equal(t, 4, frame.Len())
	assert.InDelta(t, 0.0, frame.Data[0][0], 1e-6)
	assert.InDelta(t, 0.5, frame.Data[0][1], 1e-6)
	assert.InDelta(t, -1.0, frame.Data[0][2], 1e-6)
	assert.InDelta(t, 32767.0/32768.0, frame.Data[0][3], 1e-6)
	assert.InDelta(t, 4.0/24000.0, frame.Duration(), 1e-9)
}

func TestDecodeToAudioFrames_StereoDeinterleaves(t *testing.T) {
	pcm := pcmFromSamples(16384, -16384, 8192, -8192)

	frame, err := DecodeToAudioFrames(pcm, 48000, 2)
	require.NoError(t, err)

	require.Len(t, frame.Data, 2)
	assert.Equal(t, []float32{0.5, 0.25}, frame.Data[0])
	assert.Equal(t, []float32{-0.5, -0.25}, frame.Data[1])
}

func TestDecodeToAudioFrames_UnsupportedLayouts(t *testing.T) {
	tests := []struct {
		name       string
		pcm        []byte
		sampleRate int
		channels   int
	}{
		{"odd length", []byte{1, 2, 3}, 24000, 1},
		{"partial stereo frame", pcmFromSamples(1, 2, 3), 24000, 2},
		{"zero rate", pcmFromSamples(1), 0, 1},
		{"zero channels", pcmFromSamples(1), 24000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeToAudioFrames(tt.pcm, tt.sampleRate, tt.channels)
			require.Error(t, err)
			assert.True(t, core.IsType(err, core.ErrUnsupportedFormat), "err=%v", err)
		})
	}
}

func TestFloatToPCM16(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"full scale", 1, 32767},
		{"negative full scale", -1, -32767},
		{"half", 0.5, 16384},
		{"saturates high", 1.7, 32767},
		{"saturates low", -3, -32767},
		{"nan is silence", float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FloatToPCM16([]float32{tt.in})
			require.Len(t, out, 2)
			got := int16(binary.LittleEndian.Uint16(out))
			if got != tt.want {
				t.Errorf("FloatToPCM16(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestFloatToPCM16_DecodeIsNearIdentity(t *testing.T) {
	in := []float32{-0.75, -0.1, 0, 0.1, 0.75}
	frame, err := DecodeToAudioFrames(FloatToPCM16(in), InputSampleRate, 1)
	require.NoError(t, err)
	for i, v := range in {
		assert.InDelta(t, v, frame.Data[0][i], 1.0/16384, "index %d", i)
	}
}

func TestBytesToFloat32LE(t *testing.T) {
	b := make([]byte, 9)
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(0.25))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(-1))
	b[8] = 0xff

	assert.Equal(t, []float32{0.25, -1}, BytesToFloat32LE(b))
}
