package audio

import "strconv"

const (
	// InputSampleRate is the rate microphone audio is captured and sent at.
	InputSampleRate = 16000
	// OutputSampleRate is the rate synthesized speech arrives at.
	OutputSampleRate = 24000
	// DefaultFrameSize is the number of samples per outbound capture frame.
	DefaultFrameSize = 4096
)

// Format specifies audio format parameters.
type Format struct {
	// SampleRate in Hz.
	SampleRate int `json:"sample_rate" yaml:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels" yaml:"channels"`

	// BitsPerSample of the wire encoding; 16 for PCM16.
	BitsPerSample int `json:"bits_per_sample" yaml:"bits_per_sample"`
}

// InputFormat is the capture format: 16 kHz mono PCM16.
func InputFormat() Format {
	return Format{SampleRate: InputSampleRate, Channels: 1, BitsPerSample: 16}
}

// OutputFormat is the playback format: 24 kHz mono PCM16.
func OutputFormat() Format {
	return Format{SampleRate: OutputSampleRate, Channels: 1, BitsPerSample: 16}
}

// BytesPerSecond returns the audio byte rate.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * (f.BitsPerSample / 8)
}

// DurationMs returns the duration in milliseconds for the given byte count.
func (f Format) DurationMs(bytes int) int {
	if f.BytesPerSecond() == 0 {
		return 0
	}
	return (bytes * 1000) / f.BytesPerSecond()
}

// BytesForDurationMs returns the byte count for the given duration in milliseconds.
func (f Format) BytesForDurationMs(ms int) int {
	return (f.BytesPerSecond() * ms) / 1000
}

// MIMEType is the content type the remote endpoint expects for this format,
// e.g. "audio/pcm;rate=16000".
func (f Format) MIMEType() string {
	return "audio/pcm;rate=" + strconv.Itoa(f.SampleRate)
}
