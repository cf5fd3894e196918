package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/vango-go/vai-mentor/pkg/core/audio"
	"github.com/vango-go/vai-mentor/pkg/core/history"
	"github.com/vango-go/vai-mentor/pkg/core/mentor"
)

// State is the controller's lifecycle state.
type State int

const (
	// StateIdle holds no resources. Start is the only valid transition.
	StateIdle State = iota
	// StateConnecting has acquired devices and is waiting for the remote
	// session to acknowledge setup.
	StateConnecting
	// StateActive streams microphone frames and plays model speech.
	StateActive
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(text))) {
	case "IDLE":
		*s = StateIdle
	case "CONNECTING":
		*s = StateConnecting
	case "ACTIVE":
		*s = StateActive
	default:
		return fmt.Errorf("unknown session state %q", text)
	}
	return nil
}

// Status texts shown to the user.
const (
	StatusIdle          = "Idle. Press Start to connect."
	StatusConnecting    = "Connecting..."
	StatusListening     = "Connected and listening..."
	StatusEnded         = "Session ended. Press Start to connect again."
	StatusMicrophoneErr = "Error: Could not access microphone."
)

// Config holds everything the controller needs to open a session.
type Config struct {
	// Model is the live model. Empty uses the transport default.
	Model string `json:"model" yaml:"model"`

	// VoiceName is the prebuilt output voice. Default: "Zephyr".
	VoiceName string `json:"voice_name" yaml:"voice_name"`

	// Personality is the initial mentor personality ID. Default: analytical.
	Personality string `json:"personality" yaml:"personality"`

	// FrameSize is the number of microphone samples per outbound frame.
	// Default: 4096.
	FrameSize int `json:"frame_size" yaml:"frame_size"`

	// HistoryKey is the store key for the transcript.
	HistoryKey string `json:"history_key" yaml:"history_key"`

	// PersistTimeout bounds each history write made during a session.
	// Default: 5s.
	PersistTimeout time.Duration `json:"persist_timeout" yaml:"persist_timeout"`

	// InputFormat is the microphone format. Default: 16 kHz mono.
	InputFormat audio.Format `json:"-" yaml:"-"`

	// OutputFormat is the speaker format. Default: 24 kHz mono.
	OutputFormat audio.Format `json:"-" yaml:"-"`
}

// DefaultConfig returns the configuration used by the voice mentor.
func DefaultConfig() Config {
	return Config{
		VoiceName:      "Zephyr",
		Personality:    mentor.DefaultID,
		FrameSize:      audio.DefaultFrameSize,
		HistoryKey:     history.VoiceKey,
		PersistTimeout: 5 * time.Second,
		InputFormat:    audio.InputFormat(),
		OutputFormat:   audio.OutputFormat(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.VoiceName) == "" {
		c.VoiceName = d.VoiceName
	}
	if strings.TrimSpace(c.Personality) == "" {
		c.Personality = d.Personality
	}
	if c.FrameSize <= 0 {
		c.FrameSize = d.FrameSize
	}
	if strings.TrimSpace(c.HistoryKey) == "" {
		c.HistoryKey = d.HistoryKey
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = d.PersistTimeout
	}
	if c.InputFormat.SampleRate <= 0 {
		c.InputFormat = d.InputFormat
	}
	if c.OutputFormat.SampleRate <= 0 {
		c.OutputFormat = d.OutputFormat
	}
	return c
}
