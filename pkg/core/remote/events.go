package remote

// Event is an inbound occurrence on a live session.
type Event interface {
	remoteEventType() string
}

// Opened acknowledges that the session setup was accepted.
type Opened struct{}

func (Opened) remoteEventType() string { return "opened" }

// InputTranscript is an incremental fragment of what the user said.
type InputTranscript struct{ Text string }

func (InputTranscript) remoteEventType() string { return "input_transcript" }

// OutputTranscript is an incremental fragment of what the model said.
type OutputTranscript struct{ Text string }

func (OutputTranscript) remoteEventType() string { return "output_transcript" }

// AudioChunk is a base64-encoded PCM16 block of synthesized speech.
type AudioChunk struct {
	Data     string
	MIMEType string
}

func (AudioChunk) remoteEventType() string { return "audio_chunk" }

// TurnComplete marks the end of the current exchange.
type TurnComplete struct{}

func (TurnComplete) remoteEventType() string { return "turn_complete" }

// Interrupted reports that the user barged in and queued speech must stop.
type Interrupted struct{}

func (Interrupted) remoteEventType() string { return "interrupted" }

// Closed is the terminal event. Err is nil for a normal closure; otherwise
// it describes the error category.
type Closed struct{ Err error }

func (Closed) remoteEventType() string { return "closed" }

// EventType returns a stable name for logging and metrics.
func EventType(e Event) string {
	if e == nil {
		return ""
	}
	return e.remoteEventType()
}
