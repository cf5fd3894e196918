// Package remote defines the bidirectional live session the voice engine talks
// to: the outbound media path, the inbound event stream, and the dialer that
// opens one.
package remote

import "context"

// Config describes the session requested from the remote model.
type Config struct {
	Model             string
	SystemInstruction string
	VoiceName         string

	// ResponseModalities is normally ["AUDIO"].
	ResponseModalities []string

	InputTranscription  bool
	OutputTranscription bool
}

// Media is one encoded outbound audio frame.
type Media struct {
	Data     string
	MIMEType string
}

// Session is an open live session. SendMedia must not block; Events is closed
// after the terminal Closed event has been delivered.
type Session interface {
	ID() string
	SendMedia(m Media) error
	Events() <-chan Event
	Close() error
}

// Dialer opens live sessions. Dial returns once the transport is connected
// and the session setup has been sent; the Opened event follows on Events.
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Session, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, cfg Config) (Session, error)

// Dial calls f(ctx, cfg).
func (f DialerFunc) Dial(ctx context.Context, cfg Config) (Session, error) {
	return f(ctx, cfg)
}
