// Package live runs the real-time voice mentor session.
//
// The Controller is the only component that touches both directions of the
// conversation:
//
//	Microphone → capture.Pipeline → remote.Session.SendMedia
//	remote.Session.Events → playback.Scheduler (audio, interruption)
//	                      → transcript.Aggregator (partials, turn complete)
//
// # State Machine
//
//	IDLE → CONNECTING → ACTIVE
//	  ↑         │          │
//	  └─────────┴──────────┘  (Stop, remote close, or any failure)
//
// There is no failure state. Errors are reported through the status text
// and the controller returns to IDLE, ready to Start again.
//
// # Concurrency
//
// Remote events for a session are consumed by one goroutine in arrival
// order. Capture runs on its own goroutine and only calls the non-blocking
// SendMedia. Events that arrive after a session has been torn down are
// dropped because they no longer belong to the controller's current session.
//
// # Persistence
//
// The committed transcript is written to the history store after every
// turn that changes it; an empty transcript removes the key. Store failures
// are logged and the conversation continues in memory.
package live
