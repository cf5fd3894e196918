package live

import (
	"context"

	"github.com/vango-go/vai-mentor/pkg/core/audio"
	"github.com/vango-go/vai-mentor/pkg/core/capture"
	"github.com/vango-go/vai-mentor/pkg/core/playback"
	"github.com/vango-go/vai-mentor/pkg/core/transcript"
)

// Devices opens the local audio endpoints for one session. Both returned
// handles are released by the controller through their Close methods.
type Devices interface {
	OpenMicrophone(ctx context.Context, format audio.Format) (capture.Source, error)
	OpenOutput(ctx context.Context, format audio.Format) (playback.Output, error)
}

// SnapshotVersion is the schema version of Snapshot as served to clients.
// Bump it when a field changes meaning or is removed.
const SnapshotVersion = 1

// Snapshot is the status surface: everything a UI renders. Transcript is
// shared between snapshots and must not be modified.
type Snapshot struct {
	State        State             `json:"state"`
	Status       string            `json:"status"`
	SessionID    string            `json:"session_id,omitempty"`
	Personality  string            `json:"personality"`
	UserPartial  string            `json:"user_partial"`
	ModelPartial string            `json:"model_partial"`
	Transcript   []transcript.Turn `json:"transcript"`
	InFlight     int               `json:"in_flight"`
	MicLevel     float64           `json:"mic_level"`
}

// subscriberBuffer bounds how far a slow subscriber may lag; older
// snapshots are discarded first.
const subscriberBuffer = 8

type subscriber struct {
	ch chan Snapshot
}

// offer delivers snap, dropping the oldest queued snapshot when full.
func (s *subscriber) offer(snap Snapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
