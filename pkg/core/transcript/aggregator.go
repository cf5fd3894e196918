// Package transcript accumulates partial user and model transcriptions into
// committed conversational turns.
package transcript

import (
	"strings"
	"sync"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// Turn is one committed utterance. Turns are never mutated after commit.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Aggregator holds the committed transcript plus the two pending buffers that
// grow while a turn is in progress.
type Aggregator struct {
	mu        sync.Mutex
	committed []Turn
	userText  string
	modelText string
}

// NewAggregator returns an aggregator seeded with an existing transcript.
func NewAggregator(initial []Turn) *Aggregator {
	a := &Aggregator{committed: make([]Turn, 0, len(initial)+8)}
	a.committed = append(a.committed, initial...)
	return a
}

// AppendUserPartial adds a fragment to the pending user text and returns the
// updated buffer.
func (a *Aggregator) AppendUserPartial(text string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userText += text
	return a.userText
}

// AppendModelPartial adds a fragment to the pending model text and returns
// the updated buffer.
func (a *Aggregator) AppendModelPartial(text string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modelText += text
	return a.modelText
}

// CommitTurn appends the trimmed pending texts as turns (user first, then
// model; empty ones are skipped) and clears both buffers. It returns a copy
// of the committed transcript and whether any turn was appended.
func (a *Aggregator) CommitTurn() ([]Turn, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	user := strings.TrimSpace(a.userText)
	model := strings.TrimSpace(a.modelText)
	a.userText = ""
	a.modelText = ""

	changed := false
	if user != "" {
		a.committed = append(a.committed, Turn{Speaker: SpeakerUser, Text: user})
		changed = true
	}
	if model != "" {
		a.committed = append(a.committed, Turn{Speaker: SpeakerModel, Text: model})
		changed = true
	}
	return a.snapshotLocked(), changed
}

// ResetPending drops both pending buffers without committing them.
func (a *Aggregator) ResetPending() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userText = ""
	a.modelText = ""
}

// Pending returns the in-progress user and model texts.
func (a *Aggregator) Pending() (user, model string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userText, a.modelText
}

// Transcript returns a copy of the committed turns.
func (a *Aggregator) Transcript() []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Replace swaps the committed transcript, e.g. after loading history.
func (a *Aggregator) Replace(turns []Turn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.committed = append(a.committed[:0:0], turns...)
}

// Clear empties the committed transcript and both pending buffers.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.committed = a.committed[:0:0]
	a.userText = ""
	a.modelText = ""
}

func (a *Aggregator) snapshotLocked() []Turn {
	out := make([]Turn, len(a.committed))
	copy(out, a.committed)
	return out
}
