package handlers

import (
	"context"
	"strings"
	"sync"

	"github.com/vango-go/vai-mentor/pkg/core"
	"github.com/vango-go/vai-mentor/pkg/core/live"
	"github.com/vango-go/vai-mentor/pkg/core/mentor"
	"github.com/vango-go/vai-mentor/pkg/core/transcript"
)

type fakeVoice struct {
	mu       sync.Mutex
	snap     live.Snapshot
	startErr error
	subs     []chan live.Snapshot
	starts   int
	startCtx context.Context
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{snap: live.Snapshot{
		State:       live.StateIdle,
		Status:      live.StatusIdle,
		Personality: mentor.DefaultID,
		Transcript:  []transcript.Turn{{Speaker: transcript.SpeakerUser, Text: "hi"}},
	}}
}

func (f *fakeVoice) set(mutate func(*live.Snapshot)) {
	f.mu.Lock()
	mutate(&f.snap)
	snap := f.snap
	subs := append([]chan live.Snapshot(nil), f.subs...)
	f.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (f *fakeVoice) Start(ctx context.Context) error {
	f.mu.Lock()
	f.starts++
	f.startCtx = ctx
	err := f.startErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if f.Snapshot().State != live.StateIdle {
		return core.NewInvalidStateError("a session is already active")
	}
	f.set(func(s *live.Snapshot) {
		s.State = live.StateConnecting
		s.Status = live.StatusConnecting
	})
	return nil
}

func (f *fakeVoice) Stop() {
	f.set(func(s *live.Snapshot) {
		s.State = live.StateIdle
		s.Status = live.StatusEnded
	})
}

func (f *fakeVoice) ClearHistory(context.Context) bool {
	if f.Snapshot().State != live.StateIdle {
		return false
	}
	f.set(func(s *live.Snapshot) { s.Transcript = nil })
	return true
}

func (f *fakeVoice) SetPersonality(id string) error {
	p, err := mentor.Lookup(id)
	if err != nil {
		return core.NewInvalidRequestError(err.Error())
	}
	if f.Snapshot().State != live.StateIdle {
		return core.NewInvalidStateError("personality can only change while idle")
	}
	f.set(func(s *live.Snapshot) { s.Personality = p.ID })
	return nil
}

func (f *fakeVoice) Snapshot() live.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeVoice) Subscribe() (<-chan live.Snapshot, func()) {
	ch := make(chan live.Snapshot, 8)
	f.mu.Lock()
	ch <- f.snap
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, c := range f.subs {
			if c == ch {
				f.subs = append(f.subs[:i], f.subs[i+1:]...)
				return
			}
		}
	}
}

type fakeChat struct {
	mu       sync.Mutex
	messages []transcript.Turn
	deltas   []string
	err      error
}

func (f *fakeChat) Send(_ context.Context, text string, onDelta func(string)) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", core.NewInvalidRequestError("message must not be empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, transcript.Turn{Speaker: transcript.SpeakerUser, Text: text})
	for _, d := range f.deltas {
		if onDelta != nil {
			onDelta(d)
		}
	}
	if f.err != nil {
		f.messages = append(f.messages, transcript.Turn{Speaker: transcript.SpeakerModel, Text: "Sorry"})
		return "Sorry", f.err
	}
	reply := strings.Join(f.deltas, "")
	f.messages = append(f.messages, transcript.Turn{Speaker: transcript.SpeakerModel, Text: reply})
	return reply, nil
}

func (f *fakeChat) Messages() []transcript.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transcript.Turn(nil), f.messages...)
}

func (f *fakeChat) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = []transcript.Turn{{Speaker: transcript.SpeakerModel, Text: "greeting"}}
	return nil
}
