// Package chat is the text mentor: a streaming chat with a persisted
// conversation that always opens with the mentor's greeting.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vango-go/vai-mentor/pkg/core"
	"github.com/vango-go/vai-mentor/pkg/core/history"
	"github.com/vango-go/vai-mentor/pkg/core/transcript"
)

const (
	// Greeting is the first message of every fresh conversation.
	Greeting = "Hello! I am Gaia, your strategic AI mentor. How can I help you with your startup today? Feel free to ask about business strategy, brainstorming, or any challenges you're facing."

	// SystemInstruction shapes the text mentor's replies.
	SystemInstruction = "You are Gaia, a wise and experienced mentor for startup founders. Your goal is to provide strategic advice, help brainstorm ideas, and offer guidance on business challenges. Your tone is insightful, calm, and supportive. You do not have access to real-time information from the web. If a user asks for recent news, trends, or specific data, advise them to use the Market Research tool for up-to-date information."

	// FailureReply replaces a reply that could not be generated.
	FailureReply = "Sorry, I encountered an error. Please try again."
)

// Conversation is a running chat with the model.
type Conversation interface {
	// SendStream sends text and calls onDelta with each streamed fragment.
	// It returns the full reply.
	SendStream(ctx context.Context, text string, onDelta func(string)) (string, error)
}

// Starter opens conversations seeded with prior turns.
type Starter interface {
	Start(ctx context.Context, system string, prior []transcript.Turn) (Conversation, error)
}

// Mentor owns the text conversation and its persistence.
type Mentor struct {
	starter Starter
	store   history.Store
	key     string
	logger  *zap.Logger

	mu       sync.Mutex
	conv     Conversation
	messages []transcript.Turn
	busy     bool
}

func greeting() transcript.Turn {
	return transcript.Turn{Speaker: transcript.SpeakerModel, Text: Greeting}
}

// New returns a mentor showing only the greeting until Load is called.
func New(starter Starter, store history.Store, logger *zap.Logger) *Mentor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = history.NewMemoryStore()
	}
	return &Mentor{
		starter:  starter,
		store:    store,
		key:      history.ChatKey,
		logger:   logger.With(zap.String("component", "chat_mentor")),
		messages: []transcript.Turn{greeting()},
	}
}

// Load restores saved messages (falling back to the greeting) and opens a
// conversation seeded with them.
func (m *Mentor) Load(ctx context.Context) error {
	saved, err := history.LoadTranscript(ctx, m.store, m.key)
	if err != nil {
		m.logger.Warn("failed to load conversation history", zap.Error(err))
		saved = nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(saved) > 0 {
		m.messages = saved
	} else {
		m.messages = []transcript.Turn{greeting()}
	}
	conv, err := m.starter.Start(ctx, SystemInstruction, saved)
	if err != nil {
		return fmt.Errorf("start chat: %w", err)
	}
	m.conv = conv
	return nil
}

// Send posts a user message and streams the reply. A failed reply is
// recorded as FailureReply and the error is returned.
func (m *Mentor) Send(ctx context.Context, text string, onDelta func(string)) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", core.NewInvalidRequestError("message must not be empty")
	}

	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return "", core.NewInvalidStateError("a reply is already in progress")
	}
	if m.conv == nil {
		conv, err := m.starter.Start(ctx, SystemInstruction, nil)
		if err != nil {
			m.mu.Unlock()
			return "", fmt.Errorf("start chat: %w", err)
		}
		m.conv = conv
	}
	m.busy = true
	conv := m.conv
	m.messages = append(m.messages, transcript.Turn{Speaker: transcript.SpeakerUser, Text: text})
	m.persistLocked(ctx)
	m.mu.Unlock()

	reply, err := conv.SendStream(ctx, text, onDelta)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false
	if err != nil {
		m.logger.Warn("failed to send message", zap.Error(err))
		m.messages = append(m.messages, transcript.Turn{Speaker: transcript.SpeakerModel, Text: FailureReply})
		m.persistLocked(ctx)
		return FailureReply, err
	}
	m.messages = append(m.messages, transcript.Turn{Speaker: transcript.SpeakerModel, Text: reply})
	m.persistLocked(ctx)
	return reply, nil
}

// Messages returns a copy of the visible conversation.
func (m *Mentor) Messages() []transcript.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transcript.Turn, len(m.messages))
	copy(out, m.messages)
	return out
}

// Clear deletes saved history, resets to the greeting, and opens a fresh
// conversation.
func (m *Mentor) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return core.NewInvalidStateError("a reply is in progress")
	}
	if err := m.store.Delete(ctx, m.key); err != nil {
		m.logger.Warn("failed to delete conversation history", zap.Error(err))
	}
	m.messages = []transcript.Turn{greeting()}
	conv, err := m.starter.Start(ctx, SystemInstruction, nil)
	if err != nil {
		m.conv = nil
		return fmt.Errorf("start chat: %w", err)
	}
	m.conv = conv
	return nil
}

// persistLocked saves the conversation unless it is just the greeting.
func (m *Mentor) persistLocked(ctx context.Context) {
	if len(m.messages) == 1 && m.messages[0] == greeting() {
		return
	}
	if err := history.SaveTranscript(ctx, m.store, m.key, m.messages); err != nil {
		m.logger.Warn("failed to save conversation history", zap.Error(err))
	}
}
