package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/vai-mentor/pkg/core"
	"github.com/vango-go/vai-mentor/pkg/core/chat"
	"github.com/vango-go/vai-mentor/pkg/core/transcript"
)

// DefaultChatModel is the model behind the text mentor.
const DefaultChatModel = "gemini-2.5-pro"

// ChatClient opens genai chat sessions. It implements chat.Starter.
type ChatClient struct {
	client *genai.Client
	model  string
}

// NewChatClient creates a genai client for the Gemini API backend.
func NewChatClient(ctx context.Context, apiKey, model string) (*ChatClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: missing API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultChatModel
	}
	return &ChatClient{client: client, model: model}, nil
}

// Start opens a chat seeded with prior turns.
func (c *ChatClient) Start(ctx context.Context, system string, prior []transcript.Turn) (chat.Conversation, error) {
	var cfg *genai.GenerateContentConfig
	if strings.TrimSpace(system) != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}
	session, err := c.client.Chats.Create(ctx, c.model, cfg, turnsToContents(prior))
	if err != nil {
		return nil, fmt.Errorf("gemini: create chat: %w", err)
	}
	return &genaiConversation{chat: session}, nil
}

type genaiConversation struct {
	chat *genai.Chat
}

func (g *genaiConversation) SendStream(ctx context.Context, text string, onDelta func(string)) (string, error) {
	var reply strings.Builder
	for resp, err := range g.chat.SendMessageStream(ctx, genai.Part{Text: text}) {
		if err != nil {
			if ctx.Err() != nil {
				return reply.String(), ctx.Err()
			}
			return reply.String(), &core.Error{Type: core.ErrRemoteRuntime, Message: "chat stream failed", Cause: err}
		}
		delta := resp.Text()
		if delta == "" {
			continue
		}
		reply.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	return reply.String(), nil
}

func turnsToContents(turns []transcript.Turn) []*genai.Content {
	if len(turns) == 0 {
		return nil
	}
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Speaker == transcript.SpeakerModel {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(t.Text, role))
	}
	return out
}
