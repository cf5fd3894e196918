package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/vango-go/vai-mentor/pkg/core"
	"github.com/vango-go/vai-mentor/pkg/core/metrics"
	"github.com/vango-go/vai-mentor/pkg/core/transcript"
	"github.com/vango-go/vai-mentor/pkg/gateway/apierror"
	"github.com/vango-go/vai-mentor/pkg/gateway/mw"
	"github.com/vango-go/vai-mentor/pkg/gateway/sse"
)

// Chat is the text mentor surface.
type Chat interface {
	Send(ctx context.Context, text string, onDelta func(string)) (string, error)
	Messages() []transcript.Turn
	Clear(ctx context.Context) error
}

// ChatHandler serves the /v1/chat endpoints.
type ChatHandler struct {
	Chat         Chat
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	MaxBodyBytes int64
}

type chatRequest struct {
	Message string `json:"message"`
	Stream  bool   `json:"stream"`
}

type chatResponse struct {
	Reply string      `json:"reply"`
	Error *core.Error `json:"error,omitempty"`
}

// Send posts one message. With "stream": true the reply arrives as
// server-sent "delta" events followed by "done" or "error".
func (h ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Stream {
		h.stream(w, r, req.Message)
		return
	}

	reply, err := h.Chat.Send(r.Context(), req.Message, nil)
	if err != nil {
		h.Metrics.RecordChatMessage("error")
		if reply == "" {
			writeError(w, r, err)
			return
		}
		reqID, _ := mw.RequestIDFrom(r.Context())
		coreErr, status := apierror.FromError(err, reqID)
		writeJSON(w, status, chatResponse{Reply: reply, Error: coreErr})
		return
	}
	h.Metrics.RecordChatMessage("ok")
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (h ChatHandler) stream(w http.ResponseWriter, r *http.Request, text string) {
	sw, err := sse.New(w)
	if err != nil {
		writeError(w, r, core.NewInvalidRequestError("streaming is not supported on this connection"))
		return
	}

	reply, err := h.Chat.Send(r.Context(), text, func(delta string) {
		if sendErr := sw.Send("delta", map[string]string{"text": delta}); sendErr != nil && h.Logger != nil {
			h.Logger.Debug("chat stream write failed", zap.Error(sendErr))
		}
	})
	if err != nil {
		h.Metrics.RecordChatMessage("error")
		reqID, _ := mw.RequestIDFrom(r.Context())
		coreErr, status := apierror.FromError(err, reqID)
		if !sw.Started() && reply == "" {
			writeCoreErrorJSON(w, reqID, coreErr, status)
			return
		}
		_ = sw.Send("error", chatResponse{Reply: reply, Error: coreErr})
		return
	}
	h.Metrics.RecordChatMessage("ok")
	_ = sw.Send("done", chatResponse{Reply: reply})
}

// History returns the visible conversation, greeting included.
func (h ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"messages": h.Chat.Messages()})
}

// Clear resets the conversation to the greeting.
func (h ChatHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Chat.Clear(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": h.Chat.Messages()})
}
