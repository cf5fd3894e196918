package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/vango-go/vai-mentor/pkg/core"
	"github.com/vango-go/vai-mentor/pkg/core/live"
	"github.com/vango-go/vai-mentor/pkg/core/mentor"
	"github.com/vango-go/vai-mentor/pkg/core/transcript"
)

// Voice is the live controller surface the HTTP handlers drive.
type Voice interface {
	Start(ctx context.Context) error
	Stop()
	ClearHistory(ctx context.Context) bool
	SetPersonality(id string) error
	Snapshot() live.Snapshot
	Subscribe() (<-chan live.Snapshot, func())
}

// MentorHandler serves the /v1/mentor endpoints.
type MentorHandler struct {
	Voice        Voice
	Logger       *zap.Logger
	MaxBodyBytes int64
}

func (h MentorHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// Status returns the current snapshot.
func (h MentorHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Voice.Snapshot())
}

// History returns the committed voice transcript.
func (h MentorHandler) History(w http.ResponseWriter, r *http.Request) {
	turns := h.Voice.Snapshot().Transcript
	if turns == nil {
		turns = []transcript.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcript": turns})
}

// Start opens a session. The session outlives the request; it ends on Stop
// or when the remote closes.
func (h MentorHandler) Start(w http.ResponseWriter, r *http.Request) {
	err := h.Voice.Start(context.WithoutCancel(r.Context()))
	if errors.Is(err, live.ErrStartCancelled) {
		err = core.NewInvalidStateError("session was stopped while starting")
	}
	if err != nil {
		h.logger().Info("mentor start failed", zap.Error(err))
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.Voice.Snapshot())
}

// Stop ends the session, if any.
func (h MentorHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.Voice.Stop()
	writeJSON(w, http.StatusOK, h.Voice.Snapshot())
}

// Clear deletes the voice transcript. It is rejected while a session runs.
func (h MentorHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if !h.Voice.ClearHistory(r.Context()) {
		writeError(w, r, core.NewInvalidStateError("history can only be cleared while idle"))
		return
	}
	writeJSON(w, http.StatusOK, h.Voice.Snapshot())
}

type personalityRequest struct {
	ID string `json:"id"`
}

// SetPersonality selects the personality for the next session.
func (h MentorHandler) SetPersonality(w http.ResponseWriter, r *http.Request) {
	var req personalityRequest
	if err := decodeJSON(w, r, h.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Voice.SetPersonality(req.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Voice.Snapshot())
}

// Personalities lists the available personalities and the selected one.
func (h MentorHandler) Personalities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"personalities": mentor.All(),
		"selected":      h.Voice.Snapshot().Personality,
	})
}
