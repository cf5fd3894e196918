package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vango-go/vai-mentor/pkg/core"
	"github.com/vango-go/vai-mentor/pkg/core/live"
	"github.com/vango-go/vai-mentor/pkg/gateway/apierror"
	"github.com/vango-go/vai-mentor/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-mentor/pkg/gateway/mw"
)

const (
	liveWriteTimeout   = 5 * time.Second
	liveMaxClientFrame = 4 << 10
)

// LiveHandler upgrades /v1/live to a websocket that pushes a status message
// on every snapshot change. Clients may send control commands on the same
// socket.
type LiveHandler struct {
	Voice          Voice
	Logger         *zap.Logger
	Lifecycle      *lifecycle.Lifecycle
	AllowedOrigins []string
	PingInterval   time.Duration
}

// liveServerMessage is one frame sent to the client.
type liveServerMessage struct {
	Type     string         `json:"type"` // status | error
	Schema   int            `json:"schema,omitempty"`
	Snapshot *live.Snapshot `json:"snapshot,omitempty"`
	Error    *core.Error    `json:"error,omitempty"`
}

// liveClientMessage is one command from the client.
type liveClientMessage struct {
	Type string `json:"type"` // start | stop | clear | personality
	ID   string `json:"id,omitempty"`
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if !mw.AllowedOrigin(h.AllowedOrigins, r) {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "origin is not allowed", Code: "origin_not_allowed"}, http.StatusForbidden)
		return
	}
	release, ok := h.Lifecycle.Track()
	if !ok {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrAPI, Message: "server is draining", Code: "draining"}, http.StatusServiceUnavailable)
		return
	}
	defer release()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, http.Header{mw.SchemaHeader: []string{mw.ServedSchema}})
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(liveMaxClientFrame)

	logger := h.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("request_id", reqID))
	logger.Debug("live status stream opened")

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	var writeMu sync.Mutex
	write := func(msg liveServerMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		return conn.WriteJSON(msg)
	}

	go h.readCommands(ctx, cancel, conn, write, logger)

	snaps, unsubscribe := h.Voice.Subscribe()
	defer unsubscribe()

	interval := h.PingInterval
	if interval <= 0 {
		interval = 20 * time.Second
	}
	ping := time.NewTicker(interval)
	defer ping.Stop()
	draining := h.Lifecycle.Draining()

	for {
		select {
		case <-draining:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server is shutting down"),
				time.Now().Add(time.Second))
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case snap := <-snaps:
			if err := write(liveServerMessage{Type: "status", Schema: live.SnapshotVersion, Snapshot: &snap}); err != nil {
				logger.Debug("live status write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h LiveHandler) readCommands(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, write func(liveServerMessage) error, logger *zap.Logger) {
	defer cancel()
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("live status stream read ended", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var cmd liveClientMessage
		if err := json.Unmarshal(data, &cmd); err != nil {
			_ = write(liveServerMessage{Type: "error", Error: core.NewInvalidRequestError("invalid command frame")})
			continue
		}
		if err := h.apply(ctx, cmd, write); err != nil {
			writeLiveError(write, err)
		}
	}
}

func writeLiveError(write func(liveServerMessage) error, err error) {
	coreErr, _ := apierror.FromError(err, "")
	_ = write(liveServerMessage{Type: "error", Error: coreErr})
}

func (h LiveHandler) apply(ctx context.Context, cmd liveClientMessage, write func(liveServerMessage) error) error {
	switch strings.ToLower(strings.TrimSpace(cmd.Type)) {
	case "start":
		// Start runs until the remote answers; the socket keeps taking
		// commands meanwhile so stop can cancel it. The session outlives
		// this socket.
		go func() {
			err := h.Voice.Start(context.WithoutCancel(ctx))
			if err != nil && !errors.Is(err, live.ErrStartCancelled) {
				writeLiveError(write, err)
			}
		}()
		return nil
	case "stop":
		h.Voice.Stop()
		return nil
	case "clear":
		if !h.Voice.ClearHistory(ctx) {
			return core.NewInvalidStateError("history can only be cleared while idle")
		}
		return nil
	case "personality":
		return h.Voice.SetPersonality(cmd.ID)
	default:
		return core.NewInvalidRequestError("unknown command " + cmd.Type)
	}
}
