// Package gemini talks to Google's Gemini models: the Live websocket API for
// real-time voice sessions, and the genai SDK for streaming text chat.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/vango-go/vai-mentor/pkg/core"
	"github.com/vango-go/vai-mentor/pkg/core/remote"
)

const (
	// DefaultLiveEndpoint is the BidiGenerateContent websocket endpoint.
	DefaultLiveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// DefaultLiveModel is the native-audio model used for voice sessions.
	DefaultLiveModel = "gemini-2.5-flash-native-audio-preview-09-2025"

	// DefaultVoice is the prebuilt voice used for synthesized speech.
	DefaultVoice = "Zephyr"

	defaultOutboundQueue = 64
	defaultEventBuffer   = 256
	closeWriteTimeout    = 2 * time.Second
	mediaWriteTimeout    = 10 * time.Second
	maxInboundFrameBytes = 16 << 20
)

var tracer = otel.Tracer("github.com/vango-go/vai-mentor/pkg/core/providers/gemini")

// LiveDialer opens Gemini Live sessions. It implements remote.Dialer.
type LiveDialer struct {
	apiKey           string
	endpoint         string
	wsDialer         *websocket.Dialer
	handshakeTimeout time.Duration
	outboundQueue    int
	logger           *zap.Logger
	onDrop           func()
}

// LiveOption configures a LiveDialer.
type LiveOption func(*LiveDialer)

// WithEndpoint overrides the websocket endpoint.
func WithEndpoint(endpoint string) LiveOption {
	return func(d *LiveDialer) { d.endpoint = endpoint }
}

// WithWebsocketDialer sets the underlying gorilla dialer.
func WithWebsocketDialer(w *websocket.Dialer) LiveOption {
	return func(d *LiveDialer) { d.wsDialer = w }
}

// WithHandshakeTimeout bounds the websocket handshake. Zero leaves it to ctx.
func WithHandshakeTimeout(t time.Duration) LiveOption {
	return func(d *LiveDialer) { d.handshakeTimeout = t }
}

// WithOutboundQueue sets how many media frames may wait for the writer.
func WithOutboundQueue(n int) LiveOption {
	return func(d *LiveDialer) { d.outboundQueue = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) LiveOption {
	return func(d *LiveDialer) { d.logger = l }
}

// WithDropHook is called whenever an outbound frame is dropped.
func WithDropHook(fn func()) LiveOption {
	return func(d *LiveDialer) { d.onDrop = fn }
}

// NewLiveDialer returns a dialer authenticating with apiKey.
func NewLiveDialer(apiKey string, opts ...LiveOption) *LiveDialer {
	d := &LiveDialer{
		apiKey:        apiKey,
		endpoint:      DefaultLiveEndpoint,
		outboundQueue: defaultOutboundQueue,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.wsDialer == nil {
		d.wsDialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: d.handshakeTimeout,
		}
	}
	if d.outboundQueue <= 0 {
		d.outboundQueue = defaultOutboundQueue
	}
	return d
}

// Dial connects, sends the setup frame, and starts the session's read and
// write loops. The setup acknowledgment arrives as remote.Opened.
func (d *LiveDialer) Dial(ctx context.Context, cfg remote.Config) (remote.Session, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultLiveModel
	}
	ctx, span := tracer.Start(ctx, "gemini.live.dial")
	defer span.End()
	span.SetAttributes(attribute.String("gemini.model", cfg.Model))

	s, err := d.dial(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", s.id))
	return s, nil
}

func (d *LiveDialer) dial(ctx context.Context, cfg remote.Config) (*liveSession, error) {
	if strings.TrimSpace(d.apiKey) == "" {
		return nil, core.NewRemoteOpenError("missing Gemini API key", nil)
	}
	wsURL, err := d.endpointURL()
	if err != nil {
		return nil, core.NewRemoteOpenError("invalid endpoint", err)
	}

	conn, resp, err := d.wsDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, core.NewRemoteOpenError(fmt.Sprintf("websocket dial failed (status %d)", resp.StatusCode), err)
		}
		return nil, core.NewRemoteOpenError("websocket dial failed", err)
	}
	conn.SetReadLimit(maxInboundFrameBytes)

	if err := conn.WriteJSON(buildSetup(cfg)); err != nil {
		_ = conn.Close()
		return nil, core.NewRemoteOpenError("send setup", err)
	}

	s := &liveSession{
		id:         uuid.NewString(),
		conn:       conn,
		events:     make(chan remote.Event, defaultEventBuffer),
		outbound:   make(chan []byte, d.outboundQueue),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		onDrop:     d.onDrop,
	}
	s.logger = d.logger.With(zap.String("component", "gemini_live"), zap.String("session_id", s.id))
	go s.readLoop()
	go s.writeLoop()
	return s, nil
}

func (d *LiveDialer) endpointURL() (string, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", d.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// liveSession is one open websocket session.
type liveSession struct {
	id     string
	conn   *websocket.Conn
	logger *zap.Logger

	events     chan remote.Event
	outbound   chan []byte
	closing    chan struct{}
	done       chan struct{}
	writerDone chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool
	dropped   atomic.Int64
	onDrop    func()
}

func (s *liveSession) ID() string { return s.id }

// Events yields inbound events; it is closed after remote.Closed.
func (s *liveSession) Events() <-chan remote.Event { return s.events }

// SendMedia queues one audio frame. A full queue drops the frame.
func (s *liveSession) SendMedia(m remote.Media) error {
	if s.closed.Load() {
		return fmt.Errorf("live session is closed")
	}
	payload, err := json.Marshal(clientMessage{RealtimeInput: &realtimeInput{
		Audio: &blob{MIMEType: m.MIMEType, Data: m.Data},
	}})
	if err != nil {
		return fmt.Errorf("encode media: %w", err)
	}
	select {
	case s.outbound <- payload:
	default:
		s.dropped.Add(1)
		if s.onDrop != nil {
			s.onDrop()
		}
	}
	return nil
}

// Dropped returns the number of outbound frames discarded on a full queue.
func (s *liveSession) Dropped() int64 { return s.dropped.Load() }

// Close closes the websocket and waits for both loops to exit.
func (s *liveSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closing)
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeWriteTimeout))
		_ = s.conn.Close()
	})
	<-s.done
	<-s.writerDone
	return nil
}

func (s *liveSession) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.emit(remote.Closed{Err: s.closeError(err)})
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("skipping undecodable server frame", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		if msg.GoAway != nil {
			s.logger.Info("server going away", zap.String("time_left", msg.GoAway.TimeLeft))
		}
		for _, ev := range translate(msg) {
			if !s.emit(ev) {
				return
			}
		}
	}
}

func (s *liveSession) writeLoop() {
	defer close(s.writerDone)
	for {
		select {
		case <-s.closing:
			return
		case payload := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(mediaWriteTimeout))
			err := s.conn.WriteMessage(websocket.TextMessage, payload)
			if err != nil {
				if !s.closed.Load() {
					s.logger.Warn("media write failed", zap.Error(err))
				}
				return
			}
		}
	}
}

// emit delivers ev in order, giving up only once the session is closing.
func (s *liveSession) emit(ev remote.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.closing:
		return false
	}
}

func (s *liveSession) closeError(err error) error {
	if s.closed.Load() {
		return nil
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.CloseNormalClosure {
			return nil
		}
		reason := strings.TrimSpace(ce.Text)
		if reason == "" {
			reason = "connection closed"
		}
		return core.NewRemoteRuntimeError(reason, strconv.Itoa(ce.Code))
	}
	return core.NewRemoteRuntimeError(err.Error(), "")
}
