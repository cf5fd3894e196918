// Package server wires the mentor status surface: health checks, metrics,
// the /v1 control endpoints and the /v1/live status stream.
package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/vango-go/vai-mentor/pkg/core/metrics"
	"github.com/vango-go/vai-mentor/pkg/gateway/config"
	"github.com/vango-go/vai-mentor/pkg/gateway/handlers"
	"github.com/vango-go/vai-mentor/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-mentor/pkg/gateway/mw"
	"github.com/vango-go/vai-mentor/pkg/gateway/ratelimit"
)

// Deps are the collaborators the server routes to. Chat may be nil when the
// text mentor is disabled.
type Deps struct {
	Config      config.ServerConfig
	Voice       handlers.Voice
	Chat        handlers.Chat
	Metrics     *metrics.Metrics
	Lifecycle   *lifecycle.Lifecycle
	Logger      *zap.Logger
	ReadyChecks []handlers.ReadyCheck
}

type Server struct {
	deps    Deps
	logger  *zap.Logger
	mux     *http.ServeMux
	limiter *ratelimit.Limiter
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = &lifecycle.Lifecycle{}
	}

	s := &Server{
		deps:   deps,
		logger: logger,
		mux:    http.NewServeMux(),
		limiter: ratelimit.New(ratelimit.Config{
			RPS:   deps.Config.RateLimitRPS,
			Burst: deps.Config.RateLimitBurst,
		}),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{
		Lifecycle: s.deps.Lifecycle,
		Checks:    s.deps.ReadyChecks,
	})
	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	mentor := handlers.MentorHandler{
		Voice:        s.deps.Voice,
		Logger:       s.logger,
		MaxBodyBytes: s.deps.Config.MaxBodyBytes,
	}
	s.mux.HandleFunc("GET /v1/mentor/status", mentor.Status)
	s.mux.HandleFunc("GET /v1/mentor/history", mentor.History)
	s.mux.HandleFunc("GET /v1/mentor/personalities", mentor.Personalities)
	s.mux.HandleFunc("POST /v1/mentor/start", mentor.Start)
	s.mux.HandleFunc("POST /v1/mentor/stop", mentor.Stop)
	s.mux.HandleFunc("POST /v1/mentor/clear", mentor.Clear)
	s.mux.HandleFunc("POST /v1/mentor/personality", mentor.SetPersonality)

	if s.deps.Chat != nil {
		chat := handlers.ChatHandler{
			Chat:         s.deps.Chat,
			Logger:       s.logger,
			Metrics:      s.deps.Metrics,
			MaxBodyBytes: s.deps.Config.MaxBodyBytes,
		}
		s.mux.HandleFunc("POST /v1/chat", chat.Send)
		s.mux.HandleFunc("GET /v1/chat/history", chat.History)
		s.mux.HandleFunc("POST /v1/chat/clear", chat.Clear)
	}

	s.mux.Handle("GET /v1/live", handlers.LiveHandler{
		Voice:          s.deps.Voice,
		Logger:         s.logger,
		Lifecycle:      s.deps.Lifecycle,
		AllowedOrigins: s.deps.Config.CORSAllowedOrigins,
		PingInterval:   s.deps.Config.LivePingInterval,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.limiter, h)
	h = mw.CORS(s.deps.Config.CORSAllowedOrigins, h)
	h = mw.SchemaVersion(h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, s.deps.Metrics, h)
	h = mw.RequestID(h)
	return h
}

// HTTPServer builds the listener-facing server for Handler.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.deps.Config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.deps.Config.ReadHeaderTimeout,
		ErrorLog:          zap.NewStdLog(s.logger.Named("http")),
	}
}
