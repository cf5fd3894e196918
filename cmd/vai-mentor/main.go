// Command vai-mentor runs the Gemini Live voice mentor with a terminal
// console and an optional local HTTP status surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vango-go/vai-mentor/internal/device"
	"github.com/vango-go/vai-mentor/internal/dotenv"
	"github.com/vango-go/vai-mentor/internal/logging"
	"github.com/vango-go/vai-mentor/pkg/core/chat"
	"github.com/vango-go/vai-mentor/pkg/core/history"
	"github.com/vango-go/vai-mentor/pkg/core/live"
	"github.com/vango-go/vai-mentor/pkg/core/metrics"
	"github.com/vango-go/vai-mentor/pkg/core/providers/gemini"
	"github.com/vango-go/vai-mentor/pkg/core/remote"
	"github.com/vango-go/vai-mentor/pkg/gateway/config"
	"github.com/vango-go/vai-mentor/pkg/gateway/handlers"
	"github.com/vango-go/vai-mentor/pkg/gateway/lifecycle"
	gatewayserver "github.com/vango-go/vai-mentor/pkg/gateway/server"
)

type options struct {
	ConfigPath  string
	Addr        string
	Audio       string
	Personality string
	NoConsole   bool
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("vai-mentor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.ConfigPath, "config", "", "optional YAML config file")
	fs.StringVar(&opts.Addr, "addr", "", "status server listen address (overrides config; \"off\" disables)")
	fs.StringVar(&opts.Audio, "audio", "", "audio backend: malgo, ffmpeg, or none")
	fs.StringVar(&opts.Personality, "personality", "", "initial mentor personality")
	fs.BoolVar(&opts.NoConsole, "no-console", false, "do not read commands from stdin")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return opts, nil
}

// apply overlays command-line options onto cfg.
func (o options) apply(cfg *config.Config) {
	switch addr := strings.TrimSpace(o.Addr); addr {
	case "":
	case "off":
		cfg.Server.Addr = ""
	default:
		cfg.Server.Addr = addr
	}
	if a := strings.TrimSpace(o.Audio); a != "" {
		cfg.Audio.Backend = device.Backend(a)
	}
	if p := strings.TrimSpace(o.Personality); p != "" {
		cfg.Live.Personality = p
	}
}

type appDeps struct {
	loadConfig  func(path string) (config.Config, error)
	newLogger   func(logging.Config) (*zap.Logger, error)
	openDevices func(device.Backend, *zap.Logger) (device.Devices, error)
	openStore   func(history.Config) (history.Store, error)
	newDialer   func(config.GeminiConfig, *zap.Logger, *metrics.Metrics) remote.Dialer
	newStarter  func(ctx context.Context, apiKey, model string) (chat.Starter, error)
}

func defaultAppDeps() appDeps {
	return appDeps{
		loadConfig:  config.Load,
		newLogger:   logging.New,
		openDevices: device.Open,
		openStore:   history.NewStore,
		newDialer: func(cfg config.GeminiConfig, logger *zap.Logger, m *metrics.Metrics) remote.Dialer {
			return gemini.NewLiveDialer(cfg.APIKey,
				gemini.WithEndpoint(cfg.LiveEndpoint),
				gemini.WithHandshakeTimeout(cfg.HandshakeTimeout),
				gemini.WithOutboundQueue(cfg.OutboundQueue),
				gemini.WithLogger(logger),
				gemini.WithDropHook(m.RecordFrameDropped),
			)
		},
		newStarter: func(ctx context.Context, apiKey, model string) (chat.Starter, error) {
			return gemini.NewChatClient(ctx, apiKey, model)
		},
	}
}

type app struct {
	cfg       config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	lifecycle *lifecycle.Lifecycle
	voice     *live.Controller
	chat      *chat.Mentor
	devices   device.Devices
	store     history.Store
}

func (a *app) close() {
	if a.voice != nil {
		if err := a.voice.Close(); err != nil {
			a.logger.Warn("close history store", zap.Error(err))
		}
	} else if a.store != nil {
		_ = a.store.Close()
	}
	if a.devices != nil {
		if err := a.devices.Close(); err != nil {
			a.logger.Warn("close audio devices", zap.Error(err))
		}
	}
}

func buildApp(ctx context.Context, opts options, deps appDeps) (*app, error) {
	cfg, err := deps.loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	opts.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := deps.newLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics.New(cfg.Server.MetricsNamespace),
		lifecycle: &lifecycle.Lifecycle{},
	}

	a.store, err = deps.openStore(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	a.devices, err = deps.openDevices(cfg.Audio.Backend, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open audio devices: %w", err)
	}

	dialer := deps.newDialer(cfg.Gemini, logger, a.metrics)
	a.voice = live.NewController(cfg.Live, dialer, a.devices, a.store,
		live.WithLogger(logger),
		live.WithMetrics(a.metrics),
	)
	a.voice.Load(ctx)

	if cfg.Chat.Enabled {
		starter, err := deps.newStarter(ctx, cfg.Gemini.APIKey, cfg.Chat.Model)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("init chat: %w", err)
		}
		a.chat = chat.New(starter, a.store, logger)
		if err := a.chat.Load(ctx); err != nil {
			logger.Warn("chat unavailable until the next message", zap.Error(err))
		}
	}
	return a, nil
}

func (a *app) server() *gatewayserver.Server {
	deps := gatewayserver.Deps{
		Config:    a.cfg.Server,
		Voice:     a.voice,
		Metrics:   a.metrics,
		Lifecycle: a.lifecycle,
		Logger:    a.logger,
		ReadyChecks: []handlers.ReadyCheck{{
			Name:  "history",
			Check: func(ctx context.Context) error { return history.Ping(ctx, a.store) },
		}},
	}
	deps.Chat = a.chatOrNil()
	return gatewayserver.New(deps)
}

// chatOrNil keeps a disabled chat mentor a nil interface.
func (a *app) chatOrNil() handlers.Chat {
	if a.chat == nil {
		return nil
	}
	return a.chat
}

func run(ctx context.Context, opts options, stdin io.Reader, stdout io.Writer, deps appDeps) error {
	a, err := buildApp(ctx, opts, deps)
	if err != nil {
		return err
	}
	defer a.logger.Sync() //nolint:errcheck
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Addr != "" {
		httpSrv := a.server().HTTPServer()
		a.logger.Info("starting status server", zap.String("addr", a.cfg.Server.Addr))
		g.Go(func() error {
			err := httpSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			a.lifecycle.Drain()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownGracePeriod)
			defer shutdownCancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown http server: %w", err)
			}
			if err := a.lifecycle.Wait(shutdownCtx); err != nil {
				a.logger.Warn("live streams still open after grace period", zap.Int("streams", a.lifecycle.Active()))
			}
			return nil
		})
	}

	if opts.NoConsole {
		g.Go(func() error {
			<-gctx.Done()
			return nil
		})
	} else {
		g.Go(func() error {
			defer cancel()
			return newConsole(a.voice, a.chatOrNil(), stdout).run(gctx, stdin)
		})
	}

	err = g.Wait()
	a.logger.Info("mentor stopped")
	return err
}

func runMain(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, deps appDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	opts, err := parseOptions(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if err := dotenv.LoadFiles(".env.local", ".env"); err != nil {
		fmt.Fprintf(stderr, "vai-mentor: %v\n", err)
		return 1
	}

	if err := run(ctx, opts, stdin, stdout, deps); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "vai-mentor: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, defaultAppDeps())
	stop()
	os.Exit(code)
}
