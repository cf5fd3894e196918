// Package config loads the mentor server configuration from an optional YAML
// file overlaid by VAI_MENTOR_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vango-go/vai-mentor/internal/device"
	"github.com/vango-go/vai-mentor/internal/logging"
	"github.com/vango-go/vai-mentor/pkg/core/history"
	"github.com/vango-go/vai-mentor/pkg/core/live"
	"github.com/vango-go/vai-mentor/pkg/core/mentor"
	"github.com/vango-go/vai-mentor/pkg/core/providers/gemini"
)

const envPrefix = "VAI_MENTOR_"

type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Gemini  GeminiConfig   `yaml:"gemini"`
	Live    live.Config    `yaml:"live"`
	Chat    ChatConfig     `yaml:"chat"`
	History history.Config `yaml:"history"`
	Audio   AudioConfig    `yaml:"audio"`
	Log     logging.Config `yaml:"log"`
}

type ServerConfig struct {
	// Addr is the status surface listen address. Empty disables the server.
	Addr string `yaml:"addr"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	// Control endpoint limits (per client). Zero RPS disables limiting.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	MaxBodyBytes        int64         `yaml:"max_body_bytes"`
	ReadHeaderTimeout   time.Duration `yaml:"read_header_timeout"`
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period"`
	LivePingInterval    time.Duration `yaml:"live_ping_interval"`

	MetricsNamespace string `yaml:"metrics_namespace"`
}

type GeminiConfig struct {
	APIKey       string `yaml:"api_key"`
	LiveEndpoint string `yaml:"live_endpoint"`

	// HandshakeTimeout bounds the websocket handshake only. Zero means the
	// caller's context is the only bound.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// OutboundQueue is the number of microphone frames buffered for sending.
	OutboundQueue int `yaml:"outbound_queue"`
}

type ChatConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
}

type AudioConfig struct {
	Backend device.Backend `yaml:"backend"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:                "127.0.0.1:8790",
			RateLimitRPS:        5,
			RateLimitBurst:      10,
			MaxBodyBytes:        64 << 10,
			ReadHeaderTimeout:   10 * time.Second,
			ShutdownGracePeriod: 10 * time.Second,
			LivePingInterval:    20 * time.Second,
			MetricsNamespace:    "vai_mentor",
		},
		Gemini: GeminiConfig{
			LiveEndpoint:  gemini.DefaultLiveEndpoint,
			OutboundQueue: 64,
		},
		Live: live.Config{
			Model:          gemini.DefaultLiveModel,
			VoiceName:      gemini.DefaultVoice,
			Personality:    mentor.DefaultID,
			PersistTimeout: 5 * time.Second,
		},
		Chat: ChatConfig{
			Enabled: true,
			Model:   gemini.DefaultChatModel,
		},
		History: history.Config{
			Type: history.StoreTypeFile,
			Dir:  ".vai-mentor/history",
		},
		Audio: AudioConfig{Backend: device.BackendMalgo},
		Log:   logging.Config{Level: "info", Format: "console"},
	}
}

// Load reads path (if not empty) over the defaults, applies the environment
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = envOr(envPrefix+"ADDR", c.Server.Addr)
	if origins := splitCSV(os.Getenv(envPrefix + "CORS_ORIGINS")); len(origins) > 0 {
		c.Server.CORSAllowedOrigins = origins
	}
	c.Server.RateLimitRPS = envFloat64Or(envPrefix+"RATE_LIMIT_RPS", c.Server.RateLimitRPS)
	c.Server.RateLimitBurst = envIntOr(envPrefix+"RATE_LIMIT_BURST", c.Server.RateLimitBurst)
	c.Server.MaxBodyBytes = envInt64Or(envPrefix+"MAX_BODY_BYTES", c.Server.MaxBodyBytes)
	c.Server.ReadHeaderTimeout = envDurationOr(envPrefix+"READ_HEADER_TIMEOUT", c.Server.ReadHeaderTimeout)
	c.Server.ShutdownGracePeriod = envDurationOr(envPrefix+"SHUTDOWN_GRACE_PERIOD", c.Server.ShutdownGracePeriod)
	c.Server.LivePingInterval = envDurationOr(envPrefix+"LIVE_PING_INTERVAL", c.Server.LivePingInterval)
	c.Server.MetricsNamespace = envOr(envPrefix+"METRICS_NAMESPACE", c.Server.MetricsNamespace)

	c.Gemini.APIKey = firstNonEmpty(
		os.Getenv(envPrefix+"GEMINI_API_KEY"),
		os.Getenv("GEMINI_API_KEY"),
		os.Getenv("API_KEY"),
		c.Gemini.APIKey,
	)
	c.Gemini.LiveEndpoint = envOr(envPrefix+"LIVE_ENDPOINT", c.Gemini.LiveEndpoint)
	c.Gemini.HandshakeTimeout = envDurationOr(envPrefix+"HANDSHAKE_TIMEOUT", c.Gemini.HandshakeTimeout)
	c.Gemini.OutboundQueue = envIntOr(envPrefix+"OUTBOUND_QUEUE", c.Gemini.OutboundQueue)

	c.Live.Model = envOr(envPrefix+"LIVE_MODEL", c.Live.Model)
	c.Live.VoiceName = envOr(envPrefix+"VOICE", c.Live.VoiceName)
	c.Live.Personality = envOr(envPrefix+"PERSONALITY", c.Live.Personality)
	c.Live.FrameSize = envIntOr(envPrefix+"FRAME_SIZE", c.Live.FrameSize)
	c.Live.PersistTimeout = envDurationOr(envPrefix+"PERSIST_TIMEOUT", c.Live.PersistTimeout)

	c.Chat.Enabled = envBoolOr(envPrefix+"CHAT_ENABLED", c.Chat.Enabled)
	c.Chat.Model = envOr(envPrefix+"CHAT_MODEL", c.Chat.Model)

	c.History.Type = history.StoreType(envOr(envPrefix+"HISTORY_STORE", string(c.History.Type)))
	c.History.Dir = envOr(envPrefix+"HISTORY_DIR", c.History.Dir)
	c.History.DSN = envOr(envPrefix+"HISTORY_DSN", c.History.DSN)
	c.History.Redis.Addr = envOr(envPrefix+"REDIS_ADDR", c.History.Redis.Addr)
	c.History.Redis.Password = envOr(envPrefix+"REDIS_PASSWORD", c.History.Redis.Password)
	c.History.Redis.DB = envIntOr(envPrefix+"REDIS_DB", c.History.Redis.DB)
	c.History.Redis.KeyPrefix = envOr(envPrefix+"REDIS_KEY_PREFIX", c.History.Redis.KeyPrefix)

	c.Audio.Backend = device.Backend(envOr(envPrefix+"AUDIO_BACKEND", string(c.Audio.Backend)))

	c.Log.Level = envOr(envPrefix+"LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr(envPrefix+"LOG_FORMAT", c.Log.Format)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Server.Addr != "" {
		if c.Server.RateLimitRPS < 0 {
			return fmt.Errorf("server.rate_limit_rps must be >= 0")
		}
		if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
			return fmt.Errorf("server.rate_limit_burst must be >= 1 when rate limiting is enabled")
		}
		if c.Server.MaxBodyBytes <= 0 {
			return fmt.Errorf("server.max_body_bytes must be > 0")
		}
		if c.Server.ReadHeaderTimeout <= 0 {
			return fmt.Errorf("server.read_header_timeout must be > 0")
		}
		if c.Server.ShutdownGracePeriod <= 0 {
			return fmt.Errorf("server.shutdown_grace_period must be > 0")
		}
		if c.Server.LivePingInterval <= 0 {
			return fmt.Errorf("server.live_ping_interval must be > 0")
		}
	}

	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		return fmt.Errorf("gemini.api_key is required (set %sGEMINI_API_KEY or GEMINI_API_KEY)", envPrefix)
	}
	if strings.TrimSpace(c.Gemini.LiveEndpoint) == "" {
		return fmt.Errorf("gemini.live_endpoint must not be empty")
	}
	if c.Gemini.HandshakeTimeout < 0 {
		return fmt.Errorf("gemini.handshake_timeout must be >= 0")
	}
	if c.Gemini.OutboundQueue <= 0 {
		return fmt.Errorf("gemini.outbound_queue must be > 0")
	}

	if _, err := mentor.Lookup(c.Live.Personality); err != nil {
		return fmt.Errorf("live.personality: %w", err)
	}
	if c.Live.FrameSize < 0 {
		return fmt.Errorf("live.frame_size must be >= 0")
	}
	if c.Chat.Enabled && strings.TrimSpace(c.Chat.Model) == "" {
		return fmt.Errorf("chat.model must not be empty when chat is enabled")
	}

	switch c.History.Type {
	case "", history.StoreTypeMemory:
	case history.StoreTypeFile:
		if strings.TrimSpace(c.History.Dir) == "" {
			return fmt.Errorf("history.dir is required for the file store")
		}
	case history.StoreTypeRedis:
		if strings.TrimSpace(c.History.Redis.Addr) == "" {
			return fmt.Errorf("history.redis.addr is required for the redis store")
		}
	case history.StoreTypeSQLite, history.StoreTypePostgres:
		if strings.TrimSpace(c.History.DSN) == "" {
			return fmt.Errorf("history.dsn is required for the %s store", c.History.Type)
		}
	default:
		return fmt.Errorf("history.type must be one of memory|file|redis|sqlite|postgres")
	}

	switch c.Audio.Backend {
	case device.BackendMalgo, device.BackendFFmpeg, device.BackendNone:
	default:
		return fmt.Errorf("audio.backend must be one of malgo|ffmpeg|none")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json")
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
