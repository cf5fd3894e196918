package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-mentor/internal/device"
	"github.com/vango-go/vai-mentor/pkg/core/history"
	"github.com/vango-go/vai-mentor/pkg/core/mentor"
	"github.com/vango-go/vai-mentor/pkg/core/providers/gemini"
)

var mentorEnvKeys = []string{
	"GEMINI_API_KEY",
	"API_KEY",
	"VAI_MENTOR_GEMINI_API_KEY",
	"VAI_MENTOR_ADDR",
	"VAI_MENTOR_CORS_ORIGINS",
	"VAI_MENTOR_RATE_LIMIT_RPS",
	"VAI_MENTOR_RATE_LIMIT_BURST",
	"VAI_MENTOR_MAX_BODY_BYTES",
	"VAI_MENTOR_READ_HEADER_TIMEOUT",
	"VAI_MENTOR_SHUTDOWN_GRACE_PERIOD",
	"VAI_MENTOR_LIVE_PING_INTERVAL",
	"VAI_MENTOR_METRICS_NAMESPACE",
	"VAI_MENTOR_LIVE_ENDPOINT",
	"VAI_MENTOR_HANDSHAKE_TIMEOUT",
	"VAI_MENTOR_OUTBOUND_QUEUE",
	"VAI_MENTOR_LIVE_MODEL",
	"VAI_MENTOR_VOICE",
	"VAI_MENTOR_PERSONALITY",
	"VAI_MENTOR_FRAME_SIZE",
	"VAI_MENTOR_CHAT_ENABLED",
	"VAI_MENTOR_CHAT_MODEL",
	"VAI_MENTOR_HISTORY_STORE",
	"VAI_MENTOR_HISTORY_DIR",
	"VAI_MENTOR_HISTORY_DSN",
	"VAI_MENTOR_REDIS_ADDR",
	"VAI_MENTOR_REDIS_PASSWORD",
	"VAI_MENTOR_REDIS_DB",
	"VAI_MENTOR_REDIS_KEY_PREFIX",
	"VAI_MENTOR_AUDIO_BACKEND",
	"VAI_MENTOR_LOG_LEVEL",
	"VAI_MENTOR_LOG_FORMAT",
}

func clearMentorEnv(t *testing.T) {
	t.Helper()
	for _, key := range mentorEnvKeys {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mentor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearMentorEnv(t)
	t.Setenv("GEMINI_API_KEY", "k-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "k-test", cfg.Gemini.APIKey)
	assert.Equal(t, "127.0.0.1:8790", cfg.Server.Addr)
	assert.Equal(t, gemini.DefaultLiveEndpoint, cfg.Gemini.LiveEndpoint)
	assert.Equal(t, gemini.DefaultLiveModel, cfg.Live.Model)
	assert.Equal(t, "Zephyr", cfg.Live.VoiceName)
	assert.Equal(t, mentor.DefaultID, cfg.Live.Personality)
	assert.Equal(t, gemini.DefaultChatModel, cfg.Chat.Model)
	assert.True(t, cfg.Chat.Enabled)
	assert.Equal(t, history.StoreTypeFile, cfg.History.Type)
	assert.Equal(t, device.BackendMalgo, cfg.Audio.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_MissingAPIKey(t *testing.T) {
	clearMentorEnv(t)

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestLoad_APIKeyPrecedence(t *testing.T) {
	clearMentorEnv(t)
	t.Setenv("API_KEY", "generic")
	t.Setenv("GEMINI_API_KEY", "gemini")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Gemini.APIKey)

	t.Setenv("VAI_MENTOR_GEMINI_API_KEY", "scoped")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "scoped", cfg.Gemini.APIKey)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearMentorEnv(t)
	path := writeConfig(t, `
server:
  addr: ":9000"
  rate_limit_rps: 1.5
  shutdown_grace_period: 3s
gemini:
  api_key: from-file
  handshake_timeout: 7s
live:
  personality: friendly
  frame_size: 2048
history:
  type: redis
  redis:
    addr: 127.0.0.1:6379
    key_prefix: "mentor:"
audio:
  backend: none
log:
  level: debug
  format: json
`)
	t.Setenv("VAI_MENTOR_PERSONALITY", "direct")
	t.Setenv("VAI_MENTOR_REDIS_DB", "3")
	t.Setenv("VAI_MENTOR_CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 1.5, cfg.Server.RateLimitRPS)
	assert.Equal(t, 10, cfg.Server.RateLimitBurst)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownGracePeriod)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "from-file", cfg.Gemini.APIKey)
	assert.Equal(t, 7*time.Second, cfg.Gemini.HandshakeTimeout)
	assert.Equal(t, "direct", cfg.Live.Personality)
	assert.Equal(t, 2048, cfg.Live.FrameSize)
	assert.Equal(t, "Zephyr", cfg.Live.VoiceName)
	assert.Equal(t, history.StoreTypeRedis, cfg.History.Type)
	assert.Equal(t, "mentor:", cfg.History.Redis.KeyPrefix)
	assert.Equal(t, 3, cfg.History.Redis.DB)
	assert.Equal(t, device.BackendNone, cfg.Audio.Backend)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_UnknownYAMLField(t *testing.T) {
	clearMentorEnv(t)
	t.Setenv("GEMINI_API_KEY", "k")
	path := writeConfig(t, "server:\n  adress: \":1\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adress")
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	clearMentorEnv(t)
	t.Setenv("GEMINI_API_KEY", "k")

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
}

func TestLoad_MissingFile(t *testing.T) {
	clearMentorEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidEnvFallsBackToDefault(t *testing.T) {
	clearMentorEnv(t)
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("VAI_MENTOR_RATE_LIMIT_BURST", "lots")
	t.Setenv("VAI_MENTOR_SHUTDOWN_GRACE_PERIOD", "soon")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Server.RateLimitBurst)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownGracePeriod)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Gemini.APIKey = "k"
		return cfg
	}
	require.NoError(t, valid().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown personality", func(c *Config) { c.Live.Personality = "grumpy" }, "live.personality"},
		{"unknown store", func(c *Config) { c.History.Type = "etcd" }, "history.type"},
		{"file store without dir", func(c *Config) { c.History.Dir = " " }, "history.dir"},
		{"redis without addr", func(c *Config) { c.History.Type = history.StoreTypeRedis }, "history.redis.addr"},
		{"sqlite without dsn", func(c *Config) { c.History.Type = history.StoreTypeSQLite }, "history.dsn"},
		{"unknown audio", func(c *Config) { c.Audio.Backend = "alsa" }, "audio.backend"},
		{"unknown level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"negative rps", func(c *Config) { c.Server.RateLimitRPS = -1 }, "rate_limit_rps"},
		{"zero burst", func(c *Config) { c.Server.RateLimitBurst = 0 }, "rate_limit_burst"},
		{"zero queue", func(c *Config) { c.Gemini.OutboundQueue = 0 }, "outbound_queue"},
		{"negative handshake", func(c *Config) { c.Gemini.HandshakeTimeout = -time.Second }, "handshake_timeout"},
		{"chat without model", func(c *Config) { c.Chat.Model = "" }, "chat.model"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tc.want), err.Error())
		})
	}
}

func TestValidate_ServerDisabledSkipsServerChecks(t *testing.T) {
	cfg := Default()
	cfg.Gemini.APIKey = "k"
	cfg.Server.Addr = ""
	cfg.Server.MaxBodyBytes = 0
	assert.NoError(t, cfg.Validate())
}
