// Package history persists conversation transcripts under string keys.
//
// Supported backends:
//   - memory: process-local, for tests and headless runs
//   - file: one JSON document per key in a directory
//   - redis: one string value per key
//   - sqlite / postgres: one row per key through gorm
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vango-go/vai-mentor/pkg/core"
	"github.com/vango-go/vai-mentor/pkg/core/transcript"
)

const (
	// VoiceKey holds the voice mentor's transcript.
	VoiceKey = "ai-mentor-conversation-history"
	// ChatKey holds the text mentor's transcript.
	ChatKey = "gaia-conversation-history"
)

// ErrNotFound is returned by Load when the key holds nothing.
var ErrNotFound = errors.New("history: not found")

// Store is a key-value store of transcripts.
type Store interface {
	Load(ctx context.Context, key string) ([]transcript.Turn, error)
	Save(ctx context.Context, key string, turns []transcript.Turn) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Pinger is implemented by stores backed by a remote service or directory.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks s when it implements Pinger.
func Ping(ctx context.Context, s Store) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// StoreType names a backend.
type StoreType string

const (
	StoreTypeMemory   StoreType = "memory"
	StoreTypeFile     StoreType = "file"
	StoreTypeRedis    StoreType = "redis"
	StoreTypeSQLite   StoreType = "sqlite"
	StoreTypePostgres StoreType = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Type StoreType `json:"type" yaml:"type"`

	// Dir is the directory used by the file backend.
	Dir string `json:"dir" yaml:"dir"`

	// DSN is the sqlite path or postgres connection string.
	DSN string `json:"dsn" yaml:"dsn"`

	Redis RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr      string        `json:"addr" yaml:"addr"`
	Password  string        `json:"password" yaml:"password"`
	DB        int           `json:"db" yaml:"db"`
	KeyPrefix string        `json:"key_prefix" yaml:"key_prefix"`
	TTL       time.Duration `json:"ttl" yaml:"ttl"`
}

// LoadTranscript returns the stored transcript, or an empty one when the key
// is absent.
func LoadTranscript(ctx context.Context, s Store, key string) ([]transcript.Turn, error) {
	turns, err := s.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return []transcript.Turn{}, nil
	}
	if err != nil {
		return nil, core.NewPersistenceError("load "+key, err)
	}
	return turns, nil
}

// SaveTranscript writes turns under key; an empty transcript deletes the key
// instead of storing an empty array.
func SaveTranscript(ctx context.Context, s Store, key string, turns []transcript.Turn) error {
	var err error
	if len(turns) == 0 {
		err = s.Delete(ctx, key)
	} else {
		err = s.Save(ctx, key, turns)
	}
	if err != nil {
		return core.NewPersistenceError("save "+key, err)
	}
	return nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("history: key must not be empty")
	}
	return nil
}

func encodeTurns(turns []transcript.Turn) ([]byte, error) {
	data, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("history: encode: %w", err)
	}
	return data, nil
}

func decodeTurns(data []byte) ([]transcript.Turn, error) {
	var turns []transcript.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("history: decode: %w", err)
	}
	if turns == nil {
		turns = []transcript.Turn{}
	}
	return turns, nil
}
