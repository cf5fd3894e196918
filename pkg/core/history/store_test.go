package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-mentor/pkg/core"
	"github.com/vango-go/vai-mentor/pkg/core/transcript"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "history"))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	redisStore, err := NewRedisStore(RedisConfig{Addr: mr.Addr(), KeyPrefix: "test:"})
	require.NoError(t, err)

	sqlStore, err := OpenSQLStore(StoreTypeSQLite, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"redis":  redisStore,
		"sqlite": sqlStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func sampleTurns() []transcript.Turn {
	return []transcript.Turn{
		{Speaker: transcript.SpeakerUser, Text: "How do I price my SaaS?"},
		{Speaker: transcript.SpeakerModel, Text: "Start from the value metric."},
	}
}

func TestStores_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save(ctx, VoiceKey, sampleTurns()))

			got, err := s.Load(ctx, VoiceKey)
			require.NoError(t, err)
			assert.Equal(t, sampleTurns(), got)

			// Overwrite keeps a single value per key.
			require.NoError(t, s.Save(ctx, VoiceKey, sampleTurns()[:1]))
			got, err = s.Load(ctx, VoiceKey)
			require.NoError(t, err)
			assert.Len(t, got, 1)
		})
	}
}

func TestStores_MissingKey(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(ctx, "never-written")
			assert.True(t, errors.Is(err, ErrNotFound), "err=%v", err)

			// Deleting an absent key is not an error.
			assert.NoError(t, s.Delete(ctx, "never-written"))
		})
	}
}

func TestStores_EmptyTranscriptDeletesKey(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, SaveTranscript(ctx, s, ChatKey, sampleTurns()))
			require.NoError(t, SaveTranscript(ctx, s, ChatKey, nil))

			_, err := s.Load(ctx, ChatKey)
			assert.True(t, errors.Is(err, ErrNotFound), "err=%v", err)

			turns, err := LoadTranscript(ctx, s, ChatKey)
			require.NoError(t, err)
			assert.NotNil(t, turns)
			assert.Empty(t, turns)
		})
	}
}

func TestStores_RejectEmptyKey(t *testing.T) {
	ctx := context.Background()
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Save(ctx, " ", sampleTurns()))
			_, err := s.Load(ctx, "")
			assert.Error(t, err)
		})
	}
}

func TestRedisStore_UsesPrefixedKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, "", 0)
	defer s.Close()

	require.NoError(t, s.Save(context.Background(), VoiceKey, sampleTurns()))
	assert.True(t, mr.Exists("vai-mentor:history:"+VoiceKey))
	require.NoError(t, s.Ping(context.Background()))
}

func TestRedisStore_ConnectFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisStore(RedisConfig{Addr: addr})
	assert.Error(t, err)
}

type failingStore struct{ *MemoryStore }

func (failingStore) Save(context.Context, string, []transcript.Turn) error {
	return errors.New("disk full")
}

func (failingStore) Load(context.Context, string) ([]transcript.Turn, error) {
	return nil, errors.New("corrupt")
}

func TestTranscriptHelpers_WrapAsPersistenceErrors(t *testing.T) {
	s := failingStore{MemoryStore: NewMemoryStore()}

	err := SaveTranscript(context.Background(), s, VoiceKey, sampleTurns())
	require.Error(t, err)
	assert.True(t, core.IsType(err, core.ErrPersistence))

	_, err = LoadTranscript(context.Background(), s, VoiceKey)
	require.Error(t, err)
	assert.True(t, core.IsType(err, core.ErrPersistence))
}

func TestNewStore_Factory(t *testing.T) {
	s, err := NewStore(Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStore(Config{Type: StoreTypeFile, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = NewStore(Config{Type: "etcd"})
	assert.Error(t, err)

	_, err = NewStore(Config{Type: StoreTypePostgres})
	assert.Error(t, err)
}

func TestFileStore_EscapesKeys(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), "../escape", sampleTurns()))
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestPing(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, Ping(context.Background(), s))
		})
	}

	mr := miniredis.RunT(t)
	redisStore, err := NewRedisStore(RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer redisStore.Close()
	mr.Close()
	assert.Error(t, Ping(context.Background(), redisStore))

	dir := filepath.Join(t.TempDir(), "gone")
	fileStore, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.Remove(dir))
	assert.Error(t, Ping(context.Background(), fileStore))
}
