package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestStores(t *testing.T) {
	redisStore, _ := newRedisStore(t, time.Hour)
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			got, err := s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.Equal(t, StatusNotFound, got.Status)

			require.NoError(t, s.Put(ctx, "j1", Result{Status: StatusProcessing, Kind: KindPriorArt}))
			got, err = s.Get(ctx, "j1")
			require.NoError(t, err)
			assert.Equal(t, StatusProcessing, got.Status)
			assert.Equal(t, KindPriorArt, got.Kind)
			assert.False(t, got.UpdatedAt.IsZero())

			require.NoError(t, s.Put(ctx, "j1", Result{Status: StatusDone, Kind: KindPriorArt, Report: "# Report"}))
			got, err = s.Get(ctx, "j1")
			require.NoError(t, err)
			assert.Equal(t, StatusDone, got.Status)
			assert.Equal(t, "# Report", got.Report)
		})
	}
}

func TestRedisStoreExpiresResults(t *testing.T) {
	s, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "j1", Result{Status: StatusDone, Report: "r"}))
	require.NoError(t, s.Ping(ctx))

	mr.FastForward(2 * time.Minute)
	got, err := s.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, got.Status)
}

func TestKindValid(t *testing.T) {
	assert.True(t, KindDraft.Valid())
	assert.False(t, Kind("classify").Valid())
}
