package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStorage(client, 30*time.Minute), mr
}

func TestRedisStorage_RoundTrip(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := store.Load(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, "s1", []byte(`{"version":1,"items":[]}`)))
	assert.True(t, mr.Exists("cart:s1"))
	assert.Equal(t, 30*time.Minute, mr.TTL("cart:s1"))

	data, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"items":[]}`, string(data))

	require.NoError(t, store.Delete(ctx, "s1"))
	assert.False(t, mr.Exists("cart:s1"))
	require.NoError(t, store.Delete(ctx, "s1"))
}

func TestRedisStorage_BackedLedger(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	l := Open(ctx, store, "shopper", zerolog.Nop())
	_, err := l.Add(ctx, product("1", 450, 10, 25), 2)
	require.NoError(t, err)

	reloaded := Open(ctx, store, "shopper", zerolog.Nop())
	require.Len(t, reloaded.Items(), 1)
	assert.Equal(t, 2, reloaded.Items()[0].Quantity)

	require.NoError(t, mr.Set("cart:shopper", "garbage"))
	assert.True(t, Open(ctx, store, "shopper", zerolog.Nop()).IsEmpty())
}

func TestRedisStorage_Unavailable(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.Close()

	_, err := store.Load(context.Background(), "s1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
