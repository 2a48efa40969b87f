package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionData(t *testing.T) {
	sess := NewSession("s1", time.Hour)
	assert.False(t, sess.IsExpired())

	sess.Set("cart", map[string]interface{}{"items": []interface{}{"a"}})
	sess.Set("cart.flat", "flat")

	v, ok := sess.Get("cart.items")
	require.True(t, ok)
	assert.Equal(t, []interface{}{"a"}, v)

	v, ok = sess.Get("cart.flat")
	require.True(t, ok)
	assert.Equal(t, "flat", v)

	_, ok = sess.Get("cart.missing")
	assert.False(t, ok)

	sess.Delete("cart")
	_, ok = sess.Get("cart.items")
	assert.False(t, ok)

	expired := NewSession("s2", -time.Second)
	assert.True(t, expired.IsExpired())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	defer store.Close()

	sess := NewSession("s1", time.Hour)
	sess.Auth = &Auth{Role: "admin", User: "u1"}
	require.NoError(t, store.Set(ctx, "s1", sess, time.Hour))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "admin", got.Auth.Role)

	_, err = store.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, store.Refresh(ctx, "nope", time.Hour), ErrSessionNotFound)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	defer store.Close()

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "a", NewSession("a", time.Minute), time.Minute))
	require.NoError(t, store.Set(ctx, "b", NewSession("b", time.Hour), time.Hour))

	now = now.Add(2 * time.Minute)
	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrSessionExpired)

	require.NoError(t, store.Set(ctx, "c", NewSession("c", time.Minute), time.Minute))
	require.NoError(t, store.Refresh(ctx, "c", time.Hour))
	now = now.Add(30 * time.Minute)
	store.sweep()

	assert.Equal(t, 2, store.Count())
	_, err = store.Get(ctx, "c")
	assert.NoError(t, err)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
	assert.Zero(t, store.Count())
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	require.NoError(t, store.Ping(ctx))

	sess := NewSession("s1", time.Hour)
	sess.Auth = &Auth{Role: "user", User: "u1", Permissions: []Permission{
		{Resolvers: []string{"order.one"}, Entities: []string{"42"}},
	}}
	sess.Set("theme", "dark")
	require.NoError(t, store.Set(ctx, "s1", sess, time.Hour))
	assert.True(t, mr.Exists("mirkwood:session:s1"))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sess.Auth, got.Auth)
	assert.Equal(t, "dark", got.Data["theme"])

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, store.Refresh(ctx, "s1", 10*time.Second))
	assert.Equal(t, 10*time.Second, mr.TTL("mirkwood:session:s1"))
	assert.ErrorIs(t, store.Refresh(ctx, "missing", time.Hour), ErrSessionNotFound)

	mr.FastForward(11 * time.Second)
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStoreExpiredPayload(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, store.Set(ctx, "old", NewSession("old", -time.Minute), time.Hour))
	_, err := store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.False(t, mr.Exists("mirkwood:session:old"))

	require.NoError(t, store.Delete(ctx, "old"))
}

func TestRedisStoreCorruptPayload(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, mr.Set("mirkwood:session:bad", "{not json"))

	_, err := store.Get(context.Background(), "bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}
