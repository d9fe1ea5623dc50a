package idempotency

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestGetMissingKey(t *testing.T) {
	store, _ := newStore(t)

	rec, err := store.Get(context.Background(), "never-seen")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestPutThenGet(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	in := &Record{
		Status:   "queued",
		Response: json.RawMessage(`{"submission_id":"sub-1","status":"queued"}`),
		StoredAt: time.Now().Unix(),
	}
	require.NoError(t, store.Put(ctx, "key-1", in, time.Hour))

	out, err := store.Get(ctx, "key-1")
	require.NoError(t, err)
	require.Equal(t, in.Status, out.Status)
	require.JSONEq(t, string(in.Response), string(out.Response))

	// Replay must be byte-exact, not just JSON-equal.
	require.Equal(t, []byte(in.Response), []byte(out.Response))

	ttl := mr.TTL(store.Key("key-1"))
	require.Equal(t, time.Hour, ttl)
}

func TestPutDefaultTTL(t *testing.T) {
	store, mr := newStore(t)

	require.NoError(t, store.Put(context.Background(), "key-2", &Record{Status: "queued"}, 0))
	require.Equal(t, DefaultTTL, mr.TTL(store.Key("key-2")))
}

func TestGetExpiredKey(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "key-3", &Record{Status: "queued"}, time.Minute))
	mr.FastForward(2 * time.Minute)

	rec, err := store.Get(ctx, "key-3")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestGetBackendDown(t *testing.T) {
	store, mr := newStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "key-4")
	require.Error(t, err)
}

func TestEmptyKey(t *testing.T) {
	store, _ := newStore(t)

	rec, err := store.Get(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, rec)

	require.Error(t, store.Put(context.Background(), "", &Record{}, time.Hour))
}
