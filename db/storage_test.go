package db_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/habedi/wanderlist/db"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb
}

func TestRedisStorage_WriteReadRemove(t *testing.T) {
	mr, rdb := newTestRedis(t)
	storage := db.NewRedisStorage(rdb, "")
	t.Cleanup(func() { _ = storage.Close() })
	ctx := context.Background()

	_, ok, err := storage.Read(ctx, "wanderlist.access_token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, storage.Write(ctx, "wanderlist.access_token", "abc"))
	assert.True(t, mr.Exists(db.DefaultRedisPrefix+"wanderlist.access_token"))

	value, ok, err := storage.Read(ctx, "wanderlist.access_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", value)

	require.NoError(t, storage.Remove(ctx, "wanderlist.access_token"))
	require.NoError(t, storage.Remove(ctx, "wanderlist.access_token"))
	assert.False(t, mr.Exists(db.DefaultRedisPrefix+"wanderlist.access_token"))
}

func TestRedisStorage_CustomPrefix(t *testing.T) {
	mr, rdb := newTestRedis(t)
	storage := db.NewRedisStorage(rdb, "tenant-a:")
	require.NoError(t, storage.Write(context.Background(), "k", "v"))
	got, err := mr.Get("tenant-a:k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestOpen_Redis(t *testing.T) {
	mr, _ := newTestRedis(t)
	storage, err := db.Open(context.Background(), db.Options{Backend: db.BackendRedis, RedisAddr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	require.NoError(t, storage.Write(context.Background(), "k", "v"))
}

func TestOpen_RedisUnreachable(t *testing.T) {
	mr, _ := newTestRedis(t)
	addr := mr.Addr()
	mr.Close()
	_, err := db.Open(context.Background(), db.Options{Backend: db.BackendRedis, RedisAddr: addr})
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	db.Path = filepath.Join(t.TempDir(), "session.db")
	storage, err := db.Open(context.Background(), db.Options{Backend: db.BackendSQLite})
	require.NoError(t, err)
	require.NoError(t, storage.Write(context.Background(), "k", "v"))
	assert.NoError(t, storage.Close())
}

func TestOpen_Memory(t *testing.T) {
	storage, err := db.Open(context.Background(), db.Options{Backend: db.BackendMemory})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, storage.Write(ctx, "k", "v"))
	value, ok, err := storage.Read(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", value)
	require.NoError(t, storage.Remove(ctx, "k"))
	_, ok, _ = storage.Read(ctx, "k")
	assert.False(t, ok)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := db.Open(context.Background(), db.Options{Backend: "etcd"})
	assert.ErrorContains(t, err, "unknown storage backend")
}

func TestRedisStorage_Apply(t *testing.T) {
	mr, rdb := newTestRedis(t)
	storage := db.NewRedisStorage(rdb, "")
	ctx := context.Background()
	require.NoError(t, storage.Write(ctx, "wanderlist.expires_at", "2030-01-01T00:00:00Z"))

	require.NoError(t, storage.Apply(ctx, db.Batch{
		Writes:  map[string]string{"wanderlist.access_token": "a", "wanderlist.refresh_token": "r"},
		Removes: []string{"wanderlist.expires_at"},
	}))
	got, err := mr.Get(db.DefaultRedisPrefix + "wanderlist.access_token")
	require.NoError(t, err)
	assert.Equal(t, "a", got)
	got, err = mr.Get(db.DefaultRedisPrefix + "wanderlist.refresh_token")
	require.NoError(t, err)
	assert.Equal(t, "r", got)
	assert.False(t, mr.Exists(db.DefaultRedisPrefix+"wanderlist.expires_at"))
}

func TestMemoryStorage_Apply(t *testing.T) {
	storage := db.NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, storage.Write(ctx, "gone", "x"))

	require.NoError(t, storage.Apply(ctx, db.Batch{Writes: map[string]string{"k": "v"}, Removes: []string{"gone", "never-there"}}))
	value, ok, err := storage.Read(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", value)
	_, ok, _ = storage.Read(ctx, "gone")
	assert.False(t, ok)
}
