package statestore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendCase builds a fresh backend and a function that moves its clock.
type backendCase struct {
	name string
	open func(t *testing.T) (Backend, func(time.Duration))
}

func backendCases() []backendCase {
	return []backendCase{
		{
			name: "memory",
			open: func(t *testing.T) (Backend, func(time.Duration)) {
				b := NewMemoryBackend()
				clock := newFakeClock()
				b.now = clock.Now
				return b, clock.Advance
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T) (Backend, func(time.Duration)) {
				b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "state.db"))
				require.NoError(t, err)
				t.Cleanup(func() { b.Close() })
				clock := newFakeClock()
				b.now = clock.Now
				return b, clock.Advance
			},
		},
		{
			name: "redis",
			open: func(t *testing.T) (Backend, func(time.Duration)) {
				mr := miniredis.RunT(t)
				client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				b := NewRedisBackendFromClient(client, "")
				t.Cleanup(func() { b.Close() })
				return b, mr.FastForward
			},
		},
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBackends(t *testing.T) {
	ctx := context.Background()

	for _, bc := range backendCases() {
		t.Run(bc.name, func(t *testing.T) {
			t.Run("save and load", func(t *testing.T) {
				b, _ := bc.open(t)
				require.NoError(t, b.Save(ctx, "workflow:1", []byte(`{"a":1}`), 0))

				data, err := b.Load(ctx, "workflow:1")
				require.NoError(t, err)
				assert.JSONEq(t, `{"a":1}`, string(data))
			})

			t.Run("save overwrites", func(t *testing.T) {
				b, _ := bc.open(t)
				require.NoError(t, b.Save(ctx, "k", []byte("v1"), 0))
				require.NoError(t, b.Save(ctx, "k", []byte("v2"), 0))

				data, err := b.Load(ctx, "k")
				require.NoError(t, err)
				assert.Equal(t, []byte("v2"), data)
			})

			t.Run("load missing", func(t *testing.T) {
				b, _ := bc.open(t)
				_, err := b.Load(ctx, "missing")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("exists and delete", func(t *testing.T) {
				b, _ := bc.open(t)
				require.NoError(t, b.Save(ctx, "k", []byte("v"), 0))

				ok, err := b.Exists(ctx, "k")
				require.NoError(t, err)
				assert.True(t, ok)

				require.NoError(t, b.Delete(ctx, "k"))
				ok, err = b.Exists(ctx, "k")
				require.NoError(t, err)
				assert.False(t, ok)

				assert.NoError(t, b.Delete(ctx, "k"), "deleting a missing key")
			})

			t.Run("list by pattern", func(t *testing.T) {
				b, _ := bc.open(t)
				for _, k := range []string{"workflow:b", "workflow:a", "node:a:x", "workflow:c/1"} {
					require.NoError(t, b.Save(ctx, k, []byte("v"), 0))
				}

				keys, err := b.List(ctx, "workflow:*")
				require.NoError(t, err)
				assert.Equal(t, []string{"workflow:a", "workflow:b", "workflow:c/1"}, keys)

				keys, err = b.List(ctx, "workflow:?")
				require.NoError(t, err)
				assert.Equal(t, []string{"workflow:a", "workflow:b"}, keys)

				keys, err = b.List(ctx, "*")
				require.NoError(t, err)
				assert.Len(t, keys, 4)

				keys, err = b.List(ctx, "none:*")
				require.NoError(t, err)
				assert.Empty(t, keys)
			})

			t.Run("ttl expiry", func(t *testing.T) {
				b, advance := bc.open(t)
				require.NoError(t, b.Save(ctx, "short", []byte("v"), time.Minute))
				require.NoError(t, b.Save(ctx, "forever", []byte("v"), 0))

				ok, err := b.Exists(ctx, "short")
				require.NoError(t, err)
				assert.True(t, ok)

				advance(2 * time.Minute)

				_, err = b.Load(ctx, "short")
				assert.ErrorIs(t, err, ErrNotFound)
				ok, err = b.Exists(ctx, "short")
				require.NoError(t, err)
				assert.False(t, ok)

				keys, err := b.List(ctx, "*")
				require.NoError(t, err)
				assert.Equal(t, []string{"forever"}, keys)
			})

			t.Run("concurrent access", func(t *testing.T) {
				b, _ := bc.open(t)
				var wg sync.WaitGroup
				for i := 0; i < 20; i++ {
					wg.Add(1)
					go func(id int) {
						defer wg.Done()
						key := fmt.Sprintf("workflow:%d", id)
						assert.NoError(t, b.Save(ctx, key, []byte("v"), 0))
						_, err := b.Load(ctx, key)
						assert.NoError(t, err)
					}(i)
				}
				wg.Wait()

				keys, err := b.List(ctx, "workflow:*")
				require.NoError(t, err)
				assert.Len(t, keys, 20)
			})
		})
	}
}

func TestMemoryBackend_Closed(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Save(ctx, "k", nil, 0), ErrClosed)
	_, err := b.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = b.List(ctx, "*")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryBackend_CopiesValues(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	value := []byte("abc")
	require.NoError(t, b.Save(ctx, "k", value, 0))
	value[0] = 'z'

	data, err := b.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
}

func TestCleanupExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		b := NewMemoryBackend()
		clock := newFakeClock()
		b.now = clock.Now
		require.NoError(t, b.Save(ctx, "a", []byte("v"), time.Second))
		require.NoError(t, b.Save(ctx, "b", []byte("v"), 0))
		clock.Advance(time.Minute)

		n, err := b.CleanupExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Equal(t, 1, b.Len())
	})

	t.Run("sqlite", func(t *testing.T) {
		b, err := NewSQLiteBackend(":memory:")
		require.NoError(t, err)
		defer b.Close()
		clock := newFakeClock()
		b.now = clock.Now
		require.NoError(t, b.Save(ctx, "a", []byte("v"), time.Second))
		require.NoError(t, b.Save(ctx, "b", []byte("v"), 0))
		clock.Advance(time.Minute)

		n, err := b.CleanupExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestSQLiteBackend_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	b1, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	require.NoError(t, b1.Save(ctx, "workflow:run-1", []byte("persistent"), 0))
	require.NoError(t, b1.Close())
	assert.NoError(t, b1.Close(), "close is idempotent")

	b2, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	defer b2.Close()
	data, err := b2.Load(ctx, "workflow:run-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("persistent"), data)
}

func TestSQLiteBackend_InvalidPath(t *testing.T) {
	_, err := NewSQLiteBackend("/nonexistent/path/state.db")
	assert.Error(t, err)
}

func TestRedisBackend_Prefix(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	b := NewRedisBackendFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "custom:")
	defer b.Close()

	require.NoError(t, b.Save(ctx, "workflow:1", []byte("v"), time.Hour))
	assert.True(t, mr.Exists("custom:workflow:1"))
	assert.Equal(t, time.Hour, mr.TTL("custom:workflow:1"))

	require.NoError(t, b.Ping(ctx))
}

func TestNewRedisBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("connects", func(t *testing.T) {
		mr := miniredis.RunT(t)
		b, err := NewRedisBackend(ctx, RedisOptions{Addr: mr.Addr()})
		require.NoError(t, err)
		defer b.Close()
		require.NoError(t, b.Save(ctx, "k", []byte("v"), 0))
		assert.True(t, mr.Exists(DefaultRedisPrefix+"k"))
	})

	t.Run("unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		_, err := NewRedisBackend(ctx, RedisOptions{Addr: addr})
		assert.Error(t, err)
	})
}

func TestGlobToLike(t *testing.T) {
	tests := []struct {
		glob string
		want string
	}{
		{"*", "%"},
		{"workflow:*", "workflow:%"},
		{"node:?:x", "node:_:x"},
		{"a_b%c", `a\_b\%c`},
	}
	for _, tt := range tests {
		t.Run(tt.glob, func(t *testing.T) {
			assert.Equal(t, tt.want, globToLike(tt.glob))
		})
	}
}
