package presence

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/beacon/internal/cache"
)

// registryContract runs the behaviour every backend must share
func registryContract(t *testing.T, newRegistry func() Registry) {
	ctx := context.Background()

	t.Run("register and lookup", func(t *testing.T) {
		r := newRegistry()
		user := uuid.NewString()
		require.NoError(t, r.Register(ctx, user, "h1"+user))

		h, ok := r.Lookup(ctx, user)
		assert.True(t, ok)
		assert.Equal(t, "h1"+user, h)

		_, ok = r.Lookup(ctx, "nobody-"+user)
		assert.False(t, ok)
	})

	t.Run("stale unregister keeps newer handle", func(t *testing.T) {
		r := newRegistry()
		user := uuid.NewString()
		a, b := "A"+user, "B"+user

		require.NoError(t, r.Register(ctx, user, a))
		require.NoError(t, r.Register(ctx, user, b))
		require.NoError(t, r.Unregister(ctx, a))

		h, ok := r.Lookup(ctx, user)
		assert.True(t, ok)
		assert.Equal(t, b, h)

		require.NoError(t, r.Unregister(ctx, b))
		_, ok = r.Lookup(ctx, user)
		assert.False(t, ok)
	})

	t.Run("unknown handle is a no-op", func(t *testing.T) {
		r := newRegistry()
		assert.NoError(t, r.Unregister(ctx, "never-registered-"+uuid.NewString()))
	})

	t.Run("handle re-identified as another user", func(t *testing.T) {
		r := newRegistry()
		u1, u2 := uuid.NewString(), uuid.NewString()
		h := "H" + u1

		require.NoError(t, r.Register(ctx, u1, h))
		require.NoError(t, r.Register(ctx, u2, h))

		_, ok := r.Lookup(ctx, u1)
		assert.False(t, ok)
		got, ok := r.Lookup(ctx, u2)
		assert.True(t, ok)
		assert.Equal(t, h, got)
	})

	t.Run("empty ids rejected", func(t *testing.T) {
		r := newRegistry()
		assert.ErrorIs(t, r.Register(ctx, "", "h"), ErrEmptyID)
		assert.ErrorIs(t, r.Register(ctx, "u", ""), ErrEmptyID)
	})
}

func TestMemoryRegistry(t *testing.T) {
	registryContract(t, func() Registry { return NewMemoryRegistry() })
}

func TestMemoryRegistryConcurrentAccess(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i%10)
			handle := fmt.Sprintf("handle-%d", i)
			_ = r.Register(ctx, user, handle)
			r.Lookup(ctx, user)
			if i%3 == 0 {
				_ = r.Unregister(ctx, handle)
			}
		}(i)
	}
	wg.Wait()

	// every surviving entry points at a handle whose reverse entry agrees
	r.mu.Lock()
	defer r.mu.Unlock()
	for user, handle := range r.byUser {
		assert.Equal(t, user, r.byHandle[handle])
	}
	assert.LessOrEqual(t, len(r.byUser), 10)
}

func TestRedisRegistry(t *testing.T) {
	host := os.Getenv("REDIS_HOST")
	client, err := cache.NewRedisClient(host, os.Getenv("REDIS_PORT"), os.Getenv("REDIS_PASSWORD"))
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.Close()

	registryContract(t, func() Registry { return NewRedisRegistry(client) })
}
