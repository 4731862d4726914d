package pagination

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listFetcher serves a fixed newest-first list of n integers (n, n-1, ... 1)
func listFetcher(n int) Fetcher[int] {
	return func(_ context.Context, skip, limit int) ([]int, error) {
		out := []int{}
		for i := skip; i < n && len(out) < limit; i++ {
			out = append(out, n-i)
		}
		return out, nil
	}
}

func TestNextWalksAndWrapsAround(t *testing.T) {
	c := New[int](100, time.Minute)
	ctx := context.Background()
	fetch := listFetcher(25)

	p, err := c.Next(ctx, "bob", fetch)
	require.NoError(t, err)
	assert.Len(t, p.Items, 10)
	assert.Equal(t, 25, p.Items[0])
	assert.Equal(t, 10, p.Skip)

	p, err = c.Next(ctx, "bob", fetch)
	require.NoError(t, err)
	assert.Len(t, p.Items, 10)
	assert.Equal(t, 20, p.Skip)

	p, err = c.Next(ctx, "bob", fetch)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 4, 3, 2, 1}, p.Items)
	assert.False(t, p.Exhausted)
	assert.Equal(t, 25, p.Skip)

	p, err = c.Next(ctx, "bob", fetch)
	require.NoError(t, err)
	assert.Empty(t, p.Items)
	assert.True(t, p.Exhausted)
	assert.Equal(t, 25, p.Skip, "exhaustion does not reset the position")

	p, err = c.Next(ctx, "bob", fetch)
	require.NoError(t, err)
	assert.Len(t, p.Items, 10)
	assert.Equal(t, 25, p.Items[0])
	assert.Equal(t, 10, p.Skip)
}

func TestCursorsArePerUser(t *testing.T) {
	c := New[int](100, time.Minute)
	ctx := context.Background()

	_, err := c.Next(ctx, "bob", listFetcher(25))
	require.NoError(t, err)

	p, err := c.Next(ctx, "carol", listFetcher(3))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, p.Items)
	assert.Equal(t, 2, c.Len())
}

func TestFetchErrorLeavesCursor(t *testing.T) {
	c := New[int](100, time.Minute)
	ctx := context.Background()

	_, err := c.Next(ctx, "bob", listFetcher(25))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = c.Next(ctx, "bob", func(context.Context, int, int) ([]int, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	p, err := c.Next(ctx, "bob", listFetcher(25))
	require.NoError(t, err)
	assert.Equal(t, 15, p.Items[0])
}

func TestEvictionRestartsFromFirstPage(t *testing.T) {
	c := New[int](1, time.Minute)
	ctx := context.Background()

	_, err := c.Next(ctx, "bob", listFetcher(25))
	require.NoError(t, err)
	_, err = c.Next(ctx, "carol", listFetcher(25))
	require.NoError(t, err)

	p, err := c.Next(ctx, "bob", listFetcher(25))
	require.NoError(t, err)
	assert.Equal(t, 25, p.Items[0])
}

func TestIdleExpiryRestartsFromFirstPage(t *testing.T) {
	c := New[int](10, 50*time.Millisecond)
	ctx := context.Background()

	_, err := c.Next(ctx, "bob", listFetcher(25))
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)

	p, err := c.Next(ctx, "bob", listFetcher(25))
	require.NoError(t, err)
	assert.Equal(t, 25, p.Items[0])
}

func TestReset(t *testing.T) {
	c := New[int](10, time.Minute)
	ctx := context.Background()

	_, err := c.Next(ctx, "bob", listFetcher(25))
	require.NoError(t, err)
	c.Reset("bob")

	p, err := c.Next(ctx, "bob", listFetcher(25))
	require.NoError(t, err)
	assert.Equal(t, 10, p.Skip)
}

func TestConcurrentNextAdvancesSerially(t *testing.T) {
	c := New[int](10, time.Minute)
	ctx := context.Background()
	fetch := listFetcher(1000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Next(ctx, "bob", fetch)
		}()
	}
	wg.Wait()

	p, err := c.Next(ctx, "bob", fetch)
	require.NoError(t, err)
	assert.Equal(t, 210, p.Skip)
}
