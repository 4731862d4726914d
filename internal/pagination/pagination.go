// Package pagination keeps a per-user "load more" cursor over a newest-first list.
//
// Cursors live in process memory only and can be dropped at any time. Losing one
// only means the next page starts from the beginning again.
package pagination

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PageSize is the number of records returned per call
const PageSize = 10

// Fetcher reads up to limit records starting at skip
type Fetcher[T any] func(ctx context.Context, skip, limit int) ([]T, error)

// Page is one step of a cursor walk. Skip is the cursor position after the step.
type Page[T any] struct {
	Items     []T  `json:"items"`
	Exhausted bool `json:"exhausted"`
	Skip      int  `json:"skip"`
}

type cursor struct {
	mu        sync.Mutex
	skip      int
	exhausted bool
}

// Cache holds cursors keyed by user id. Entries idle longer than the TTL, or
// pushed out by size, are evicted.
type Cache[T any] struct {
	mu      sync.Mutex
	cursors *expirable.LRU[string, *cursor]
}

// New creates a cursor cache holding at most size users
func New[T any](size int, ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		cursors: expirable.NewLRU[string, *cursor](size, nil, ttl),
	}
}

// get returns the user's cursor, creating it lazily. Re-adding refreshes the TTL
// so expiry tracks inactivity.
func (c *Cache[T]) get(userID string) *cursor {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.cursors.Get(userID)
	if !ok {
		cur = &cursor{}
	}
	c.cursors.Add(userID, cur)
	return cur
}

// Next returns the next page for userID.
//
// An empty page marks the cursor exhausted and is returned with Exhausted set;
// the position is left as is. The call after that starts over from the first
// page.
func (c *Cache[T]) Next(ctx context.Context, userID string, fetch Fetcher[T]) (Page[T], error) {
	cur := c.get(userID)
	cur.mu.Lock()
	defer cur.mu.Unlock()

	if cur.exhausted {
		cur.skip = 0
		cur.exhausted = false
	}

	items, err := fetch(ctx, cur.skip, PageSize)
	if err != nil {
		return Page[T]{Skip: cur.skip}, err
	}

	if len(items) == 0 {
		cur.exhausted = true
		return Page[T]{Items: items, Exhausted: true, Skip: cur.skip}, nil
	}

	cur.skip += len(items)
	return Page[T]{Items: items, Skip: cur.skip}, nil
}

// Reset drops the user's cursor
func (c *Cache[T]) Reset(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors.Remove(userID)
}

// Len returns the number of live cursors
func (c *Cache[T]) Len() int {
	return c.cursors.Len()
}
