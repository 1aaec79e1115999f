package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultCapacity bounds the in-memory cache when the caller does not
// choose one.
const DefaultCapacity = 256

// Memory is a thread-safe LRU cache with per-entry TTL.
type Memory struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	lru      *list.List
	now      func() time.Time
}

type memoryEntry struct {
	key       string
	value     string
	expiresAt time.Time
}

// NewMemory creates an in-memory cache holding at most capacity
// entries; the least recently used entry is evicted first.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		lru:      list.New(),
		now:      time.Now,
	}
}

// Get retrieves a live value, refreshing its recency. Expired entries
// are removed on access.
func (c *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return "", false, nil
	}

	ent := elem.Value.(*memoryEntry)
	if !ent.expiresAt.IsZero() && c.now().After(ent.expiresAt) {
		c.lru.Remove(elem)
		delete(c.items, key)
		return "", false, nil
	}

	c.lru.MoveToFront(elem)
	return ent.value, true, nil
}

// Set adds or updates a value, evicting the oldest entry when over
// capacity.
func (c *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		ent := elem.Value.(*memoryEntry)
		ent.value = value
		ent.expiresAt = expiresAt
		return nil
	}

	elem := c.lru.PushFront(&memoryEntry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.items, oldest.Value.(*memoryEntry).key)
		}
	}
	return nil
}

// Delete removes the entry if present.
func (c *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.Remove(elem)
		delete(c.items, key)
	}
	return nil
}

// IsExpired reports whether key is absent or past its TTL, without
// refreshing recency.
func (c *Memory) IsExpired(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return true, nil
	}
	ent := elem.Value.(*memoryEntry)
	return !ent.expiresAt.IsZero() && c.now().After(ent.expiresAt), nil
}

// Len returns the number of stored entries, expired ones included.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
