package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is an in-process UserCache with per-entry expiry. Values go
// through JSON the same way the Redis backend stores them, so both
// backends hand callers identical semantics.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	ttl   time.Duration
}

var _ UserCache = (*MemoryCache)(nil)

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &MemoryCache{items: make(map[string]memoryItem), ttl: ttl}
}

func (c *MemoryCache) Get(_ context.Context, userID uuid.UUID, key string, dest any) (bool, error) {
	k := userKey(userID, key)

	c.mu.RLock()
	it, ok := c.items[k]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(it.expiresAt) {
		c.mu.Lock()
		if cur, ok2 := c.items[k]; ok2 && time.Now().After(cur.expiresAt) {
			delete(c.items, k)
		}
		c.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(it.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *MemoryCache) Set(_ context.Context, userID uuid.UUID, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[userKey(userID, key)] = memoryItem{data: b, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) InvalidateUser(_ context.Context, userID uuid.UUID) error {
	prefix := userPrefix(userID)
	c.mu.Lock()
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
	return nil
}
