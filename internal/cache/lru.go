// Package cache provides the summary cache: an in-process LRU, Redis, or both.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/contas/internal/domain"
)

// LRUCache keeps values in process and evicts the least recently used entry
// past maxSize. It is the Community tier cache and L1 of TwoPhaseCache.
type LRUCache struct {
	mu      sync.RWMutex
	maxSize int
	recency *list.List

	// tenants indexes entries by tenant, then by key within the tenant.
	tenants map[string]map[string]*list.Element
}

type lruEntry struct {
	tenantID string
	key      string
	value    []byte
	deadline time.Time
}

func (e *lruEntry) stale(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// deadlineFor returns when an entry stored now with ttl goes stale; zero means never.
func deadlineFor(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// NewLRUCache creates an LRU cache holding at most maxSize entries.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize: maxSize,
		recency: list.New(),
		tenants: make(map[string]map[string]*list.Element),
	}
}

// Get returns the tenant's value for key, or nil when absent or stale.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem := c.tenants[tenantID][key]
	if elem == nil {
		return nil, nil
	}
	entry := elem.Value.(*lruEntry)
	if entry.stale(time.Now()) {
		c.drop(elem)
		return nil, nil
	}

	c.recency.MoveToFront(elem)
	return entry.value, nil
}

// Set stores value under the tenant's key. A non-positive ttl never expires.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.tenants[tenantID]
	if keys == nil {
		keys = make(map[string]*list.Element)
		c.tenants[tenantID] = keys
	}

	if elem := keys[key]; elem != nil {
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.deadline = deadlineFor(ttl)
		c.recency.MoveToFront(elem)
		return nil
	}

	keys[key] = c.recency.PushFront(&lruEntry{
		tenantID: tenantID,
		key:      key,
		value:    value,
		deadline: deadlineFor(ttl),
	})
	for c.recency.Len() > c.maxSize {
		c.drop(c.recency.Back())
	}
	return nil
}

// Delete removes the tenant's key.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem := c.tenants[tenantID][key]; elem != nil {
		c.drop(elem)
	}
	return nil
}

// GetSummary retrieves a cached dashboard summary.
func (c *LRUCache) GetSummary(ctx context.Context, tenantID string, months int) (*domain.MonthlySummary, error) {
	return getSummary(ctx, c, tenantID, months)
}

// SetSummary caches a dashboard summary.
func (c *LRUCache) SetSummary(ctx context.Context, tenantID string, months int, summary *domain.MonthlySummary, ttl time.Duration) error {
	return setSummary(ctx, c, tenantID, months, summary, ttl)
}

// InvalidateSummaries drops every summary window of a tenant. Only that
// tenant's entries are visited.
func (c *LRUCache) InvalidateSummaries(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, elem := range c.tenants[tenantID] {
		if strings.HasPrefix(key, summaryPrefix) {
			c.drop(elem)
		}
	}
	return nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close empties the cache.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recency.Init()
	c.tenants = make(map[string]map[string]*list.Element)
	return nil
}

// Stats reports the number of entries held and the capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recency.Len(), c.maxSize
}

// drop unlinks elem from the recency list and the tenant index. Callers hold mu.
func (c *LRUCache) drop(elem *list.Element) {
	entry := c.recency.Remove(elem).(*lruEntry)
	keys := c.tenants[entry.tenantID]
	delete(keys, entry.key)
	if len(keys) == 0 {
		delete(c.tenants, entry.tenantID)
	}
}
