package rules

import (
	"sync"
	"time"
)

// InMemoryDefinitionsCache is a DefinitionsCache safe for concurrent use.
type InMemoryDefinitionsCache struct {
	defs     []*TestDefinition
	cachedAt time.Time
	config   CacheConfig
	mu       sync.RWMutex
	isValid  bool
}

// NewInMemoryDefinitionsCache creates an empty cache.
func NewInMemoryDefinitionsCache(config CacheConfig) *InMemoryDefinitionsCache {
	return &InMemoryDefinitionsCache{
		config: config,
	}
}

// Get returns deep copies of the cached definitions.
func (c *InMemoryDefinitionsCache) Get() []*TestDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.validLocked() {
		return nil
	}
	return cloneAll(c.defs)
}

func (c *InMemoryDefinitionsCache) Set(defs []*TestDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.defs = cloneAll(defs)
	c.cachedAt = time.Now()
	c.isValid = true
}

func (c *InMemoryDefinitionsCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.defs = nil
}

func (c *InMemoryDefinitionsCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.validLocked()
}

func (c *InMemoryDefinitionsCache) validLocked() bool {
	if !c.isValid {
		return false
	}
	if c.config.TTL > 0 {
		return time.Since(c.cachedAt) <= c.config.TTL
	}
	return true
}

func cloneAll(defs []*TestDefinition) []*TestDefinition {
	out := make([]*TestDefinition, len(defs))
	for i, d := range defs {
		out[i] = d.Clone()
	}
	return out
}
