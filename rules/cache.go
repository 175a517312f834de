package rules

import "time"

// DefinitionsCache holds the definition list an Engine last compiled, so
// listing definitions does not hit the store on every request.
type DefinitionsCache interface {
	// Get returns the cached definitions, or nil on a miss or after expiry.
	Get() []*TestDefinition

	// Set stores definitions in the cache.
	Set(defs []*TestDefinition)

	// Invalidate clears the cache, forcing a refresh on next Get.
	Invalidate()

	// IsValid returns true if the cache has valid data.
	IsValid() bool
}

// CacheConfig controls cache expiry.
type CacheConfig struct {
	// TTL is the time-to-live for cached entries. Zero means entries only go
	// away on Invalidate.
	TTL time.Duration
}

// DefaultCacheConfig invalidates on mutations only.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
