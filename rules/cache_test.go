package rules

import (
	"testing"
	"time"
)

// TestInMemoryDefinitionsCache verifies set, get and invalidate.
func TestInMemoryDefinitionsCache(t *testing.T) {
	cache := NewInMemoryDefinitionsCache(DefaultCacheConfig())

	if cache.IsValid() {
		t.Error("new cache should not be valid")
	}
	if got := cache.Get(); got != nil {
		t.Errorf("Get() on empty cache = %v, want nil", got)
	}

	cache.Set([]*TestDefinition{glucoseDefinition()})
	if !cache.IsValid() {
		t.Error("cache should be valid after Set")
	}
	got := cache.Get()
	if len(got) != 1 || got[0].ShortDescription != "Глюкоза" {
		t.Fatalf("Get() = %+v", got)
	}

	got[0].ShortDescription = "mutated"
	if again := cache.Get(); again[0].ShortDescription != "Глюкоза" {
		t.Error("Get() should return copies")
	}

	cache.Invalidate()
	if cache.IsValid() || cache.Get() != nil {
		t.Error("cache should be empty after Invalidate")
	}
}

// TestInMemoryDefinitionsCacheEmptySet verifies an empty list is a valid
// cached value.
func TestInMemoryDefinitionsCacheEmptySet(t *testing.T) {
	cache := NewInMemoryDefinitionsCache(CacheConfig{})
	cache.Set(nil)

	got := cache.Get()
	if got == nil || len(got) != 0 {
		t.Errorf("Get() = %v, want empty non-nil slice", got)
	}
}

// TestInMemoryDefinitionsCacheTTL verifies entries expire.
func TestInMemoryDefinitionsCacheTTL(t *testing.T) {
	cache := NewInMemoryDefinitionsCache(CacheConfig{TTL: 10 * time.Millisecond})
	cache.Set([]*TestDefinition{glucoseDefinition()})

	if !cache.IsValid() {
		t.Fatal("cache should be valid right after Set")
	}
	time.Sleep(30 * time.Millisecond)
	if cache.IsValid() {
		t.Error("cache should expire after TTL")
	}
	if cache.Get() != nil {
		t.Error("Get() should return nil after TTL")
	}
}
