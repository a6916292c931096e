package sources

import (
	"testing"
	"time"
)

func TestTTLCache(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cache := NewTTLCache(5 * time.Minute)
	cache.now = func() time.Time { return now }

	cache.Set("u1", "label-id")

	if got, ok := cache.Get("u1"); !ok || got.(string) != "label-id" {
		t.Fatalf("Get = (%v, %v), want (label-id, true)", got, ok)
	}

	// Still inside the TTL.
	now = now.Add(4 * time.Minute)
	if _, ok := cache.Get("u1"); !ok {
		t.Error("entry expired before TTL")
	}

	// Past the TTL the entry is gone.
	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get("u1"); ok {
		t.Error("entry survived past TTL")
	}
}

func TestTTLCacheInvalidate(t *testing.T) {
	cache := NewTTLCache(time.Hour)
	cache.Set("k", 7)
	cache.Invalidate("k")
	if _, ok := cache.Get("k"); ok {
		t.Error("entry survived Invalidate")
	}
}

func TestTTLCacheMiss(t *testing.T) {
	cache := NewTTLCache(time.Hour)
	if _, ok := cache.Get("absent"); ok {
		t.Error("Get returned a value for an absent key")
	}
}
