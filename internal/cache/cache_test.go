package cache

import (
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	mc := NewMemoryCache(1024 * 1024)
	defer mc.Close()

	entry := &Entry{Status: 200, Body: []byte("CookieConsentDialog.cookieTableNecessary = [];")}
	if err := mc.Set("https://consent.cookiebot.com/x/cc.js", entry, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok := mc.Get("https://consent.cookiebot.com/x/cc.js")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Status != 200 || string(got.Body) != string(entry.Body) {
		t.Errorf("got %+v", got)
	}

	if _, ok := mc.Get("https://missing.example.com"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache(1024 * 1024)
	defer mc.Close()

	mc.Set("k", &Entry{Status: 200, Body: []byte("v")}, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := mc.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestMemoryCacheEvictsLRU(t *testing.T) {
	// Room for roughly two entries given the fixed per-entry overhead.
	mc := NewMemoryCache(2*entryOverhead + 20)
	defer mc.Close()

	mc.Set("a", &Entry{Status: 200, Body: []byte("0123456789")}, time.Minute)
	mc.Set("b", &Entry{Status: 200, Body: []byte("0123456789")}, time.Minute)
	mc.Get("a") // refresh a so b is least recently used
	mc.Set("c", &Entry{Status: 200, Body: []byte("0123456789")}, time.Minute)

	if _, ok := mc.Get("b"); ok {
		t.Error("expected LRU entry b to be evicted")
	}
	if _, ok := mc.Get("a"); !ok {
		t.Error("recently used entry a should survive")
	}
}

func TestMemoryCacheClear(t *testing.T) {
	mc := NewMemoryCache(1024)
	defer mc.Close()

	mc.Set("k", &Entry{Status: 200, Body: []byte("v")}, time.Minute)
	mc.Clear()

	if _, ok := mc.Get("k"); ok {
		t.Error("expected empty cache after clear")
	}
}
