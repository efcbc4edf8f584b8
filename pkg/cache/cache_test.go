package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/duckstack/duckstack/pkg/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestCache(t *testing.T) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New()
	c.now = clock.Now
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func sampleResult(v int64) *models.TabularResult {
	return &models.TabularResult{
		Columns: []models.Column{{Name: "x", Type: models.TypeInteger}},
		Rows:    [][]any{{v}},
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("weather", map[string]string{"a": "1", "b": "2"})
	b := Fingerprint("weather", map[string]string{"b": "2", "a": "1"})
	c := Fingerprint("weather", map[string]string{"a": "1", "b": "3"})
	d := Fingerprint("stocks", map[string]string{"a": "1", "b": "2"})

	if a != b {
		t.Error("parameter order should not change the fingerprint")
	}
	if a == c {
		t.Error("different parameter values should produce different fingerprints")
	}
	if a == d {
		t.Error("different sources should produce different fingerprints")
	}
}

func TestFingerprintNoSeparatorCollision(t *testing.T) {
	a := Fingerprint("s", map[string]string{"a": "1&b=2"})
	b := Fingerprint("s", map[string]string{"a": "1", "b": "2"})
	if a == b {
		t.Error("embedded separators must not collide")
	}
}

func TestPutAndGet(t *testing.T) {
	c, _ := newTestCache(t)

	c.Put("k", sampleResult(1), time.Minute)

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Rows[0][0] != int64(1) {
		t.Errorf("unexpected value: %v", got.Rows[0][0])
	}

	if _, ok := c.Get("other"); ok {
		t.Error("expected cache miss for unknown key")
	}
}

func TestTTLExpiration(t *testing.T) {
	c, clock := newTestCache(t)

	c.Put("k", sampleResult(1), 60*time.Second)

	clock.Advance(59 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before TTL elapses")
	}

	clock.Advance(time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss once now >= expiresAt")
	}
	if n := c.Stats().Entries; n != 0 {
		t.Errorf("expired entry should be removed on lookup, %d entries left", n)
	}
	if n := c.Stats().Evictions; n != 1 {
		t.Errorf("expected 1 eviction, got %d", n)
	}
}

func TestZeroTTLNeverServes(t *testing.T) {
	c, _ := newTestCache(t)
	c.Put("k", sampleResult(1), 0)
	if _, ok := c.Get("k"); ok {
		t.Error("zero TTL entry should already be expired")
	}
}

func TestPutResetsTTL(t *testing.T) {
	c, clock := newTestCache(t)

	c.Put("k", sampleResult(1), 10*time.Second)
	clock.Advance(8 * time.Second)
	c.Put("k", sampleResult(2), 10*time.Second)
	clock.Advance(8 * time.Second)

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("second put should restart the TTL window")
	}
	if got.Rows[0][0] != int64(2) {
		t.Errorf("last writer should win, got %v", got.Rows[0][0])
	}
}

func TestInvalidateAndClear(t *testing.T) {
	c, _ := newTestCache(t)

	c.Put("a", sampleResult(1), time.Minute)
	c.Put("b", sampleResult(2), time.Minute)

	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after invalidate")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("invalidate should not touch other keys")
	}

	c.Clear()
	if n := c.Stats().Entries; n != 0 {
		t.Errorf("expected 0 entries after clear, got %d", n)
	}
}

func TestPurge(t *testing.T) {
	c, clock := newTestCache(t)

	c.Put("short", sampleResult(1), time.Second)
	c.Put("long", sampleResult(2), time.Hour)
	clock.Advance(time.Minute)

	if n := c.Purge(); n != 1 {
		t.Errorf("expected 1 purged entry, got %d", n)
	}
	if n := c.Stats().Entries; n != 1 {
		t.Errorf("expected 1 entry left, got %d", n)
	}
}

func TestStats(t *testing.T) {
	c, _ := newTestCache(t)

	c.Put("h1", sampleResult(1), time.Minute)
	c.Get("h1") // hit
	c.Get("h2") // miss

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			for j := 0; j < 200; j++ {
				c.Put(key, sampleResult(int64(j)), time.Minute)
				c.Get(key)
				if j%50 == 0 {
					c.Invalidate(key)
				}
			}
		}(i)
	}
	wg.Wait()

	if n := c.Stats().Entries; n > 4 {
		t.Errorf("expected at most 4 keys, got %d", n)
	}
}
