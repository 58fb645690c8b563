package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryDirectoryUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	d := NewMemoryDirectory(10, WithClock(clock.Now))

	rec, err := d.Upsert(ctx, "u1", "alice:ab12")
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if rec.Username != "alice" || rec.DisplayName != "alice:ab12" {
		t.Fatalf("record = %+v", rec)
	}

	clock.Advance(time.Minute)
	if _, err := d.Upsert(ctx, "u1", "alice:ab12"); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	got, err := d.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.LastSeenAt.Equal(clock.Now()) {
		t.Fatalf("LastSeenAt = %v, want refreshed %v", got.LastSeenAt, clock.Now())
	}
	if d.Len() != 1 {
		t.Fatalf("Len = %d, repeat upsert must not duplicate", d.Len())
	}

	if _, err := d.Get(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Get(unknown) err = %v, want ErrUserNotFound", err)
	}
	if _, err := d.Upsert(ctx, "", "x"); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("Upsert(empty) err = %v, want ErrInvalidUser", err)
	}
}

func TestMemoryDirectoryActiveSince(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	d := NewMemoryDirectory(10, WithClock(clock.Now))

	d.Upsert(ctx, "old", "old:0000")
	clock.Advance(11 * time.Minute)
	d.Upsert(ctx, "mid", "mid:0000")
	clock.Advance(time.Minute)
	d.Upsert(ctx, "new", "new:0000")

	got, err := d.ActiveSince(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("ActiveSince: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ActiveSince returned %d records, want 2", len(got))
	}
	if got[0].ID != "new" || got[1].ID != "mid" {
		t.Fatalf("order = [%s %s], want [new mid]", got[0].ID, got[1].ID)
	}
}

func TestMemoryDirectoryEvictsLeastRecentlySeen(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	d := NewMemoryDirectory(2, WithClock(clock.Now))

	d.Upsert(ctx, "a", "a")
	clock.Advance(time.Second)
	d.Upsert(ctx, "b", "b")
	clock.Advance(time.Second)
	d.Upsert(ctx, "a", "a") // a is now newer than b
	clock.Advance(time.Second)
	d.Upsert(ctx, "c", "c")

	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}
	if _, err := d.Get(ctx, "b"); !errors.Is(err, ErrUserNotFound) {
		t.Fatal("expected b to be evicted")
	}
	for _, id := range []string{"a", "c"} {
		if _, err := d.Get(ctx, id); err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
	}
}

func TestMemoryDirectoryPrune(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	d := NewMemoryDirectory(10, WithClock(clock.Now))

	d.Upsert(ctx, "a", "a")
	clock.Advance(time.Hour)
	d.Upsert(ctx, "b", "b")

	n, err := d.Prune(ctx, clock.Now().Add(-time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v; want 1", n, err)
	}
	if d.Len() != 1 {
		t.Fatalf("Len = %d, want 1", d.Len())
	}
}

func TestMemoryDirectoryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirectory(1000)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("u%d", (i*50+j)%100)
				if _, err := d.Upsert(ctx, id, id); err != nil {
					t.Errorf("Upsert: %v", err)
					return
				}
				if _, err := d.ActiveSince(ctx, time.Minute); err != nil {
					t.Errorf("ActiveSince: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	got, _ := d.ActiveSince(ctx, time.Minute)
	if len(got) != 100 {
		t.Fatalf("ActiveSince returned %d, want 100", len(got))
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	if _, err := New(Config{Driver: "etcd"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	d, err := New(Config{})
	if err != nil {
		t.Fatalf("New(default): %v", err)
	}
	if _, ok := d.(*MemoryDirectory); !ok {
		t.Fatalf("default driver = %T, want *MemoryDirectory", d)
	}
	if _, ok := d.(Pruner); !ok {
		t.Fatal("memory directory should implement Pruner")
	}
}
