package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/weiawesome/wes-io-live/peer-relay/pkg/database"
)

func newTestGormDirectory(t *testing.T, clock *fakeClock) *GormDirectory {
	t.Helper()
	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: "file:" + t.Name() + "?mode=memory&cache=shared",
	})
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	d, err := NewGormDirectory(db, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewGormDirectory: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestGormDirectoryUpsertRefreshes(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	d := newTestGormDirectory(t, clock)

	if _, err := d.Upsert(ctx, "u1", "alice:ab12"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := d.Upsert(ctx, "u1", "alice:ff00"); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	got, err := d.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.DisplayName != "alice:ff00" || got.Username != "alice" {
		t.Fatalf("record = %+v", got)
	}
	if !got.LastSeenAt.Equal(clock.Now()) {
		t.Fatalf("LastSeenAt = %v, want %v", got.LastSeenAt, clock.Now())
	}

	if _, err := d.Get(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("Get(missing) = %v, want ErrUserNotFound", err)
	}
}

func TestGormDirectoryActiveSinceAndPrune(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	d := newTestGormDirectory(t, clock)

	d.Upsert(ctx, "stale", "stale")
	clock.Advance(30 * time.Minute)
	d.Upsert(ctx, "fresh", "fresh")

	got, err := d.ActiveSince(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("ActiveSince: %v", err)
	}
	if len(got) != 1 || got[0].ID != "fresh" {
		t.Fatalf("ActiveSince = %+v, want only fresh", got)
	}

	n, err := d.Prune(ctx, clock.Now().Add(-10*time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v; want 1", n, err)
	}
	if _, err := d.Get(ctx, "stale"); !errors.Is(err, ErrUserNotFound) {
		t.Fatal("stale record should be pruned")
	}
}
