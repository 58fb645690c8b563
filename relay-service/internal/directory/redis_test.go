package directory

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisKeys(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	d := newRedisDirectory(client, RedisConfig{KeyPrefix: "chat"})
	if got := d.userKey("u1"); got != "chat:user:u1" {
		t.Fatalf("userKey = %q", got)
	}
	if got := d.lastSeenKey(); got != "chat:users:last_seen" {
		t.Fatalf("lastSeenKey = %q", got)
	}
	if d.retention != 24*time.Hour {
		t.Fatalf("default retention = %v", d.retention)
	}

	d = newRedisDirectory(client, RedisConfig{})
	if got := d.userKey("u1"); got != "relay:user:u1" {
		t.Fatalf("default prefix userKey = %q", got)
	}
}

func TestRecordFromHash(t *testing.T) {
	if _, ok := recordFromHash(map[string]string{}); ok {
		t.Fatal("empty hash must not produce a record")
	}
	rec, ok := recordFromHash(map[string]string{
		"id":           "u1",
		"username":     "alice",
		"display_name": "alice:ab12",
		"last_seen":    "1700000000123",
	})
	if !ok {
		t.Fatal("expected record")
	}
	if rec.ID != "u1" || rec.DisplayName != "alice:ab12" {
		t.Fatalf("record = %+v", rec)
	}
	if rec.LastSeenAt.UnixMilli() != 1700000000123 {
		t.Fatalf("LastSeenAt = %v", rec.LastSeenAt)
	}
}
