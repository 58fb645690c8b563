package directory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-live/peer-relay/relay-service/internal/domain"
)

// DefaultMaxUsers bounds the in-memory directory when no cap is configured.
const DefaultMaxUsers = 10000

// MemoryDirectory keeps records in process. It holds at most maxUsers
// records; inserting past the cap evicts the least recently seen one.
type MemoryDirectory struct {
	users    map[string]domain.UserRecord
	maxUsers int
	now      func() time.Time
	mu       sync.RWMutex
}

// NewMemoryDirectory creates an in-memory directory.
func NewMemoryDirectory(maxUsers int, opts ...Option) *MemoryDirectory {
	if maxUsers <= 0 {
		maxUsers = DefaultMaxUsers
	}
	o := buildOptions(opts)
	return &MemoryDirectory{
		users:    make(map[string]domain.UserRecord),
		maxUsers: maxUsers,
		now:      o.now,
	}
}

func (d *MemoryDirectory) Upsert(ctx context.Context, id, displayName string) (*domain.UserRecord, error) {
	if id == "" {
		return nil, ErrInvalidUser
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.users[id]; !exists && len(d.users) >= d.maxUsers {
		d.evictOldestLocked()
	}

	rec := domain.UserRecord{
		ID:          id,
		Username:    domain.UsernameFrom(displayName),
		DisplayName: displayName,
		LastSeenAt:  d.now(),
	}
	d.users[id] = rec
	return &rec, nil
}

func (d *MemoryDirectory) Get(ctx context.Context, id string) (*domain.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &rec, nil
}

// ActiveSince returns matching records, most recently seen first.
func (d *MemoryDirectory) ActiveSince(ctx context.Context, window time.Duration) ([]*domain.UserRecord, error) {
	cutoff := d.now().Add(-window)

	d.mu.RLock()
	out := make([]*domain.UserRecord, 0, len(d.users))
	for _, rec := range d.users {
		if rec.ActiveSince(cutoff) {
			r := rec
			out = append(out, &r)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out, nil
}

// Len returns the number of stored records.
func (d *MemoryDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

func (d *MemoryDirectory) Close() error {
	return nil
}

func (d *MemoryDirectory) evictOldestLocked() {
	var (
		oldestID string
		oldestAt time.Time
	)
	for id, rec := range d.users {
		if oldestID == "" || rec.LastSeenAt.Before(oldestAt) {
			oldestID, oldestAt = id, rec.LastSeenAt
		}
	}
	if oldestID != "" {
		delete(d.users, oldestID)
	}
}

// Prune drops records last seen before the given time.
func (d *MemoryDirectory) Prune(ctx context.Context, before time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var n int64
	for id, rec := range d.users {
		if rec.LastSeenAt.Before(before) {
			delete(d.users, id)
			n++
		}
	}
	return n, nil
}
