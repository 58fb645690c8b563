package domain

import (
	"strings"
	"time"
)

// UserRecord is a presence entry kept by the directory.
type UserRecord struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// UsernameFrom returns the part of a display name before the first ':'.
// Display names look like "alice:ab12"; the suffix only disambiguates.
func UsernameFrom(displayName string) string {
	name, _, _ := strings.Cut(displayName, ":")
	return name
}

// ActiveSince reports whether the record was seen at or after cutoff.
func (u *UserRecord) ActiveSince(cutoff time.Time) bool {
	return !u.LastSeenAt.Before(cutoff)
}
