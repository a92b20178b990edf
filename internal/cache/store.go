package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a key has no entry.
var ErrNotFound = errors.New("cache: entry not found")

// StoredEntry is the raw envelope a persistent tier keeps per key.
type StoredEntry struct {
	Payload   []byte
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Store is a persistent cache tier. Implementations must be safe for
// concurrent use. Get returns entries as stored, expired or not; the
// cache decides what an expired entry means.
type Store interface {
	Get(ctx context.Context, key string) (StoredEntry, error)
	Put(ctx context.Context, key string, entry StoredEntry) error
	Delete(ctx context.Context, key string) error
	Purge(ctx context.Context, now time.Time) (int, error)
	Len(ctx context.Context) (int, error)
	OldestAge(ctx context.Context, now time.Time) (time.Duration, error)
	Close() error
}
