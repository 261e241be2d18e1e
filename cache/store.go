// Package cache persists built navmeshes keyed by region cache key. Entries
// are never evicted; the operator clears the cache directory or database.
package cache

import (
	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("cache: entry not found")
	ErrCorrupt  = errors.New("cache: entry is corrupt")
)

// Store is a whole-value key to bytes store.
type Store interface {
	Exists(key string) bool
	// Read returns ErrNotFound when there is no entry for key.
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
}

// CorruptError reports an entry that exists but cannot be used.
type CorruptError struct {
	Key string
	Err error
}

func (e *CorruptError) Error() string {
	return "cache: entry " + e.Key + " is corrupt: " + e.Err.Error()
}

func (e *CorruptError) Unwrap() []error { return []error{ErrCorrupt, e.Err} }
