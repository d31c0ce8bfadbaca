// Package cache provides a scoped in-process LRU cache with optional TTL.
// Callers construct an explicit instance and pass it where needed; there is
// deliberately no package-level singleton, so multiple tenants or workers can
// run in one process without cross-contamination.
package cache

import "time"

// Cache is a scoped key-value cache with optional TTL per entry.
type Cache interface {
	Set(scope, scopeID, key string, value any, opts ...Option)
	Get(scope, scopeID, key string) (Entry, bool)
	Delete(scope, scopeID, key string) bool
	Len() int
}

// Entry is a stored value with its metadata.
type Entry struct {
	Key       string
	Value     any
	Scope     string
	ScopeID   string
	ExpiresAt *time.Time
	UpdatedAt time.Time
	CreatedAt time.Time
}

type setOptions struct {
	ttl time.Duration
}

// Option configures a Set operation.
type Option func(*setOptions)

// WithTTL sets a time-to-live on the entry.
func WithTTL(d time.Duration) Option {
	return func(o *setOptions) {
		o.ttl = d
	}
}
