package cache

import "time"

// NoExpiration marks an entry that never expires. Any negative TTL is
// treated the same way.
const NoExpiration time.Duration = -1

// DefaultLifetime is the TTL applied when neither the save call nor the
// configuration says otherwise.
const DefaultLifetime = time.Hour

// SaveOption tweaks a single Save call.
type SaveOption func(*saveOptions)

type saveOptions struct {
	ttl time.Duration
}

// WithTTL overrides the configured lifetime for one save. A zero TTL
// produces an entry that is already expired on the next read.
func WithTTL(ttl time.Duration) SaveOption {
	return func(o *saveOptions) {
		o.ttl = ttl
	}
}

// WithoutExpiration stores the entry without an expiration.
func WithoutExpiration() SaveOption {
	return WithTTL(NoExpiration)
}

// ComputeExpiration returns now+ttl, or false when ttl means "never expires".
func ComputeExpiration(now time.Time, ttl time.Duration) (time.Time, bool) {
	if ttl < 0 {
		return time.Time{}, false
	}
	return now.Add(ttl), true
}

// ResolveTTL applies opts over the configured lifetime.
func (c Config) ResolveTTL(opts ...SaveOption) time.Duration {
	o := saveOptions{ttl: c.Lifetime}
	for _, opt := range opts {
		opt(&o)
	}
	return o.ttl
}

// ExpiresAt computes the expiration of an entry saved at now with opts.
// It returns nil when the entry never expires.
func (c Config) ExpiresAt(now time.Time, opts ...SaveOption) *time.Time {
	at, ok := ComputeExpiration(now, c.ResolveTTL(opts...))
	if !ok {
		return nil
	}
	return &at
}
