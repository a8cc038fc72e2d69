// README: Bounded, time-windowed duplicate-suppression cache for event consumers.
package events

import (
	"sync"
	"time"
)

// Dedup guards side-effecting consumers against redelivery. It never
// gates state-machine correctness, only consumer idempotency: on any
// internal degradation callers should treat every event as new.
type Dedup struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	maxSize   int
	retention time.Duration
	now       func() time.Time
}

const (
	DefaultDedupSize      = 10_000
	DefaultDedupRetention = time.Hour
)

func NewDedup(maxSize int, retention time.Duration) *Dedup {
	if maxSize <= 0 {
		maxSize = DefaultDedupSize
	}
	if retention <= 0 {
		retention = DefaultDedupRetention
	}
	return &Dedup{
		seen:      make(map[string]time.Time),
		maxSize:   maxSize,
		retention: retention,
		now:       time.Now,
	}
}

// SeenBefore returns true and leaves state unchanged if the key is
// already present; otherwise it records the key and returns false.
func (d *Dedup) SeenBefore(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return true
	}
	if len(d.seen) >= d.maxSize {
		d.sweep()
	}
	d.seen[key] = d.now()
	return false
}

// sweep drops entries older than the retention window. Caller holds the lock.
func (d *Dedup) sweep() {
	cutoff := d.now().Add(-d.retention)
	for k, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, k)
		}
	}
}

func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
