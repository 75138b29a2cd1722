package service

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/policast/internal/domain"
)

// sweepAt is the map size at which Claim drops expired entries.
const sweepAt = 1024

// Dedup is an in-process domain.IntentDeduper used when Redis is not
// configured. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // intent id -> expiry
	mu   sync.Mutex
}

// NewDedup creates an empty Dedup.
func NewDedup() *Dedup {
	return &Dedup{seen: make(map[string]time.Time)}
}

// Claim records id for ttl and reports false if it is already held.
func (d *Dedup) Claim(_ context.Context, id string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if len(d.seen) >= sweepAt {
		d.sweep(now)
	}
	if exp, ok := d.seen[id]; ok && now.Before(exp) {
		return false, nil
	}
	d.seen[id] = now.Add(ttl)
	return true, nil
}

// Release forgets id.
func (d *Dedup) Release(_ context.Context, id string) error {
	d.mu.Lock()
	delete(d.seen, id)
	d.mu.Unlock()
	return nil
}

// Cleanup removes expired entries.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sweep(time.Now())
}

func (d *Dedup) sweep(now time.Time) {
	for id, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, id)
		}
	}
}

var _ domain.IntentDeduper = (*Dedup)(nil)
