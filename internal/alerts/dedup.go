package alerts

import (
	"sync"
	"time"
)

// DedupStore remembers when each notification key was last delivered.
type DedupStore struct {
	sentAt map[string]time.Time
	window time.Duration
	mu     sync.Mutex
}

// NewDedupStore creates a store suppressing repeats within window.
func NewDedupStore(window time.Duration) *DedupStore {
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &DedupStore{
		sentAt: make(map[string]time.Time),
		window: window,
	}
}

// IsDuplicate reports whether key was delivered within the window.
func (d *DedupStore) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	at, ok := d.sentAt[key]
	return ok && time.Since(at) < d.window
}

// Record marks key as delivered now and drops expired keys.
func (d *DedupStore) Record(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for k, at := range d.sentAt {
		if now.Sub(at) >= d.window {
			delete(d.sentAt, k)
		}
	}
	d.sentAt[key] = now
}

// Size returns the number of tracked keys.
func (d *DedupStore) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sentAt)
}
