package immunity

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Tracker keeps one expiry per user. A new grant replaces the previous expiry.
type Tracker struct {
	mu      sync.Mutex
	clock   Clock
	entries map[string]time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		clock:   realClock{},
		entries: make(map[string]time.Time),
	}
}

func (t *Tracker) WithClock(clock Clock) {
	t.clock = clock
}

func (t *Tracker) Grant(userID string, d time.Duration) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	expiry := t.clock.Now().Add(d)
	t.entries[userID] = expiry
	return expiry
}

// Remaining reports how long userID stays immune. Expired entries are dropped.
func (t *Tracker) Remaining(userID string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	expiry, ok := t.entries[userID]
	if !ok {
		return 0, false
	}
	left := expiry.Sub(t.clock.Now())
	if left <= 0 {
		delete(t.entries, userID)
		return 0, false
	}
	return left, true
}

func (t *Tracker) IsImmune(userID string) bool {
	_, ok := t.Remaining(userID)
	return ok
}

// Reserve grants immunity for d unless userID is already immune, in which case
// it reports the time left instead. Check and grant happen under one lock, so
// concurrent callers cannot both reserve the same user.
func (t *Tracker) Reserve(userID string, d time.Duration) (left time.Duration, expiry time.Time, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if current, found := t.entries[userID]; found {
		if remaining := current.Sub(now); remaining > 0 {
			return remaining, current, false
		}
	}
	expiry = now.Add(d)
	t.entries[userID] = expiry
	return 0, expiry, true
}

// Release undoes a reservation. A newer grant for the same user is kept.
func (t *Tracker) Release(userID string, expiry time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if current, ok := t.entries[userID]; ok && current.Equal(expiry) {
		delete(t.entries, userID)
	}
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
