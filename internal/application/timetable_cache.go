package application

import (
	"sync"
	"time"
)

// timetableCache keeps recently listed timetables per user so the grid pages
// do not hit storage on every render while the timetable is unchanged.
type timetableCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]timetableCacheEntry

	// generations counts invalidations per user. A fill started before an
	// invalidation carries an older generation and is discarded.
	generations map[string]uint64
}

type timetableCacheEntry struct {
	slots     []TimetableSlot
	expiresAt time.Time
}

func newTimetableCache(ttl time.Duration, maxEntries int, now func() time.Time) *timetableCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if now == nil {
		now = time.Now
	}
	return &timetableCache{
		now:         now,
		ttl:         ttl,
		maxEntries:  maxEntries,
		entries:     make(map[string]timetableCacheEntry),
		generations: make(map[string]uint64),
	}
}

func (c *timetableCache) Get(userID string) ([]TimetableSlot, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, userID)
		c.mu.Unlock()
		return nil, false
	}
	return cloneSlots(entry.slots), true
}

// Generation returns the invalidation count for userID. Capture it before
// reading storage and pass it to Store.
func (c *timetableCache) Generation(userID string) uint64 {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[userID]
}

// Store caches slots read at generation. The fill is dropped when the user
// was invalidated since.
func (c *timetableCache) Store(userID string, generation uint64, slots []TimetableSlot) {
	if c == nil {
		return
	}
	cloned := cloneSlots(slots)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[userID] != generation {
		return
	}
	c.cleanupLocked()
	if _, exists := c.entries[userID]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[userID] = timetableCacheEntry{slots: cloned, expiresAt: expiry}
}

// Invalidate drops the cached timetable of one user.
func (c *timetableCache) Invalidate(userID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, userID)
	c.generations[userID]++
	c.mu.Unlock()
}

func (c *timetableCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// evictOneLocked drops the entry closest to expiry.
func (c *timetableCache) evictOneLocked() {
	var (
		victim string
		oldest time.Time
	)
	for key, entry := range c.entries {
		if victim == "" || entry.expiresAt.Before(oldest) {
			victim, oldest = key, entry.expiresAt
		}
	}
	delete(c.entries, victim)
}

func cloneSlots(slots []TimetableSlot) []TimetableSlot {
	if slots == nil {
		return nil
	}
	out := make([]TimetableSlot, len(slots))
	copy(out, slots)
	return out
}
