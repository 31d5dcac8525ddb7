package departure

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultWindow is the trailing dedup window.
const DefaultWindow = 45 * time.Minute

// Store is the flight-log side of the persistence gateway.
type Store interface {
	// FindDeparture returns a record for flight/origin with a departure time in
	// (from, to], or nil when there is none.
	FindDeparture(ctx context.Context, flight, origin string, from, to time.Time) (*Record, error)
	InsertDeparture(ctx context.Context, ev Event) (int64, error)
}

// Deduplicator decides whether a candidate departure is new and, if so,
// persists it. Check and insert run under a per-key lock so concurrent workers
// cannot both admit the same takeoff.
type Deduplicator struct {
	store  Store
	window time.Duration
	cache  *windowCache
	locks  *keyedMutex
}

// NewDeduplicator creates a deduplicator. A non-positive window selects the
// default. useCache enables the in-process window cache.
func NewDeduplicator(store Store, window time.Duration, useCache bool) *Deduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	d := &Deduplicator{
		store:  store,
		window: window,
		locks:  newKeyedMutex(),
	}
	if useCache {
		d.cache = newWindowCache(window)
	}
	return d
}

// Window returns the configured dedup window.
func (d *Deduplicator) Window() time.Duration {
	return d.window
}

// IsDuplicate reports whether the store already holds the same flight/origin
// within the trailing window ending at the candidate's departure time.
func (d *Deduplicator) IsDuplicate(ctx context.Context, ev Event) (bool, error) {
	if d.cache != nil && d.cache.seen(ev.Key(), ev.DepartureLocal) {
		return true, nil
	}

	from := ev.DepartureLocal.Add(-d.window)
	rec, err := d.store.FindDeparture(ctx, ev.FlightNumber, ev.OriginAirport, from, ev.DepartureLocal)
	if err != nil {
		return false, fmt.Errorf("dedup lookup %s at %s: %w", ev.FlightNumber, ev.OriginAirport, err)
	}
	if rec == nil {
		return false, nil
	}
	if d.cache != nil {
		d.cache.remember(ev.Key(), rec.DepartureLocal)
	}
	return true, nil
}

// Record persists the event unless it is a duplicate. It returns the new row
// ID, or zero and false for a duplicate.
func (d *Deduplicator) Record(ctx context.Context, ev Event) (int64, bool, error) {
	unlock := d.locks.lock(ev.Key())
	defer unlock()

	dup, err := d.IsDuplicate(ctx, ev)
	if err != nil || dup {
		return 0, false, err
	}

	id, err := d.store.InsertDeparture(ctx, ev)
	if err != nil {
		return 0, false, fmt.Errorf("insert departure %s at %s: %w", ev.FlightNumber, ev.OriginAirport, err)
	}
	if d.cache != nil {
		d.cache.remember(ev.Key(), ev.DepartureLocal)
	}
	return id, true, nil
}

// windowCache remembers the latest departure time seen per key. It only ever
// confirms duplicates; a miss always falls through to the store.
type windowCache struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]time.Time
}

func newWindowCache(window time.Duration) *windowCache {
	return &windowCache{window: window, entries: make(map[string]time.Time)}
}

func (c *windowCache) seen(key string, at time.Time) bool {
	at = wallClock(at)
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.entries[key]
	if !ok {
		return false
	}
	if at.Sub(last) >= c.window {
		delete(c.entries, key)
		return false
	}
	return !last.After(at)
}

func (c *windowCache) remember(key string, at time.Time) {
	at = wallClock(at)
	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.entries[key]; ok && last.After(at) {
		return
	}
	c.entries[key] = at

	// Expire stale keys relative to the newest write.
	for k, t := range c.entries {
		if at.Sub(t) >= c.window {
			delete(c.entries, k)
		}
	}
}

// wallClock drops the zone so times read back from naive storage compare
// equal to freshly localized ones.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func (c *windowCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// keyedMutex hands out one mutex per key and drops it once no holder or
// waiter remains.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
