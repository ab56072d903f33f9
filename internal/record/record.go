// Package record implements the Record Store (spec.md section 4.5): a
// time-indexed map of weak-reference records plus a bounded
// recent-records sidelist holding the only strong references.
//
// Go has no pinned weak-reference primitive, so the map value is the
// tagged union spec.md section 9 prescribes: notLoaded, loaded (strong),
// or expired. store runs a compaction pass that drops the strong
// pointer once the sidelist has evicted it, leaving the entry marked
// expired without losing the key.
package record

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/kallsyms/nexrad-ingest/archive2"
	"github.com/kallsyms/nexrad-ingest/internal/provider"
	"github.com/kallsyms/nexrad-ingest/internal/radarsite"
	"github.com/kallsyms/nexrad-ingest/internal/timeindex"
)

// Record is a RadarProductRecord (spec.md section 3): a handle on one
// decoded source file.
type Record struct {
	RadarID     string
	Group       radarsite.ProductGroup
	Product     string
	ProductCode string
	Time        time.Time
	Level2File  *archive2.Archive2
	Level3Data  []byte
}

type entryState int

const (
	stateNotLoaded entryState = iota
	stateLoaded
	stateExpired
)

// mapEntry is the tagged union {NotLoaded, Loaded(strong), Expired}.
type mapEntry struct {
	state  entryState
	record *Record
}

// DefaultCacheLimit is the minimum recent-records sidelist bound
// (spec.md section 3, "bounded length (>=6, configurable)").
const DefaultCacheLimit = 6

// Store is one Record Store instance: either the Level-2 map for a
// radar, or one product's Level-3 map.
type Store struct {
	cacheLimit int

	mu      sync.RWMutex
	entries *timeindex.Index[*mapEntry]

	recentMu sync.Mutex
	recent   *list.List               // front = most recently touched
	elems    map[*Record]*list.Element
}

// NewStore constructs a Store with the given sidelist bound, clamped to
// DefaultCacheLimit.
func NewStore(cacheLimit int) *Store {
	if cacheLimit < DefaultCacheLimit {
		cacheLimit = DefaultCacheLimit
	}
	return &Store{
		cacheLimit: cacheLimit,
		entries:    timeindex.New[*mapEntry](),
		recent:     list.New(),
		elems:      make(map[*Record]*list.Element),
	}
}

func keyOf(t time.Time) time.Time {
	return t.Truncate(time.Second)
}

// Store keys rec by floor<seconds>(rec.Time). If a record already
// exists for that key and is upgradable (loaded), the existing record is
// returned and rec is discarded (deduplication by time identity).
// Otherwise rec becomes the canonical record for that key and is pushed
// onto the recent-records sidelist.
func (s *Store) Store(rec *Record) *Record {
	key := keyOf(rec.Time)

	s.mu.Lock()
	if existing, ok := s.entries.Get(key); ok && existing.state == stateLoaded {
		s.mu.Unlock()
		s.touch(existing.record)
		return existing.record
	}
	s.entries.Set(key, &mapEntry{state: stateLoaded, record: rec})
	s.mu.Unlock()

	s.touch(rec)
	return rec
}

// touch implements the "move-to-front" sidelist discipline: remove any
// existing occurrence, push to head, trim the tail to cacheLimit.
func (s *Store) touch(rec *Record) {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()

	if elem, ok := s.elems[rec]; ok {
		s.recent.Remove(elem)
	}
	s.elems[rec] = s.recent.PushFront(rec)

	for s.recent.Len() > s.cacheLimit {
		tail := s.recent.Back()
		if tail == nil {
			break
		}
		dropped := tail.Value.(*Record)
		s.recent.Remove(tail)
		delete(s.elems, dropped)
		s.expire(dropped)
	}
}

// expire marks every map entry pointing at rec as expired, dropping the
// strong reference so the record itself becomes garbage once the sole
// incoming reference (this map) lets go of it.
func (s *Store) expire(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyOf(rec.Time)
	if entry, ok := s.entries.Get(key); ok && entry.record == rec {
		entry.state = stateExpired
		entry.record = nil
	}
}

// Get upgrades the weak entry at t, if any. ok is false if there is no
// entry at all; upgraded is false if the entry exists but is expired or
// not yet loaded.
func (s *Store) Get(t time.Time) (rec *Record, upgraded, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, found := s.entries.Get(keyOf(t))
	if !found {
		return nil, false, false
	}
	if entry.state != stateLoaded {
		return nil, false, true
	}
	return entry.record, true, true
}

// BoundedElement returns the entry with the largest key <= t (or the
// first key, per timeindex.Index.BoundedElement), along with whether its
// weak reference currently upgrades.
func (s *Store) BoundedElement(t time.Time) (key time.Time, rec *Record, upgraded, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, entry, found := s.entries.BoundedElement(keyOf(t))
	if !found {
		return time.Time{}, nil, false, false
	}
	return k, entry.record, entry.state == stateLoaded, true
}

// Predecessor returns the entry strictly before key, along with whether
// its weak reference currently upgrades.
func (s *Store) Predecessor(key time.Time) (predKey time.Time, rec *Record, upgraded, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, entry, found := s.entries.Predecessor(key)
	if !found {
		return time.Time{}, nil, false, false
	}
	return k, entry.record, entry.state == stateLoaded, true
}

// Latest returns the most recent key and its upgrade state.
func (s *Store) Latest() (key time.Time, rec *Record, upgraded, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, entry, found := s.entries.Latest()
	if !found {
		return time.Time{}, nil, false, false
	}
	return k, entry.record, entry.state == stateLoaded, true
}

// datesFor returns {yesterday, today, tomorrow} relative to t, clamped
// to exclude any date strictly after today (spec.md section 4.5).
func datesFor(t time.Time) []time.Time {
	day := t.UTC().Truncate(24 * time.Hour)
	today := time.Now().UTC().Truncate(24 * time.Hour)

	candidates := []time.Time{day.Add(-24 * time.Hour), day, day.Add(24 * time.Hour)}
	dates := make([]time.Time, 0, 3)
	for _, d := range candidates {
		if d.After(today) {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

// PopulateTimes queries p for the time points on {yesterday, today,
// tomorrow} relative to t (in parallel, skipping future dates) and
// merges the union into the record map as weak-empty (NotLoaded)
// entries, exposing scans known to the provider but not yet loaded.
func (s *Store) PopulateTimes(ctx context.Context, p provider.Provider, t time.Time) error {
	dates := datesFor(t)

	var wg sync.WaitGroup
	errs := make([]error, len(dates))
	results := make([][]time.Time, len(dates))

	for i, date := range dates {
		wg.Add(1)
		go func(i int, date time.Time) {
			defer wg.Done()
			points, err := p.TimePointsByDate(ctx, date, true)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = points
		}(i, date)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	for _, points := range results {
		for _, pt := range points {
			key := keyOf(pt)
			if _, exists := s.entries.Get(key); !exists {
				s.entries.Set(key, &mapEntry{state: stateNotLoaded})
			}
		}
	}
	s.mu.Unlock()

	return nil
}

// AreTimesPopulated reports whether every non-future date among
// {yesterday, today, tomorrow} relative to t has already been listed by
// p.
func AreTimesPopulated(p provider.Provider, t time.Time) bool {
	for _, date := range datesFor(t) {
		if !p.HasDate(date) {
			return false
		}
	}
	return true
}
