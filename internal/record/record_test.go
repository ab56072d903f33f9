package record

import (
	"testing"
	"time"
)

func TestStoreDeduplicatesByTruncatedTime(t *testing.T) {
	s := NewStore(0)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r1 := &Record{Time: base}
	r2 := &Record{Time: base.Add(500 * time.Millisecond)}

	got1 := s.Store(r1)
	got2 := s.Store(r2)

	if got1 != r1 {
		t.Fatalf("first store should return the inserted record")
	}
	if got2 != r1 {
		t.Fatalf("second store with the same truncated time should return the canonical record, got different record")
	}

	s.recentMu.Lock()
	n := s.recent.Len()
	s.recentMu.Unlock()
	if n != 1 {
		t.Errorf("sidelist length = %d, want 1 (unchanged by dedup)", n)
	}
}

func TestTouchMovesToFrontAndTrimsTail(t *testing.T) {
	s := NewStore(2) // clamped up to DefaultCacheLimit

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < DefaultCacheLimit+3; i++ {
		s.Store(&Record{Time: base.Add(time.Duration(i) * time.Second)})
	}

	s.recentMu.Lock()
	n := s.recent.Len()
	front := s.recent.Front().Value.(*Record)
	s.recentMu.Unlock()
	if n != DefaultCacheLimit {
		t.Errorf("sidelist length = %d, want %d after overflow", n, DefaultCacheLimit)
	}
	if want := base.Add(time.Duration(DefaultCacheLimit+2) * time.Second); !front.Time.Equal(want) {
		t.Errorf("sidelist front = %v, want the most recently stored record %v", front.Time, want)
	}
}

func TestExpiredEntryNoLongerUpgrades(t *testing.T) {
	s := NewStore(DefaultCacheLimit)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	var last *Record
	for i := 0; i < DefaultCacheLimit+1; i++ {
		last = &Record{Time: base.Add(time.Duration(i) * time.Second)}
		s.Store(last)
	}

	// the oldest (first stored) record should now be expired
	_, upgraded, ok := s.Get(base)
	if !ok {
		t.Fatal("expected the expired entry's key to still be present in the map")
	}
	if upgraded {
		t.Error("expected the oldest record to have been evicted from the sidelist and expired")
	}

	_, upgraded, ok = s.Get(last.Time)
	if !ok || !upgraded {
		t.Error("expected the most recently stored record to still upgrade")
	}
}

func TestBoundedElementOnEmptyStore(t *testing.T) {
	s := NewStore(0)
	_, _, _, ok := s.BoundedElement(time.Now())
	if ok {
		t.Error("expected no bounded element on an empty store")
	}
}

func TestDatesForSkipsFutureDates(t *testing.T) {
	future := time.Now().UTC().Add(48 * time.Hour)
	dates := datesFor(future)
	today := time.Now().UTC().Truncate(24 * time.Hour)
	for _, d := range dates {
		if d.After(today) {
			t.Errorf("datesFor(%v) produced a future date %v", future, d)
		}
	}
}
