package timeindex

import (
	"testing"
	"time"
)

func t0(s string) time.Time {
	tm, err := time.Parse("15:04:05", s)
	if err != nil {
		panic(err)
	}
	return tm
}

func TestBoundedElementEmpty(t *testing.T) {
	idx := New[string]()
	if _, _, ok := idx.BoundedElement(t0("10:00:00")); ok {
		t.Error("expected no entry for empty index")
	}
}

func TestBoundedElementScenario(t *testing.T) {
	idx := New[string]()
	idx.Set(t0("10:00:00"), "k1")
	idx.Set(t0("10:04:47"), "k2")
	idx.Set(t0("10:09:35"), "k3")

	key, val, ok := idx.BoundedElement(t0("10:05:00"))
	if !ok || val != "k2" {
		t.Fatalf("BoundedElement(10:05:00) = (%v, %v, %v), want k2", key, val, ok)
	}
}

func TestBoundedElementBeforeMinimum(t *testing.T) {
	idx := New[string]()
	idx.Set(t0("10:00:00"), "k1")
	idx.Set(t0("11:00:00"), "k2")

	_, val, ok := idx.BoundedElement(t0("09:00:00"))
	if !ok || val != "k1" {
		t.Fatalf("BoundedElement before minimum = %v, %v, want k1", val, ok)
	}
}

func TestBoundedElementExactMatch(t *testing.T) {
	idx := New[string]()
	idx.Set(t0("10:00:00"), "k1")

	_, val, ok := idx.BoundedElement(t0("10:00:00"))
	if !ok || val != "k1" {
		t.Fatalf("exact match = %v, %v, want k1", val, ok)
	}
}

func TestKeysAscendingAfterOutOfOrderInsert(t *testing.T) {
	idx := New[int]()
	idx.Set(t0("10:09:35"), 3)
	idx.Set(t0("10:00:00"), 1)
	idx.Set(t0("10:04:47"), 2)

	keys := idx.Keys()
	for i := 1; i < len(keys); i++ {
		if keys[i-1].After(keys[i]) {
			t.Fatalf("keys not in ascending order: %v", keys)
		}
	}
}

func TestPredecessor(t *testing.T) {
	idx := New[string]()
	idx.Set(t0("10:00:00"), "k1")
	idx.Set(t0("10:04:47"), "k2")

	_, val, ok := idx.Predecessor(t0("10:04:47"))
	if !ok || val != "k1" {
		t.Fatalf("Predecessor = %v, %v, want k1", val, ok)
	}

	if _, _, ok := idx.Predecessor(t0("10:00:00")); ok {
		t.Error("expected no predecessor for the first key")
	}
}

func TestDelete(t *testing.T) {
	idx := New[string]()
	idx.Set(t0("10:00:00"), "k1")
	idx.Set(t0("10:04:47"), "k2")
	idx.Delete(t0("10:00:00"))

	if idx.Len() != 1 {
		t.Fatalf("Len after delete = %d, want 1", idx.Len())
	}
	if _, ok := idx.Get(t0("10:00:00")); ok {
		t.Error("deleted key still present")
	}
}
