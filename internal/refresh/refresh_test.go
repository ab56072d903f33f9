package refresh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kallsyms/nexrad-ingest/archive2"
	"github.com/kallsyms/nexrad-ingest/internal/provider"
)

// fakeProvider is a minimal provider.Provider for scheduler tests; only
// Refresh/LastModified/UpdatePeriod are exercised by ProviderManager.
type fakeProvider struct {
	mu         sync.Mutex
	newObjects int
}

func (f *fakeProvider) ListObjects(context.Context, time.Time) (int, error) { return 0, nil }

func (f *fakeProvider) LoadObjectByTime(context.Context, time.Time) (*archive2.Archive2, error) {
	return nil, nil
}

func (f *fakeProvider) Refresh(context.Context) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newObjects, 1, nil
}

func (f *fakeProvider) FindLatestTime() (time.Time, bool) { return time.Now(), true }

func (f *fakeProvider) TimePointsByDate(context.Context, time.Time, bool) ([]time.Time, error) {
	return nil, nil
}

func (f *fakeProvider) HasDate(time.Time) bool      { return true }
func (f *fakeProvider) LastModified() time.Time     { return time.Now() }
func (f *fakeProvider) UpdatePeriod() time.Duration { return time.Minute }

var _ provider.Provider = (*fakeProvider)(nil)

func TestSubscriberReferenceCounting(t *testing.T) {
	fp := &fakeProvider{}
	pm := NewProviderManager("Level2", "Reflectivity", fp, time.Millisecond, time.Hour, nil)

	s := NewScheduler()
	ctx := context.Background()

	s.EnableRefresh(ctx, "A", []*ProviderManager{pm}, true)
	if !pm.Enabled() {
		t.Fatal("expected provider to be enabled after first subscriber")
	}
	s.EnableRefresh(ctx, "B", []*ProviderManager{pm}, true)

	pm.mu.Lock()
	count := pm.subscriberCount
	pm.mu.Unlock()
	if count != 2 {
		t.Errorf("subscriberCount = %d, want 2", count)
	}

	s.EnableRefresh(ctx, "A", nil, false)
	pm.mu.Lock()
	count = pm.subscriberCount
	enabled := pm.enabled
	pm.mu.Unlock()
	if count != 1 {
		t.Errorf("subscriberCount after A unsubscribes = %d, want 1", count)
	}
	if !enabled {
		t.Error("expected provider to remain enabled while B still subscribes")
	}

	s.EnableRefresh(ctx, "B", nil, false)
	if pm.Enabled() {
		t.Error("expected provider to be disabled once the last subscriber releases it")
	}
}

func TestResubscribeKeepsOtherProviderEnabled(t *testing.T) {
	reflectivity := NewProviderManager("Level2", "Reflectivity", &fakeProvider{}, time.Millisecond, time.Hour, nil)
	velocity := NewProviderManager("Level2", "Velocity", &fakeProvider{}, time.Millisecond, time.Hour, nil)

	s := NewScheduler()
	ctx := context.Background()

	s.EnableRefresh(ctx, "A", []*ProviderManager{reflectivity}, true)
	s.EnableRefresh(ctx, "B", []*ProviderManager{reflectivity}, true)

	// A re-subscribes to Velocity only: implicit disable of Reflectivity for A.
	s.EnableRefresh(ctx, "A", []*ProviderManager{velocity}, true)

	reflectivity.mu.Lock()
	refCount := reflectivity.subscriberCount
	refEnabled := reflectivity.enabled
	reflectivity.mu.Unlock()

	velocity.mu.Lock()
	velCount := velocity.subscriberCount
	velocity.mu.Unlock()

	if refCount != 1 {
		t.Errorf("Reflectivity subscriberCount = %d, want 1", refCount)
	}
	if !refEnabled {
		t.Error("Reflectivity refresh should still be enabled (B still subscribes)")
	}
	if velCount != 1 {
		t.Errorf("Velocity subscriberCount = %d, want 1", velCount)
	}
}
