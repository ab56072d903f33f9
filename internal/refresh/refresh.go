// Package refresh implements the Refresh Scheduler (spec.md section
// 4.6): one timer-driven refresh loop per provider, with multi-subscriber
// reference counting so a provider only polls while someone cares about
// it. Grounded on
// radar_product_manager.cpp's ProviderManager/RefreshDataSync/EnableRefresh.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/kallsyms/nexrad-ingest/internal/provider"
	"github.com/sirupsen/logrus"
)

// Event is the "new data available" notification (spec.md section 6)
// emitted when a refresh cycle observes new_objects > 0.
type Event struct {
	Group      string
	Product    string
	LatestTime time.Time
}

var log = logrus.WithField("component", "refresh")

// ProviderManager owns one provider's refresh loop: a single-threaded
// task runner (one goroutine in flight at a time), a cancellable timer,
// and a subscriber count.
type ProviderManager struct {
	Group   string
	Product string
	Fast    time.Duration
	Slow    time.Duration

	provider provider.Provider
	notify   func(Event)

	mu              sync.Mutex
	enabled         bool
	subscriberCount int
	timer           *time.Timer
	generation      uint64 // invalidates a pending timer after Disable
}

// NewProviderManager constructs a disabled ProviderManager for p. notify
// is called (from the refresh goroutine) whenever a cycle observes new
// objects; it may be nil.
func NewProviderManager(group, product string, p provider.Provider, fast, slow time.Duration, notify func(Event)) *ProviderManager {
	return &ProviderManager{
		Group:    group,
		Product:  product,
		Fast:     fast,
		Slow:     slow,
		provider: p,
		notify:   notify,
	}
}

// Enabled reports whether this provider currently has at least one
// subscriber.
func (pm *ProviderManager) Enabled() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.enabled
}

// addSubscriber increments the subscriber count and, if this transitions
// enabled from false to true, schedules an immediate refresh.
func (pm *ProviderManager) addSubscriber(ctx context.Context) {
	pm.mu.Lock()
	pm.subscriberCount++
	transitioned := !pm.enabled
	if transitioned {
		pm.enabled = true
	}
	pm.mu.Unlock()

	if transitioned {
		pm.scheduleNow(ctx)
	}
}

// removeSubscriber decrements the subscriber count and disables the
// provider (cancelling its timer) once it reaches zero.
func (pm *ProviderManager) removeSubscriber() {
	pm.mu.Lock()
	if pm.subscriberCount > 0 {
		pm.subscriberCount--
	}
	if pm.subscriberCount == 0 {
		pm.disableLocked()
	}
	pm.mu.Unlock()
}

// disableLocked cancels any pending timer and clears enabled. Callers
// must hold pm.mu.
func (pm *ProviderManager) disableLocked() {
	pm.enabled = false
	pm.generation++
	if pm.timer != nil {
		pm.timer.Stop()
		pm.timer = nil
	}
}

// scheduleNow fires one refresh immediately, on its own goroutine, as if
// a zero-length timer had just elapsed.
func (pm *ProviderManager) scheduleNow(ctx context.Context) {
	pm.mu.Lock()
	gen := pm.generation
	pm.mu.Unlock()
	go pm.fire(ctx, gen)
}

// fire runs one refresh cycle and, if still enabled under the same
// generation, arms the next timer.
func (pm *ProviderManager) fire(ctx context.Context, gen uint64) {
	interval, newObjects, latest := pm.refreshDataSync(ctx)

	if newObjects > 0 && pm.notify != nil {
		pm.notify(Event{Group: pm.Group, Product: pm.Product, LatestTime: latest})
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if !pm.enabled || pm.generation != gen {
		log.WithFields(logrus.Fields{"group": pm.Group, "product": pm.Product}).Debug("refresh cancelled, not rescheduling")
		return
	}
	pm.timer = time.AfterFunc(interval, func() { pm.fire(ctx, gen) })
}

// refreshDataSync implements spec.md section 4.6's refresh cycle steps
// 1-2: run the provider's refresh, then compute the next interval.
func (pm *ProviderManager) refreshDataSync(ctx context.Context) (interval time.Duration, newObjects int, latest time.Time) {
	newObjects, totalObjects, err := pm.provider.Refresh(ctx)
	if err != nil {
		log.WithFields(logrus.Fields{"group": pm.Group, "product": pm.Product}).Warnf("refresh failed: %v", err)
		return pm.Slow, 0, time.Time{}
	}

	interval = provider.NextInterval(totalObjects, pm.provider.UpdatePeriod(), pm.provider.LastModified(), time.Now().UTC(), pm.Fast, pm.Slow)

	if newObjects > 0 {
		latest, _ = pm.provider.FindLatestTime()
	}

	return interval, newObjects, latest
}

// Scheduler is the subscriber-facing API (spec.md section 4.6): per
// subscriber uuid, which ProviderManagers are currently wanted.
type Scheduler struct {
	mu          sync.Mutex
	subscribers map[string]map[*ProviderManager]struct{}
}

// NewScheduler constructs an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{subscribers: make(map[string]map[*ProviderManager]struct{})}
}

// EnableRefresh implements spec.md section 4.6's enable_refresh: for
// every provider previously associated with subscriberUUID, decrement
// its subscriber count (disabling it if it drops to zero, either because
// enabled is false or it's no longer in the new set). If enabled, then
// associate subscriberUUID with providerSet and increment each of those
// providers' subscriber counts, scheduling an immediate refresh for any
// that transition to enabled.
// Providers present in both the old and new set are left untouched
// rather than decremented-then-incremented back to the same count; the
// net effect on subscriberCount and the enabled flag is identical, and
// it avoids a spurious momentary drop to zero for a still-wanted
// provider.
func (s *Scheduler) EnableRefresh(ctx context.Context, subscriberUUID string, providerSet []*ProviderManager, enabled bool) {
	newSet := make(map[*ProviderManager]struct{}, len(providerSet))
	for _, pm := range providerSet {
		newSet[pm] = struct{}{}
	}

	s.mu.Lock()
	oldSet := s.subscribers[subscriberUUID]
	var toRemove []*ProviderManager
	for pm := range oldSet {
		if !enabled {
			toRemove = append(toRemove, pm)
			continue
		}
		if _, stillWanted := newSet[pm]; !stillWanted {
			toRemove = append(toRemove, pm)
		}
	}

	if enabled {
		s.subscribers[subscriberUUID] = newSet
	} else {
		delete(s.subscribers, subscriberUUID)
	}
	s.mu.Unlock()

	for _, pm := range toRemove {
		pm.removeSubscriber()
	}

	if enabled {
		for pm := range newSet {
			if _, alreadyWanted := oldSet[pm]; alreadyWanted {
				continue
			}
			pm.addSubscriber(ctx)
		}
	}
}
