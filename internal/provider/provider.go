// Package provider implements the Archive and Chunked data providers
// (spec.md sections 4.3-4.4): per-radar services that discover and fetch
// Level-2 source files from an object store and decode them into
// *archive2.Archive2 scans.
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/kallsyms/nexrad-ingest/archive2"
)

// fileLoadMu serializes every decoder invocation across every provider
// (spec.md section 5, "Global file-load mutex: serializes all decoder
// invocations (memory/CPU bound)"). It guards only the decode/index step,
// not the preceding network fetch, so one slow GET doesn't stall unrelated
// decodes.
var fileLoadMu sync.Mutex

// Provider is the capability set Archive and Chunked providers share
// (spec.md section 9, "Dynamic dispatch over providers"). The manager and
// refresh scheduler depend only on this interface, never on the concrete
// provider type.
type Provider interface {
	// ListObjects lists one unit of remote state: a calendar date for the
	// archive provider, or the whole radar-id prefix for the chunked
	// provider (date is ignored in that case).
	ListObjects(ctx context.Context, date time.Time) (newObjects int, err error)

	// LoadObjectByTime resolves the scan in effect at t (or the absolute
	// latest for the zero time) and decodes it.
	LoadObjectByTime(ctx context.Context, t time.Time) (*archive2.Archive2, error)

	// Refresh performs one incremental listing pass and returns how many
	// new objects were discovered and how many objects are known in total.
	Refresh(ctx context.Context) (newObjects, totalObjects int, err error)

	// FindLatestTime returns the most recent known object/scan time.
	FindLatestTime() (time.Time, bool)

	// TimePointsByDate returns every known time point falling on date,
	// listing first if date hasn't been seen yet.
	TimePointsByDate(ctx context.Context, date time.Time, update bool) ([]time.Time, error)

	// HasDate reports whether date has already been listed and cached,
	// without triggering a fresh listing (spec.md section 4.7
	// "are_times_populated").
	HasDate(date time.Time) bool

	// LastModified is the last-modified time of the most recently observed
	// object.
	LastModified() time.Time

	// UpdatePeriod is the estimated interval between successive objects,
	// derived from the two most recently observed objects.
	UpdatePeriod() time.Duration
}

// Refresh interval tuning (spec.md section 4.6).
const (
	ArchiveFastInterval = 15 * time.Second
	ArchiveSlowInterval = 120 * time.Second
	ChunkedFastInterval = 3 * time.Second
	ChunkedSlowInterval = 20 * time.Second
)

// NextInterval implements the adaptive refresh interval shared by both
// provider kinds (spec.md section 4.6 step 2).
func NextInterval(totalObjects int, updatePeriod time.Duration, lastModified time.Time, now time.Time, fast, slow time.Duration) time.Duration {
	if totalObjects <= 0 {
		return slow
	}

	nominal := updatePeriod - now.Sub(lastModified)
	if updatePeriod > 0 && now.Sub(lastModified) > 5*updatePeriod {
		return slow
	}
	if nominal < fast {
		return fast
	}
	return nominal
}
