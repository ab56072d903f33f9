package provider

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kallsyms/nexrad-ingest/archive2"
	"github.com/kallsyms/nexrad-ingest/internal/nexraderr"
	"github.com/kallsyms/nexrad-ingest/internal/objectstore"
	"github.com/kallsyms/nexrad-ingest/internal/timeindex"
	"github.com/sirupsen/logrus"
)

// Archive pruning policy (spec.md section 4.3; grounded on
// aws_nexrad_data_provider.cpp's kMaxObjects_/kMinDatesBeforePruning_).
// Exposed as the exported MaxObjects/MinDatesBeforePruning fields of
// ArchiveProvider, which NewArchiveProvider sets to these defaults.
const (
	DefaultMaxObjects            = 2500
	DefaultMinDatesBeforePruning = 6
)

type archiveObject struct {
	Key          string
	LastModified time.Time
}

// ArchiveProvider lists and fetches archived (non-realtime) Level-2 objects
// for one radar site under a date-qualified prefix, grounded on
// original_source/wxdata/source/scwx/provider/aws_nexrad_data_provider.cpp.
type ArchiveProvider struct {
	Client                objectstore.Client
	Bucket                string
	RadarID               string
	MaxObjects            int
	MinDatesBeforePruning int

	mu          sync.RWMutex
	objects     *timeindex.Index[archiveObject]
	objectDates []time.Time // oldest first, most-recently-used last
	refreshDate time.Time

	lastModified time.Time
	updatePeriod time.Duration
}

// NewArchiveProvider constructs an ArchiveProvider with the default pruning
// policy.
func NewArchiveProvider(client objectstore.Client, bucket, radarID string) *ArchiveProvider {
	return &ArchiveProvider{
		Client:                client,
		Bucket:                bucket,
		RadarID:               radarID,
		MaxObjects:            DefaultMaxObjects,
		MinDatesBeforePruning: DefaultMinDatesBeforePruning,
		objects:               timeindex.New[archiveObject](),
	}
}

// ParseArchiveKey extracts the time point embedded in an archive object key
// of the form ".../RRRRYYYYMMDD_HHMMSS_V06" (spec.md section 6).
func ParseArchiveKey(key string) (time.Time, error) {
	base := key
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if len(base) < 19 {
		return time.Time{}, fmt.Errorf("provider: key %q too short to contain a timestamp", key)
	}
	// base[:4] is the site id
	t, err := time.Parse("20060102_150405", base[4:19])
	if err != nil {
		return time.Time{}, fmt.Errorf("provider: parsing timestamp from %q: %w", key, err)
	}
	return t.UTC(), nil
}

// isMarkerObject reports whether key is a metadata marker object to be
// skipped rather than indexed as a scan (spec.md section 6).
func isMarkerObject(key string) bool {
	return strings.Contains(key, "_MDM") || strings.Contains(key, "NWS_NEXRAD_")
}

func (p *ArchiveProvider) datePrefix(date time.Time) string {
	return fmt.Sprintf("%s/%s/", p.RadarID, date.UTC().Format("2006/01/02"))
}

// ListObjects lists the archive under date's prefix and indexes every new
// key.
func (p *ArchiveProvider) ListObjects(ctx context.Context, date time.Time) (int, error) {
	result, err := p.Client.List(ctx, p.Bucket, p.datePrefix(date), "")
	if err != nil {
		return 0, err
	}

	newObjects := 0
	p.mu.Lock()
	for _, obj := range result.Objects {
		if isMarkerObject(obj.Key) {
			continue
		}
		t, err := ParseArchiveKey(obj.Key)
		if err != nil {
			logrus.WithField("component", "provider.archive").Debugf("skipping unparseable key %q: %v", obj.Key, err)
			continue
		}
		if _, exists := p.objects.Get(t); !exists {
			newObjects++
		}
		p.objects.Set(t, archiveObject{Key: obj.Key, LastModified: obj.LastModified})
	}
	p.mu.Unlock()

	if newObjects > 0 {
		p.updateObjectDates(date)
		p.pruneObjects()
		p.updateMetadata()
	}

	return newObjects, nil
}

// updateObjectDates moves date to the back of the MRU list (spec.md section
// 4.3's "LRU list of date-days").
func (p *ArchiveProvider) updateObjectDates(date time.Time) {
	date = date.UTC().Truncate(24 * time.Hour)

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, d := range p.objectDates {
		if d.Equal(date) {
			p.objectDates = append(p.objectDates[:i], p.objectDates[i+1:]...)
			break
		}
	}
	p.objectDates = append(p.objectDates, date)
}

// pruneObjects drops the oldest dates (and their object entries) once both
// thresholds are exceeded, never touching today or yesterday.
func (p *ArchiveProvider) pruneObjects() {
	p.mu.Lock()
	defer p.mu.Unlock()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	yesterday := today.Add(-24 * time.Hour)

	for p.objects.Len() > p.MaxObjects && len(p.objectDates) >= p.MinDatesBeforePruning {
		candidate := p.objectDates[0]
		if !candidate.Before(yesterday) {
			break
		}

		for _, key := range p.objects.Keys() {
			if key.UTC().Truncate(24 * time.Hour).Equal(candidate) {
				p.objects.Delete(key)
			}
		}
		p.objectDates = p.objectDates[1:]
	}
}

// updateMetadata derives LastModified/UpdatePeriod from the two most
// recently observed objects.
func (p *ArchiveProvider) updateMetadata() {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := p.objects.Keys()
	if len(keys) == 0 {
		return
	}

	latestKey := keys[len(keys)-1]
	latest, _ := p.objects.Get(latestKey)
	p.lastModified = latest.LastModified

	if len(keys) < 2 {
		return
	}
	prevKey := keys[len(keys)-2]
	prev, _ := p.objects.Get(prevKey)
	p.updatePeriod = latest.LastModified.Sub(prev.LastModified)
}

// FindKey returns the bounded-element key/object at or before t.
func (p *ArchiveProvider) FindKey(t time.Time) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, obj, ok := p.objects.BoundedElement(t)
	if !ok {
		return "", false
	}
	return obj.Key, true
}

// FindLatestTime returns the most recent known object time.
func (p *ArchiveProvider) FindLatestTime() (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	t, _, ok := p.objects.Latest()
	return t, ok
}

// FindLatestKey returns the most recent known object key.
func (p *ArchiveProvider) FindLatestKey() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, obj, ok := p.objects.Latest()
	return obj.Key, ok
}

func (p *ArchiveProvider) hasDate(date time.Time) bool {
	date = date.UTC().Truncate(24 * time.Hour)
	for _, d := range p.objectDates {
		if d.Equal(date) {
			return true
		}
	}
	return false
}

// HasDate reports whether date has already been listed, without triggering a
// fresh listing.
func (p *ArchiveProvider) HasDate(date time.Time) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hasDate(date)
}

// TimePointsByDate returns every known time point on date, listing first if
// the date hasn't been observed yet. The read lock is released before any
// network call (original_source unlocks before ListObjects for the same
// reason: don't hold the lock across I/O), and the date's MRU position is
// always refreshed on return, even on a cache hit.
func (p *ArchiveProvider) TimePointsByDate(ctx context.Context, date time.Time, update bool) ([]time.Time, error) {
	p.mu.RLock()
	known := p.hasDate(date)
	p.mu.RUnlock()

	if !known {
		if _, err := p.ListObjects(ctx, date); err != nil {
			return nil, err
		}
	}

	p.updateObjectDates(date)

	day := date.UTC().Truncate(24 * time.Hour)
	var points []time.Time

	p.mu.RLock()
	for _, k := range p.objects.Keys() {
		if k.UTC().Truncate(24 * time.Hour).Equal(day) {
			points = append(points, k)
		}
	}
	p.mu.RUnlock()

	return points, nil
}

// Refresh lists yesterday (if refreshDate is stale) then today, maximizing
// coverage across midnight rollover (spec.md section 4.3).
func (p *ArchiveProvider) Refresh(ctx context.Context) (int, int, error) {
	now := time.Now().UTC()
	today := now.Truncate(24 * time.Hour)

	p.mu.RLock()
	refreshDate := p.refreshDate
	p.mu.RUnlock()

	total := 0

	if refreshDate.Before(today) {
		n, err := p.ListObjects(ctx, today.Add(-24*time.Hour))
		if err != nil {
			return 0, 0, err
		}
		total += n
		if n > 0 {
			p.mu.Lock()
			p.refreshDate = today.Add(-24 * time.Hour)
			p.mu.Unlock()
		}
	}

	n, err := p.ListObjects(ctx, today)
	if err != nil {
		return total, 0, err
	}
	total += n
	if n > 0 {
		p.mu.Lock()
		p.refreshDate = today
		p.mu.Unlock()
	}

	p.mu.RLock()
	totalObjects := p.objects.Len()
	p.mu.RUnlock()

	return total, totalObjects, nil
}

// LoadObjectByTime fetches and decodes the archive object at or before t (or
// the latest object for the zero time).
func (p *ArchiveProvider) LoadObjectByTime(ctx context.Context, t time.Time) (*archive2.Archive2, error) {
	var key string
	var ok bool
	if t.IsZero() {
		key, ok = p.FindLatestKey()
	} else {
		key, ok = p.FindKey(t)
	}
	if !ok {
		return nil, nexraderr.NotFound
	}

	return p.loadObjectByKey(ctx, key)
}

// LoadRawObjectByTime fetches the object at or before t (or the latest for
// the zero time) without attempting an Archive2 decode. Level-3 products
// are NIDS raster payloads, not Archive2 files (spec.md section 6's decoder
// contract only covers Level-2); the Radar Product Manager serves them to
// l2serv-style downstream renderers as opaque bytes, the way
// cmd/l2serv/l3.go's listGCS/render handlers do for the teacher.
func (p *ArchiveProvider) LoadRawObjectByTime(ctx context.Context, t time.Time) ([]byte, time.Time, error) {
	var key string
	var ok bool
	if t.IsZero() {
		key, ok = p.FindLatestKey()
	} else {
		key, ok = p.FindKey(t)
	}
	if !ok {
		return nil, time.Time{}, nexraderr.NotFound
	}

	body, lastModified, err := p.Client.Get(ctx, p.Bucket, key)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, lastModified, nil
}

func (p *ArchiveProvider) loadObjectByKey(ctx context.Context, key string) (*archive2.Archive2, error) {
	body, _, err := p.Client.Get(ctx, p.Bucket, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	fileLoadMu.Lock()
	defer fileLoadMu.Unlock()

	ar2, err := archive2.NewArchive2(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", nexraderr.DecodeFailure, err)
	}
	ar2.IndexFile()
	return ar2, nil
}

func (p *ArchiveProvider) LastModified() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastModified
}

func (p *ArchiveProvider) UpdatePeriod() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatePeriod
}
