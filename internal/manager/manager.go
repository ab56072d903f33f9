package manager

import (
	"context"
	"sync"
	"time"

	"github.com/kallsyms/nexrad-ingest/archive2"
	"github.com/kallsyms/nexrad-ingest/internal/objectstore"
	"github.com/kallsyms/nexrad-ingest/internal/provider"
	"github.com/kallsyms/nexrad-ingest/internal/radarsite"
	"github.com/kallsyms/nexrad-ingest/internal/record"
	"github.com/kallsyms/nexrad-ingest/internal/refresh"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "manager")

// coordWorkers is the manager's coordinate-table precompute pool size
// (spec.md section 5: "the manager owns a 4-thread pool").
const coordWorkers = 4

// level2StalenessWindow bounds how far behind "now" (or a requested time)
// the in-progress chunked scan may be before get_level2_data falls back to
// archive records (spec.md section 4.7 step 1).
const level2StalenessWindow = 10 * time.Minute

// level3ValidityWindow is how far a Level-3 record's time may be from the
// request (or now, for the epoch sentinel) before it's rejected as stale
// (spec.md section 4.7, get_level3_product_record).
const level3ValidityWindow = 24 * time.Hour

// LoadStatus is the get_level3_product_record state machine (spec.md
// section 4.7): ListingProducts -> LoadingProduct -> (ProductLoaded |
// ProductNotAvailable). get_level2_data always reports ProductLoaded on
// success.
type LoadStatus int

const (
	StatusListingProducts LoadStatus = iota
	StatusLoadingProduct
	StatusProductLoaded
	StatusProductNotAvailable
)

func (s LoadStatus) String() string {
	switch s {
	case StatusListingProducts:
		return "ListingProducts"
	case StatusLoadingProduct:
		return "LoadingProduct"
	case StatusProductLoaded:
		return "ProductLoaded"
	case StatusProductNotAvailable:
		return "ProductNotAvailable"
	default:
		return "Unknown"
	}
}

// Event is the DataReloaded notification emitted when an expired weak
// reference is asynchronously reloaded (spec.md section 4.7 step 3).
type Event struct {
	RadarID string
	Group   radarsite.ProductGroup
	Product string
	Time    time.Time
}

// level3Product bundles one AWIPS product's lazily-created provider and
// record store (spec.md section 4.7: "a lazily-populated map
// product_name -> Level-3 ProviderManager").
type level3Product struct {
	provider *provider.ArchiveProvider
	store    *record.Store
	pm       *refresh.ProviderManager
}

// RadarProductManager is the per-radar-site facade (spec.md section 4.7):
// one instance per radar id, cached by radar id in Instance's registry,
// which holds strong references (see instances).
type RadarProductManager struct {
	RadarID string
	Site    radarsite.Site

	Level2Archive *provider.ArchiveProvider
	Level2Chunked *provider.ChunkedProvider
	Level2Records *record.Store

	level3Client objectstore.Client
	level3Bucket string

	level3Mu sync.Mutex
	level3   map[string]*level3Product

	Scheduler *refresh.Scheduler

	initMu      sync.Mutex
	initialized bool
	Coords      *CoordTables

	notify func(Event)
}

// NewManager constructs a RadarProductManager for site. archiveClient/
// archiveBucket back the Level-2 archive provider (e.g. "noaa-nexrad-level2");
// chunkedClient/chunkedBucket back the Level-2 chunked provider (e.g.
// "unidata-nexrad-level2-chunks"); level3Client/level3Bucket are reserved
// for lazily-created Level-3 product providers. notify, if non-nil, receives
// DataReloaded events.
func NewManager(site radarsite.Site, archiveClient objectstore.Client, archiveBucket string, chunkedClient objectstore.Client, chunkedBucket string, level3Client objectstore.Client, level3Bucket string, notify func(Event)) *RadarProductManager {
	archiveProvider := provider.NewArchiveProvider(archiveClient, archiveBucket, site.ID)
	chunkedProvider := provider.NewChunkedProvider(chunkedClient, chunkedBucket, site.ID, archiveProvider)

	return &RadarProductManager{
		RadarID:       site.ID,
		Site:          site,
		Level2Archive: archiveProvider,
		Level2Chunked: chunkedProvider,
		Level2Records: record.NewStore(record.DefaultCacheLimit),
		level3Client:  level3Client,
		level3Bucket:  level3Bucket,
		level3:        make(map[string]*level3Product),
		Scheduler:     refresh.NewScheduler(),
		notify:        notify,
	}
}

// instances is the process-wide site-id -> manager registry (spec.md
// section 4.7: "weakly cached by radar id"). Go has no GC-visible weak
// reference, and the set of live sites is small (roughly 160 WSR-88D/TDWR
// sites network-wide), so unlike internal/record's per-scan cache this
// registry simply holds strong references for the process lifetime; the
// "weak" cache in the original is a memory optimization for a UI process
// cycling through sites, not a correctness requirement here.
var (
	instancesMu sync.Mutex
	instances   = make(map[string]*RadarProductManager)
)

// Instance returns the (possibly newly constructed) manager for site,
// guarded by a brief lock on the instance map (spec.md section 5: "Instance
// map mutex: guards the process-wide site-id -> weak manager map; held
// briefly during Instance(radar_id)").
func Instance(site radarsite.Site, archiveClient objectstore.Client, archiveBucket string, chunkedClient objectstore.Client, chunkedBucket string, level3Client objectstore.Client, level3Bucket string, notify func(Event)) *RadarProductManager {
	instancesMu.Lock()
	defer instancesMu.Unlock()

	if m, ok := instances[site.ID]; ok {
		return m
	}
	m := NewManager(site, archiveClient, archiveBucket, chunkedClient, chunkedBucket, level3Client, level3Bucket, notify)
	instances[site.ID] = m
	return m
}

// Initialize precomputes the four coordinate tables for WSR-88D sites
// (spec.md section 4.7). TDWR sites skip precomputation. Idempotent.
func (m *RadarProductManager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	if m.initialized {
		return nil
	}
	if m.Site.Type == radarsite.SiteTDWR {
		m.initialized = true
		return nil
	}

	tables, err := buildCoordTables(m.Site, coordWorkers)
	if err != nil {
		return err
	}
	m.Coords = tables
	m.initialized = true
	return nil
}

// getOrCreateLevel3 returns (creating if necessary) the provider/store pair
// for product.
func (m *RadarProductManager) getOrCreateLevel3(product string) *level3Product {
	m.level3Mu.Lock()
	defer m.level3Mu.Unlock()

	if p, ok := m.level3[product]; ok {
		return p
	}

	prov := provider.NewArchiveProvider(m.level3Client, m.level3Bucket, m.RadarID+"/"+product)
	p := &level3Product{
		provider: prov,
		store:    record.NewStore(record.DefaultCacheLimit),
	}
	p.pm = refresh.NewProviderManager(m.RadarID, product, prov, provider.ArchiveFastInterval, provider.ArchiveSlowInterval, m.onProviderEvent)
	m.level3[product] = p
	return p
}

func (m *RadarProductManager) onProviderEvent(e refresh.Event) {
	log.WithFields(logrus.Fields{"radar": m.RadarID, "product": e.Product}).Debug("new data available")
}

// datesFor mirrors internal/record's {yesterday, today, tomorrow} window,
// clamped to non-future dates, empty for the epoch sentinel.
func datesFor(t time.Time) []time.Time {
	if t.IsZero() {
		return nil
	}
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

// GetActiveVolumeTimes queries every currently-registered provider (the
// Level-2 archive and chunked providers, and any Level-3 product provider
// already created) in parallel for {yesterday, today, tomorrow} relative to
// t, merging the results into a set (spec.md section 4.7). The epoch
// sentinel returns an empty set.
func (m *RadarProductManager) GetActiveVolumeTimes(ctx context.Context, t time.Time) (map[time.Time]struct{}, error) {
	result := make(map[time.Time]struct{})
	dates := datesFor(t)
	if len(dates) == 0 {
		return result, nil
	}

	providers := []provider.Provider{m.Level2Archive, m.Level2Chunked}
	m.level3Mu.Lock()
	for _, p := range m.level3 {
		providers = append(providers, p.provider)
	}
	m.level3Mu.Unlock()

	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error

	for _, p := range providers {
		for _, date := range dates {
			wg.Add(1)
			go func(p provider.Provider, date time.Time) {
				defer wg.Done()
				points, err := p.TimePointsByDate(ctx, date, true)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					return
				}
				for _, pt := range points {
					result[pt] = struct{}{}
				}
			}(p, date)
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

// Level2Result is the outcome of GetLevel2Data.
type Level2Result struct {
	Scan           archive2.ElevationScan
	ElevationAngle float32
	AllCuts        []float32
	FoundTime      time.Time
	Status         LoadStatus
}

// GetLevel2Data implements spec.md section 4.7's get_level2_data: prefer
// the in-progress chunked scan when it's fresh enough, otherwise fall back
// to archive records.
func (m *RadarProductManager) GetLevel2Data(ctx context.Context, moment archive2.DataBlockType, elevation float32, t time.Time) (Level2Result, error) {
	staleBefore := t
	if t.IsZero() {
		staleBefore = time.Now().UTC()
	}
	staleBefore = staleBefore.Add(-level2StalenessWindow)

	if chunkedFile, err := m.Level2Chunked.LoadObjectByTime(ctx, t); err == nil && chunkedFile != nil {
		scan, cut, cuts := chunkedFile.GetElevationScan(moment, elevation, t)
		if scan != nil {
			if hdr, ok := scan.CollectionTime(); ok {
				foundTime := hdr.Date().Truncate(time.Second)
				if !foundTime.Before(staleBefore) {
					return Level2Result{
						Scan:           scan,
						ElevationAngle: cut,
						AllCuts:        cuts,
						FoundTime:      foundTime,
						Status:         StatusProductLoaded,
					}, nil
				}
			}
		}
	}

	records, err := m.GetLevel2ProductRecords(ctx, t)
	if err != nil {
		return Level2Result{}, err
	}

	var best *record.Record
	var bestScan archive2.ElevationScan
	var bestCut float32
	var bestCuts []float32
	var bestTime time.Time

	for _, rec := range records {
		if rec.Level2File == nil {
			continue
		}
		scan, cut, cuts := rec.Level2File.GetElevationScan(moment, elevation, t)
		if scan == nil {
			continue
		}
		hdr, ok := scan.CollectionTime()
		if !ok {
			continue
		}
		collectionTime := hdr.Date().Truncate(time.Second)
		if !t.IsZero() && collectionTime.After(t) {
			continue
		}
		if best == nil || collectionTime.After(bestTime) {
			best = rec
			bestScan = scan
			bestCut = cut
			bestCuts = cuts
			bestTime = collectionTime
		}
	}

	if best == nil {
		return Level2Result{Status: StatusProductNotAvailable}, nil
	}

	return Level2Result{
		Scan:           bestScan,
		ElevationAngle: bestCut,
		AllCuts:        bestCuts,
		FoundTime:      bestTime,
		Status:         StatusProductLoaded,
	}, nil
}

// GetLevel2ProductRecords implements spec.md section 4.7's
// get_level2_product_records: populate, bounded-element lookup (plus
// predecessor for a non-epoch request), async reload of any expired entry,
// and return of the currently-upgradable records.
func (m *RadarProductManager) GetLevel2ProductRecords(ctx context.Context, t time.Time) ([]*record.Record, error) {
	if err := m.Level2Records.PopulateTimes(ctx, m.Level2Archive, t); err != nil {
		return nil, err
	}

	type candidate struct {
		key      time.Time
		rec      *record.Record
		upgraded bool
		ok       bool
	}
	var entries []candidate

	if t.IsZero() {
		key, rec, upgraded, ok := m.Level2Records.Latest()
		entries = append(entries, candidate{key, rec, upgraded, ok})
	} else {
		key, rec, upgraded, ok := m.Level2Records.BoundedElement(t)
		entries = append(entries, candidate{key, rec, upgraded, ok})
		if ok {
			predKey, predRec, predUpgraded, predOk := m.Level2Records.Predecessor(key)
			entries = append(entries, candidate{predKey, predRec, predUpgraded, predOk})
		}
	}

	var out []*record.Record
	for _, e := range entries {
		if !e.ok {
			continue
		}
		if e.upgraded {
			out = append(out, e.rec)
			continue
		}
		if !t.IsZero() {
			go m.reloadLevel2Async(e.key)
		}
	}
	return out, nil
}

// reloadLevel2Async reloads the archive object at key and re-stores it,
// emitting a DataReloaded event on success (spec.md section 4.7 step 3).
func (m *RadarProductManager) reloadLevel2Async(key time.Time) {
	ar2, err := m.Level2Archive.LoadObjectByTime(context.Background(), key)
	if err != nil {
		log.WithFields(logrus.Fields{"radar": m.RadarID, "time": key}).Warnf("reloading level2 record: %v", err)
		return
	}
	rec := &record.Record{
		RadarID:    m.RadarID,
		Group:      radarsite.GroupLevel2,
		Time:       key,
		Level2File: ar2,
	}
	m.Level2Records.Store(rec)
	if m.notify != nil {
		m.notify(Event{RadarID: m.RadarID, Group: radarsite.GroupLevel2, Time: key})
	}
}

// GetLevel3ProductRecord implements spec.md section 4.7's
// get_level3_product_record state machine.
func (m *RadarProductManager) GetLevel3ProductRecord(ctx context.Context, product string, t time.Time) (*record.Record, LoadStatus, error) {
	p := m.getOrCreateLevel3(product)

	if !record.AreTimesPopulated(p.provider, t) {
		go func() {
			if err := p.store.PopulateTimes(context.Background(), p.provider, t); err != nil {
				log.WithFields(logrus.Fields{"radar": m.RadarID, "product": product}).Warnf("populating level3 times: %v", err)
			}
		}()
		return nil, StatusListingProducts, nil
	}

	var key time.Time
	var rec *record.Record
	var upgraded, ok bool
	if t.IsZero() {
		key, rec, upgraded, ok = p.store.Latest()
	} else {
		key, rec, upgraded, ok = p.store.BoundedElement(t)
	}
	if !ok {
		return nil, StatusProductNotAvailable, nil
	}

	reference := t
	if reference.IsZero() {
		reference = time.Now().UTC()
	}
	delta := reference.Sub(key)
	if delta < 0 {
		delta = -delta
	}
	if delta > level3ValidityWindow {
		return nil, StatusProductNotAvailable, nil
	}

	if !upgraded {
		go m.reloadLevel3Async(product, p, key)
		return nil, StatusLoadingProduct, nil
	}

	return rec, StatusProductLoaded, nil
}

func (m *RadarProductManager) reloadLevel3Async(product string, p *level3Product, key time.Time) {
	data, _, err := p.provider.LoadRawObjectByTime(context.Background(), key)
	if err != nil {
		log.WithFields(logrus.Fields{"radar": m.RadarID, "product": product, "time": key}).Warnf("reloading level3 record: %v", err)
		return
	}
	rec := &record.Record{
		RadarID:     m.RadarID,
		Group:       radarsite.GroupLevel3,
		Product:     product,
		ProductCode: product,
		Time:        key,
		Level3Data:  data,
	}
	p.store.Store(rec)
	if m.notify != nil {
		m.notify(Event{RadarID: m.RadarID, Group: radarsite.GroupLevel3, Product: product, Time: key})
	}
}
