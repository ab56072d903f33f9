package manager

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/kallsyms/nexrad-ingest/internal/objectstore"
	"github.com/kallsyms/nexrad-ingest/internal/radarsite"
	"github.com/kallsyms/nexrad-ingest/internal/record"
)

// fakeClient is a minimal objectstore.Client: every List returns no objects
// and no common prefixes, and Get always fails. Good enough for exercising
// the manager's control flow without a real bucket.
type fakeClient struct{}

func (fakeClient) List(ctx context.Context, bucket, prefix, delimiter string) (objectstore.ListResult, error) {
	return objectstore.ListResult{}, nil
}

func (fakeClient) Get(ctx context.Context, bucket, key string) (io.ReadCloser, time.Time, error) {
	return nil, time.Time{}, fmt.Errorf("manager test: Get not implemented for key %q", key)
}

var _ objectstore.Client = fakeClient{}

func newTestManager(id string) *RadarProductManager {
	site := radarsite.Site{ID: id, Latitude: 44.8, Longitude: -93.6, Altitude: 289, Type: radarsite.SiteTDWR}
	return NewManager(site, fakeClient{}, "archive-bucket", fakeClient{}, "chunk-bucket", fakeClient{}, "l3-bucket", nil)
}

func TestDatesForZeroTime(t *testing.T) {
	if dates := datesFor(time.Time{}); dates != nil {
		t.Errorf("datesFor(zero) = %v, want nil", dates)
	}
}

func TestDatesForClampsFuture(t *testing.T) {
	now := time.Now().UTC()
	today := now.Truncate(24 * time.Hour)

	dates := datesFor(now)
	if len(dates) != 2 {
		t.Fatalf("datesFor(today) = %d dates, want 2 (yesterday, today; tomorrow clamped)", len(dates))
	}
	for _, d := range dates {
		if d.After(today) {
			t.Errorf("datesFor returned future date %v", d)
		}
	}
	if !dates[len(dates)-1].Equal(today) {
		t.Errorf("last date = %v, want today %v", dates[len(dates)-1], today)
	}
}

func TestLoadStatusString(t *testing.T) {
	cases := map[LoadStatus]string{
		StatusListingProducts:     "ListingProducts",
		StatusLoadingProduct:      "LoadingProduct",
		StatusProductLoaded:       "ProductLoaded",
		StatusProductNotAvailable: "ProductNotAvailable",
		LoadStatus(99):            "Unknown",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("LoadStatus(%d).String() = %q, want %q", int(status), got, want)
		}
	}
}

func TestInstanceReusesManager(t *testing.T) {
	site := radarsite.Site{ID: "KTST1", Type: radarsite.SiteTDWR}
	m1 := Instance(site, fakeClient{}, "b1", fakeClient{}, "b2", fakeClient{}, "b3", nil)
	m2 := Instance(site, fakeClient{}, "b1", fakeClient{}, "b2", fakeClient{}, "b3", nil)
	if m1 != m2 {
		t.Error("Instance should return the same manager for a repeated site id")
	}

	other := radarsite.Site{ID: "KTST2", Type: radarsite.SiteTDWR}
	m3 := Instance(other, fakeClient{}, "b1", fakeClient{}, "b2", fakeClient{}, "b3", nil)
	if m3 == m1 {
		t.Error("Instance should return distinct managers for distinct site ids")
	}
}

func TestInitializeSkipsTDWR(t *testing.T) {
	m := newTestManager("KTST3")

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if m.Coords != nil {
		t.Error("a TDWR site should never build coordinate tables")
	}
	if !m.initialized {
		t.Error("Initialize should mark the manager initialized")
	}

	// Idempotent: a second call must not error or redo any work.
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
}

func TestGetLevel2ProductRecordsPopulatesTimes(t *testing.T) {
	m := newTestManager("KTST4")

	now := time.Now().UTC()
	records, err := m.GetLevel2ProductRecords(context.Background(), now)
	if err != nil {
		t.Fatalf("GetLevel2ProductRecords: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no upgraded records yet, got %d", len(records))
	}
	if !m.Level2Archive.HasDate(now.Truncate(24 * time.Hour)) {
		t.Error("expected today's date to be populated by PopulateTimes")
	}
}

func TestGetLevel2ProductRecordsReturnsStoredRecord(t *testing.T) {
	m := newTestManager("KTST5")

	now := time.Now().UTC().Truncate(time.Second)
	rec := &record.Record{RadarID: m.RadarID, Group: radarsite.GroupLevel2, Time: now}
	m.Level2Records.Store(rec)

	got, err := m.GetLevel2ProductRecords(context.Background(), now)
	if err != nil {
		t.Fatalf("GetLevel2ProductRecords: %v", err)
	}
	found := false
	for _, r := range got {
		if r == rec {
			found = true
		}
	}
	if !found {
		t.Error("expected the previously stored record to be returned")
	}
}

func TestGetLevel3ProductRecordStartsListing(t *testing.T) {
	m := newTestManager("KTST6")

	rec, status, err := m.GetLevel3ProductRecord(context.Background(), "N0B", time.Time{})
	if err != nil {
		t.Fatalf("GetLevel3ProductRecord: %v", err)
	}
	if status != StatusListingProducts {
		t.Errorf("status = %v, want ListingProducts", status)
	}
	if rec != nil {
		t.Error("expected no record while the product's times are still listing")
	}
}

func TestGetActiveVolumeTimesEmptyForEpoch(t *testing.T) {
	m := newTestManager("KTST7")

	times, err := m.GetActiveVolumeTimes(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("GetActiveVolumeTimes: %v", err)
	}
	if len(times) != 0 {
		t.Errorf("expected no active volume times for the epoch sentinel, got %d", len(times))
	}
}
