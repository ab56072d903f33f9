package manager

import (
	"fmt"
	"sync"

	"github.com/kallsyms/nexrad-ingest/internal/radarsite"
)

// LatLon is one precomputed geographic coordinate.
type LatLon struct {
	Lat, Lon float64
}

// coordTableRadials/coordTableGates bound the radial x gate grid precomputed
// per site (spec.md section 4.8: up to 720 radials, 1841 gates at the
// vertex level — tables are built one gate wider than the sweep's innermost
// gate index so a gate's "far edge" coordinate is always available).
const (
	coordTableRadials = archive2MaxRadialIndex + 1
	coordTableGates   = 1841

	// archive2MaxRadialIndex mirrors archive2.MaxRadialIndex without an
	// import cycle concern; it is simply the network's radial cap.
	archive2MaxRadialIndex = 720
)

// CoordTable is one precomputed (bearing, range) -> (lat, lon) grid for a
// site, keyed by radial and gate index (spec.md section 4.7).
type CoordTable struct {
	Radials int
	Gates   int
	coords  []LatLon
}

// At returns the precomputed coordinate for (radial, gate).
func (t *CoordTable) At(radial, gate int) LatLon {
	return t.coords[radial*t.Gates+gate]
}

// NewFlatCoordTable wraps an already-flattened radial x gate coordinate
// slice, for callers (tests, or a future on-disk cache) that build or load
// a table without going through buildCoordTable's geodesic precompute.
func NewFlatCoordTable(radials, gates int, coords []LatLon) *CoordTable {
	return &CoordTable{Radials: radials, Gates: gates, coords: coords}
}

// coordTableVariant names the four tables spec.md section 4.7 requires.
type coordTableVariant struct {
	name        string
	radialStep  float64 // degrees
	angleOffset float64 // degrees
	rangeOffset float64 // gate widths
}

var coordTableVariants = []coordTableVariant{
	{name: "edge05", radialStep: 0.5, angleOffset: 0, rangeOffset: 1.0},
	{name: "center05", radialStep: 0.5, angleOffset: 0.25, rangeOffset: 0.5},
	{name: "edge1", radialStep: 1.0, angleOffset: 0, rangeOffset: 1.0},
	{name: "center1", radialStep: 1.0, angleOffset: 0.5, rangeOffset: 0.5},
}

// buildCoordTable computes one variant's grid for site, splitting the
// radial range across workers goroutines (spec.md section 5: "Geodetic
// coordinate tables are computed in parallel across radial x gate indices
// using a data-parallel primitive"). Each worker owns its own geodesic
// transform since a *proj.PJ is not safe for concurrent use.
func buildCoordTable(site radarsite.Site, v coordTableVariant, workers int) (*CoordTable, error) {
	if workers < 1 {
		workers = 1
	}

	table := &CoordTable{
		Radials: coordTableRadials,
		Gates:   coordTableGates,
		coords:  make([]LatLon, coordTableRadials*coordTableGates),
	}

	radialsPerWorker := (coordTableRadials + workers - 1) / workers

	var wg sync.WaitGroup
	errs := make([]error, workers)

	for w := 0; w < workers; w++ {
		start := w * radialsPerWorker
		end := start + radialsPerWorker
		if start >= coordTableRadials {
			break
		}
		if end > coordTableRadials {
			end = coordTableRadials
		}

		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()

			geo, err := newGeodesic(site)
			if err != nil {
				errs[w] = err
				return
			}
			defer geo.Close()

			for radial := start; radial < end; radial++ {
				bearing := float64(radial)*v.radialStep + v.angleOffset
				for gate := 0; gate < coordTableGates; gate++ {
					rng := (float64(gate) + v.rangeOffset) * site.GateSize()
					lat, lon, err := geo.forward(bearing, rng)
					if err != nil {
						errs[w] = fmt.Errorf("manager: coord table %s radial %d gate %d: %w", v.name, radial, gate, err)
						return
					}
					table.coords[radial*coordTableGates+gate] = LatLon{Lat: lat, Lon: lon}
				}
			}
		}(w, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return table, nil
}

// CoordTables is the four tables owned by one site's manager (spec.md
// section 4.7: "0.5 deg and 1 deg x edge/center").
type CoordTables struct {
	Edge05   *CoordTable
	Center05 *CoordTable
	Edge1    *CoordTable
	Center1  *CoordTable
}

// buildCoordTables computes all four variants, one at a time (the
// parallelism lives within each variant's radial x gate grid, per
// spec.md section 5's single data-parallel primitive).
func buildCoordTables(site radarsite.Site, workers int) (*CoordTables, error) {
	built := make(map[string]*CoordTable, len(coordTableVariants))
	for _, v := range coordTableVariants {
		t, err := buildCoordTable(site, v, workers)
		if err != nil {
			return nil, err
		}
		built[v.name] = t
	}
	return &CoordTables{
		Edge05:   built["edge05"],
		Center05: built["center05"],
		Edge1:    built["edge1"],
		Center1:  built["center1"],
	}, nil
}
