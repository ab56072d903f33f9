// Package manager implements the Radar Product Manager (spec.md section
// 4.7): the per-radar-site facade composing providers, the record store,
// and precomputed coordinate tables.
package manager

import (
	"fmt"
	"math"

	"github.com/kallsyms/nexrad-ingest/internal/radarsite"
	"github.com/twpayne/go-proj/v10"
)

// geographicCRS is the target of every geodesic transform: plain WGS-84
// longitude/latitude, matching the CRS string
// other_examples/jtleniger-go-nexrad-geojson uses for its final output step.
const geographicCRS = "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs"

// geodesic solves the WGS-84 "forward" problem (site, bearing, range) ->
// (lat, lon) for one radar site. go-proj has no direct forward-geodesic
// entry point (the pack's one example, jtleniger-go-nexrad-geojson, only
// shows CRS-to-CRS point transforms), so this composes one: an azimuthal
// equidistant projection centered on the site maps bearing/range directly
// to a Cartesian point by construction (x = range*sin(bearing), y =
// range*cos(bearing)), and PJ's ellps=WGS84 handles the ellipsoidal
// geodesic math for that projection internally. Transforming that point
// into geographic coordinates is then one more CRS-to-CRS step, same as
// the reference example's ltpToEcef/ecefToGeographic chain.
type geodesic struct {
	pj *proj.PJ
}

// newGeodesic builds the aeqd->geographic transform for site. Not safe to
// share across goroutines (per-worker instances are cheap to construct).
func newGeodesic(site radarsite.Site) (*geodesic, error) {
	aeqd := fmt.Sprintf("+proj=aeqd +lat_0=%v +lon_0=%v +ellps=WGS84 +units=m +no_defs", site.Latitude, site.Longitude)
	pj, err := proj.NewCRSToCRS(aeqd, geographicCRS, nil)
	if err != nil {
		return nil, fmt.Errorf("manager: building geodesic transform for site %.4f,%.4f: %w", site.Latitude, site.Longitude, err)
	}
	return &geodesic{pj: pj}, nil
}

// forward returns (lat, lon) for a point bearingDeg degrees clockwise from
// north and rangeMeters from the site.
func (g *geodesic) forward(bearingDeg, rangeMeters float64) (lat, lon float64, err error) {
	rad := bearingDeg * math.Pi / 180
	x := rangeMeters * math.Sin(rad)
	y := rangeMeters * math.Cos(rad)

	coord := proj.NewCoord(x, y, 0, 0)
	out, err := coord.Forward(g.pj)
	if err != nil {
		return 0, 0, err
	}
	return out[1], out[0], nil
}

func (g *geodesic) Close() {
	if g.pj != nil {
		g.pj.Destroy()
	}
}
