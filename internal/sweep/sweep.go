// Package sweep implements Sweep Computation (spec.md section 4.8):
// turning one decoded elevation scan into a renderer-ready triangle strip
// of geographic vertices, raw moment words, and optional clutter-filter
// data, with an optional bilinear-smoothing mode. Grounded on
// level2_product_view.cpp's ComputeSweep/ComputeCoordinates/ComputeEdgeValue
// and the teacher's color-table functions in cmd/l2serv/main.go.
package sweep

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/kallsyms/nexrad-ingest/archive2"
	"github.com/kallsyms/nexrad-ingest/internal/manager"
	"github.com/kallsyms/nexrad-ingest/internal/nexraderr"
	"github.com/kallsyms/nexrad-ingest/internal/radarsite"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "sweep")

// maxGates bounds the gate loop regardless of a radial's NumberDataMomentGates
// (spec.md section 4.8, "min(num_gates, 1840)").
const maxGates = 1840

// rangeFoldedSentinel is the raw gate value meaning "range folded" (archive2's
// MomentDataFolded is the scaled equivalent; here we compare the raw word).
const rangeFoldedSentinel = 1

// Buffers is ComputeSweep's output: the renderer-ready vertex/moment/CFP
// triplet (spec.md section 4.8).
type Buffers struct {
	// Vertices is interleaved (lat, lon), two float32s per vertex.
	Vertices []float32
	// Moments holds one raw data word per vertex, widened to uint16
	// regardless of the scan's native word size; WordSize records which.
	Moments  []uint16
	WordSize int
	// CFP holds one clutter-filter-power-removed byte per vertex, present
	// only for reflectivity sweeps that carry a CFP data block.
	CFP []uint8
}

// Options configures one ComputeSweep call.
type Options struct {
	Smoothed                 bool
	ShowSmoothedRangeFolding bool
}

// lastScanKey identifies a previously computed sweep for the NoChange check
// (spec.md section 4.8 failure modes). ElevationScan is a map and so isn't
// comparable; radial0 (its radial-0 pointer) uniquely identifies a decoded
// scan instance instead.
type lastScanKey struct {
	radial0  *archive2.Message31
	moment   archive2.DataBlockType
	smoothed bool
	showFold bool
}

// View is one product's sweep-computation session: it remembers the last
// scan/options it computed so repeat calls can report NoChange, and owns
// the color-table LUT for its product. View holds no lock of its own:
// concurrent ComputeSweep or UpdateColorTableLut calls on one View are not
// synchronized.
type View struct {
	Site     radarsite.Site
	last     lastScanKey
	haveLast bool
	lut      *ColorTableLUT
}

// NewView constructs a View for site.
func NewView(site radarsite.Site) *View {
	return &View{Site: site}
}

// ComputeSweep converts scan into renderer-ready buffers for moment, using
// coords (the manager's precomputed geodetic table matching the scan's
// radial step and opts.Smoothed center-vs-edge convention) and opts.
func (v *View) ComputeSweep(scan archive2.ElevationScan, moment archive2.DataBlockType, coords *manager.CoordTable, opts Options) (*Buffers, error) {
	if !isKnownMoment(moment) {
		return nil, nexraderr.InvalidProduct
	}

	radial0 := scan.First()
	if radial0 == nil {
		return nil, nexraderr.InvalidData
	}
	moment0 := radial0.MomentBlock(moment)
	if moment0 == nil {
		return nil, nexraderr.InvalidData
	}

	key := lastScanKey{radial0: radial0, moment: moment, smoothed: opts.Smoothed, showFold: opts.ShowSmoothedRangeFolding}
	if v.haveLast && v.last == key {
		return nil, nexraderr.NoChange
	}

	lastIdx := scan.LastIndex()
	R := int(lastIdx) + 1
	if R > archive2.MaxRadialIndex {
		R = archive2.MaxRadialIndex
	}
	wordSize := int(moment0.DataWordSize)
	snrThreshold := float64(moment0.SNRThreshold)
	if snrThreshold < 2 {
		snrThreshold = 2
	}
	edgeValue := computeEdgeValue(moment, moment0.Offset, moment0.Scale)

	// CFP (clutter filter power removed) is only ever carried alongside
	// reflectivity, and only in the non-smoothed path (level2_product_view.cpp
	// never populates it while smoothing). Whether it's present is decided
	// once from radial 0, matching the teacher's check against momentData0.
	cfpEnabled := !opts.Smoothed && moment == archive2.DataBlockReflectivity && radial0.MomentBlock(archive2.DataBlockClutterFilterPower) != nil

	gateSizeBase := v.Site.GateSize()
	interval := float64(moment0.DataMomentRangeSampleInterval)
	startGate := int((float64(moment0.DataMomentRange) - interval/2) / gateSizeBase)
	gateStep := int(math.Max(1, interval/gateSizeBase))
	if opts.Smoothed {
		startGate++ // origin gate is always skipped when smoothing
	}

	buf := &Buffers{WordSize: wordSize}

	for radial := 0; radial < R; radial++ {
		dm, ok := gateMoment(scan, uint16(radial), moment, wordSize)
		if !ok {
			continue // missing or mismatched word size; logged by gateMoment
		}

		var cfpDM *archive2.DataMoment
		if cfpEnabled {
			if r, ok := scan[uint16(radial)]; ok {
				cfpDM = r.MomentBlock(archive2.DataBlockClutterFilterPower)
			}
		}

		numGates := int(dm.NumberDataMomentGates)
		if numGates > maxGates {
			numGates = maxGates
		}

		for g := startGate; g+gateStep <= numGates; g += gateStep {
			if g == 0 {
				if opts.Smoothed {
					continue
				}
				emitOriginTriangle(buf, v.Site, coords, radial, dm, cfpDM, cfpEnabled, g, wordSize, snrThreshold)
				continue
			}

			if opts.Smoothed {
				emitSmoothedQuad(buf, scan, coords, radial, g, moment, wordSize, snrThreshold, edgeValue, opts)
			} else {
				emitQuad(buf, coords, radial, g, dm, cfpDM, cfpEnabled, wordSize, snrThreshold)
			}
		}
	}

	v.last = key
	v.haveLast = true
	return buf, nil
}

func isKnownMoment(t archive2.DataBlockType) bool {
	switch t {
	case archive2.DataBlockReflectivity, archive2.DataBlockVelocity, archive2.DataBlockSpectrumWidth,
		archive2.DataBlockDifferentialReflectivity, archive2.DataBlockDifferentialPhase,
		archive2.DataBlockCorrelationCoefficient, archive2.DataBlockClutterFilterPower:
		return true
	}
	return false
}

// computeEdgeValue returns the synthetic value substituted for an absent
// quad corner during smoothing, per product (spec.md section 4.8).
func computeEdgeValue(moment archive2.DataBlockType, offset, scale float32) uint16 {
	switch moment {
	case archive2.DataBlockVelocity, archive2.DataBlockDifferentialReflectivity:
		if scale == 0 {
			return 0
		}
		return uint16(math.Round(float64(-offset / scale)))
	case archive2.DataBlockSpectrumWidth, archive2.DataBlockDifferentialPhase:
		return 2
	case archive2.DataBlockCorrelationCoefficient:
		return 255
	default:
		return 0
	}
}

// gateMoment returns radial i's moment data block for moment, enforcing
// the word-size discipline (spec.md section 4.8): a radial disagreeing with
// the scan's word size is skipped, not fatal.
func gateMoment(scan archive2.ElevationScan, i uint16, moment archive2.DataBlockType, wordSize int) (*archive2.DataMoment, bool) {
	r, ok := scan[i]
	if !ok {
		return nil, false
	}
	dm := r.MomentBlock(moment)
	if dm == nil {
		return nil, false
	}
	if int(dm.DataWordSize) != wordSize {
		log.Warn(describeMismatch(int(i), moment, int(dm.DataWordSize), wordSize))
		return nil, false
	}
	return dm, true
}

// gateValue reads the raw data word at gate g from dm, respecting its word
// size (8 or 16 bit).
func gateValue(dm *archive2.DataMoment, g int, wordSize int) uint16 {
	if wordSize == 8 {
		if g >= len(dm.Data) {
			return 0
		}
		return uint16(dm.Data[g])
	}
	off := g * 2
	if off+2 > len(dm.Data) {
		return 0
	}
	return binary.BigEndian.Uint16(dm.Data[off : off+2])
}

// suppressed reports whether raw value val (non-smoothed mode) should be
// skipped under the SNR/range-folding discipline.
func suppressed(val uint16, threshold float64) bool {
	return float64(val) < threshold && val != rangeFoldedSentinel
}

// remapValue substitutes edgeValue for a below-threshold (0) or, unless
// shown, range-folded (1) raw value (spec.md section 4.8, RemapDataMoment).
func remapValue(val uint16, threshold float64, edgeValue uint16, showFolding bool) (uint16, bool) {
	if val == 0 {
		return edgeValue, true
	}
	if val == rangeFoldedSentinel {
		if showFolding {
			return val, true
		}
		return edgeValue, true
	}
	if float64(val) < threshold {
		return 0, false
	}
	return val, true
}

func appendVertex(buf *Buffers, coords *manager.CoordTable, radial, gate int, value uint16, cfp uint8, haveCFP bool) {
	c := coords.At(radial, gate)
	buf.Vertices = append(buf.Vertices, float32(c.Lat), float32(c.Lon))
	buf.Moments = append(buf.Moments, value)
	if haveCFP {
		buf.CFP = append(buf.CFP, cfp)
	}
}

// cfpValue reads the clutter-filter-power-removed byte at gate g, or 0 if
// this radial carries no CFP block (matching the teacher's preallocated,
// zero-filled cfpMoments_ buffer for radials that happen to lack one).
func cfpValue(dm *archive2.DataMoment, g int) uint8 {
	if dm == nil {
		return 0
	}
	return uint8(gateValue(dm, g, 8))
}

func emitOriginTriangle(buf *Buffers, site radarsite.Site, coords *manager.CoordTable, radial int, dm, cfpDM *archive2.DataMoment, cfpEnabled bool, g, wordSize int, threshold float64) {
	raw := gateValue(dm, g, wordSize)
	if suppressed(raw, threshold) {
		return
	}
	cfp := cfpValue(cfpDM, g)

	buf.Vertices = append(buf.Vertices, float32(site.Latitude), float32(site.Longitude))
	buf.Moments = append(buf.Moments, raw)
	if cfpEnabled {
		buf.CFP = append(buf.CFP, cfp)
	}

	appendVertex(buf, coords, radial, g, raw, cfp, cfpEnabled)
	appendVertex(buf, coords, radial+1, g, raw, cfp, cfpEnabled)
}

func emitQuad(buf *Buffers, coords *manager.CoordTable, radial, g int, dm, cfpDM *archive2.DataMoment, cfpEnabled bool, wordSize int, threshold float64) {
	raw := gateValue(dm, g, wordSize)
	if suppressed(raw, threshold) {
		return
	}
	cfp := cfpValue(cfpDM, g)

	for _, v := range quadVertices(radial, g) {
		appendVertex(buf, coords, v[0], v[1], raw, cfp, cfpEnabled)
	}
}

// quadVertices returns the six (radial, gate) corners of one gate quad in
// the two-triangle winding spec.md section 4.8 prescribes.
func quadVertices(radial, gate int) [6][2]int {
	a := [2]int{radial, gate - 1}
	b := [2]int{radial, gate}
	c := [2]int{radial + 1, gate - 1}
	d := [2]int{radial + 1, gate}
	return [6][2]int{a, b, c, c, b, d}
}

func emitSmoothedQuad(buf *Buffers, scan archive2.ElevationScan, coords *manager.CoordTable, radial, g int, moment archive2.DataBlockType, wordSize int, threshold float64, edgeValue uint16, opts Options) {
	corner := func(r, gi int) (uint16, bool) {
		dm, ok := gateMoment(scan, uint16(r), moment, wordSize)
		if !ok {
			return edgeValue, true
		}
		raw := gateValue(dm, gi, wordSize)
		return remapValue(raw, threshold, edgeValue, opts.ShowSmoothedRangeFolding)
	}

	dm1, ok1 := corner(radial, g-1)
	dm2, ok2 := corner(radial, g)
	dm3, ok3 := corner(radial+1, g-1)
	dm4, ok4 := corner(radial+1, g)
	if !ok1 && !ok2 && !ok3 && !ok4 {
		return
	}

	appendVertex(buf, coords, radial, g-1, dm1, 0, false)
	appendVertex(buf, coords, radial, g, dm2, 0, false)
	appendVertex(buf, coords, radial+1, g, dm4, 0, false)
	appendVertex(buf, coords, radial, g-1, dm1, 0, false)
	appendVertex(buf, coords, radial+1, g-1, dm3, 0, false)
	appendVertex(buf, coords, radial+1, g, dm4, 0, false)
}

// describeMismatch formats the warning logged when a radial's word size
// disagrees with the scan's (spec.md section 4.8: "logged and skipped").
func describeMismatch(radial int, moment archive2.DataBlockType, got, want int) string {
	return fmt.Sprintf("sweep: radial %d moment %s word size %d disagrees with scan word size %d, skipping", radial, moment, got, want)
}
