package archive2

import "math"

// MaxRadialIndex is the clamp applied to the last radial index of a scan
// (spec.md section 3: "if the recorded last index exceeds 720 it is
// clamped").
const MaxRadialIndex = 720

// CompleteScanAngleThreshold is the maximum azimuth delta between a scan's
// first and last radial for the scan to be considered complete (spec.md
// section 3).
const CompleteScanAngleThreshold = 2.5

// ElevationScan is an ordered mapping of radial_index -> radial. Radials are
// 0-indexed and dense within one elevation cut of one volume scan.
type ElevationScan map[uint16]*Message31

// RadialIndex returns the 0-indexed, clamped radial index for a decoded
// Message31, derived from its 1-based AzimuthNumber.
func RadialIndex(m *Message31) uint16 {
	idx := uint16(0)
	if m.Header.AzimuthNumber > 0 {
		idx = m.Header.AzimuthNumber - 1
	}
	if idx > MaxRadialIndex {
		idx = MaxRadialIndex
	}
	return idx
}

// LastIndex returns the largest radial index present in the scan.
func (s ElevationScan) LastIndex() uint16 {
	var last uint16
	for idx := range s {
		if idx > last {
			last = idx
		}
	}
	return last
}

// First returns radial 0, or nil if the scan has no radial at index 0.
func (s ElevationScan) First() *Message31 {
	return s[0]
}

// IsComplete reports whether the scan covers a full sweep: the azimuth delta
// between the first and last radial must be no more than
// CompleteScanAngleThreshold degrees. A scan interrupted mid-acquisition (or
// still filling in) is "incomplete".
func (s ElevationScan) IsComplete() bool {
	first := s.First()
	last := s[s.LastIndex()]
	if first == nil || last == nil {
		return false
	}
	return math.Abs(float64(AngleDelta(first.Header.AzimuthAngle, last.Header.AzimuthAngle))) <= CompleteScanAngleThreshold
}

// AngleDelta normalizes angle_a - angle_b into [-180, 180).
func AngleDelta(a, b float32) float32 {
	d := a - b
	for d >= 180 {
		d -= 360
	}
	for d < -180 {
		d += 360
	}
	return d
}

// ElevationAngle returns the elevation angle of this scan, taken from its
// first radial (radials within one elevation cut share the same nominal
// elevation angle).
func (s ElevationScan) ElevationAngle() float32 {
	if r := s.First(); r != nil {
		return r.Header.ElevationAngle
	}
	return 0
}

// CollectionTime returns the first radial's collection time, the scan's
// nominal time.
func (s ElevationScan) CollectionTime() (Message31Header, bool) {
	if r := s.First(); r != nil {
		return r.Header, true
	}
	return Message31Header{}, false
}
