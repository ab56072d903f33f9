package sweep

import (
	"testing"

	"github.com/kallsyms/nexrad-ingest/archive2"
	"github.com/kallsyms/nexrad-ingest/internal/manager"
	"github.com/kallsyms/nexrad-ingest/internal/nexraderr"
	"github.com/kallsyms/nexrad-ingest/internal/radarsite"
)

// refRadial builds a Message31 carrying a reflectivity moment block with one
// 8-bit gate per element of data, gate g holding data[g].
func refRadial(azimuth float32, data []uint8) *archive2.Message31 {
	return &archive2.Message31{
		Header: archive2.Message31Header{AzimuthAngle: azimuth},
		REFData: archive2.DataMoment{
			GenericDataMoment: archive2.GenericDataMoment{
				NumberDataMomentGates:         uint16(len(data)),
				DataMomentRange:               0,
				DataMomentRangeSampleInterval: 250,
				SNRThreshold:                  0,
				DataWordSize:                  8,
				Scale:                         2,
				Offset:                        66,
			},
			Data: data,
		},
	}
}

func flatTable(radials, gates int) *manager.CoordTable {
	coords := make([]manager.LatLon, radials*gates)
	for r := 0; r < radials; r++ {
		for g := 0; g < gates; g++ {
			coords[r*gates+g] = manager.LatLon{Lat: float64(r), Lon: float64(g)}
		}
	}
	return manager.NewFlatCoordTable(radials, gates, coords)
}

func testSite() radarsite.Site {
	return radarsite.Site{ID: "KMPX", Latitude: 44.8, Longitude: -93.6, Altitude: 289}
}

func TestComputeSweepRejectsUnknownMoment(t *testing.T) {
	v := NewView(testSite())
	scan := archive2.ElevationScan{0: refRadial(0, []uint8{10, 20, 30})}
	_, err := v.ComputeSweep(scan, archive2.DataBlockType("ZZZ"), flatTable(2, 4), Options{})
	if err != nexraderr.InvalidProduct {
		t.Errorf("ComputeSweep with unknown moment = %v, want InvalidProduct", err)
	}
}

func TestComputeSweepRejectsEmptyScan(t *testing.T) {
	v := NewView(testSite())
	_, err := v.ComputeSweep(archive2.ElevationScan{}, archive2.DataBlockReflectivity, flatTable(2, 4), Options{})
	if err != nexraderr.InvalidData {
		t.Errorf("ComputeSweep with empty scan = %v, want InvalidData", err)
	}
}

func TestComputeSweepRejectsMissingMoment(t *testing.T) {
	v := NewView(testSite())
	scan := archive2.ElevationScan{0: &archive2.Message31{Header: archive2.Message31Header{AzimuthAngle: 0}}}
	_, err := v.ComputeSweep(scan, archive2.DataBlockReflectivity, flatTable(2, 4), Options{})
	if err != nexraderr.InvalidData {
		t.Errorf("ComputeSweep with no REF block = %v, want InvalidData", err)
	}
}

func TestComputeSweepProducesVertices(t *testing.T) {
	v := NewView(testSite())
	scan := archive2.ElevationScan{
		0: refRadial(0, []uint8{0, 40, 80}),
		1: refRadial(1, []uint8{0, 45, 85}),
	}
	buf, err := v.ComputeSweep(scan, archive2.DataBlockReflectivity, flatTable(3, 4), Options{})
	if err != nil {
		t.Fatalf("ComputeSweep: %v", err)
	}
	if len(buf.Vertices) == 0 {
		t.Fatal("expected non-empty vertex buffer")
	}
	if buf.WordSize != 8 {
		t.Errorf("WordSize = %d, want 8", buf.WordSize)
	}
	if len(buf.Vertices) != len(buf.Moments)*2 {
		t.Errorf("vertex/moment count mismatch: %d vertices, %d moments", len(buf.Vertices), len(buf.Moments))
	}
}

func TestComputeSweepNoChangeOnRepeat(t *testing.T) {
	v := NewView(testSite())
	scan := archive2.ElevationScan{
		0: refRadial(0, []uint8{0, 40, 80}),
		1: refRadial(1, []uint8{0, 45, 85}),
	}
	opts := Options{}
	if _, err := v.ComputeSweep(scan, archive2.DataBlockReflectivity, flatTable(3, 4), opts); err != nil {
		t.Fatalf("first ComputeSweep: %v", err)
	}
	_, err := v.ComputeSweep(scan, archive2.DataBlockReflectivity, flatTable(3, 4), opts)
	if err != nexraderr.NoChange {
		t.Errorf("repeat ComputeSweep = %v, want NoChange", err)
	}
}

func TestComputeSweepWordSizeMismatchSkipsRadial(t *testing.T) {
	v := NewView(testSite())
	mismatched := refRadial(1, []uint8{0, 45, 85})
	mismatched.REFData.GenericDataMoment.DataWordSize = 16

	scan := archive2.ElevationScan{
		0: refRadial(0, []uint8{0, 40, 80}),
		1: mismatched,
	}
	buf, err := v.ComputeSweep(scan, archive2.DataBlockReflectivity, flatTable(3, 4), Options{})
	if err != nil {
		t.Fatalf("ComputeSweep: %v", err)
	}
	// radial 1 is skipped entirely (word size disagrees with radial 0's),
	// so only radial 0's gates contribute vertices.
	if len(buf.Moments) == 0 {
		t.Fatal("expected radial 0 to still produce vertices")
	}
}

func refRadialWithCFP(azimuth float32, data, cfp []uint8) *archive2.Message31 {
	m := refRadial(azimuth, data)
	m.CFPData = archive2.DataMoment{
		GenericDataMoment: archive2.GenericDataMoment{
			NumberDataMomentGates: uint16(len(cfp)),
			DataWordSize:          8,
		},
		Data: cfp,
	}
	return m
}

func TestComputeSweepPopulatesCFPForReflectivity(t *testing.T) {
	v := NewView(testSite())
	scan := archive2.ElevationScan{
		0: refRadialWithCFP(0, []uint8{0, 40, 80}, []uint8{1, 2, 3}),
		1: refRadialWithCFP(1, []uint8{0, 45, 85}, []uint8{4, 5, 6}),
	}
	buf, err := v.ComputeSweep(scan, archive2.DataBlockReflectivity, flatTable(3, 4), Options{})
	if err != nil {
		t.Fatalf("ComputeSweep: %v", err)
	}
	if len(buf.CFP) != len(buf.Moments) {
		t.Fatalf("CFP/moment count mismatch: %d CFP bytes, %d moments", len(buf.CFP), len(buf.Moments))
	}
	if len(buf.CFP) == 0 {
		t.Fatal("expected a populated CFP buffer when every radial carries a CFP block")
	}
}

func TestComputeSweepOmitsCFPWhenAbsent(t *testing.T) {
	v := NewView(testSite())
	scan := archive2.ElevationScan{
		0: refRadial(0, []uint8{0, 40, 80}),
		1: refRadial(1, []uint8{0, 45, 85}),
	}
	buf, err := v.ComputeSweep(scan, archive2.DataBlockReflectivity, flatTable(3, 4), Options{})
	if err != nil {
		t.Fatalf("ComputeSweep: %v", err)
	}
	if len(buf.CFP) != 0 {
		t.Errorf("expected no CFP data without a CFP block on radial 0, got %d bytes", len(buf.CFP))
	}
}

func TestComputeSweepOmitsCFPForNonReflectivity(t *testing.T) {
	v := NewView(testSite())
	velRadial := func(azimuth float32, data []uint8) *archive2.Message31 {
		return &archive2.Message31{
			Header: archive2.Message31Header{AzimuthAngle: azimuth},
			VELData: archive2.DataMoment{
				GenericDataMoment: archive2.GenericDataMoment{
					NumberDataMomentGates:         uint16(len(data)),
					DataMomentRangeSampleInterval: 250,
					DataWordSize:                  8,
					Scale:                         2,
					Offset:                        66,
				},
				Data: data,
			},
		}
	}
	scan := archive2.ElevationScan{
		0: velRadial(0, []uint8{0, 40, 80}),
		1: velRadial(1, []uint8{0, 45, 85}),
	}
	buf, err := v.ComputeSweep(scan, archive2.DataBlockVelocity, flatTable(3, 4), Options{})
	if err != nil {
		t.Fatalf("ComputeSweep: %v", err)
	}
	if len(buf.CFP) != 0 {
		t.Errorf("CFP should never be populated for a non-reflectivity moment, got %d bytes", len(buf.CFP))
	}
}

func TestSuppressedBelowThreshold(t *testing.T) {
	if !suppressed(0, 5) {
		t.Error("value below threshold should be suppressed")
	}
	if suppressed(1, 5) {
		t.Error("range-folded sentinel must never be suppressed")
	}
	if suppressed(10, 5) {
		t.Error("value at or above threshold should not be suppressed")
	}
}

func TestRemapValue(t *testing.T) {
	cases := []struct {
		name        string
		val         uint16
		showFolding bool
		wantVal     uint16
		wantOK      bool
	}{
		{"below threshold zero", 0, false, 7, true},
		{"range folded hidden", 1, false, 7, true},
		{"range folded shown", 1, true, 1, true},
		{"below snr", 3, false, 0, false},
		{"valid", 10, false, 10, true},
	}
	for _, c := range cases {
		gotVal, gotOK := remapValue(c.val, 5, 7, c.showFolding)
		if gotVal != c.wantVal || gotOK != c.wantOK {
			t.Errorf("%s: remapValue(%d) = (%d, %v), want (%d, %v)", c.name, c.val, gotVal, gotOK, c.wantVal, c.wantOK)
		}
	}
}
