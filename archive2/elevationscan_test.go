package archive2

import "testing"

func radialAt(azimuth float32) *Message31 {
	return &Message31{Header: Message31Header{AzimuthAngle: azimuth}}
}

func TestAngleDelta(t *testing.T) {
	cases := []struct {
		a, b, want float32
	}{
		{10, 5, 5},
		{5, 10, -5},
		{1, 359, 2},
		{359, 1, -2},
	}
	for _, c := range cases {
		got := AngleDelta(c.a, c.b)
		if got != c.want {
			t.Errorf("AngleDelta(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestElevationScanIsComplete(t *testing.T) {
	complete := ElevationScan{
		0:   radialAt(0.5),
		360: radialAt(359.6),
	}
	if !complete.IsComplete() {
		t.Error("expected scan spanning almost the full circle to be complete")
	}

	incomplete := ElevationScan{
		0:   radialAt(0.5),
		200: radialAt(180),
	}
	if incomplete.IsComplete() {
		t.Error("expected partial scan to be incomplete")
	}
}

func TestRadialIndexClampsAndZeroIndexes(t *testing.T) {
	m := &Message31{Header: Message31Header{AzimuthNumber: 1}}
	if got := RadialIndex(m); got != 0 {
		t.Errorf("RadialIndex with AzimuthNumber=1 = %d, want 0", got)
	}

	over := &Message31{Header: Message31Header{AzimuthNumber: MaxRadialIndex + 50}}
	if got := RadialIndex(over); got != MaxRadialIndex {
		t.Errorf("RadialIndex over max = %d, want clamp to %d", got, MaxRadialIndex)
	}
}

func TestMergeIncompleteScanAppendsContinuation(t *testing.T) {
	// 0 -> 3 degrees is wider than CompleteScanAngleThreshold, so incomplete.
	newScan := ElevationScan{
		0: radialAt(0),
		1: radialAt(3),
	}
	prevScan := ElevationScan{
		0: radialAt(0.5),
		1: radialAt(4),
		2: radialAt(5),
	}

	merged := MergeIncompleteScan(newScan, prevScan)

	if merged[0].Header.AzimuthAngle != 0 || merged[1].Header.AzimuthAngle != 3 {
		t.Fatal("merged scan must keep the new scan's radials at their original indices")
	}

	var foundContinuation bool
	for idx, radial := range merged {
		if idx >= 2 && radial.Header.AzimuthAngle > 3 {
			foundContinuation = true
		}
	}
	if !foundContinuation {
		t.Error("expected previous-volume radials past the new scan's last azimuth to be appended")
	}

	if len(merged) != 4 {
		t.Errorf("expected the radial at azimuth 0.5 (before the new scan's last azimuth) to be dropped, got %d radials", len(merged))
	}
}

func TestMergeIncompleteScanHandlesWraparound(t *testing.T) {
	// New scan covers 272.0 -> 280.5, a gap narrow enough to be incomplete.
	newScan := ElevationScan{
		0: radialAt(272.0),
		1: radialAt(280.5),
	}
	// Previous volume's scan for this cut spans 281 -> 271, wrapping through
	// 0/360; everything past 280.5 going forward (through the wrap, up to
	// but excluding 271) should be pulled in as a continuation.
	prevScan := ElevationScan{
		0: radialAt(281),
		1: radialAt(300),
		2: radialAt(350),
		3: radialAt(10),
		4: radialAt(50),
		5: radialAt(271),
	}

	merged := MergeIncompleteScan(newScan, prevScan)

	azimuths := make(map[float32]bool)
	for idx, radial := range merged {
		if idx >= 2 {
			azimuths[radial.Header.AzimuthAngle] = true
		}
	}

	for _, want := range []float32{281, 300, 350, 10, 50} {
		if !azimuths[want] {
			t.Errorf("expected continuation radial at azimuth %v to survive the wrap, merged has %v", want, azimuths)
		}
	}
	if azimuths[271] {
		t.Error("radial at azimuth 271 is behind the new scan's last azimuth going forward and should be dropped")
	}
	if len(merged) != 7 {
		t.Errorf("merged scan has %d radials, want 7 (2 new + 5 continuation)", len(merged))
	}
}

func TestMergeIncompleteScanSkipsWhenComplete(t *testing.T) {
	newScan := ElevationScan{
		0:   radialAt(0),
		360: radialAt(359.9),
	}
	prevScan := ElevationScan{
		0: radialAt(0),
	}

	merged := MergeIncompleteScan(newScan, prevScan)
	if len(merged) != len(newScan) {
		t.Error("a complete scan should not be merged with the previous volume")
	}
}
