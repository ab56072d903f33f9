// Package archive2 decodes NEXRAD Archive II (Level-2) files and chunks:
// the volume header, compressed LDM records, and the message types needed
// to assemble elevation scans of generic radial data. It is the "black box"
// plain-file decoder the ingestion pipeline treats as an external
// collaborator (spec.md section 6's decoder contract): given bytes, it
// yields radials with azimuth angle, per-gate moment words, an SNR
// threshold, and enough metadata to index and query elevation scans.
package archive2

import (
	"bytes"
	"compress/bzip2"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	dsnetbzip2 "github.com/dsnet/compress/bzip2"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// defaultBuild is assumed until a Message2 (RDA status) record reveals the
// actual build number. Intermediate/End chunks rarely carry one.
const defaultBuild = 19.0

// Archive2 wraps a decoded (possibly still-assembling) NEXRAD Level-2 file.
// Scans are keyed by elevation number (1-based, per the RDA/RPG ICD) rather
// than by elevation angle, since two cuts in a VCP can share an angle.
type Archive2 struct {
	VolumeHeader                VolumeHeaderRecord
	ElevationScans              map[uint8]ElevationScan
	RadarID                     string
	VolumeCoveragePatternNumber uint16
	build                       float32

	// Index is populated by IndexFile: moment type -> elevation angle ->
	// scan time -> scan. This is the structure GetElevationScan searches.
	Index map[DataBlockType]map[float32]map[time.Time]ElevationScan
}

// NewArchive2 decodes a complete Archive II stream (volume header followed
// by one or more LDM compressed records) such as a full archive object or a
// realtime chunk-provider "Start" chunk.
func NewArchive2(r io.Reader) (*Archive2, error) {
	ar2 := &Archive2{
		ElevationScans: make(map[uint8]ElevationScan),
		build:          defaultBuild,
	}
	if err := ar2.LoadData(r); err != nil {
		return nil, err
	}
	return ar2, nil
}

// LoadData resets and loads the initial chunk of a volume scan: the 24-byte
// volume header followed by the metadata record and as many data records as
// the reader yields. This corresponds to role "S" (Start) in the chunked
// object store layout (spec.md section 6).
func (ar2 *Archive2) LoadData(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &ar2.VolumeHeader); err != nil {
		return fmt.Errorf("archive2: reading volume header: %w", err)
	}
	ar2.RadarID = string(ar2.VolumeHeader.ICAO[:])
	logrus.Debug(ar2.VolumeHeader.Filename())

	return ar2.LoadLDMRecords(r)
}

// LoadLDMRecords decompresses and parses additional LDM compressed records
// from r, appending their radials to the existing elevation scans. This
// corresponds to chunk roles "I" (Intermediate) and "E" (End).
func (ar2 *Archive2) LoadLDMRecords(r io.Reader) error {
	for {
		ldm := LDMRecord{}

		if err := binary.Read(r, binary.BigEndian, &ldm.Size); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("archive2: reading LDM record size: %w", err)
		}

		// the size can be negative, but you just interpret it as positive (RDA/RPG 7.3.4)
		if ldm.Size < 0 {
			ldm.Size = -ldm.Size
		}

		logrus.Tracef("LDM Compressed Record (%s bytes)", color.CyanString("%d", ldm.Size))

		compressedRecord := make([]byte, ldm.Size)
		if _, err := io.ReadFull(r, compressedRecord); err != nil {
			return fmt.Errorf("archive2: reading LDM record body: %w", err)
		}

		if err := ar2.parseRecord(compressedRecord); err != nil {
			return err
		}
	}
}

// parseRecord decompresses one bzip2-compressed LDM record and dispatches
// its messages.
func (ar2 *Archive2) parseRecord(compressed []byte) error {
	bzipReader, err := dsnetbzip2.NewReader(bytes.NewReader(compressed), nil)
	if err != nil {
		// Fall back to the stdlib decompressor for any stream the faster
		// dsnet implementation rejects (e.g. multi-stream concatenation
		// quirks); both decode the same bzip2 format.
		bzipReader2 := bzip2.NewReader(bytes.NewReader(compressed))
		return ar2.parseMessages(bzipReader2)
	}
	defer bzipReader.Close()
	return ar2.parseMessages(bzipReader)
}

func (ar2 *Archive2) parseMessages(r io.Reader) error {
	for {
		// eat 12 bytes due to legacy compliance of CTM Header, these are all set to nil
		if _, err := io.ReadFull(r, make([]byte, LegacyCTMHeaderLength)); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return fmt.Errorf("archive2: reading CTM header: %w", err)
		}

		header := MessageHeader{}
		if err := binary.Read(r, binary.BigEndian, &header); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("archive2: reading message header: %w", err)
		}

		logrus.Tracef("message type %d (segments: %d size: %d)", header.MessageType, header.NumMessageSegments, header.MessageSize)

		switch header.MessageType {
		case 2:
			m2 := Message2{}
			binary.Read(r, binary.BigEndian, &m2)

			logrus.Debugf("status=%s op-status=%s vcp=%d build=%.2f",
				m2.GetRDAStatus(),
				m2.GetOperabilityStatus(),
				m2.VolumeCoveragePatternNum,
				m2.GetBuildNumber(),
			)

			ar2.VolumeCoveragePatternNumber = m2.VolumeCoveragePatternNum
			ar2.build = m2.GetBuildNumber()

			skip := DefaultMetadataRecordLength - LegacyCTMHeaderLength - 16 - 68
			io.ReadFull(r, make([]byte, skip))
		case 31:
			m31, err := NewMessage31(r, ar2.build)
			if err != nil {
				return fmt.Errorf("archive2: decoding message 31: %w", err)
			}

			if ar2.RadarID == "" {
				ar2.RadarID = string(m31.Header.RadarIdentifier[:])
			}

			elevation := m31.Header.ElevationNumber
			scan, ok := ar2.ElevationScans[elevation]
			if !ok {
				scan = ElevationScan{}
				ar2.ElevationScans[elevation] = scan
			}
			scan[RadialIndex(m31)] = m31
		default:
			// not handled, skip the rest - which we know is DEFAULT - CTM - header
			skip := DefaultMetadataRecordLength - LegacyCTMHeaderLength - 16
			io.ReadFull(r, make([]byte, skip))
		}
	}
}

// IndexFile (re)builds Index from the currently decoded ElevationScans. It
// must be called after every chunk append so the moment/elevation/time index
// reflects the latest data (spec.md section 4.4: "index_file() is called on
// the (now updated) scan so its moment-type x elevation x time index is
// current").
func (ar2 *Archive2) IndexFile() {
	ar2.Index = make(map[DataBlockType]map[float32]map[time.Time]ElevationScan)

	allMoments := []DataBlockType{
		DataBlockReflectivity, DataBlockVelocity, DataBlockSpectrumWidth,
		DataBlockDifferentialReflectivity, DataBlockDifferentialPhase,
		DataBlockCorrelationCoefficient, DataBlockClutterFilterPower,
	}

	for _, scan := range ar2.ElevationScans {
		radial0 := scan.First()
		if radial0 == nil {
			logrus.Warn("archive2: elevation cut has no radial 0, skipping index")
			continue
		}

		elevationAngle := radial0.Header.ElevationAngle
		scanTime := radial0.Header.Date().Truncate(time.Second)

		for _, moment := range allMoments {
			if radial0.MomentBlock(moment) == nil {
				continue
			}

			byAngle, ok := ar2.Index[moment]
			if !ok {
				byAngle = make(map[float32]map[time.Time]ElevationScan)
				ar2.Index[moment] = byAngle
			}
			byTime, ok := byAngle[elevationAngle]
			if !ok {
				byTime = make(map[time.Time]ElevationScan)
				byAngle[elevationAngle] = byTime
			}
			byTime[scanTime] = scan
		}
	}
}

// GetElevationScan finds the elevation cut in this file whose angle is
// closest to target (ties favor the lower angle), then the scan at that cut
// whose time is the latest not after targetTime (or the absolute latest when
// targetTime is the zero value, the "latest available" sentinel). It returns
// the chosen scan, the elevation angle it was cut at, and every elevation
// angle available for this moment type. The scan is nil when every scan at
// the chosen cut is later than targetTime.
func (ar2 *Archive2) GetElevationScan(moment DataBlockType, target float32, targetTime time.Time) (ElevationScan, float32, []float32) {
	byAngle, ok := ar2.Index[moment]
	if !ok || len(byAngle) == 0 {
		return nil, 0, nil
	}

	var lowerBound, upperBound float32
	haveLower, haveUpper := false, false
	cuts := make([]float32, 0, len(byAngle))
	for angle := range byAngle {
		if angle <= target && (!haveLower || angle > lowerBound) {
			lowerBound, haveLower = angle, true
		}
		if angle >= target && (!haveUpper || angle < upperBound) {
			upperBound, haveUpper = angle, true
		}
		cuts = append(cuts, angle)
	}
	if !haveLower {
		lowerBound = upperBound
	}
	if !haveUpper {
		upperBound = lowerBound
	}

	lowerDelta := math.Abs(float64(target - lowerBound))
	upperDelta := math.Abs(float64(target - upperBound))
	elevationCut := lowerBound
	if upperDelta < lowerDelta {
		elevationCut = upperBound
	}

	byTime := byAngle[elevationCut]

	var chosen ElevationScan
	var chosenTime time.Time
	for t, scan := range byTime {
		if !targetTime.IsZero() && t.After(targetTime) {
			continue
		}
		if chosen == nil || t.After(chosenTime) {
			chosen = scan
			chosenTime = t
		}
	}

	return chosen, elevationCut, cuts
}

// MergeIncompleteScan stitches a new, in-progress elevation scan with the
// corresponding scan from the previous volume so a consumer sees one
// azimuth-continuous sweep (spec.md section 4.9, section 8 scenario 3). The
// new scan's radials keep their indices starting at 0; the previous volume's
// radials are appended, re-indexed to continue monotonically, using strict
// less-than so a radial whose azimuth exactly matches the new scan's last
// radial is dropped rather than duplicated (spec.md section 9's stated
// tie-break convention).
func MergeIncompleteScan(newScan, prevScan ElevationScan) ElevationScan {
	merged := make(ElevationScan, len(newScan)+len(prevScan))
	for idx, radial := range newScan {
		merged[idx] = radial
	}

	if newScan.IsComplete() || len(prevScan) == 0 {
		return merged
	}

	lastRadial := newScan[newScan.LastIndex()]
	if lastRadial == nil {
		return merged
	}
	lastAzimuth := lastRadial.Header.AzimuthAngle

	nextIndex := newScan.LastIndex() + 1
	for _, idx := range sortedIndices(prevScan) {
		radial := prevScan[idx]
		if AngleDelta(radial.Header.AzimuthAngle, lastAzimuth) <= 0 {
			continue
		}
		merged[nextIndex] = radial
		nextIndex++
	}

	return merged
}

func sortedIndices(scan ElevationScan) []uint16 {
	idxs := make([]uint16, 0, len(scan))
	for idx := range scan {
		idxs = append(idxs, idx)
	}
	for i := 1; i < len(idxs); i++ {
		for j := i; j > 0 && idxs[j-1] > idxs[j]; j-- {
			idxs[j-1], idxs[j] = idxs[j], idxs[j-1]
		}
	}
	return idxs
}
