package archive2

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

var (
	pointersPerBuild = map[float32]int{
		18: 9,
		19: 10,
	}
)

// Message31Header is the fixed, non-data-block portion of a Message 31
// radial (User ICD 3.2.4.17).
type Message31Header struct {
	RadarIdentifier              [4]byte // site ICAO, e.g. "KMPX"
	CollectionTime               uint32  // ms past midnight GMT
	CollectionDate               uint16  // julian date minus 2440586.5
	AzimuthNumber                uint16  // radial's position within the elevation scan
	AzimuthAngle                 float32
	CompressionIndicator         uint8 // compression method, if any; the header itself is never compressed
	Spare                        uint8
	RadialLength                 uint16 // uncompressed radial length in bytes, header included
	AzimuthResolutionSpacingCode uint8  // 1 = 0.5 degree spacing, 2 = 1 degree
	RadialStatus                 uint8
	ElevationNumber              uint8 // position within the volume scan
	CutSectorNumber              uint8
	ElevationAngle               float32
	RadialSpotBlankingStatus     uint8
	AzimuthIndexingMode          uint8 // set when azimuth is keyed to fixed angles rather than free-running
	DataBlockCount               uint16
	// data block pointers follow here on the wire; NewMessage31 skips over
	// them since every block is read by name, not by offset.
}

func (h Message31Header) String() string {
	return fmt.Sprintf("Message 31 - %s @ %v deg=%.2f tilt=%.2f",
		string(h.RadarIdentifier[:]),
		h.Date(),
		h.AzimuthAngle,
		h.ElevationAngle,
	)
}

// Date decodes CollectionDate/CollectionTime into a UTC time.Time.
func (h Message31Header) Date() time.Time {
	return time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC).
		Add(time.Duration(int(h.CollectionDate)-1) * time.Hour * 24).
		Add(time.Duration(h.CollectionTime) * time.Millisecond)
}

// Message31 is one radial's Digital Radar Data, generic format (User ICD
// 3.2.4.17): the fixed header plus whichever of the named data blocks this
// radial actually carries.
type Message31 struct {
	Header        Message31Header
	VolumeData    VolumeData
	ElevationData ElevationData
	RadialData    RadialData
	REFData       DataMoment
	VELData       DataMoment
	SWData        DataMoment
	ZDRData       DataMoment
	PHIData       DataMoment
	RHOData       DataMoment
	CFPData       DataMoment
}

// NewMessage31 reads one Message 31 radial from r. build selects how many
// data block pointer words to skip, since that count changed between RDA
// software builds.
func NewMessage31(r io.Reader, build float32) (*Message31, error) {
	header := Message31Header{}
	binary.Read(r, binary.BigEndian, &header)

	// skip over the data block pointers, which is build dependent
	binary.Read(r, binary.BigEndian, make([]uint32, pointersPerBuild[build]))

	m31 := Message31{
		Header: header,
	}

	for i := uint16(0); i < header.DataBlockCount; i++ {
		d := DataBlock{}
		if err := binary.Read(r, binary.BigEndian, &d); err != nil {
			return nil, err
		}

		blockName := string(d.DataName[:])
		switch blockName {
		case "VOL":
			binary.Read(r, binary.BigEndian, &m31.VolumeData)
		case "ELV":
			binary.Read(r, binary.BigEndian, &m31.ElevationData)
		case "RAD":
			binary.Read(r, binary.BigEndian, &m31.RadialData)
		case "REF", "VEL", "SW ", "ZDR", "PHI", "RHO", "CFP":
			m := GenericDataMoment{}
			binary.Read(r, binary.BigEndian, &m)

			// the data moment length is determined with (num gates * word size) / 8.
			dataMomentSize := m.NumberDataMomentGates * uint16(m.DataWordSize) / 8
			data := make([]uint8, dataMomentSize)
			io.ReadFull(r, data)

			moment := DataMoment{
				GenericDataMoment: m,
				Data:              data,
			}

			switch blockName {
			case "REF":
				m31.REFData = moment
			case "VEL":
				m31.VELData = moment
			case "SW ":
				m31.SWData = moment
			case "ZDR":
				m31.ZDRData = moment
			case "PHI":
				m31.PHIData = moment
			case "RHO":
				m31.RHOData = moment
			case "CFP":
				m31.CFPData = moment
			}
		default:
			return nil, fmt.Errorf("Data Block - unknown type '%s'", blockName)
		}
	}
	return &m31, nil
}

// AzimuthResolutionSpacing returns the radial spacing in degrees.
func (h *Message31) AzimuthResolutionSpacing() float32 {
	if h.Header.AzimuthResolutionSpacingCode == 1 {
		return 0.5
	}
	return 1
}

// DataBlock is the 4-byte tag in front of each data block (a
// GenericDataMoment, VolumeData, etc.) identifying its type and name, per
// the header row of User ICD tables XVII-[BEFH].
type DataBlock struct {
	DataBlockType [1]byte
	DataName      [3]byte
}

// GenericDataMoment is the shared wrapper around a momentary data block —
// REF, VEL, SW, and the rest all use this layout (User ICD 3.2.4.17.2).
type GenericDataMoment struct {
	// block type/name are read separately, as DataBlock
	Reserved                      uint32
	NumberDataMomentGates         uint16 // gate count for this radial
	DataMomentRange               uint16 // range to the center of the first gate
	DataMomentRangeSampleInterval uint16
	TOVER                         uint16  // min echo power delta between gates before they're flagged overlaid
	SNRThreshold                  uint16
	ControlFlags                  uint8
	DataWordSize                  uint8   // bits per gate
	Scale                         float32 // integer-to-float conversion, with Offset
	Offset                        float32
}

// VolumeData carries the volume-scoped metadata attached to a radial (User
// ICD 3.2.4.17.3).
type VolumeData struct {
	LRTUP                          uint16 // block size in bytes
	VersionMajor                   uint8
	VersionMinor                   uint8
	Lat                            float32
	Long                           float32
	SiteHeight                     uint16
	FeedhornHeight                 uint16
	CalibrationConstant            float32
	SHVTXPowerHor                  float32
	SHVTXPowerVer                  float32
	SystemDifferentialReflectivity float32
	InitialSystemDifferentialPhase float32
	VolumeCoveragePatternNumber    uint16
	ProcessingStatus               uint16
}

// ElevationData carries elevation-cut metadata attached to a radial (User
// ICD 3.2.4.17.4).
type ElevationData struct {
	LRTUP      uint16  // block size in bytes
	ATMOS      [2]byte // atmospheric attenuation factor
	CalibConst float32 // signal processor's reflectivity calibration for this cut
}

// RadialData carries per-radial calibration metadata (User ICD 3.2.4.17.5).
type RadialData struct {
	LRTUP              uint16 // block size in bytes
	UnambiguousRange   uint16
	NoiseLevelHorz     float32
	NoiseLevelVert     float32
	NyquistVelocity    uint16
	Spares             [2]byte
	CalibConstHorzChan float32
	CalibConstVertChan float32
}

// DataMoment is a momentary data block (REF, VEL, SW, ...) together with its
// raw per-gate bytes, interpreted per User ICD 3.2.4.17.6.
type DataMoment struct {
	GenericDataMoment
	Data []byte
}

const (
	// MomentDataBelowThreshold is the scaled value substituted for a raw
	// gate byte of 0: received signal below threshold.
	MomentDataBelowThreshold = 999

	// MomentDataFolded is the scaled value substituted for a raw gate byte
	// of 1: range-folded data.
	MomentDataFolded = 998
)

// ScaledData converts every raw gate byte to its physical value. A raw
// value of 0 means below threshold and 1 means range folded; everything
// else (2-255) is scaled through scaleUint. Each byte of Data is treated as
// one gate, so 16-bit data words are not combined into a single value.
func (d *DataMoment) ScaledData() []float32 {
	scaledData := make([]float32, len(d.Data))
	for idx, val := range d.Data {
		if val == 0 {
			scaledData[idx] = MomentDataBelowThreshold
		} else if val == 1 {
			scaledData[idx] = MomentDataFolded
		} else {
			scaledData[idx] = scaleUint(uint16(val), d.GenericDataMoment.Offset, d.GenericDataMoment.Scale)
		}
	}
	return scaledData
}

// scaleUint applies F = (N - OFFSET) / SCALE. A scale of 0 means the gate
// already carries a floating point value, so n passes through unchanged.
func scaleUint(n uint16, offset, scale float32) float32 {
	val := float32(n)
	if scale == 0 {
		return val
	}
	return (val - offset) / scale
}
