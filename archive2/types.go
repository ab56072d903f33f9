// Package archive2 decodes the NEXRAD Archive II (Level-2) wire format: the
// volume header, the bzip2-wrapped LDM records beneath it, and the message
// stream those records carry (RDA/RPG ICD 2620002T, User ICD 2620010H).
package archive2

import "time"

const (
	radialStatusStartOfElevationScan   = 0
	radialStatusIntermediateRadialData = 1
	radialStatusEndOfElevation         = 2
	radialStatusBeginningOfVolumeScan  = 3
	radialStatusEndOfVolumeScan        = 4
	radialStatusStartNewElevation      = 5

	// LegacyCTMHeaderLength is the fixed preamble in front of every message
	// header.
	LegacyCTMHeaderLength = 12

	// DefaultMetadataRecordLength is the fixed record size regardless of
	// which message type it carries.
	DefaultMetadataRecordLength = 2432
)

// VolumeHeaderRecord is the 24-byte header opening every Archive II file
// (ICD 7.3.3): filename, extension, modification date/time, and site ICAO.
type VolumeHeaderRecord struct {
	TapeFilename    [9]byte // e.g. "AR2V0006"
	ExtensionNumber [3]byte // e.g. "001", cycles 000-999
	ModifiedDate    int32   // julian day since 1970-01-01
	ModifiedTime    int32   // milliseconds past midnight
	ICAO            [4]byte
}

// Filename reconstructs the original tape filename this volume was
// archived under.
func (vh VolumeHeaderRecord) Filename() string {
	return string(vh.TapeFilename[:]) + string(vh.ExtensionNumber[:])
}

// Date decodes ModifiedDate/ModifiedTime into a UTC time.Time.
func (vh VolumeHeaderRecord) Date() time.Time {
	return time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC).
		Add(time.Duration(vh.ModifiedDate) * time.Hour * 24).
		Add(time.Duration(vh.ModifiedTime) * time.Millisecond)
}

// LDMRecord is one Local Data Manager record: a bzip2-compressed span of
// message bytes (ICD 7.3.4).
type LDMRecord struct {
	Size           int32
	MetaDataRecord []byte
}

// MessageHeader precedes every message in the stream and identifies its
// type and segmentation (ICD 3.2.4.1).
type MessageHeader struct {
	MessageSize         uint16
	RDARedundantChannel uint8
	MessageType         uint8
	IDSequenceNumber    uint16
	JulianDate          uint16
	MillisOfDay         uint32
	NumMessageSegments  uint16
	MessageSegmentNum   uint16
}

// Message-specific payload types live in the messageNN.go files alongside
// their decoders.
