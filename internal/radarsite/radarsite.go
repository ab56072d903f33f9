// Package radarsite describes the static radar site and product catalogs
// (spec.md section 3). Sites are loaded once at startup and never mutated.
package radarsite

// SiteType distinguishes the two antenna families the network fields, which
// in turn fixes gate size.
type SiteType int

const (
	// SiteWSR88D is a standard long-range weather surveillance radar.
	SiteWSR88D SiteType = iota
	// SiteTDWR is a terminal doppler weather radar (shorter range, denser
	// gates, no precomputed coordinate tables per spec.md section 4.7).
	SiteTDWR
)

// Gate sizes in meters, keyed by SiteType (spec.md section 3).
const (
	GateSizeWSR88D = 250.0
	GateSizeTDWR   = 150.0
)

// Site is a static radar site descriptor.
type Site struct {
	ID        string // 4-5 character site code, e.g. "KMPX"
	Latitude  float64
	Longitude float64
	Altitude  float64 // meters above sea level
	Type      SiteType
}

// GateSize returns the range-gate spacing in meters for this site's antenna
// type.
func (s Site) GateSize() float64 {
	if s.Type == SiteTDWR {
		return GateSizeTDWR
	}
	return GateSizeWSR88D
}

// ProductGroup distinguishes the Level-2/Level-3 data groups a product
// belongs to.
type ProductGroup int

const (
	GroupLevel2 ProductGroup = iota
	GroupLevel3
)

// Level2Product enumerates the moment-data-block-backed products (spec.md
// section 3).
type Level2Product int

const (
	Reflectivity Level2Product = iota
	Velocity
	SpectrumWidth
	DifferentialReflectivity
	DifferentialPhase
	CorrelationCoefficient
	ClutterFilterPowerRemoved
)

func (p Level2Product) String() string {
	switch p {
	case Reflectivity:
		return "Reflectivity"
	case Velocity:
		return "Velocity"
	case SpectrumWidth:
		return "SpectrumWidth"
	case DifferentialReflectivity:
		return "DifferentialReflectivity"
	case DifferentialPhase:
		return "DifferentialPhase"
	case CorrelationCoefficient:
		return "CorrelationCoefficient"
	case ClutterFilterPowerRemoved:
		return "ClutterFilterPowerRemoved"
	default:
		return "Unknown"
	}
}

// Level3Product is identified by a three-character AWIPS id resolving to a
// numeric product code and category.
type Level3Product struct {
	AWIPSID     string // e.g. "N0B"
	Code        int
	Category    string
	DisplayName string
}

// KnownLevel3Products is the subset of the AWIPS catalog this pipeline
// recognizes. Additional products can be registered at startup without
// touching the rest of the pipeline.
var KnownLevel3Products = map[string]Level3Product{
	"N0B": {AWIPSID: "N0B", Code: 94, Category: "Reflectivity", DisplayName: "Base Reflectivity (SR)"},
	"N0Q": {AWIPSID: "N0Q", Code: 94, Category: "Reflectivity", DisplayName: "Base Reflectivity (HR)"},
	"N0U": {AWIPSID: "N0U", Code: 99, Category: "Velocity", DisplayName: "Base Velocity (SR)"},
	"N0V": {AWIPSID: "N0V", Code: 99, Category: "Velocity", DisplayName: "Base Velocity"},
	"N0C": {AWIPSID: "N0C", Code: 159, Category: "CorrelationCoefficient", DisplayName: "Correlation Coefficient"},
	"N0X": {AWIPSID: "N0X", Code: 157, Category: "DifferentialPhase", DisplayName: "Differential Phase"},
	"N0Z": {AWIPSID: "N0Z", Code: 19, Category: "Reflectivity", DisplayName: "Base Reflectivity (long range)"},
}
