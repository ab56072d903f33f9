package sweep

import (
	"image/color"

	"github.com/kallsyms/nexrad-ingest/archive2"
	"golang.org/x/image/colornames"
)

// Palette maps a raw (unscaled) data word to a display color, the way the
// teacher's dbzColor/velColorRadarscope functions do in cmd/l2serv/main.go.
type Palette func(raw uint16, scale, offset float32) color.Color

// productRanges bounds the LUT index range per product (spec.md section
// 4.8, "Color-table LUT update ... sized to [threshold_min,
// number_of_levels)").
var productRanges = map[archive2.DataBlockType][2]int{
	archive2.DataBlockReflectivity:             {1, 256},
	archive2.DataBlockVelocity:                 {1, 256},
	archive2.DataBlockSpectrumWidth:            {1, 256},
	archive2.DataBlockCorrelationCoefficient:   {1, 256},
	archive2.DataBlockDifferentialReflectivity: {1, 1058},
	archive2.DataBlockDifferentialPhase:        {1, 1023},
	archive2.DataBlockClutterFilterPower:       {1, 81},
}

// reflectivityPalette mirrors the teacher's dbzColor band table.
func reflectivityPalette(raw uint16, scale, offset float32) color.Color {
	if raw == rangeFoldedSentinel {
		return colornames.Black
	}
	dbz := (float32(raw) - offset) / scale
	switch {
	case dbz < 5:
		return colornames.Black
	case dbz < 10:
		return color.NRGBA{0x9C, 0x9C, 0x9C, 0xFF}
	case dbz < 15:
		return color.NRGBA{0x76, 0x76, 0x76, 0xFF}
	case dbz < 20:
		return color.NRGBA{0xFF, 0xAA, 0xAA, 0xFF}
	case dbz < 25:
		return color.NRGBA{0xEE, 0x8C, 0x8C, 0xFF}
	case dbz < 30:
		return color.NRGBA{0xC9, 0x70, 0x70, 0xFF}
	case dbz < 35:
		return color.NRGBA{0x00, 0xFB, 0x90, 0xFF}
	case dbz < 40:
		return color.NRGBA{0x00, 0xBB, 0x00, 0xFF}
	case dbz < 45:
		return color.NRGBA{0xFF, 0xFF, 0x70, 0xFF}
	case dbz < 50:
		return color.NRGBA{0xD0, 0xD0, 0x60, 0xFF}
	case dbz < 55:
		return color.NRGBA{0xFF, 0x60, 0x60, 0xFF}
	case dbz < 60:
		return color.NRGBA{0xDA, 0x00, 0x00, 0xFF}
	case dbz < 65:
		return color.NRGBA{0xAE, 0x00, 0x00, 0xFF}
	case dbz < 70:
		return color.NRGBA{0x00, 0x00, 0xFF, 0xFF}
	case dbz < 75:
		return color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF}
	default:
		return color.NRGBA{0xE7, 0x00, 0xFF, 0xFF}
	}
}

// velocityPalette mirrors the teacher's velColorRadarscope band table,
// compressed to an even spread since the LUT is indexed by raw word, not a
// hand-tuned band list.
func velocityPalette(raw uint16, scale, offset float32) color.Color {
	if raw == rangeFoldedSentinel {
		return color.NRGBA{0x69, 0x1A, 0xC1, 0xFF}
	}
	vel := (float32(raw) - offset) / scale
	switch {
	case vel < -100:
		return color.NRGBA{0x15, 0x1F, 0x93, 0xFF}
	case vel < -50:
		return color.NRGBA{0x23, 0x6F, 0xB3, 0xFF}
	case vel < 0:
		return color.NRGBA{0x9E, 0xE8, 0xEA, 0xFF}
	case vel == 0:
		return colornames.Black
	case vel < 50:
		return color.NRGBA{0x31, 0xE3, 0x2B, 0xFF}
	case vel < 100:
		return color.NRGBA{0xF3, 0x22, 0x45, 0xFF}
	default:
		return color.NRGBA{0xF9, 0x14, 0x73, 0xFF}
	}
}

func defaultPalette(raw uint16, scale, offset float32) color.Color {
	if raw == rangeFoldedSentinel {
		return colornames.Gray
	}
	if raw == 0 {
		return colornames.Black
	}
	return colornames.White
}

// palettes is the per-product default palette, grounded on the teacher's
// colorSchemes table in cmd/l2serv/main.go.
var palettes = map[archive2.DataBlockType]Palette{
	archive2.DataBlockReflectivity: reflectivityPalette,
	archive2.DataBlockVelocity:     velocityPalette,
}

func paletteFor(moment archive2.DataBlockType) Palette {
	if p, ok := palettes[moment]; ok {
		return p
	}
	return defaultPalette
}

// ColorTableLUT is a precomputed raw-word -> color lookup table for one
// product, invalidated whenever the palette, scale, or offset changes
// (spec.md section 4.8).
type ColorTableLUT struct {
	moment archive2.DataBlockType
	scale  float32
	offset float32
	min    int
	max    int
	colors []color.Color
}

// UpdateColorTableLut rebuilds v's LUT for moment/scale/offset if they
// differ from the currently cached ones; it's a no-op otherwise.
func (v *View) UpdateColorTableLut(moment archive2.DataBlockType, scale, offset float32) *ColorTableLUT {
	if v.lut != nil && v.lut.moment == moment && v.lut.scale == scale && v.lut.offset == offset {
		return v.lut
	}

	bounds, ok := productRanges[moment]
	if !ok {
		bounds = [2]int{1, 256}
	}
	palette := paletteFor(moment)

	lut := &ColorTableLUT{moment: moment, scale: scale, offset: offset, min: bounds[0], max: bounds[1]}
	lut.colors = make([]color.Color, bounds[1]-bounds[0])
	for i := bounds[0]; i < bounds[1]; i++ {
		lut.colors[i-bounds[0]] = palette(uint16(i), scale, offset)
	}

	v.lut = lut
	return lut
}

// Color looks up raw's color in the LUT; for raw outside [min, max) it
// evaluates the product's palette on raw directly.
func (t *ColorTableLUT) Color(raw uint16) color.Color {
	if int(raw) < t.min || int(raw) >= t.max {
		return paletteFor(t.moment)(raw, t.scale, t.offset)
	}
	return t.colors[int(raw)-t.min]
}
