package layout

import (
	"github.com/pdfcpu/pdfcpu/pkg/font"
)

// fallbackFont measures faces outside the standard 14.
const fallbackFont = "Helvetica"

// estimateAdvance returns the horizontal advance of s in points when the
// font carries no /Widths array. The standard 14 fonts do not have to embed
// widths, so their AFM metrics are used; any other face is approximated
// with Helvetica.
func estimateAdvance(s, fontName string, size float64) float64 {
	if !font.IsCoreFont(fontName) {
		fontName = fallbackFont
	}
	var units int
	for _, r := range s {
		w, err := font.CharWidth(fontName, r)
		if err != nil {
			continue
		}
		units += w
	}
	return font.UserSpaceUnitsFloat(float64(units), size)
}
