package relocate

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/text/cases"
)

// DefaultColor is used when no ColorTable key matches.
var DefaultColor = colorful.Color{R: 1, G: 0, B: 0}

// CategoryColor pairs a category key with its highlight color.
type CategoryColor struct {
	Key   string
	Color colorful.Color
}

// ColorTable is an ordered list of category colors. The first matching key
// wins.
type ColorTable []CategoryColor

// DefaultColorTable returns the built-in category colors.
func DefaultColorTable() ColorTable {
	return ColorTable{
		{Key: "PERSON", Color: colorful.Color{R: 1, G: 0, B: 0}},
		{Key: "EMAIL", Color: colorful.Color{R: 0, G: 0.5, B: 1}},
		{Key: "PHONE", Color: colorful.Color{R: 0, G: 0.8, B: 0}},
		{Key: "SSN", Color: colorful.Color{R: 1, G: 0, B: 1}},
		{Key: "CREDIT", Color: colorful.Color{R: 1, G: 0.65, B: 0}},
		{Key: "ADDRESS", Color: colorful.Color{R: 0.5, G: 0, B: 0.5}},
		{Key: "DATE", Color: colorful.Color{R: 0, G: 0.5, B: 0.5}},
		{Key: "COMPANY", Color: colorful.Color{R: 0.6, G: 0.4, B: 0.2}},
	}
}

// ParseColorTable builds a table from (key, hex color) pairs.
func ParseColorTable(pairs [][2]string) (ColorTable, error) {
	t := make(ColorTable, 0, len(pairs))
	for _, p := range pairs {
		c, err := colorful.Hex(p[1])
		if err != nil {
			return nil, fmt.Errorf("color for %q: %w", p[0], err)
		}
		t = append(t, CategoryColor{Key: p[0], Color: c})
	}
	return t, nil
}

// Match picks the color of the first key that occurs, ignoring case, in
// the occurrence's entity type or matched text.
func (t ColorTable) Match(entityType, text string) colorful.Color {
	fold := cases.Fold()
	entityType = fold.String(entityType)
	text = fold.String(text)
	for _, cc := range t {
		key := fold.String(cc.Key)
		if key == "" {
			continue
		}
		if strings.Contains(entityType, key) || strings.Contains(text, key) {
			return cc.Color
		}
	}
	return DefaultColor
}
