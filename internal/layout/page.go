package layout

import (
	"strings"
	"unicode/utf8"
)

// Glyph is a run of text (usually one character) with its box.
type Glyph struct {
	Text string `json:"text"`
	Box  Rect   `json:"box"`
}

// Line is a sequence of glyphs in reading order.
type Line struct {
	Glyphs []Glyph `json:"glyphs"`
}

// Text concatenates the line's glyphs.
func (l Line) Text() string {
	var b strings.Builder
	for _, g := range l.Glyphs {
		b.WriteString(g.Text)
	}
	return b.String()
}

// Page holds positioned text for one page. Number is 1-based.
type Page struct {
	Number int     `json:"number"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Lines  []Line  `json:"lines"`
}

// Text returns the page's reading-order text, one line per Line.
func (p *Page) Text() string {
	lines := make([]string, len(p.Lines))
	for i, l := range p.Lines {
		lines[i] = l.Text()
	}
	return strings.Join(lines, "\n")
}

// Search returns one box per non-overlapping occurrence of needle. Matches
// never span lines.
func (p *Page) Search(needle string) []Rect {
	if needle == "" {
		return nil
	}
	var boxes []Rect
	for _, l := range p.Lines {
		text := l.Text()
		// starts[i] is the byte offset of glyph i in text.
		starts := make([]int, len(l.Glyphs)+1)
		for i, g := range l.Glyphs {
			starts[i+1] = starts[i] + len(g.Text)
		}
		for from := 0; from <= len(text)-len(needle); {
			i := strings.Index(text[from:], needle)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(needle)
			boxes = append(boxes, unionCovering(l.Glyphs, starts, start, end))
			from = end
		}
	}
	return boxes
}

// unionCovering unions every glyph overlapping the byte range [start,end).
func unionCovering(glyphs []Glyph, starts []int, start, end int) Rect {
	var box Rect
	for i, g := range glyphs {
		if starts[i] < end && start < starts[i+1] {
			box = box.Union(g.Box)
		}
	}
	return box
}

// Typesetting used by NewTextPage.
const (
	DefaultPageWidth  = 612.0
	DefaultPageHeight = 792.0
	textMargin        = 72.0
	textCharWidth     = 6.0
	textLineHeight    = 14.0
	textFontSize      = 10.0
)

// NewTextPage lays out lines in a fixed-pitch font on a US Letter page.
func NewTextPage(number int, lines ...string) *Page {
	p := &Page{Number: number, Width: DefaultPageWidth, Height: DefaultPageHeight}
	for i, s := range lines {
		top := textMargin + float64(i)*textLineHeight
		x := textMargin
		line := Line{Glyphs: make([]Glyph, 0, utf8.RuneCountInString(s))}
		for _, r := range s {
			line.Glyphs = append(line.Glyphs, Glyph{
				Text: string(r),
				Box:  Rect{X0: x, Y0: top, X1: x + textCharWidth, Y1: top + textFontSize},
			})
			x += textCharWidth
		}
		p.Lines = append(p.Lines, line)
	}
	return p
}
